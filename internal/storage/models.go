package storage

import "time"

// Subscriber is one end user's notification schedule.
type Subscriber struct {
	ID             int64
	IsSubscribed   bool
	PushTime       string // local wall clock, "HH:MM"
	Timezone       string // IANA zone name
	Language       string
	LastNotifiedAt *time.Time // UTC, nil until the first send
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
