// Package localtime resolves IANA zone names to locations. The eligibility
// predicate depends on per-subscriber zone lookups every tick, so the lookup
// sits behind a small interface that tests can replace, and resolved zones
// are cached.
package localtime

import (
	"errors"
	"fmt"
	"sync"
	"time"
	// Embed the zone database so lookups do not depend on host tzdata.
	_ "time/tzdata"
)

// ErrUnknownZone marks a zone name the IANA database does not know.
var ErrUnknownZone = errors.New("unknown timezone")

// Resolver maps an IANA zone name to a location.
type Resolver interface {
	Resolve(name string) (*time.Location, error)
}

// SystemResolver resolves through the Go runtime's zone database, caching
// successful lookups.
type SystemResolver struct {
	mu    sync.Mutex
	cache map[string]*time.Location
}

// NewSystemResolver constructs a caching resolver.
func NewSystemResolver() *SystemResolver {
	return &SystemResolver{cache: map[string]*time.Location{}}
}

// Resolve returns the location for name, or ErrUnknownZone.
func (r *SystemResolver) Resolve(name string) (*time.Location, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrUnknownZone)
	}

	r.mu.Lock()
	loc, ok := r.cache[name]
	r.mu.Unlock()
	if ok {
		return loc, nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownZone, name)
	}

	r.mu.Lock()
	r.cache[name] = loc
	r.mu.Unlock()
	return loc, nil
}

var _ Resolver = (*SystemResolver)(nil)
