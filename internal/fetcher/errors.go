package fetcher

import (
	"errors"
	"fmt"
)

// Kind categorises a fetch failure so callers can decide whether retrying or
// serving stale data is appropriate.
type Kind string

const (
	// KindUnavailable covers network failures, timeouts, and upstream
	// rejections (rate limiting included). Retryable.
	KindUnavailable Kind = "unavailable"
	// KindSchema covers unexpected payloads and out-of-domain values.
	// Not retryable: the same request would fail the same way.
	KindSchema Kind = "schema"
)

// FetchError is the typed failure produced by providers and the chain.
type FetchError struct {
	Kind       Kind
	Provider   string
	StatusCode int
	Message    string
	Cause      error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s error (status %d): %s", e.Provider, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s error: %s", e.Provider, e.Kind, e.Message)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether another attempt against the same provider could
// plausibly succeed.
func (e *FetchError) Retryable() bool {
	return e.Kind == KindUnavailable
}

func unavailable(provider string, status int, message string, cause error) *FetchError {
	return &FetchError{Kind: KindUnavailable, Provider: provider, StatusCode: status, Message: message, Cause: cause}
}

func schema(provider, message string, cause error) *FetchError {
	return &FetchError{Kind: KindSchema, Provider: provider, Message: message, Cause: cause}
}

// AsFetchError unwraps err into a *FetchError if possible.
func AsFetchError(err error) (*FetchError, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
