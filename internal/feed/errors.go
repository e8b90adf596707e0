package feed

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a fetch failed. Every kind is recoverable: the
// scheduler skips the cycle and tries again on the next tick.
type ErrorKind int

const (
	// Network covers transport failures and timeouts.
	Network ErrorKind = iota + 1
	// BadStatus means the feed answered with a non-2xx status, or with an
	// envelope whose status flag is false.
	BadStatus
	// Malformed means the payload is not the expected envelope shape.
	Malformed
)

func (k ErrorKind) String() string {
	switch k {
	case Network:
		return "network"
	case BadStatus:
		return "bad_status"
	case Malformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// FetchError is returned by Client.FetchLatest.
type FetchError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("feed %s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("feed %s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a FetchError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == kind
}
