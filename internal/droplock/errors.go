package droplock

import (
	"errors"
	"fmt"
)

// Error taxonomy. Callers match with errors.Is; messages carry the detail.
var (
	// ErrUnauthorized: profile missing, inactive, wrong role or wrong sector.
	ErrUnauthorized = errors.New("not authorized")

	// ErrConflict: duplicate create or delete of a booked locker.
	ErrConflict = errors.New("conflict")

	// ErrNotFound: the target locker, profile or alert does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation: malformed input such as an unknown status value.
	ErrValidation = errors.New("invalid input")

	// ErrTransport: a remote call (store, identity provider, mail) failed.
	ErrTransport = errors.New("transport failure")
)

// TransportError wraps a lower-level failure so it matches ErrTransport
// while keeping the original error reachable through errors.Is / As.
func TransportError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
}
