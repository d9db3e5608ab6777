// Package ledger implements the shared-ledger use cases around the balance
// engine: balance queries, the invite workflow, and ordinary entry CRUD.
package ledger

import (
	"errors"
	"fmt"

	"github.com/mmynk/sharedledger/internal/storage"
)

// Error kinds. Callers match them with errors.Is; every error returned by
// this package and by the settlement coordinator wraps exactly one of them.
var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("not authorized")
	ErrInvalidState        = errors.New("invalid state")
	ErrInvalidInput        = errors.New("invalid input")
	ErrDuplicateSettlement = errors.New("duplicate settlement")
	ErrPersistence         = errors.New("persistence failure")
)

// Errorf wraps kind with a formatted message, e.g.
// Errorf(ErrInvalidInput, "amount must be positive").
func Errorf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// FromStorage classifies a storage error: storage.ErrNotFound becomes
// ErrNotFound, anything else ErrPersistence. Errors that already carry a
// kind are returned unchanged.
func FromStorage(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case IsKind(err):
		return err
	case errors.Is(err, storage.ErrNotFound):
		return Errorf(ErrNotFound, "%s not found", what)
	default:
		return fmt.Errorf("%w: %s: %w", ErrPersistence, what, err)
	}
}

// IsKind reports whether err wraps one of the error kinds.
func IsKind(err error) bool {
	for _, kind := range []error{ErrNotFound, ErrUnauthorized, ErrInvalidState, ErrInvalidInput, ErrDuplicateSettlement, ErrPersistence} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
