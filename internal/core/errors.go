package core

import (
	"errors"
	"fmt"
)

// Error kinds. Callers branch on these with errors.Is; every error returned
// by the ledger, the registry, and the stores wraps exactly one of them.
//
// Validation, reference, and invariant failures are detected before any write
// is attempted and are never retried. Store failures wrap the underlying
// cause and are surfaced as-is.
var (
	ErrValidation = errors.New("validation failed")
	ErrReference  = errors.New("unknown reference")
	ErrNotFound   = errors.New("not found")
	ErrInvariant  = errors.New("invariant violated")
	ErrStore      = errors.New("store failure")
)

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func Referencef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrReference, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func Invariantf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(format, args...))
}

// StoreErr wraps a backing-store failure so callers can both detect the kind
// and unwrap the cause.
func StoreErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}
