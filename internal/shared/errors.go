package shared

import (
	"errors"
	"fmt"
)

// Error kinds. Callers discriminate with errors.Is against these sentinels;
// every kind maps to exactly one HTTP status at the boundary.
var (
	// ErrValidation indicates malformed input rejected before any mutation.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates an unknown challan, lead, employee or product id.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition indicates a transition not legal from the current status.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrConcurrencyConflict indicates a version mismatch on a conditional update.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrInsufficientStock indicates a direct stock correction would go negative.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrLedgerWrite indicates a failure partway through a multi-line ledger commit.
	ErrLedgerWrite = errors.New("ledger write failure")
	// ErrUnavailable indicates the backing store is unreachable.
	ErrUnavailable = errors.New("store unavailable")
)

// Error carries a kind sentinel plus detail so callers can branch on the kind
// without parsing messages.
type Error struct {
	Kind   error
	Detail string
	Err    error
}

// E builds a kinded error.
func E(kind error, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Ef builds a kinded error with a formatted detail.
func Ef(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap builds a kinded error around an underlying cause.
func Wrap(kind error, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Detail != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.Error()
	}
}

// Is matches the kind sentinel so errors.Is(err, shared.ErrNotFound) works.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the taxonomy sentinel for err, or nil when err carries none.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrValidation,
		ErrNotFound,
		ErrInvalidTransition,
		ErrConcurrencyConflict,
		ErrInsufficientStock,
		ErrLedgerWrite,
		ErrUnavailable,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
