package domain

import "errors"

var (
	// ErrNotFound indicates a referenced task, project or user is absent.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates the actor may not perform the action.
	ErrUnauthorized = errors.New("not authorized")

	// ErrInvalidTransition indicates the requested status is not reachable
	// from the current one.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvariant indicates a domain rule other than a transition was broken,
	// e.g. assigning a task to a non-member.
	ErrInvariant = errors.New("invariant violated")

	ErrInvalidArgument = errors.New("invalid argument")

	// ErrOracleUnavailable indicates the pull request status could not be
	// determined. It means "unknown", never "false".
	ErrOracleUnavailable = errors.New("pull request status unavailable")

	ErrMissingCredential = errors.New("missing access credential")

	// ErrConcurrencyConflict indicates that the underlying storage rejected an
	// update because a newer version of the entity is already persisted.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

// StoreError wraps a failed document store operation.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return "store " + e.Op + ": " + e.Err.Error() }

func (e *StoreError) Unwrap() error { return e.Err }
