package execution

import "errors"

var (
	// ErrUnknownRequest indicates no execution exists for the request ID.
	ErrUnknownRequest = errors.New("execution: unknown request")

	// ErrNotTerminal indicates a result was requested before the
	// execution finished.
	ErrNotTerminal = errors.New("execution: not terminal")

	// ErrManagerClosed indicates the manager is shutting down and no
	// longer accepts goals.
	ErrManagerClosed = errors.New("execution: manager closed")

	// ErrDuplicateRequest indicates the request ID is already in use.
	ErrDuplicateRequest = errors.New("execution: duplicate request id")
)
