package execution

import "context"

// Repository persists terminal execution records. Live state stays in
// memory; the manager writes a record once, on the terminal commit, so
// implementations only need idempotent writes keyed by request ID.
type Repository interface {
	SaveExecution(ctx context.Context, rec *Record) error
	GetExecution(ctx context.Context, requestID string) (*Record, error)
	ListExecutions(ctx context.Context, limit int) ([]Record, error)
}
