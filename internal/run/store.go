package run

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oakmere/conductor-core/internal/execution"
	"github.com/oakmere/conductor-core/internal/infrastructure/database"
)

// Repository persists finished runs. Skipped steps were never
// submitted, so only submitted steps land in the step log.
type Repository interface {
	SaveRun(ctx context.Context, r *Run) error
	GetRun(ctx context.Context, runID string) (*Run, error)
}

// Store is the SQLite-backed run repository.
type Store struct {
	db *database.DB
}

// NewStore creates a store over an open database.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// SaveRun writes the run header and its submitted step outcomes in one
// transaction.
func (s *Store) SaveRun(ctx context.Context, r *Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning run save: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, failure_policy, status, steps_total, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at`,
		r.ID, string(r.Policy), string(r.Status), r.StepsTotal,
		r.CreatedAt.Format(time.RFC3339Nano), formatTime(r.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", r.ID, err)
	}

	for _, step := range r.Steps {
		if step.Skipped {
			continue
		}
		result, err := marshalJSON(step.Result)
		if err != nil {
			return fmt.Errorf("encoding step %d result: %w", step.Index, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_steps (
				run_id, step_index, submission_seq, request_id, device_id,
				action_kind, attempts, terminal_state, reason, result, error
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, step_index) DO UPDATE SET
				attempts = excluded.attempts,
				terminal_state = excluded.terminal_state,
				reason = excluded.reason,
				result = excluded.result,
				error = excluded.error`,
			r.ID, step.Index, step.SubmissionSeq, nullString(step.RequestID),
			step.DeviceID, step.Kind, step.Attempts, string(step.State),
			step.Reason, result, nullString(step.Error),
		)
		if err != nil {
			return fmt.Errorf("saving run %s step %d: %w", r.ID, step.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run save: %w", err)
	}
	return nil
}

// GetRun loads a run and its step log. Returns ErrUnknownRun if
// absent. Steps that were skipped at execution time come back with
// Skipped set and no outcome.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	var (
		r           Run
		policy      string
		status      string
		created     string
		completedAt sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, failure_policy, status, steps_total, created_at, completed_at
		FROM runs WHERE run_id = ?`, runID).
		Scan(&r.ID, &policy, &status, &r.StepsTotal, &created, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRun, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", runID, err)
	}

	r.Policy = FailurePolicy(policy)
	r.Status = Status(status)
	if r.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if r.CompletedAt, err = parseTime(completedAt); err != nil {
		return nil, fmt.Errorf("parsing completed_at: %w", err)
	}

	r.Steps = make([]StepOutcome, r.StepsTotal)
	for i := range r.Steps {
		r.Steps[i] = StepOutcome{Index: i, Skipped: true}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT step_index, submission_seq, request_id, device_id, action_kind,
			attempts, terminal_state, reason, result, error
		FROM run_steps WHERE run_id = ? ORDER BY step_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("loading run %s steps: %w", runID, err)
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var (
			step              StepOutcome
			state             string
			requestID, result sql.NullString
			errMsg            sql.NullString
		)
		err := rows.Scan(&step.Index, &step.SubmissionSeq, &requestID,
			&step.DeviceID, &step.Kind, &step.Attempts, &state,
			&step.Reason, &result, &errMsg)
		if err != nil {
			return nil, fmt.Errorf("scanning run step: %w", err)
		}
		step.State = execution.State(state)
		step.RequestID = requestID.String
		step.Error = errMsg.String
		if result.Valid && result.String != "" {
			if err := json.Unmarshal([]byte(result.String), &step.Result); err != nil {
				return nil, fmt.Errorf("decoding step %d result: %w", step.Index, err)
			}
		}
		if step.Index >= 0 && step.Index < len(r.Steps) {
			r.Steps[step.Index] = step
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating run steps: %w", err)
	}
	return &r, nil
}

func marshalJSON(m map[string]any) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func formatTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339Nano), Valid: true}
}

func parseTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
