package execution

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oakmere/conductor-core/internal/infrastructure/database"
)

// Archive is the SQLite-backed execution repository.
type Archive struct {
	db *database.DB
}

// NewArchive creates an archive over an open database.
func NewArchive(db *database.DB) *Archive {
	return &Archive{db: db}
}

// SaveExecution upserts the full record keyed by request ID.
func (a *Archive) SaveExecution(ctx context.Context, rec *Record) error {
	params, err := marshalJSON(rec.Parameters)
	if err != nil {
		return fmt.Errorf("encoding parameters: %w", err)
	}
	result, err := marshalJSON(rec.Result)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO executions (
			request_id, device_id, action_kind, parameters, state, reason,
			result, error, feedback_count, submitted_at, started_at, ended_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(request_id) DO UPDATE SET
			state = excluded.state,
			reason = excluded.reason,
			result = excluded.result,
			error = excluded.error,
			feedback_count = excluded.feedback_count,
			started_at = excluded.started_at,
			ended_at = excluded.ended_at`,
		rec.RequestID, rec.DeviceID, rec.ActionKind, params,
		string(rec.State), string(rec.Reason), result, rec.Error,
		rec.FeedbackCount, rec.SubmittedAt.Format(time.RFC3339Nano),
		formatTime(rec.StartedAt), formatTime(rec.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("saving execution %s: %w", rec.RequestID, err)
	}
	return nil
}

// GetExecution loads one record by request ID.
// Returns ErrUnknownRequest if absent.
func (a *Archive) GetExecution(ctx context.Context, requestID string) (*Record, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT request_id, device_id, action_kind, parameters, state, reason,
			result, error, feedback_count, submitted_at, started_at, ended_at
		FROM executions WHERE request_id = ?`, requestID)

	rec, err := scanExecution(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRequest, requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading execution %s: %w", requestID, err)
	}
	return rec, nil
}

// ListExecutions returns up to limit records, newest first.
func (a *Archive) ListExecutions(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT request_id, device_id, action_kind, parameters, state, reason,
			result, error, feedback_count, submitted_at, started_at, ended_at
		FROM executions ORDER BY submitted_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing executions: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []Record
	for rows.Next() {
		rec, err := scanExecution(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning execution: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating executions: %w", err)
	}
	return out, nil
}

// scanExecution maps one row to a Record through the given Scan
// function, so it serves both QueryRow and Rows.
func scanExecution(scan func(dest ...any) error) (*Record, error) {
	var (
		rec                Record
		state, reason      string
		params, result     sql.NullString
		errMsg             sql.NullString
		submitted          string
		startedAt, endedAt sql.NullString
	)
	err := scan(&rec.RequestID, &rec.DeviceID, &rec.ActionKind, &params,
		&state, &reason, &result, &errMsg, &rec.FeedbackCount,
		&submitted, &startedAt, &endedAt)
	if err != nil {
		return nil, err
	}

	rec.State = State(state)
	rec.Reason = Reason(reason)
	rec.Error = errMsg.String
	if err := unmarshalJSON(params, &rec.Parameters); err != nil {
		return nil, fmt.Errorf("decoding parameters: %w", err)
	}
	if err := unmarshalJSON(result, &rec.Result); err != nil {
		return nil, fmt.Errorf("decoding result: %w", err)
	}
	if rec.SubmittedAt, err = time.Parse(time.RFC3339Nano, submitted); err != nil {
		return nil, fmt.Errorf("parsing submitted_at: %w", err)
	}
	if rec.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	if rec.EndedAt, err = parseTime(endedAt); err != nil {
		return nil, fmt.Errorf("parsing ended_at: %w", err)
	}
	return &rec, nil
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

func unmarshalJSON(s sql.NullString, dst *map[string]any) error {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), dst)
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
