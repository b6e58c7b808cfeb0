package execution

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/oakmere/conductor-core/internal/infrastructure/database"
	_ "github.com/oakmere/conductor-core/migrations"
)

func newTestArchive(t *testing.T) *Archive {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "archive.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewArchive(db)
}

func terminalRecord(requestID string, submitted time.Time) *Record {
	started := submitted.Add(time.Second)
	ended := submitted.Add(5 * time.Second)
	return &Record{
		RequestID:     requestID,
		DeviceID:      "pump-01",
		ActionKind:    "pump.transfer",
		Parameters:    map[string]any{"volume": 10.0},
		State:         StateSucceeded,
		Reason:        ReasonCompleted,
		Result:        map[string]any{"dispensed_total": 10.0},
		FeedbackCount: 3,
		SubmittedAt:   submitted,
		StartedAt:     &started,
		EndedAt:       &ended,
	}
}

func TestArchiveSaveAndGet(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	rec := terminalRecord("act-1", now)
	if err := a.SaveExecution(ctx, rec); err != nil {
		t.Fatalf("SaveExecution() error = %v", err)
	}

	got, err := a.GetExecution(ctx, "act-1")
	if err != nil {
		t.Fatalf("GetExecution() error = %v", err)
	}
	if got.State != StateSucceeded || got.Reason != ReasonCompleted {
		t.Errorf("state = %s/%s", got.State, got.Reason)
	}
	if got.Parameters["volume"] != 10.0 {
		t.Errorf("Parameters = %v", got.Parameters)
	}
	if got.Result["dispensed_total"] != 10.0 {
		t.Errorf("Result = %v", got.Result)
	}
	if got.FeedbackCount != 3 {
		t.Errorf("FeedbackCount = %d", got.FeedbackCount)
	}
	if !got.SubmittedAt.Equal(now) {
		t.Errorf("SubmittedAt = %v, want %v", got.SubmittedAt, now)
	}
	if got.StartedAt == nil || got.EndedAt == nil {
		t.Error("timestamps lost on round trip")
	}
}

func TestArchiveUpsertOverwrites(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first := terminalRecord("act-1", now)
	first.State = StateAborted
	first.Reason = ReasonTimeout
	first.Result = nil
	if err := a.SaveExecution(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := a.SaveExecution(ctx, terminalRecord("act-1", now)); err != nil {
		t.Fatal(err)
	}

	got, err := a.GetExecution(ctx, "act-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.State != StateSucceeded || got.Reason != ReasonCompleted {
		t.Errorf("state after upsert = %s/%s, want succeeded/completed", got.State, got.Reason)
	}
}

func TestArchiveGetUnknown(t *testing.T) {
	a := newTestArchive(t)

	_, err := a.GetExecution(context.Background(), "act-ghost")
	if !errors.Is(err, ErrUnknownRequest) {
		t.Errorf("GetExecution() error = %v, want ErrUnknownRequest", err)
	}
}

func TestArchiveListNewestFirst(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, id := range []string{"act-1", "act-2", "act-3"} {
		rec := terminalRecord(id, base.Add(time.Duration(i)*time.Minute))
		if err := a.SaveExecution(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	list, err := a.ListExecutions(ctx, 2)
	if err != nil {
		t.Fatalf("ListExecutions() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].RequestID != "act-3" || list[1].RequestID != "act-2" {
		t.Errorf("order = [%s %s], want [act-3 act-2]", list[0].RequestID, list[1].RequestID)
	}
}
