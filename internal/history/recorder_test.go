package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/labquest/internal/model"
	"github.com/hitoshi/labquest/internal/repository/memory"
)

type failingSink struct{}

func (failingSink) Append(ctx context.Context, rec *model.HistoryRecord) error {
	return errors.New("connection refused")
}

func TestRecord_AppendsSnapshots(t *testing.T) {
	store := memory.New()
	r := NewRecorder(store.History(), slog.Default())
	r.now = func() time.Time { return time.Date(2026, 1, 4, 9, 0, 0, 0, time.UTC) }

	before := map[string]any{"status": "in-review"}
	after := map[string]any{"status": "done"}
	r.Record(context.Background(), Entry{
		EntityType:  model.EntityTask,
		EntityID:    "task-1",
		Action:      ActionTaskApproved,
		PerformedBy: "leader-1",
		Before:      before,
		After:       after,
	})

	recs := store.HistoryRecords()
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	rec := recs[0]
	if rec.ID == "" {
		t.Error("expected generated ID")
	}
	if rec.Action != ActionTaskApproved || rec.PerformedBy != "leader-1" || rec.EntityID != "task-1" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if !rec.CreatedAt.Equal(time.Date(2026, 1, 4, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("CreatedAt = %v", rec.CreatedAt)
	}

	var got map[string]any
	if err := json.Unmarshal(rec.After, &got); err != nil {
		t.Fatalf("After is not valid JSON: %v", err)
	}
	if got["status"] != "done" {
		t.Errorf("After.status = %v, want done", got["status"])
	}
}

func TestRecord_NilSnapshotsStayEmpty(t *testing.T) {
	store := memory.New()
	r := NewRecorder(store.History(), nil)

	r.Record(context.Background(), Entry{EntityType: model.EntityUserBadge, EntityID: "u/b", Action: ActionBadgeEarned, After: map[string]string{"badge_id": "b"}})

	rec := store.HistoryRecords()[0]
	if rec.Before != nil {
		t.Errorf("Before = %s, want nil", rec.Before)
	}
}

func TestRecord_SinkFailureIsLoggedNotReturned(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	r := NewRecorder(failingSink{}, logger)

	r.Record(context.Background(), Entry{EntityType: model.EntityTask, EntityID: "t", Action: ActionTaskStarted})

	if !strings.Contains(buf.String(), "failed to append history") {
		t.Errorf("expected warn log, got %s", buf.String())
	}
}

func TestRecord_NilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.Record(context.Background(), Entry{Action: ActionTaskStarted})

	NewRecorder(nil, nil).Record(context.Background(), Entry{Action: ActionTaskStarted})
}
