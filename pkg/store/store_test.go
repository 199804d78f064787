package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// setupTestStore creates a temporary database for testing
func setupTestStore(t *testing.T) (*Store, string, func()) {
	t.Helper()
	tmpDir := t.TempDir()

	dbPath := filepath.Join(tmpDir, "rigbind.db")
	store, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	cleanup := func() {
		store.Close()
	}

	return store, dbPath, cleanup
}

func TestNewStore(t *testing.T) {
	store, dbPath, cleanup := setupTestStore(t)
	defer cleanup()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Errorf("database file was not created at %s", dbPath)
	}

	for _, table := range []string{"events", "leases"} {
		var name string
		err := store.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Fatalf("failed to query sqlite_master for %s table: %v", table, err)
		}
		if name != table {
			t.Errorf("expected table %q to exist", table)
		}
	}
}

func newEvent(id string, typ EventType, scene string, ts time.Time) *Event {
	return &Event{
		EventID:       EventID(id),
		EventType:     typ,
		SchemaVersion: 1,
		TsEvent:       ts,
		Source:        EventSource{OriginKind: "cli", OriginID: "test"},
		Dimensions: EventDimensions{
			Scene:      scene,
			Kind:       "rotation",
			SourceRoot: "Avatar/Armature",
			TargetRoot: "Costume/Armature",
		},
		Payload: json.RawMessage(`{"pairs":3,"bound":3}`),
	}
}

func TestAppendAndGetEvent(t *testing.T) {
	store, _, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	missing, err := store.GetEvent(ctx, "nope")
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing event, got %+v", missing)
	}

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := store.AppendEvent(ctx, newEvent("evt-1", EventTypeConstraintsCopied, "stage.yaml", ts)); err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}

	got, err := store.GetEvent(ctx, "evt-1")
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected event")
	}
	if got.EventType != EventTypeConstraintsCopied {
		t.Errorf("expected type %s, got %s", EventTypeConstraintsCopied, got.EventType)
	}
	if !got.TsEvent.Equal(ts) {
		t.Errorf("expected ts %v, got %v", ts, got.TsEvent)
	}
	if got.Dimensions.SourceRoot != "Avatar/Armature" || got.Dimensions.TargetRoot != "Costume/Armature" {
		t.Errorf("unexpected dimensions: %+v", got.Dimensions)
	}

	var payload CopyPayload
	if err := json.Unmarshal(got.Payload, &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload.Bound != 3 {
		t.Errorf("expected bound 3, got %d", payload.Bound)
	}

	if err := store.AppendEvent(ctx, newEvent("evt-1", EventTypeConstraintsCopied, "stage.yaml", ts)); err == nil {
		t.Error("expected duplicate event id to fail")
	}
}

func TestQueryEvents(t *testing.T) {
	store, _, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	events := []*Event{
		newEvent("e1", EventTypeConstraintsCopied, "a.yaml", base),
		newEvent("e2", EventTypeConstraintsReset, "a.yaml", base.Add(time.Minute)),
		newEvent("e3", EventTypeOperationFailed, "b.yaml", base.Add(2*time.Minute)),
		newEvent("e4", EventTypeConstraintsCopied, "b.yaml", base.Add(3*time.Minute)),
	}
	for _, e := range events {
		if err := store.AppendEvent(ctx, e); err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter EventFilter
		want   []EventID
	}{
		{"all newest first", EventFilter{}, []EventID{"e4", "e3", "e2", "e1"}},
		{"by scene", EventFilter{Scene: "a.yaml"}, []EventID{"e2", "e1"}},
		{"by type", EventFilter{EventTypes: []EventType{EventTypeConstraintsCopied}}, []EventID{"e4", "e1"}},
		{"limit", EventFilter{Limit: 1}, []EventID{"e4"}},
		{"time range", EventFilter{From: base.Add(30 * time.Second), To: base.Add(150 * time.Second)}, []EventID{"e3", "e2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.QueryEvents(ctx, tt.filter)
			if err != nil {
				t.Fatalf("QueryEvents failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d events, got %d", len(tt.want), len(got))
			}
			for i := range got {
				if got[i].EventID != tt.want[i] {
					t.Errorf("event %d: expected %s, got %s", i, tt.want[i], got[i].EventID)
				}
			}
		})
	}
}
