package engine

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rmax-ai/rigbind/pkg/blob"
	"github.com/rmax-ai/rigbind/pkg/retarget"
	"github.com/rmax-ai/rigbind/pkg/scene"
	"github.com/rmax-ai/rigbind/pkg/store"
)

type memJournal struct {
	mu     sync.Mutex
	events []*store.Event
	err    error
}

func (j *memJournal) AppendEvent(ctx context.Context, evt *store.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.events = append(j.events, evt)
	return nil
}

func (j *memJournal) last() *store.Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.events) == 0 {
		return nil
	}
	return j.events[len(j.events)-1]
}

func skeleton(name string, extra ...string) *scene.Node {
	root := scene.NewNode(name)
	hips := root.AddChild(scene.NewNode("Hips"))
	hips.AddChild(scene.NewNode("Spine"))
	hips.AddChild(scene.NewNode("LeftLeg"))
	for _, e := range extra {
		hips.AddChild(scene.NewNode(e))
	}
	return root
}

// writeRig saves a scene with a Source and a Target skeleton and returns
// its path.
func writeRig(t *testing.T, targetExtra ...string) string {
	t.Helper()
	s := scene.New("rig")
	s.AddRoot(skeleton("Source"))
	s.AddRoot(skeleton("Target", targetExtra...))
	path := filepath.Join(t.TempDir(), "rig.yaml")
	if err := scene.Save(path, s); err != nil {
		t.Fatalf("Failed to save scene: %v", err)
	}
	return path
}

func loadRig(t *testing.T, path string) *scene.Scene {
	t.Helper()
	s, err := scene.Load(path)
	if err != nil {
		t.Fatalf("Failed to load scene: %v", err)
	}
	return s
}

func totalConstraints(s *scene.Scene) int {
	total := 0
	s.Walk(func(n *scene.Node) bool {
		total += len(n.Constraints)
		return true
	})
	return total
}

func newTestEditor(journal Journal) *Editor {
	return NewEditor(Config{Origin: "cli"}, NewSceneLock(nil, "cli-1", time.Minute), journal)
}

func TestEditor_Copy(t *testing.T) {
	path := writeRig(t)
	journal := &memJournal{}
	ed := newTestEditor(journal)

	res, err := ed.Copy(context.Background(), CopyRequest{Scene: path, From: "Source", To: "Target", Kind: retarget.Rotation})
	if err != nil {
		t.Fatalf("Copy failed: %v", err)
	}
	if res.Pairs != 4 || res.Bound != 4 {
		t.Errorf("Expected 4 pairs and 4 bound, got %+v", res)
	}

	s := loadRig(t, path)
	for _, p := range []string{"Hips", "Hips/Spine", "Hips/LeftLeg"} {
		src := s.Find("Source/" + p)
		dst := s.Find("Target/" + p)
		c := dst.Constraint(scene.TypeRotationConstraint)
		if c == nil {
			t.Fatalf("Expected rotation constraint on Target/%s", p)
		}
		if !c.IsActive || len(c.Sources) != 1 {
			t.Fatalf("Unexpected constraint on Target/%s: %+v", p, c)
		}
		if c.Sources[0].Node != src || c.Sources[0].Weight != 1.0 {
			t.Errorf("Target/%s bound to %q with weight %v", p, c.Sources[0].NodeID, c.Sources[0].Weight)
		}
	}

	evt := journal.last()
	if evt == nil || evt.EventType != store.EventTypeConstraintsCopied {
		t.Fatalf("Expected constraints_copied event, got %+v", evt)
	}
	var payload store.CopyPayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}
	if payload.Bound != 4 || evt.Dimensions.Kind != "rotation" || evt.Source.OriginID != "cli-1" {
		t.Errorf("Unexpected event: %+v payload %+v", evt, payload)
	}
}

func TestEditor_CopyIsIdempotent(t *testing.T) {
	path := writeRig(t)
	ed := newTestEditor(nil)
	req := CopyRequest{Scene: path, From: "Source", To: "Target", Kind: retarget.Parent}

	if _, err := ed.Copy(context.Background(), req); err != nil {
		t.Fatalf("First Copy failed: %v", err)
	}
	res, err := ed.Copy(context.Background(), req)
	if err != nil {
		t.Fatalf("Second Copy failed: %v", err)
	}
	if res.Bound != 0 {
		t.Errorf("Expected second copy to bind nothing, got %d", res.Bound)
	}

	s := loadRig(t, path)
	c := s.Find("Target/Hips").Constraint(scene.TypeParentConstraint)
	if c == nil || len(c.Sources) != 1 {
		t.Errorf("Expected exactly one source after repeated copy, got %+v", c)
	}
}

func TestEditor_CopyCountMismatch(t *testing.T) {
	path := writeRig(t, "RightLeg")
	journal := &memJournal{}
	ed := newTestEditor(journal)

	_, err := ed.Copy(context.Background(), CopyRequest{Scene: path, From: "Source", To: "Target", Kind: retarget.Rotation})
	var mismatch *retarget.CountMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("Expected CountMismatchError, got %v", err)
	}
	if mismatch.From != 4 || mismatch.To != 5 {
		t.Errorf("Expected 4 != 5, got %d != %d", mismatch.From, mismatch.To)
	}
	if n := totalConstraints(loadRig(t, path)); n != 0 {
		t.Errorf("Expected no constraints after mismatch, got %d", n)
	}

	evt := journal.last()
	if evt == nil || evt.EventType != store.EventTypeOperationFailed {
		t.Fatalf("Expected operation_failed event, got %+v", evt)
	}
	var payload store.FailurePayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}
	if payload.Operation != "copy" || payload.Reason != "count_mismatch" {
		t.Errorf("Unexpected failure payload: %+v", payload)
	}
}

func TestEditor_CopyMissingRoot(t *testing.T) {
	path := writeRig(t)
	ed := newTestEditor(nil)

	tests := []struct {
		name string
		from string
		to   string
		side retarget.Side
	}{
		{"source", "Nope", "Target", retarget.SideSource},
		{"target", "Source", "Target/Nope", retarget.SideTarget},
		{"empty source", "", "Target", retarget.SideSource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ed.Copy(context.Background(), CopyRequest{Scene: path, From: tt.from, To: tt.to, Kind: retarget.Position})
			if !errors.Is(err, retarget.ErrMissingRoot) {
				t.Fatalf("Expected ErrMissingRoot, got %v", err)
			}
			var missing *retarget.MissingRootError
			if !errors.As(err, &missing) || missing.Side != tt.side {
				t.Errorf("Expected %s side, got %v", tt.side, err)
			}
		})
	}
}

func TestEditor_Reset(t *testing.T) {
	path := writeRig(t)
	ed := newTestEditor(nil)
	ctx := context.Background()

	for _, k := range []retarget.Kind{retarget.Rotation, retarget.Position} {
		if _, err := ed.Copy(ctx, CopyRequest{Scene: path, From: "Source", To: "Target", Kind: k}); err != nil {
			t.Fatalf("Copy %s failed: %v", k, err)
		}
	}

	res, err := ed.Reset(ctx, ResetRequest{Scene: path, Root: "Target", Kind: retarget.Rotation})
	if err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if res.Removed != 4 {
		t.Errorf("Expected 4 removed, got %d", res.Removed)
	}

	s := loadRig(t, path)
	hips := s.Find("Target/Hips")
	if hips.Constraint(scene.TypeRotationConstraint) != nil {
		t.Error("Expected rotation constraint to be removed")
	}
	if hips.Constraint(scene.TypePositionConstraint) == nil {
		t.Error("Expected position constraint to survive a rotation reset")
	}

	if _, err := ed.Reset(ctx, ResetRequest{Scene: path, Root: "Missing", Kind: retarget.Rotation}); !errors.Is(err, retarget.ErrMissingRoot) {
		t.Errorf("Expected ErrMissingRoot, got %v", err)
	}
}

func TestEditor_Describe(t *testing.T) {
	path := writeRig(t)
	ed := newTestEditor(nil)

	d, err := ed.Describe(path, "Target/Hips")
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if d.RootName != "Target" || d.NodeCount != 3 {
		t.Errorf("Expected Target/3, got %+v", d)
	}

	d, err = ed.Describe(path, "Nope")
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if d.RootName != retarget.NoRootName || d.NodeCount != 0 {
		t.Errorf("Expected None/0, got %+v", d)
	}

	if _, err := ed.Describe(filepath.Join(t.TempDir(), "missing.yaml"), "Target"); err == nil {
		t.Error("Expected error for missing scene file")
	}
}

func TestEditor_PlanDoesNotMutate(t *testing.T) {
	path := writeRig(t)
	ed := newTestEditor(nil)

	entries, err := ed.Plan(CopyRequest{Scene: path, From: "Source", To: "Target", Kind: retarget.Rotation})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("Expected 4 entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Action != retarget.ActionBind {
			t.Errorf("Entry %d: expected bind, got %s", e.Index, e.Action)
		}
	}
	if n := totalConstraints(loadRig(t, path)); n != 0 {
		t.Errorf("Plan must not change the scene, found %d constraints", n)
	}
}

func TestEditor_SceneLocked(t *testing.T) {
	path := writeRig(t)
	journal := &memJournal{}
	mockStore := &MockLeaseStore{acquireResult: false}
	ed := NewEditor(Config{Origin: "mcp"}, NewSceneLock(mockStore, "mcp-1", time.Minute), journal)

	_, err := ed.Copy(context.Background(), CopyRequest{Scene: path, From: "Source", To: "Target", Kind: retarget.Rotation})
	if !errors.Is(err, ErrSceneLocked) {
		t.Fatalf("Expected ErrSceneLocked, got %v", err)
	}
	if FailureReason(err) != "scene_locked" {
		t.Errorf("Expected scene_locked reason, got %s", FailureReason(err))
	}
	if evt := journal.last(); evt == nil || evt.Source.OriginKind != "mcp" {
		t.Errorf("Expected failure recorded for mcp origin, got %+v", evt)
	}
	if n := totalConstraints(loadRig(t, path)); n != 0 {
		t.Errorf("Locked scene must not change, found %d constraints", n)
	}
}

func TestEditor_JournalFailureIsNotFatal(t *testing.T) {
	path := writeRig(t)
	ed := newTestEditor(&memJournal{err: errors.New("disk full")})

	res, err := ed.Copy(context.Background(), CopyRequest{Scene: path, From: "Source", To: "Target", Kind: retarget.Rotation})
	if err != nil {
		t.Fatalf("Copy should succeed when the journal fails: %v", err)
	}
	if res.Bound != 4 {
		t.Errorf("Expected 4 bound, got %d", res.Bound)
	}
}

func TestEditor_SQLiteJournal(t *testing.T) {
	path := writeRig(t)
	st, err := store.NewStore(filepath.Join(t.TempDir(), "rigbind.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	ed := NewEditor(Config{Origin: "cli"}, NewSceneLock(st, "cli-1", time.Minute), st)
	if _, err := ed.Copy(ctx, CopyRequest{Scene: path, From: "Source", To: "Target", Kind: retarget.Rotation}); err != nil {
		t.Fatalf("Copy failed: %v", err)
	}
	if _, err := ed.Reset(ctx, ResetRequest{Scene: path, Root: "Target", Kind: retarget.Rotation}); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	events, err := st.QueryEvents(ctx, store.EventFilter{})
	if err != nil {
		t.Fatalf("QueryEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].EventType != store.EventTypeConstraintsReset || events[1].EventType != store.EventTypeConstraintsCopied {
		t.Errorf("Unexpected event order: %s, %s", events[0].EventType, events[1].EventType)
	}

	lease, err := st.Get(ctx, LeaseName(path))
	if err != nil {
		t.Fatalf("Get lease failed: %v", err)
	}
	if lease != nil {
		t.Errorf("Expected lease to be released, got %+v", lease)
	}
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&retarget.MissingRootError{Side: retarget.SideSource}, "missing_root"},
		{&retarget.CountMismatchError{From: 1, To: 2}, "count_mismatch"},
		{ErrSceneLocked, "scene_locked"},
		{ErrLeaseLost, "lease_lost"},
		{errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		if got := FailureReason(tt.err); got != tt.want {
			t.Errorf("FailureReason(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestEditor_BackupsAndRestore(t *testing.T) {
	path := writeRig(t)
	journal := &memJournal{}
	ed := NewEditor(Config{Origin: "cli", KeepBackups: 2}, NewSceneLock(nil, "cli-1", time.Minute), journal).
		WithBackups(blob.NewLocalBlobStore(t.TempDir()))
	ctx := context.Background()

	for _, k := range retarget.Kinds() {
		if _, err := ed.Copy(ctx, CopyRequest{Scene: path, From: "Source", To: "Target", Kind: k}); err != nil {
			t.Fatalf("Copy %s failed: %v", k, err)
		}
		time.Sleep(time.Millisecond)
	}

	keys, err := ed.Backups(ctx, path)
	if err != nil {
		t.Fatalf("Backups failed: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("Expected backups pruned to 2, got %v", keys)
	}
	for _, k := range keys {
		if !strings.HasPrefix(k, "backups/rig-") || !strings.HasSuffix(k, ".yaml") {
			t.Errorf("Unexpected backup key %q", k)
		}
	}

	// keys[0] holds the scene after the rotation copy only.
	if err := ed.Restore(ctx, path, keys[0]); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	hips := loadRig(t, path).Find("Target/Hips")
	if hips.Constraint(scene.TypeRotationConstraint) == nil {
		t.Error("Expected rotation constraint after restore")
	}
	if hips.Constraint(scene.TypePositionConstraint) != nil {
		t.Error("Expected position constraint to be gone after restore")
	}
	if evt := journal.last(); evt == nil || evt.EventType != store.EventTypeSceneRestored {
		t.Errorf("Expected scene_restored event, got %+v", evt)
	}

	if err := ed.Restore(ctx, path, backupPrefix(path)+"/missing.yaml"); !errors.Is(err, blob.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func saveRigAt(t *testing.T, path string) {
	t.Helper()
	s := scene.New("rig")
	s.AddRoot(skeleton("Source"))
	s.AddRoot(skeleton("Target"))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := scene.Save(path, s); err != nil {
		t.Fatalf("Failed to save scene: %v", err)
	}
}

func TestEditor_BackupsKeptPerScene(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		filepath.Join(dir, "a", "rig.yaml"),
		filepath.Join(dir, "b", "rig.yaml"),
		filepath.Join(dir, "a", "rig.json"),
	}
	ed := NewEditor(Config{Origin: "cli", KeepBackups: 1}, NewSceneLock(nil, "cli-1", time.Minute), nil).
		WithBackups(blob.NewLocalBlobStore(t.TempDir()))
	ctx := context.Background()

	for _, p := range paths {
		saveRigAt(t, p)
		if _, err := ed.Copy(ctx, CopyRequest{Scene: p, From: "Source", To: "Target", Kind: retarget.Rotation}); err != nil {
			t.Fatalf("Copy %s failed: %v", p, err)
		}
	}

	seen := map[string]string{}
	for _, p := range paths {
		keys, err := ed.Backups(ctx, p)
		if err != nil {
			t.Fatalf("Backups %s failed: %v", p, err)
		}
		if len(keys) != 1 {
			t.Fatalf("Expected one backup for %s, got %v", p, keys)
		}
		if other, ok := seen[keys[0]]; ok {
			t.Errorf("%s and %s share backup %s", p, other, keys[0])
		}
		seen[keys[0]] = p
	}

	// A backup of another scene cannot be restored over this one.
	foreign, _ := ed.Backups(ctx, paths[1])
	if err := ed.Restore(ctx, paths[0], foreign[0]); !errors.Is(err, ErrForeignBackup) {
		t.Errorf("Expected ErrForeignBackup, got %v", err)
	}
}

func TestEditor_BackupsLeaveJournalArchive(t *testing.T) {
	blobs := blob.NewLocalBlobStore(t.TempDir())
	ctx := context.Background()
	archived := archivePrefix + "/2026/01/01/1_2_x.jsonl.gz"
	if err := blobs.Put(ctx, archived, strings.NewReader("events")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), archivePrefix+".yaml")
	saveRigAt(t, path)
	ed := NewEditor(Config{Origin: "cli", KeepBackups: 1}, NewSceneLock(nil, "cli-1", time.Minute), nil).
		WithBackups(blobs)

	for _, k := range []retarget.Kind{retarget.Rotation, retarget.Parent} {
		if _, err := ed.Copy(ctx, CopyRequest{Scene: path, From: "Source", To: "Target", Kind: k}); err != nil {
			t.Fatalf("Copy failed: %v", err)
		}
	}

	keys, err := blobs.List(ctx, archivePrefix)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(keys) != 1 || keys[0] != archived {
		t.Errorf("Expected journal archive untouched, got %v", keys)
	}
	backups, err := ed.Backups(ctx, path)
	if err != nil || len(backups) != 1 {
		t.Errorf("Expected one pruned backup, got %v %v", backups, err)
	}
}

func TestEditor_NoBackupStore(t *testing.T) {
	ed := newTestEditor(nil)
	if _, err := ed.Backups(context.Background(), "rig.yaml"); err == nil {
		t.Error("Expected error without a backup store")
	}
}
