package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rmax-ai/rigbind/pkg/blob"
	"github.com/rmax-ai/rigbind/pkg/retarget"
	"github.com/rmax-ai/rigbind/pkg/scene"
	"github.com/rmax-ai/rigbind/pkg/store"
)

const eventSchemaVersion = 1

// Journal records completed and failed operations.
type Journal interface {
	AppendEvent(ctx context.Context, evt *store.Event) error
}

// Config controls how an Editor traverses hierarchies and labels its events.
type Config struct {
	Options     retarget.Options
	Origin      string // cli, mcp, tui
	KeepBackups int    // backups kept per scene; 0 keeps all
}

// Editor runs retarget operations against scene files: it takes the scene
// lease, loads the document, applies the operation, writes the document back
// when something changed and records the outcome in the journal.
type Editor struct {
	cfg     Config
	lock    *SceneLock
	journal Journal
	backups blob.BlobStore
}

// NewEditor creates an Editor. lock and journal may be nil.
func NewEditor(cfg Config, lock *SceneLock, journal Journal) *Editor {
	if cfg.Origin == "" {
		cfg.Origin = "cli"
	}
	return &Editor{cfg: cfg, lock: lock, journal: journal}
}

// WithBackups makes the editor keep a copy of the scene document in b
// before every write.
func (e *Editor) WithBackups(b blob.BlobStore) *Editor {
	e.backups = b
	return e
}

// Options returns the traversal options the editor was configured with.
func (e *Editor) Options() retarget.Options {
	return e.cfg.Options
}

// CopyRequest names a scene file, the two roots inside it and the
// constraint kind to bind.
type CopyRequest struct {
	Scene string
	From  string
	To    string
	Kind  retarget.Kind
}

// CopyResult summarizes a completed copy.
type CopyResult struct {
	Pairs int `json:"pairs"`
	Bound int `json:"bound"`
}

// ResetRequest names a scene file, a root inside it and the constraint kind
// to remove.
type ResetRequest struct {
	Scene string
	Root  string
	Kind  retarget.Kind
}

// ResetResult summarizes a completed reset.
type ResetResult struct {
	Removed int `json:"removed"`
}

// Load reads the scene document at path.
func (e *Editor) Load(path string) (*scene.Scene, error) {
	return scene.Load(path)
}

// Copy binds every node under req.To to its positional counterpart under
// req.From.
func (e *Editor) Copy(ctx context.Context, req CopyRequest) (*CopyResult, error) {
	dims := store.EventDimensions{
		Scene:      absPath(req.Scene),
		Kind:       req.Kind.String(),
		SourceRoot: req.From,
		TargetRoot: req.To,
	}

	var result CopyResult
	err := e.withScene(ctx, req.Scene, func(s *scene.Scene) (bool, error) {
		from, to, err := findRoots(s, req.From, req.To)
		if err != nil {
			return false, err
		}

		src := retarget.Flatten(from, e.cfg.Options.IncludeInactive)
		dst := retarget.Flatten(to, e.cfg.Options.IncludeInactive)
		NodesFlattened.WithLabelValues("source").Set(float64(len(src)))
		NodesFlattened.WithLabelValues("target").Set(float64(len(dst)))

		pairs, err := retarget.Match(src, dst)
		if err != nil {
			return false, err
		}
		bound, err := retarget.Bind(pairs, req.Kind)
		if err != nil {
			return false, err
		}
		result = CopyResult{Pairs: len(pairs), Bound: bound}
		return bound > 0, nil
	})
	if err != nil {
		e.recordFailure(ctx, "copy", dims, err)
		return nil, err
	}

	ConstraintsBound.WithLabelValues(dims.Kind).Add(float64(result.Bound))
	e.record(ctx, store.EventTypeConstraintsCopied, dims, store.CopyPayload{Pairs: result.Pairs, Bound: result.Bound})
	slog.Info("Constraints copied",
		"scene", req.Scene, "kind", dims.Kind, "from", req.From, "to", req.To,
		"pairs", result.Pairs, "bound", result.Bound)
	return &result, nil
}

// Reset removes every constraint of req.Kind under req.Root.
func (e *Editor) Reset(ctx context.Context, req ResetRequest) (*ResetResult, error) {
	dims := store.EventDimensions{
		Scene:      absPath(req.Scene),
		Kind:       req.Kind.String(),
		TargetRoot: req.Root,
	}

	var result ResetResult
	err := e.withScene(ctx, req.Scene, func(s *scene.Scene) (bool, error) {
		root := s.Find(req.Root)
		if root == nil {
			return false, &retarget.MissingRootError{Side: retarget.SideTarget, Path: req.Root}
		}
		removed, err := retarget.Reset(root, req.Kind, e.cfg.Options)
		if err != nil {
			return false, err
		}
		result.Removed = removed
		return removed > 0, nil
	})
	if err != nil {
		e.recordFailure(ctx, "reset", dims, err)
		return nil, err
	}

	ConstraintsRemoved.WithLabelValues(dims.Kind).Add(float64(result.Removed))
	e.record(ctx, store.EventTypeConstraintsReset, dims, store.ResetPayload{Removed: result.Removed})
	slog.Info("Constraints reset", "scene", req.Scene, "kind", dims.Kind, "root", req.Root, "removed", result.Removed)
	return &result, nil
}

// Describe summarizes the root at rootPath. A path that matches nothing is
// described as no root at all.
func (e *Editor) Describe(path, rootPath string) (retarget.Description, error) {
	s, err := scene.Load(path)
	if err != nil {
		return retarget.Description{}, err
	}
	return retarget.Describe(s.Find(rootPath), e.cfg.Options), nil
}

// Plan reports what Copy would do for req without taking the lease or
// writing the scene.
func (e *Editor) Plan(req CopyRequest) ([]retarget.PlanEntry, error) {
	s, err := scene.Load(req.Scene)
	if err != nil {
		return nil, err
	}
	from, to, err := findRoots(s, req.From, req.To)
	if err != nil {
		return nil, err
	}
	return retarget.Plan(from, to, req.Kind, e.cfg.Options)
}

func findRoots(s *scene.Scene, fromPath, toPath string) (*scene.Node, *scene.Node, error) {
	from := s.Find(fromPath)
	if from == nil {
		return nil, nil, &retarget.MissingRootError{Side: retarget.SideSource, Path: fromPath}
	}
	to := s.Find(toPath)
	if to == nil {
		return nil, nil, &retarget.MissingRootError{Side: retarget.SideTarget, Path: toPath}
	}
	return from, to, nil
}

// withScene holds the scene lease for the duration of fn and saves the
// document when fn reports a change.
func (e *Editor) withScene(ctx context.Context, path string, fn func(s *scene.Scene) (bool, error)) error {
	held, err := e.lock.Lock(ctx, path)
	if err != nil {
		return err
	}
	defer held.Unlock(ctx)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read scene: %w", err)
	}
	s, err := scene.Decode(data, scene.FormatForPath(path))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	dirty, err := fn(s)
	if err != nil {
		return err
	}
	if !dirty {
		return nil
	}
	if held.Lost() {
		return ErrLeaseLost
	}
	if err := e.backup(ctx, path, data); err != nil {
		return err
	}
	if err := scene.Save(path, s); err != nil {
		return fmt.Errorf("failed to save scene: %w", err)
	}
	return nil
}

// FailureReason classifies err for metrics and the journal.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, retarget.ErrMissingRoot):
		return "missing_root"
	case errors.Is(err, retarget.ErrCountMismatch):
		return "count_mismatch"
	case errors.Is(err, ErrSceneLocked):
		return "scene_locked"
	case errors.Is(err, ErrLeaseLost):
		return "lease_lost"
	default:
		return "error"
	}
}

func (e *Editor) recordFailure(ctx context.Context, op string, dims store.EventDimensions, err error) {
	reason := FailureReason(err)
	OperationErrors.WithLabelValues(op, reason).Inc()
	slog.Warn("Operation failed", "operation", op, "reason", reason, "scene", dims.Scene, "error", err)
	e.record(ctx, store.EventTypeOperationFailed, dims, store.FailurePayload{
		Operation: op,
		Reason:    reason,
		Error:     err.Error(),
	})
}

// record appends an event to the journal. Journal failures are logged and
// do not fail the operation, which has already been applied.
func (e *Editor) record(ctx context.Context, typ store.EventType, dims store.EventDimensions, payload interface{}) {
	if e.journal == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal event payload", "error", err, "event_type", typ)
		return
	}
	var holderID string
	if e.lock != nil {
		holderID = e.lock.HolderID()
	}
	evt := &store.Event{
		EventID:       store.EventID(uuid.NewString()),
		EventType:     typ,
		SchemaVersion: eventSchemaVersion,
		TsEvent:       time.Now().UTC(),
		Source:        store.EventSource{OriginKind: e.cfg.Origin, OriginID: holderID},
		Dimensions:    dims,
		Payload:       data,
	}
	if err := e.journal.AppendEvent(context.WithoutCancel(ctx), evt); err != nil {
		slog.Error("Failed to append event", "error", err, "event_type", typ)
	}
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
