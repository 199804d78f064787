package engine

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/rmax-ai/rigbind/pkg/scene"
	"github.com/rmax-ai/rigbind/pkg/store"
)

const (
	backupTimeFormat = "20060102T150405.000000000"
	backupNamespace  = "backups"
)

// ErrForeignBackup is returned by Restore for a key that does not belong to
// the scene being restored.
var ErrForeignBackup = errors.New("backup does not belong to this scene")

// backupPrefix is the directory holding the backups of the scene file at
// path: backups/<base name>-<hash of the lease name>. The hash keeps scenes
// with the same base name in different folders, or with different
// extensions, apart.
func backupPrefix(path string) string {
	base := filepath.Base(path)
	sum := sha256.Sum256([]byte(LeaseName(path)))
	return backupNamespace + "/" + strings.TrimSuffix(base, filepath.Ext(base)) + "-" + hex.EncodeToString(sum[:6])
}

// backup stores data, the scene document as it was before this write, and
// prunes backups beyond KeepBackups.
func (e *Editor) backup(ctx context.Context, path string, data []byte) error {
	if e.backups == nil {
		return nil
	}
	prefix := backupPrefix(path)
	key := prefix + "/" + time.Now().UTC().Format(backupTimeFormat) + filepath.Ext(path)
	if err := e.backups.Put(ctx, key, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to back up scene: %w", err)
	}
	slog.Debug("Scene backed up", "scene", path, "backup", key)

	if e.cfg.KeepBackups <= 0 {
		return nil
	}
	keys, err := e.backups.List(ctx, prefix)
	if err != nil {
		slog.Warn("Failed to list backups", "error", err, "scene", path)
		return nil
	}
	for len(keys) > e.cfg.KeepBackups {
		if err := e.backups.Delete(ctx, keys[0]); err != nil {
			slog.Warn("Failed to prune backup", "error", err, "backup", keys[0])
		}
		keys = keys[1:]
	}
	return nil
}

// Backups lists the stored backups of the scene at path, oldest first.
func (e *Editor) Backups(ctx context.Context, path string) ([]string, error) {
	if e.backups == nil {
		return nil, fmt.Errorf("no backup store configured")
	}
	return e.backups.List(ctx, backupPrefix(path))
}

// Restore replaces the scene at path with the backup stored under key. The
// current document is backed up first, so a restore can itself be undone.
func (e *Editor) Restore(ctx context.Context, path, key string) error {
	dims := store.EventDimensions{Scene: absPath(path), TargetRoot: key}
	if e.backups == nil {
		return fmt.Errorf("no backup store configured")
	}
	if !strings.HasPrefix(key, backupPrefix(path)+"/") {
		err := fmt.Errorf("%w: %s", ErrForeignBackup, key)
		e.recordFailure(ctx, "restore", dims, err)
		return err
	}

	err := e.withScene(ctx, path, func(s *scene.Scene) (bool, error) {
		r, err := e.backups.Get(ctx, key)
		if err != nil {
			return false, err
		}
		defer r.Close()
		data, err := io.ReadAll(r)
		if err != nil {
			return false, fmt.Errorf("failed to read backup: %w", err)
		}
		restored, err := scene.Decode(data, scene.FormatForPath(key))
		if err != nil {
			return false, fmt.Errorf("backup %s: %w", key, err)
		}
		*s = *restored
		return true, nil
	})
	if err != nil {
		e.recordFailure(ctx, "restore", dims, err)
		return err
	}

	e.record(ctx, store.EventTypeSceneRestored, dims, store.RestorePayload{Backup: key})
	slog.Info("Scene restored", "scene", path, "backup", key)
	return nil
}
