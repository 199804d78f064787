package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rmax-ai/rigbind/pkg/blob"
	"github.com/rmax-ai/rigbind/pkg/engine"
	"github.com/rmax-ai/rigbind/pkg/retarget"
	"github.com/rmax-ai/rigbind/pkg/store"
	"github.com/rmax-ai/rigbind/pkg/store/redis"
)

// Backends holds the journal, the lease store and the backup store selected
// by a Config.
type Backends struct {
	Journal *store.Store
	Leases  store.LeaseStore
	Backups blob.BlobStore

	closers []func() error
}

// Open opens the SQLite journal and the configured lease store. Leases is
// nil when the lease backend is off; Backups is nil without a backup dir.
func Open(ctx context.Context, cfg Config) (*Backends, error) {
	st, err := store.NewStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	b := &Backends{Journal: st, closers: []func() error{st.Close}}

	switch cfg.LeaseBackend {
	case BackendSQLite:
		b.Leases = st
	case BackendRedis:
		rs, err := redis.Dial(ctx, cfg.RedisAddr)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Leases = rs
		b.closers = append(b.closers, rs.Close)
	case BackendOff:
	}
	if cfg.BackupDir != "" {
		b.Backups = blob.NewLocalBlobStore(cfg.BackupDir)
	}
	slog.Debug("Backends opened", "db", cfg.DBPath, "lease_backend", cfg.LeaseBackend)
	return b, nil
}

// Close releases every opened backend in reverse order.
func (b *Backends) Close() error {
	var first error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	b.closers = nil
	return first
}

// NewEditor builds an editor wired to the backends, labelled with origin.
func (b *Backends) NewEditor(cfg Config, origin string) *engine.Editor {
	lock := engine.NewSceneLock(b.Leases, engine.NewHolderID(origin), cfg.LeaseTTL).
		WithWait(cfg.LockWait, nil)
	editor := engine.NewEditor(engine.Config{
		Options:     retarget.Options{IncludeInactive: cfg.IncludeInactive},
		Origin:      origin,
		KeepBackups: cfg.KeepBackups,
	}, lock, b.Journal)
	if b.Backups != nil {
		editor.WithBackups(b.Backups)
	}
	return editor
}

// ErrNoBackupDir is returned by NewArchiver when no backup dir is configured.
var ErrNoBackupDir = errors.New("journal archive requires a backup dir")

// NewArchiver builds an archiver that moves journal events older than
// cfg.ArchiveAfter into the backup store.
func (b *Backends) NewArchiver(cfg Config) (*engine.Archiver, error) {
	if b.Backups == nil {
		return nil, ErrNoBackupDir
	}
	return engine.NewArchiver(b.Journal, b.Backups, engine.ArchiveConfig{Retention: cfg.ArchiveAfter}), nil
}
