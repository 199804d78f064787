package engine

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rmax-ai/rigbind/pkg/blob"
	"github.com/rmax-ai/rigbind/pkg/store"
)

const archivePrefix = "journal-archive"

// ArchiveStore is the part of the journal the archiver needs.
type ArchiveStore interface {
	ReadEventsBefore(ctx context.Context, cutoff time.Time, limit int) ([]*store.Event, error)
	DeleteEvents(ctx context.Context, ids []store.EventID) error
}

// ArchiveConfig holds configuration for the Archiver.
type ArchiveConfig struct {
	Retention time.Duration `json:"retention"`
	BatchSize int           `json:"batch_size"`
}

// Archiver moves journal events older than the retention window into blob
// storage as gzipped JSON Lines and deletes them from the journal.
type Archiver struct {
	store     ArchiveStore
	blobStore blob.BlobStore
	config    ArchiveConfig
}

// NewArchiver creates a new Archiver.
func NewArchiver(st ArchiveStore, blobStore blob.BlobStore, config ArchiveConfig) *Archiver {
	if config.BatchSize <= 0 {
		config.BatchSize = 500
	}
	return &Archiver{
		store:     st,
		blobStore: blobStore,
		config:    config,
	}
}

// Run archives on every interval until ctx is done.
func (a *Archiver) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.ArchiveAll(ctx); err != nil {
				slog.Error("Journal archive failed", "error", err)
			}
		}
	}
}

// ArchiveAll archives batches until no event is older than the retention
// window. It returns the number of events archived.
func (a *Archiver) ArchiveAll(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-a.config.Retention)
	total := 0
	for {
		n, err := a.archiveBatch(ctx, cutoff)
		total += n
		if err != nil {
			return total, err
		}
		if n < a.config.BatchSize {
			if total > 0 {
				slog.Info("Journal archived", "events", total, "cutoff", cutoff)
			}
			return total, nil
		}
	}
}

func (a *Archiver) archiveBatch(ctx context.Context, cutoff time.Time) (int, error) {
	events, err := a.store.ReadEventsBefore(ctx, cutoff, a.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to read candidate events: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	gzWriter := gzip.NewWriter(&buf)
	encoder := json.NewEncoder(gzWriter)
	for _, event := range events {
		if err := encoder.Encode(event); err != nil {
			gzWriter.Close()
			return 0, fmt.Errorf("failed to encode event %s: %w", event.EventID, err)
		}
	}
	if err := gzWriter.Close(); err != nil {
		return 0, fmt.Errorf("failed to close gzip writer: %w", err)
	}

	// journal-archive/YYYY/MM/DD/<first>_<last>_<uuid>.jsonl.gz
	first, last := events[0], events[len(events)-1]
	year, month, day := first.TsEvent.Date()
	key := fmt.Sprintf("%s/%04d/%02d/%02d/%d_%d_%s.jsonl.gz",
		archivePrefix,
		year, month, day,
		first.TsEvent.Unix(),
		last.TsEvent.Unix(),
		uuid.New().String(),
	)
	if err := a.blobStore.Put(ctx, key, &buf); err != nil {
		return 0, fmt.Errorf("failed to upload archive to blob store: %w", err)
	}

	ids := make([]store.EventID, len(events))
	for i, event := range events {
		ids[i] = event.EventID
	}
	if err := a.store.DeleteEvents(ctx, ids); err != nil {
		return 0, fmt.Errorf("failed to delete archived events: %w", err)
	}
	EventsArchived.Add(float64(len(events)))
	slog.Debug("Journal batch archived", "key", key, "events", len(events))
	return len(events), nil
}
