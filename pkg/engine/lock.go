package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rmax-ai/rigbind/pkg/store"
)

var (
	// ErrSceneLocked is returned when another editor holds the scene lease.
	ErrSceneLocked = errors.New("scene is locked by another editor")
	// ErrLeaseLost is returned when the lease could not be renewed while an
	// operation was in progress; the scene is not written in that case.
	ErrLeaseLost = errors.New("scene lease lost during operation")
)

// NewHolderID returns a lease holder id unique to this process.
func NewHolderID(origin string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%s@%s:%d:%s", origin, host, os.Getpid(), uuid.NewString()[:8])
}

// LeaseName is the lease guarding the scene file at path.
func LeaseName(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return "scene:" + filepath.Clean(path)
}

// SceneLock serializes edits of a scene file across processes using a
// lease store. A nil store disables locking.
type SceneLock struct {
	store    store.LeaseStore
	holderID string
	ttl      time.Duration
	wait     time.Duration
	backoff  BackoffStrategy
}

// NewSceneLock creates a SceneLock that fails immediately on a busy scene.
func NewSceneLock(s store.LeaseStore, holderID string, ttl time.Duration) *SceneLock {
	return &SceneLock{store: s, holderID: holderID, ttl: ttl, backoff: DefaultBackoff()}
}

// WithWait makes Lock retry a busy scene for up to d before giving up.
func (l *SceneLock) WithWait(d time.Duration, b BackoffStrategy) *SceneLock {
	l.wait = d
	if b != nil {
		l.backoff = b
	}
	return l
}

// HolderID returns the id this lock acquires leases under.
func (l *SceneLock) HolderID() string {
	return l.holderID
}

// Held is an acquired scene lease. It is renewed in the background every
// ttl/2 until Unlock is called.
type Held struct {
	lock   *SceneLock
	name   string
	stopCh chan struct{}
	done   chan struct{}

	mu   sync.Mutex
	lost bool
}

// Lock acquires the lease for the scene at path. It fails with
// ErrSceneLocked when another holder keeps a live lease for longer than the
// configured wait.
func (l *SceneLock) Lock(ctx context.Context, path string) (*Held, error) {
	h := &Held{lock: l, name: LeaseName(path), stopCh: make(chan struct{}), done: make(chan struct{})}
	if l == nil || l.store == nil {
		close(h.done)
		return h, nil
	}

	deadline := time.Now().Add(l.wait)
	for attempt := 0; ; attempt++ {
		ok, err := l.store.Acquire(ctx, h.name, l.holderID, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire scene lease: %w", err)
		}
		if ok {
			break
		}

		delay := l.backoff.Next(attempt)
		if remaining := time.Until(deadline); remaining <= 0 {
			return nil, l.busyError(ctx, h.name, path)
		} else if delay > remaining {
			delay = remaining
		}
		slog.Debug("Scene busy, retrying", "lease", h.name, "attempt", attempt, "delay", delay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	slog.Debug("Scene lease acquired", "lease", h.name, "holderID", l.holderID)

	if l.ttl <= 0 {
		close(h.done)
		return h, nil
	}
	go h.keepAlive(ctx)
	return h, nil
}

func (l *SceneLock) busyError(ctx context.Context, name, path string) error {
	if cur, err := l.store.Get(ctx, name); err == nil && cur != nil {
		return fmt.Errorf("%w: %s held by %s until %s", ErrSceneLocked, path, cur.HolderID, cur.ExpiresAt.Format(time.RFC3339))
	}
	return fmt.Errorf("%w: %s", ErrSceneLocked, path)
}

func (h *Held) keepAlive(ctx context.Context) {
	defer close(h.done)
	ticker := time.NewTicker(renewInterval(h.lock.ttl))
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := h.lock.store.Renew(ctx, h.name, h.lock.holderID, h.lock.ttl); err != nil {
				slog.Warn("Failed to renew scene lease", "error", err, "lease", h.name, "holderID", h.lock.holderID)
				h.mu.Lock()
				h.lost = true
				h.mu.Unlock()
				return
			}
			slog.Debug("Scene lease renewed", "lease", h.name, "holderID", h.lock.holderID)
		case <-h.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// renewInterval is half the ttl, at least one nanosecond.
func renewInterval(ttl time.Duration) time.Duration {
	if d := ttl / 2; d > 0 {
		return d
	}
	return time.Nanosecond
}

// Lost reports whether a background renewal failed.
func (h *Held) Lost() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lost
}

// Unlock stops renewal and releases the lease. It is safe to call once.
func (h *Held) Unlock(ctx context.Context) {
	if h.lock == nil || h.lock.store == nil {
		return
	}
	close(h.stopCh)
	<-h.done
	if err := h.lock.store.Release(context.WithoutCancel(ctx), h.name, h.lock.holderID); err != nil {
		slog.Error("Failed to release scene lease", "error", err, "lease", h.name, "holderID", h.lock.holderID)
		return
	}
	slog.Debug("Scene lease released", "lease", h.name, "holderID", h.lock.holderID)
}
