package store

import (
	"context"
	"encoding/json"
	"time"
)

// EventType represents the kind of journal event.
type EventType string

const (
	EventTypeConstraintsCopied EventType = "constraints_copied"
	EventTypeConstraintsReset  EventType = "constraints_reset"
	EventTypeOperationFailed   EventType = "operation_failed"
	EventTypeSceneRestored     EventType = "scene_restored"
)

// Lease represents a named lock held on behalf of one process.
type Lease struct {
	Name      string    `json:"name"`
	HolderID  string    `json:"holder_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Version   int64     `json:"version"` // bumped on every acquire/renew
	Epoch     int64     `json:"epoch"`   // bumped when the holder changes
}

// LeaseStore defines the interface for acquiring and renewing leases.
type LeaseStore interface {
	// Acquire tries to acquire the lease. Returns true if successful.
	// If the lease is already held by holderID, it renews it.
	Acquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error)

	// Renew updates the expiry of an existing lease held by holderID.
	// Returns error if the lease is lost or stolen.
	Renew(ctx context.Context, name, holderID string, ttl time.Duration) error

	// Release releases the lease if held by holderID.
	Release(ctx context.Context, name, holderID string) error

	// Get returns the current lease state, or nil if nobody holds it.
	Get(ctx context.Context, name string) (*Lease, error)
}

// EventID is a unique identifier for an event.
type EventID string

// Event is one entry of the operation journal.
type Event struct {
	EventID       EventID         `json:"event_id"`
	EventType     EventType       `json:"event_type"`
	SchemaVersion int             `json:"schema_version"`
	TsEvent       time.Time       `json:"ts_event"`
	Source        EventSource     `json:"source"`
	Dimensions    EventDimensions `json:"dimensions"`
	Payload       json.RawMessage `json:"payload"`
}

// EventSource describes who performed the operation.
type EventSource struct {
	OriginKind string `json:"origin_kind"` // cli, mcp, tui
	OriginID   string `json:"origin_id"`   // lease holder id of the process
}

// EventDimensions identify what the operation touched.
type EventDimensions struct {
	Scene      string `json:"scene"`
	Kind       string `json:"kind"`
	SourceRoot string `json:"source_root,omitempty"`
	TargetRoot string `json:"target_root"`
}

// CopyPayload is the payload of EventTypeConstraintsCopied.
type CopyPayload struct {
	Pairs int `json:"pairs"`
	Bound int `json:"bound"`
}

// ResetPayload is the payload of EventTypeConstraintsReset.
type ResetPayload struct {
	Removed int `json:"removed"`
}

// RestorePayload is the payload of EventTypeSceneRestored.
type RestorePayload struct {
	Backup string `json:"backup"`
}

// FailurePayload is the payload of EventTypeOperationFailed.
type FailurePayload struct {
	Operation string `json:"operation"`
	Reason    string `json:"reason"`
	Error     string `json:"error"`
}

// EventFilter defines filters for querying events.
type EventFilter struct {
	From       time.Time
	To         time.Time
	EventTypes []EventType
	Scene      string
	Limit      int
}
