package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rmax-ai/rigbind/pkg/store"
)

// FailureReport lists failed operations with their classified reason.
type FailureReport struct {
	store ReportStore
}

// NewFailureReport creates a new FailureReport generator.
func NewFailureReport(s ReportStore) *FailureReport {
	return &FailureReport{store: s}
}

// FailureRow is one failed operation.
type FailureRow struct {
	Timestamp  time.Time `json:"timestamp"`
	Operation  string    `json:"operation"`
	Reason     string    `json:"reason"`
	Scene      string    `json:"scene"`
	Kind       string    `json:"kind"`
	TargetRoot string    `json:"target_root"`
	Error      string    `json:"error"`
}

// Generate renders the operation_failed events matching params.
func (r *FailureReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	events, err := r.store.QueryEvents(ctx, eventFilter(params, store.EventTypeOperationFailed))
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	rows := make([]FailureRow, 0, len(events))
	for _, event := range events {
		var payload store.FailurePayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload for event %s: %w", event.EventID, err)
		}
		reason := payload.Reason
		if reason == "" {
			reason = "unknown"
		}
		rows = append(rows, FailureRow{
			Timestamp:  event.TsEvent,
			Operation:  payload.Operation,
			Reason:     reason,
			Scene:      event.Dimensions.Scene,
			Kind:       event.Dimensions.Kind,
			TargetRoot: event.Dimensions.TargetRoot,
			Error:      payload.Error,
		})
	}

	if params.Format == ReportFormatJSON {
		return encodeJSON(rows)
	}

	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)

	headers := []string{"timestamp", "operation", "reason", "scene", "kind", "target_root", "error"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.Timestamp.Format(time.RFC3339),
			row.Operation,
			row.Reason,
			row.Scene,
			row.Kind,
			row.TargetRoot,
			row.Error,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush writer: %w", err)
	}

	return buf, nil
}
