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

// HistoryReport lists journal events, newest first.
type HistoryReport struct {
	store ReportStore
}

// NewHistoryReport creates a new HistoryReport generator.
func NewHistoryReport(s ReportStore) *HistoryReport {
	return &HistoryReport{store: s}
}

// Generate renders the events matching params.
func (r *HistoryReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	events, err := r.store.QueryEvents(ctx, eventFilter(params))
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	if params.Format == ReportFormatJSON {
		if events == nil {
			events = []*store.Event{}
		}
		return encodeJSON(events)
	}

	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)

	headers := []string{"timestamp", "event_id", "event_type", "origin", "scene", "kind", "source_root", "target_root", "detail"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}

	for _, event := range events {
		detail, err := describePayload(event)
		if err != nil {
			return nil, err
		}
		row := []string{
			event.TsEvent.Format(time.RFC3339),
			string(event.EventID),
			string(event.EventType),
			event.Source.OriginKind,
			event.Dimensions.Scene,
			event.Dimensions.Kind,
			event.Dimensions.SourceRoot,
			event.Dimensions.TargetRoot,
			detail,
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush writer: %w", err)
	}

	return buf, nil
}

func eventFilter(params ReportParams, types ...store.EventType) store.EventFilter {
	return store.EventFilter{
		From:       params.Start,
		To:         params.End,
		EventTypes: types,
		Scene:      params.Scene,
		Limit:      params.Limit,
	}
}

func describePayload(event *store.Event) (string, error) {
	switch event.EventType {
	case store.EventTypeConstraintsCopied:
		var p store.CopyPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return "", fmt.Errorf("failed to unmarshal payload for event %s: %w", event.EventID, err)
		}
		return fmt.Sprintf("pairs=%d bound=%d", p.Pairs, p.Bound), nil
	case store.EventTypeConstraintsReset:
		var p store.ResetPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return "", fmt.Errorf("failed to unmarshal payload for event %s: %w", event.EventID, err)
		}
		return fmt.Sprintf("removed=%d", p.Removed), nil
	case store.EventTypeSceneRestored:
		var p store.RestorePayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return "", fmt.Errorf("failed to unmarshal payload for event %s: %w", event.EventID, err)
		}
		return "from " + p.Backup, nil
	case store.EventTypeOperationFailed:
		var p store.FailurePayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return "", fmt.Errorf("failed to unmarshal payload for event %s: %w", event.EventID, err)
		}
		return fmt.Sprintf("%s failed: %s", p.Operation, p.Reason), nil
	default:
		return string(event.Payload), nil
	}
}

func encodeJSON(v interface{}) (io.Reader, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	return buf, nil
}
