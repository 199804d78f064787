// Package reports renders the operation journal and copy plans as CSV or
// JSON.
package reports

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rmax-ai/rigbind/pkg/store"
)

type ReportType string

const (
	ReportTypeHistory  ReportType = "history"
	ReportTypeFailures ReportType = "failures"
)

type ReportFormat string

const (
	ReportFormatCSV  ReportFormat = "csv"
	ReportFormatJSON ReportFormat = "json"
)

// ParseFormat accepts "csv" or "json" in any case.
func ParseFormat(s string) (ReportFormat, error) {
	switch f := ReportFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case ReportFormatCSV, ReportFormatJSON:
		return f, nil
	case "":
		return ReportFormatCSV, nil
	default:
		return "", fmt.Errorf("unknown report format: %s", s)
	}
}

type ReportParams struct {
	Start  time.Time
	End    time.Time
	Scene  string
	Limit  int
	Format ReportFormat
}

// ReportStore defines the interface for data access required by reports.
type ReportStore interface {
	QueryEvents(ctx context.Context, filter store.EventFilter) ([]*store.Event, error)
}

type Generator interface {
	Generate(ctx context.Context, params ReportParams) (io.Reader, error)
}
