package reports

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/rmax-ai/rigbind/pkg/retarget"
)

// PlanRow is one matched pair of a copy plan.
type PlanRow struct {
	Index  int    `json:"index"`
	Source string `json:"source"`
	Target string `json:"target"`
	Action string `json:"action"`
}

// PlanRows converts plan entries to their printable form.
func PlanRows(entries []retarget.PlanEntry) []PlanRow {
	rows := make([]PlanRow, len(entries))
	for i, e := range entries {
		rows[i] = PlanRow{
			Index:  e.Index,
			Source: e.Source.Path(),
			Target: e.Target.Path(),
			Action: string(e.Action),
		}
	}
	return rows
}

// WritePlan renders a copy plan.
func WritePlan(entries []retarget.PlanEntry, format ReportFormat) (io.Reader, error) {
	rows := PlanRows(entries)
	if format == ReportFormatJSON {
		return encodeJSON(rows)
	}

	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write([]string{"index", "source", "target", "action"}); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}
	for _, row := range rows {
		if err := writer.Write([]string{strconv.Itoa(row.Index), row.Source, row.Target, row.Action}); err != nil {
			return nil, fmt.Errorf("failed to write row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush writer: %w", err)
	}
	return buf, nil
}
