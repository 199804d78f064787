package reports

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/rmax-ai/rigbind/pkg/retarget"
)

// WriteDescription renders a root summary as one CSV row or a JSON object.
func WriteDescription(d retarget.Description, format ReportFormat) (io.Reader, error) {
	if format == ReportFormatJSON {
		return encodeJSON(d)
	}

	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write([]string{"root_name", "node_count"}); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}
	if err := writer.Write([]string{d.RootName, strconv.Itoa(d.NodeCount)}); err != nil {
		return nil, fmt.Errorf("failed to write row: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush writer: %w", err)
	}
	return buf, nil
}
