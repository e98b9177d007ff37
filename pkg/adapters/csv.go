package adapters

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// CSVAdapter reads telemetry from a CSV file with a header row. Every cell
// is returned as a string keyed by its header; unknown columns pass through
// and are ignored downstream.
type CSVAdapter struct {
	// Path is the file to read (required).
	Path string

	// Reader overrides Path when set. Used by tests and stdin input.
	Reader io.Reader
}

func (c *CSVAdapter) Name() string { return "csv" }

// Collect reads the whole file. windowSeconds, when positive, keeps only the
// last windowSeconds/3600 rows.
func (c *CSVAdapter) Collect(ctx context.Context, windowSeconds int) (*DataFrame, error) {
	r := c.Reader
	if r == nil {
		if c.Path == "" {
			return &DataFrame{}, errors.New("csv adapter: Path is required")
		}
		f, err := os.Open(c.Path)
		if err != nil {
			return &DataFrame{}, fmt.Errorf("csv adapter: %w", err)
		}
		defer f.Close()
		r = f
	}

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return &DataFrame{}, fmt.Errorf("csv adapter: read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	var rows []Row
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return &DataFrame{}, err
		}
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return &DataFrame{}, fmt.Errorf("csv adapter: line %d: %w", line, err)
		}
		row := make(Row, len(header))
		for i, name := range header {
			row[name] = record[i]
		}
		rows = append(rows, row)
	}

	if windowSeconds > 0 {
		if keep := windowSeconds / 3600; keep > 0 && keep < len(rows) {
			rows = rows[len(rows)-keep:]
		}
	}

	return &DataFrame{Rows: rows}, nil
}
