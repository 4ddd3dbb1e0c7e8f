package csv

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/yurifrl/exoprep/pkg/fields"
	"github.com/yurifrl/exoprep/pkg/models"
)

// FilterFunc selects records for output. It receives the normalized record,
// keyed by canonical field.
type FilterFunc func(map[fields.Field]string) bool

// Normalize rewrites each record of p under canonical field names.
func Normalize(p *models.Payload) []map[fields.Field]string {
	out := make([]map[fields.Field]string, 0, len(p.Records))
	for _, r := range p.Records {
		row := make(map[fields.Field]string, len(fields.Required))
		for _, f := range fields.Required {
			row[f] = r[p.Mapping[f]]
		}
		out = append(out, row)
	}
	return out
}

// Complete keeps only rows with a value for every required field.
func Complete(row map[fields.Field]string) bool {
	for _, f := range fields.Required {
		if row[f] == "" {
			return false
		}
	}
	return true
}

// Create renders the payload's records as CSV with one column per required
// field, in canonical order.
func Create(p *models.Payload, filter FilterFunc) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := make([]string, len(fields.Required))
	for i, f := range fields.Required {
		header[i] = string(f)
	}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("error writing CSV header: %w", err)
	}

	for _, row := range Normalize(p) {
		if filter != nil && !filter(row) {
			continue
		}
		line := make([]string, len(fields.Required))
		for i, f := range fields.Required {
			line[i] = row[f]
		}
		if err := w.Write(line); err != nil {
			return nil, fmt.Errorf("error writing record: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
