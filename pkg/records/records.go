package records

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yurifrl/exoprep/pkg/fields"
	"github.com/yurifrl/exoprep/pkg/models"
	"github.com/yurifrl/exoprep/pkg/parser"
)

var (
	// ErrNoData is returned when bulk mode has no parsed rows to submit.
	ErrNoData = errors.New("no data rows found in file")
	// ErrIncompleteForm is returned when a manual form field is blank.
	ErrIncompleteForm = errors.New("all form fields must be filled")
)

// Bulk keys every data row by the table headers. Rows shorter than the
// header list get empty strings for the missing trailing values; extra
// values are dropped.
func Bulk(t *parser.Table) ([]models.RawRecord, error) {
	if t == nil || len(t.Rows) == 0 {
		return nil, ErrNoData
	}

	out := make([]models.RawRecord, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(models.RawRecord, len(t.Headers))
		for i, h := range t.Headers {
			if i < len(row) {
				rec[h] = row[i]
			} else {
				rec[h] = ""
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// Manual builds the single record of a manual form submission, keyed by
// canonical field name. Every contract field must be present and non-blank.
// Values are stored trimmed of surrounding whitespace, so a value of only
// spaces counts as blank.
func Manual(form map[string]string) ([]models.RawRecord, error) {
	rec := make(models.RawRecord, len(fields.Required))
	var blank []string
	for _, f := range fields.Required {
		id, ok := fields.FormID(f)
		if !ok {
			return nil, fmt.Errorf("no form input bound to %s", f)
		}
		v := strings.TrimSpace(form[id])
		if v == "" {
			blank = append(blank, id)
			continue
		}
		rec[string(f)] = v
	}
	if len(blank) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrIncompleteForm, strings.Join(blank, ", "))
	}
	return []models.RawRecord{rec}, nil
}
