// Package reconcile pairs each canonical field with one of the headers found
// in an uploaded file. It only proposes a mapping; completeness is checked
// when the payload is assembled.
package reconcile

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/yurifrl/exoprep/pkg/fields"
	"github.com/yurifrl/exoprep/pkg/models"
)

// ErrUnknownHeader is returned when an override names a header the file
// does not have.
var ErrUnknownHeader = errors.New("header not present in file")

// UnselectedLabel is shown for the empty option of every mapping control.
const UnselectedLabel = "Select column"

type Status int

const (
	Unmapped Status = iota
	Matched
)

func (s Status) String() string {
	if s == Matched {
		return "matched"
	}
	return "unmapped"
}

// Option is one choice in a field's mapping control.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Entry is the mapping control for a single canonical field.
type Entry struct {
	Field    fields.Field `json:"field"`
	Label    string       `json:"label"`
	Options  []Option     `json:"options"`
	Selected string       `json:"selected"`
	// Status records whether Selected came from automatic matching. It is
	// not changed by overrides.
	Status Status `json:"-"`
}

// Report is the reconciled header mapping presented for confirmation.
type Report struct {
	Headers []string
	Entries []Entry
}

// Normalize folds a column name for comparison: NFKC, lower case, with all
// whitespace and underscores removed.
func Normalize(s string) string {
	s = strings.ToLower(norm.NFKC.String(s))
	return strings.Map(func(r rune) rune {
		if r == '_' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// Build proposes a header for each required field. The first header, in
// file order, whose normalized form equals the field's normalized name wins.
func Build(headers []string, required []fields.Field) *Report {
	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = Normalize(h)
	}

	options := make([]Option, 0, len(headers)+1)
	options = append(options, Option{Value: "", Label: UnselectedLabel})
	for _, h := range headers {
		options = append(options, Option{Value: h, Label: h})
	}

	entries := make([]Entry, 0, len(required))
	for _, f := range required {
		e := Entry{Field: f, Label: f.Label(), Options: options}
		want := Normalize(string(f))
		for i, n := range normalized {
			if n == want {
				e.Selected = headers[i]
				e.Status = Matched
				break
			}
		}
		entries = append(entries, e)
	}

	return &Report{Headers: append([]string(nil), headers...), Entries: entries}
}

// Override replaces the selection for field. An empty header unsets it.
func (r *Report) Override(field fields.Field, header string) error {
	e := r.entry(field)
	if e == nil {
		return fmt.Errorf("unknown field %q", field)
	}
	if header != "" && !r.hasHeader(header) {
		return fmt.Errorf("%w: %q", ErrUnknownHeader, header)
	}
	e.Selected = header
	return nil
}

// Apply overrides every field present in m.
func (r *Report) Apply(m models.FieldMapping) error {
	for _, e := range r.Entries {
		header, ok := m[e.Field]
		if !ok {
			continue
		}
		if err := r.Override(e.Field, header); err != nil {
			return err
		}
	}
	return nil
}

// Mapping returns the current selections.
func (r *Report) Mapping() models.FieldMapping {
	m := make(models.FieldMapping, len(r.Entries))
	for _, e := range r.Entries {
		m[e.Field] = e.Selected
	}
	return m
}

// MatchedCount returns how many fields were matched automatically.
func (r *Report) MatchedCount() int {
	n := 0
	for _, e := range r.Entries {
		if e.Status == Matched {
			n++
		}
	}
	return n
}

// UnmappedCount returns how many fields currently have no selection.
func (r *Report) UnmappedCount() int {
	n := 0
	for _, e := range r.Entries {
		if e.Selected == "" {
			n++
		}
	}
	return n
}

func (r *Report) entry(field fields.Field) *Entry {
	for i := range r.Entries {
		if r.Entries[i].Field == field {
			return &r.Entries[i]
		}
	}
	return nil
}

func (r *Report) hasHeader(header string) bool {
	for _, h := range r.Headers {
		if h == header {
			return true
		}
	}
	return false
}
