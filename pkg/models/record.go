package models

import (
	"github.com/yurifrl/exoprep/pkg/fields"
)

// Mode selects how a submission's records are produced.
type Mode string

const (
	Bulk   Mode = "bulk"
	Manual Mode = "manual"
)

// ParseMode accepts the ui names as well ("csv" for bulk).
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "bulk", "csv", "file":
		return Bulk, true
	case "manual", "form":
		return Manual, true
	}
	return "", false
}

// RawRecord maps a source header to its trimmed value.
type RawRecord map[string]string

// Clone returns an independent copy.
func (r RawRecord) Clone() RawRecord {
	out := make(RawRecord, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// FieldMapping maps a canonical field to the source header providing it.
// An empty value means unset.
type FieldMapping map[fields.Field]string

// Identity maps every required field to its own name.
func Identity() FieldMapping {
	m := make(FieldMapping, len(fields.Required))
	for _, f := range fields.Required {
		m[f] = string(f)
	}
	return m
}

// Missing lists required fields without a mapped header, in canonical order.
func (m FieldMapping) Missing() []fields.Field {
	var out []fields.Field
	for _, f := range fields.Required {
		if m[f] == "" {
			out = append(out, f)
		}
	}
	return out
}

func (m FieldMapping) Clone() FieldMapping {
	out := make(FieldMapping, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Payload is the request body handed to the prediction service.
type Payload struct {
	Records []RawRecord  `json:"data"`
	Mapping FieldMapping `json:"mapping"`
}
