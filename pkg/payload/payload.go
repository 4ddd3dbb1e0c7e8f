package payload

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yurifrl/exoprep/pkg/fields"
	"github.com/yurifrl/exoprep/pkg/models"
	"github.com/yurifrl/exoprep/pkg/records"
)

// ErrIncompleteMapping is returned when a required field has no source column.
var ErrIncompleteMapping = errors.New("all required columns must be mapped")

// MappingError lists the unmapped fields behind ErrIncompleteMapping.
type MappingError struct {
	Missing []fields.Field
}

func (e *MappingError) Error() string {
	names := make([]string, len(e.Missing))
	for i, f := range e.Missing {
		names[i] = string(f)
	}
	return fmt.Sprintf("%s: %s", ErrIncompleteMapping, strings.Join(names, ", "))
}

func (e *MappingError) Unwrap() error {
	return ErrIncompleteMapping
}

// Assemble validates recs and mapping and returns the request payload.
//
// Bulk mode requires every required field to be mapped. Manual records are
// keyed by canonical name already, so the mapping is replaced by the
// identity mapping. The payload holds its own copies of recs and mapping.
func Assemble(mode models.Mode, recs []models.RawRecord, mapping models.FieldMapping) (*models.Payload, error) {
	if len(recs) == 0 {
		return nil, records.ErrNoData
	}

	var final models.FieldMapping
	switch mode {
	case models.Manual:
		final = models.Identity()
	case models.Bulk:
		if missing := mapping.Missing(); len(missing) > 0 {
			return nil, &MappingError{Missing: missing}
		}
		final = make(models.FieldMapping, len(fields.Required))
		for _, f := range fields.Required {
			final[f] = mapping[f]
		}
	default:
		return nil, fmt.Errorf("unknown input mode %q", mode)
	}

	out := make([]models.RawRecord, len(recs))
	for i, r := range recs {
		out[i] = r.Clone()
	}
	return &models.Payload{Records: out, Mapping: final}, nil
}
