package fields

import (
	"fmt"
	"strings"
)

// Field is a canonical observation attribute the predictor requires.
type Field string

const (
	ObjectID        Field = "object_id"
	OrbitalPeriod   Field = "orbital_period"
	TransitDuration Field = "transit_duration"
	TransitDepthPPM Field = "transit_depth_ppm"
	PlanetRadius    Field = "planet_radius"
	StellarTemp     Field = "stellar_temp"
	StellarLogg     Field = "stellar_logg"
	StellarRadius   Field = "stellar_radius"
)

// Required is the ordered set of fields every submitted record must provide.
var Required = []Field{
	ObjectID,
	OrbitalPeriod,
	TransitDuration,
	TransitDepthPPM,
	PlanetRadius,
	StellarTemp,
	StellarLogg,
	StellarRadius,
}

// FormContract binds the manual form's input identifiers to canonical fields.
// Changing Required without updating this table is caught by ValidateContract.
var FormContract = map[string]Field{
	"object_id":         ObjectID,
	"orbital_period":    OrbitalPeriod,
	"transit_duration":  TransitDuration,
	"transit_depth_ppm": TransitDepthPPM,
	"planet_radius":     PlanetRadius,
	"stellar_temp":      StellarTemp,
	"stellar_logg":      StellarLogg,
	"stellar_radius":    StellarRadius,
}

func (f Field) String() string {
	return string(f)
}

// Label is the human readable form used in mapping controls.
func (f Field) Label() string {
	return strings.ReplaceAll(string(f), "_", " ")
}

// IsRequired reports whether f belongs to Required.
func IsRequired(f Field) bool {
	for _, r := range Required {
		if r == f {
			return true
		}
	}
	return false
}

// Parse converts a raw name into a required Field.
func Parse(name string) (Field, error) {
	f := Field(strings.TrimSpace(name))
	if !IsRequired(f) {
		return "", fmt.Errorf("unknown field %q", name)
	}
	return f, nil
}

// FormID returns the manual form identifier bound to f.
func FormID(f Field) (string, bool) {
	for id, field := range FormContract {
		if field == f {
			return id, true
		}
	}
	return "", false
}

// ValidateContract checks that FormContract covers every required field
// exactly once and nothing else.
func ValidateContract() error {
	seen := make(map[Field]string, len(FormContract))
	for id, f := range FormContract {
		if !IsRequired(f) {
			return fmt.Errorf("form field %q bound to unknown field %q", id, f)
		}
		if prev, ok := seen[f]; ok {
			return fmt.Errorf("field %q bound twice (%q, %q)", f, prev, id)
		}
		seen[f] = id
	}
	for _, f := range Required {
		if _, ok := seen[f]; !ok {
			return fmt.Errorf("field %q has no manual form input", f)
		}
	}
	return nil
}
