package plan

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/yurifrl/exoprep/pkg/fields"
	"github.com/yurifrl/exoprep/pkg/models"
)

// Plan is a saved mapping confirmation, used to replay header choices for
// files from the same source:
//
//	mapping:
//	  object_id: kepoi_name
//	  orbital_period: koi_period
type Plan struct {
	Source  string            `yaml:"source,omitempty"`
	Mapping map[string]string `yaml:"mapping"`
}

func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}

	if len(p.Mapping) == 0 {
		return nil, fmt.Errorf("plan has no mapping")
	}
	return &p, nil
}

// FieldMapping validates the plan's keys against the required fields.
func (p *Plan) FieldMapping() (models.FieldMapping, error) {
	m := make(models.FieldMapping, len(p.Mapping))
	for name, header := range p.Mapping {
		f, err := fields.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("plan: %w", err)
		}
		m[f] = header
	}
	return m, nil
}

// Save writes m as a plan file.
func Save(path, source string, m models.FieldMapping) error {
	p := Plan{Source: source, Mapping: make(map[string]string, len(m))}
	for f, h := range m {
		p.Mapping[string(f)] = h
	}
	data, err := yaml.Marshal(&p)
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write plan file: %w", err)
	}
	return nil
}
