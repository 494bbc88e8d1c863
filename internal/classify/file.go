package classify

import (
	"math"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/fer004/Sensores/internal/model"
)

type profileFile struct {
	Profiles []profileYAML `yaml:"profiles"`
}

type profileYAML struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Pollutants  []string   `yaml:"pollutants"`
	NoData      string     `yaml:"no_data"`
	Bands       []bandYAML `yaml:"bands"`
}

// bandYAML leaves upper_bound out for the open-ended top band.
type bandYAML struct {
	UpperBound *float64 `yaml:"upper_bound"`
	Label      string   `yaml:"label"`
}

// ParseProfiles decodes a YAML document of the form:
//
//	profiles:
//	  - name: custom
//	    no_data: Sin datos
//	    pollutants: [pm2_5]
//	    bands:
//	      - {upper_bound: 10, label: Baja}
//	      - {label: Alta}
func ParseProfiles(data []byte) ([]Profile, error) {
	var doc profileFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "classify: parse profiles")
	}

	out := make([]Profile, 0, len(doc.Profiles))
	for i, py := range doc.Profiles {
		p := Profile{Name: py.Name, Description: py.Description, NoData: py.NoData}
		for _, s := range py.Pollutants {
			pol, ok := model.ParsePollutant(s)
			if !ok {
				return nil, eris.Errorf("classify: profile %d (%s): unknown pollutant %q", i, py.Name, s)
			}
			p.Pollutants = append(p.Pollutants, pol)
		}
		for j, b := range py.Bands {
			bound := math.Inf(1)
			if b.UpperBound != nil {
				bound = *b.UpperBound
			} else if j != len(py.Bands)-1 {
				return nil, eris.Errorf("classify: profile %q: only the last band may omit upper_bound", py.Name)
			}
			p.Bands = append(p.Bands, Band{UpperBound: bound, Label: b.Label})
		}
		if err := p.Validate(); err != nil {
			return nil, eris.Wrapf(err, "classify: profile %d", i)
		}
		out = append(out, p)
	}
	return out, nil
}

// LoadFile parses a profiles file and registers every profile in r.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "classify: read %s", path)
	}
	profiles, err := ParseProfiles(data)
	if err != nil {
		return err
	}
	for _, p := range profiles {
		if err := r.Register(p); err != nil {
			return eris.Wrapf(err, "classify: register %s", p.Name)
		}
	}
	return nil
}
