// Package classify maps an optional concentration onto an ordinal air
// quality label through named breakpoint profiles.
package classify

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/fer004/Sensores/internal/model"
)

// ErrUnknownProfile is returned when a profile name is not registered.
var ErrUnknownProfile = errors.New("classify: unknown profile")

// Band is one breakpoint: values up to and including UpperBound get Label.
type Band struct {
	UpperBound float64
	Label      string
}

// Profile is an ordered breakpoint table plus the label used when no value
// is available. Values above the last bound take the last label.
type Profile struct {
	Name        string
	Description string
	Pollutants  []model.Pollutant
	NoData      string
	Bands       []Band
}

// Classify returns the label for v. A nil, NaN or infinite value gets the
// no-data label.
func (p Profile) Classify(v *float64) string {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return p.NoData
	}
	for _, b := range p.Bands {
		if *v <= b.UpperBound {
			return b.Label
		}
	}
	return p.Bands[len(p.Bands)-1].Label
}

// Supports reports whether the profile is meant for pollutant pol. A profile
// that lists no pollutants supports all of them.
func (p Profile) Supports(pol model.Pollutant) bool {
	if len(p.Pollutants) == 0 {
		return true
	}
	for _, q := range p.Pollutants {
		if q == pol {
			return true
		}
	}
	return false
}

// Validate checks that the profile can classify every input.
func (p Profile) Validate() error {
	if p.Name == "" {
		return errors.New("classify: profile name is required")
	}
	if p.NoData == "" {
		return fmt.Errorf("classify: profile %q: no_data label is required", p.Name)
	}
	if len(p.Bands) == 0 {
		return fmt.Errorf("classify: profile %q: at least one band is required", p.Name)
	}
	for i, b := range p.Bands {
		if b.Label == "" {
			return fmt.Errorf("classify: profile %q: band %d has no label", p.Name, i)
		}
		if math.IsNaN(b.UpperBound) {
			return fmt.Errorf("classify: profile %q: band %d bound is NaN", p.Name, i)
		}
		if i > 0 && b.UpperBound <= p.Bands[i-1].UpperBound {
			return fmt.Errorf("classify: profile %q: bounds must increase (band %d)", p.Name, i)
		}
	}
	return nil
}

// Registry holds profiles by name. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{profiles: make(map[string]Profile)}
}

// Register validates p and adds it, replacing any profile with the same name.
func (r *Registry) Register(p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	bands := make([]Band, len(p.Bands))
	copy(bands, p.Bands)
	p.Bands = bands

	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.Name] = p
	return nil
}

// Get returns the named profile.
func (r *Registry) Get(name string) (Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return p, nil
}

// Names returns registered profile names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.profiles))
	for n := range r.profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Profiles returns all registered profiles ordered by name.
func (r *Registry) Profiles() []Profile {
	names := r.Names()
	out := make([]Profile, 0, len(names))
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range names {
		out = append(out, r.profiles[n])
	}
	return out
}
