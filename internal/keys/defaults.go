package keys

import "fmt"

// Spec is the configuration form of a key: (pin, abbreviation, description).
type Spec struct {
	Pin         string `toml:"pin" json:"pin" yaml:"pin"`
	Abbrev      string `toml:"abbrev" json:"abbrev" yaml:"abbrev"`
	Description string `toml:"description" json:"description" yaml:"description"`
}

// DefaultSpecs is the wiring of the reference hardware: three thumb keys
// followed by the four finger keys.
func DefaultSpecs() []Spec {
	return []Spec{
		{Pin: "A1", Abbrev: "N", Description: "Near"},
		{Pin: "A2", Abbrev: "C", Description: "Center"},
		{Pin: "A3", Abbrev: "F", Description: "Far"},
		{Pin: "D11", Abbrev: "I", Description: "Index"},
		{Pin: "D10", Abbrev: "M", Description: "Middle"},
		{Pin: "D9", Abbrev: "R", Description: "Ring"},
		{Pin: "D6", Abbrev: "P", Description: "Pinky"},
	}
}

// DefaultNavSpecs is the wiring of the three navigation buttons. They are
// not part of the chord set.
func DefaultNavSpecs() []Spec {
	return []Spec{
		{Pin: "D0", Abbrev: "D0", Description: "Select"},
		{Pin: "D1", Abbrev: "D1", Description: "Up"},
		{Pin: "D2", Abbrev: "D2", Description: "Down"},
	}
}

// ThumbCount is the number of thumb keys at the start of the default layout.
const ThumbCount = 3

// FromSpecs builds and freezes a registry from specs.
func FromSpecs(specs []Spec) (*Registry, error) {
	r := NewRegistry()
	for i, s := range specs {
		if _, err := r.Add(s.Pin, s.Abbrev, s.Description); err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
	}
	r.Freeze()
	return r, nil
}

// Default returns the frozen registry for the reference hardware.
func Default() *Registry {
	r, err := FromSpecs(DefaultSpecs())
	if err != nil {
		panic(err)
	}
	return r
}

// DefaultNav returns the frozen navigation button registry.
func DefaultNav() *Registry {
	r, err := FromSpecs(DefaultNavSpecs())
	if err != nil {
		panic(err)
	}
	return r
}
