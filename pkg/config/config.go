// Package config loads beamline slit definitions from YAML files and
// watches them for edits on disk.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default nominal aperture applied when an entry omits
// nominal_aperture. Matches the device-layer default.
const (
	DefaultNominalWidth  = 5.0
	DefaultNominalHeight = 5.0
)

// SlitEntry describes one slit assembly in a beamline file.
type SlitEntry struct {
	// Name is the operator-facing device name.
	Name string `yaml:"name"`

	// Prefix is the record prefix the device is addressed through,
	// e.g. "HXR:SLIT1".
	Prefix string `yaml:"prefix"`

	// NominalAperture is the fully-removed [width, height] opening.
	NominalAperture []float64 `yaml:"nominal_aperture"`

	// DefaultTimeout is the per-device motion timeout as a duration
	// string, e.g. "45s". Empty selects the positioner default.
	DefaultTimeout string `yaml:"default_timeout"`

	// Timeout is DefaultTimeout parsed during validation. Zero when
	// the entry does not set one.
	Timeout time.Duration `yaml:"-"`
}

// Width returns the nominal aperture width.
func (e SlitEntry) Width() float64 {
	if len(e.NominalAperture) < 1 {
		return 0
	}
	return e.NominalAperture[0]
}

// Height returns the nominal aperture height.
func (e SlitEntry) Height() float64 {
	if len(e.NominalAperture) < 2 {
		return 0
	}
	return e.NominalAperture[1]
}

// Config is a parsed beamline file.
type Config struct {
	Slits []SlitEntry `yaml:"slits"`
}

// Lookup returns the entry named name, or false when the file does not
// define it.
func (c *Config) Lookup(name string) (SlitEntry, bool) {
	for _, e := range c.Slits {
		if e.Name == name {
			return e, true
		}
	}
	return SlitEntry{}, false
}

// Parse parses and validates a beamline file from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing beamline config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load loads and parses a beamline file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(data)
}

func (c *Config) validate() error {
	if len(c.Slits) == 0 {
		return fmt.Errorf("no slits defined")
	}

	names := make(map[string]bool, len(c.Slits))
	prefixes := make(map[string]string, len(c.Slits))
	for i := range c.Slits {
		e := &c.Slits[i]
		if e.Name == "" {
			return fmt.Errorf("slit %d: name is required", i)
		}
		if names[e.Name] {
			return fmt.Errorf("slit %q: name defined twice", e.Name)
		}
		names[e.Name] = true
		if e.Prefix == "" {
			return fmt.Errorf("slit %q: prefix is required", e.Name)
		}
		if prev, ok := prefixes[e.Prefix]; ok {
			return fmt.Errorf("slit %q: prefix %s already used by %q", e.Name, e.Prefix, prev)
		}
		prefixes[e.Prefix] = e.Name

		if len(e.NominalAperture) == 0 {
			e.NominalAperture = []float64{DefaultNominalWidth, DefaultNominalHeight}
		}
		if len(e.NominalAperture) != 2 {
			return fmt.Errorf("slit %q: nominal_aperture needs [width, height], got %d values",
				e.Name, len(e.NominalAperture))
		}
		for _, dim := range e.NominalAperture {
			if dim <= 0 {
				return fmt.Errorf("slit %q: nominal aperture dimensions must be positive, got %g",
					e.Name, dim)
			}
		}

		if e.DefaultTimeout != "" {
			d, err := time.ParseDuration(e.DefaultTimeout)
			if err != nil {
				return fmt.Errorf("slit %q: parse default_timeout: %w", e.Name, err)
			}
			if d <= 0 {
				return fmt.Errorf("slit %q: default_timeout must be positive, got %s", e.Name, d)
			}
			e.Timeout = d
		}
	}
	return nil
}
