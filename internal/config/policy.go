package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Policy is the operator-curated watchlist policy
type Policy struct {
	// Exclude lists symbols that never receive an allocation (index/ETF tickers, denylist)
	Exclude []string `yaml:"exclude" default:"[\"U\"]"`

	// MinScore is the lowest rating score admitted to the allocation
	MinScore int `yaml:"min_score" default:"5" validate:"gte=1"`

	// Weights overrides the doubling scheme with a fixed weight per score.
	// Scores missing from a non-empty map weigh 1.0.
	Weights map[int]float64 `yaml:"weights" validate:"omitempty,dive,gte=0"`

	// LiquidateDropped sells held symbols that left the target
	LiquidateDropped bool `yaml:"liquidate_dropped"`
}

// DefaultPolicy returns the policy used when no file is configured
func DefaultPolicy() *Policy {
	p := &Policy{}
	// Only fails on malformed tags
	if err := defaults.Set(p); err != nil {
		panic(err)
	}
	return p
}

// LoadPolicy reads a YAML policy file. An empty path yields the default policy.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes, defaults and validates a YAML policy document
func ParsePolicy(data []byte) (*Policy, error) {
	p := &Policy{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	if err := defaults.Set(p); err != nil {
		return nil, fmt.Errorf("failed to apply policy defaults: %w", err)
	}
	if err := validate.Struct(p); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}

	for i, sym := range p.Exclude {
		p.Exclude[i] = strings.ToUpper(strings.TrimSpace(sym))
	}
	return p, nil
}

// ExcludeSet returns the exclusion list as a set
func (p *Policy) ExcludeSet() map[string]struct{} {
	set := make(map[string]struct{}, len(p.Exclude))
	for _, sym := range p.Exclude {
		set[sym] = struct{}{}
	}
	return set
}
