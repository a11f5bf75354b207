// Package policy manages device policies: named formulas whose results
// are staged into a target attribute when evaluated against a device.
package policy

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fieldgrid/device-policy-engine/pkg/formula"
	"github.com/fieldgrid/device-policy-engine/pkg/types"
)

// Spec is the declarative form of a policy as it appears in policy files
// and API payloads.
type Spec struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Target      string `yaml:"target" json:"target"`
	Formula     string `yaml:"formula" json:"formula"`
	Priority    int    `yaml:"priority,omitempty" json:"priority,omitempty"`
	Disabled    bool   `yaml:"disabled,omitempty" json:"disabled,omitempty"`
}

// Validate checks the fields that compilation cannot.
func (s Spec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("policy name is required")
	}
	if s.Target == "" {
		return fmt.Errorf("policy %q: target attribute is required", s.Name)
	}
	if s.Formula == "" {
		return fmt.Errorf("policy %q: formula is required", s.Name)
	}
	return nil
}

// Policy is a compiled policy. The formula is parsed once at construction
// and the Policy is immutable afterwards.
type Policy struct {
	ID          string
	Name        string
	Description string
	Target      string
	Source      string
	Priority    int
	Disabled    bool
	CreatedAt   time.Time

	compiled *formula.Formula
}

// Compile validates a spec and parses its formula into a Policy.
func Compile(spec Spec, logger *slog.Logger) (*Policy, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	f, err := formula.New(spec.Formula, formula.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("policy %q: %w", spec.Name, err)
	}
	return &Policy{
		ID:          uuid.NewString(),
		Name:        spec.Name,
		Description: spec.Description,
		Target:      spec.Target,
		Source:      spec.Formula,
		Priority:    spec.Priority,
		Disabled:    spec.Disabled,
		CreatedAt:   time.Now().UTC(),
		compiled:    f,
	}, nil
}

// Compute evaluates the policy's formula against the provider.
func (p *Policy) Compute(provider formula.ValueProvider) types.Value {
	return p.compiled.Compute(provider)
}

// Dump renders the compiled tree for debugging.
func (p *Policy) Dump() string {
	return p.compiled.Dump()
}

// ToSpec converts the policy back to its declarative form.
func (p *Policy) ToSpec() Spec {
	return Spec{
		Name:        p.Name,
		Description: p.Description,
		Target:      p.Target,
		Formula:     p.Source,
		Priority:    p.Priority,
		Disabled:    p.Disabled,
	}
}
