package limiter

import (
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// AtomList is a scope or selection as written in configuration. It accepts
// either a single atom or a sequence of atoms.
type AtomList []string

// UnmarshalYAML coerces a scalar atom into a one-element list.
func (a *AtomList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			*a = nil
			return nil
		}
		*a = AtomList{value.Value}
		return nil
	case yaml.SequenceNode:
		var atoms []string
		if err := value.Decode(&atoms); err != nil {
			return fmt.Errorf("line %d: atoms must be strings: %w", value.Line, err)
		}
		*a = atoms
		return nil
	default:
		return fmt.Errorf("line %d: expected an atom or a list of atoms", value.Line)
	}
}

// UnmarshalJSON coerces a string atom into a one-element list.
func (a *AtomList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*a = nil
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*a = AtomList{single}
		return nil
	}
	var atoms []string
	if err := json.Unmarshal(data, &atoms); err != nil {
		return errors.New("expected an atom or a list of atoms")
	}
	*a = atoms
	return nil
}

// Rule is one entry of the limiters list.
type Rule struct {
	Scope     AtomList `yaml:"scope" json:"scope"`
	Selection AtomList `yaml:"selection" json:"selection"`
	Limit     *int     `yaml:"limit,omitempty" json:"limit,omitempty"`
}

// NameLimit is the legacy shorthand limiting the number of metric names per
// scope.
type NameLimit struct {
	Scope AtomList `yaml:"scope" json:"scope"`
	Limit *int     `yaml:"limit,omitempty" json:"limit,omitempty"`
}

// Document is the limiter section of a configuration document.
type Document struct {
	Limiters              []Rule     `yaml:"limiters" json:"limiters"`
	LimitMetricNameNumber *NameLimit `yaml:"limit_metric_name_number,omitempty" json:"limit_metric_name_number,omitempty"`
}

// Rules returns the explicit rules followed by the expansion of the legacy
// metric name shorthand, if present.
func (d Document) Rules() []Rule {
	rules := make([]Rule, 0, len(d.Limiters)+1)
	rules = append(rules, d.Limiters...)
	if d.LimitMetricNameNumber != nil {
		rules = append(rules, Rule{
			Scope:     d.LimitMetricNameNumber.Scope,
			Selection: AtomList{AtomName},
			Limit:     d.LimitMetricNameNumber.Limit,
		})
	}
	return rules
}

// Parser validates limiter rules and builds Limiters from them.
type Parser struct {
	atoms AtomSet
}

// NewParser creates a parser recognizing the given atoms, or DefaultAtoms
// when none are given.
func NewParser(atoms ...string) *Parser {
	if len(atoms) == 0 {
		return &Parser{atoms: DefaultAtoms()}
	}
	return &Parser{atoms: NewAtomSet(atoms...)}
}

// Atoms returns the recognized atom set.
func (p *Parser) Atoms() AtomSet {
	return p.atoms
}

// Parse builds one Limiter per rule, in order. A nil or empty list yields an
// empty, permissive set. The first invalid rule fails the whole parse.
func (p *Parser) Parse(rules []Rule) ([]*Limiter, error) {
	limiters := make([]*Limiter, 0, len(rules))
	for i, r := range rules {
		limit := Unbounded
		if r.Limit != nil {
			if *r.Limit <= 0 {
				return nil, &ConfigError{Index: i, Field: FieldLimit, Reason: "must be a positive integer"}
			}
			limit = *r.Limit
		}

		l, err := New(r.Scope, r.Selection, limit, p.atoms)
		if err != nil {
			var cfgErr *ConfigError
			if errors.As(err, &cfgErr) {
				cfgErr.Index = i
			}
			return nil, err
		}
		limiters = append(limiters, l)
	}
	return limiters, nil
}

// ParseDocument decodes a YAML or JSON document and parses its limiters.
func (p *Parser) ParseDocument(data []byte) ([]*Limiter, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode limiter document: %w", err)
	}
	return p.Parse(doc.Rules())
}
