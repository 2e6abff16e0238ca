package scan

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultErrorMarker is the token whose presence indicates error handling.
const DefaultErrorMarker = "On Error"

// RiskyRule describes one identifier whose use is a security concern.
type RiskyRule struct {
	Name        string         `yaml:"name" json:"name"`
	Identifier  string         `yaml:"identifier" json:"identifier"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Severity    string         `yaml:"severity,omitempty" json:"severity,omitempty"`
	Pattern     *regexp.Regexp `yaml:"-" json:"-"`
}

// RuleSet is the configurable part of a scan.
type RuleSet struct {
	Risky       []RiskyRule `yaml:"risky" json:"risky"`
	ErrorMarker string      `yaml:"error_marker,omitempty" json:"errorMarker,omitempty"`
}

// Compile builds the case-insensitive, word-bounded pattern for the rule.
func (r *RiskyRule) Compile() error {
	ident := strings.TrimSpace(r.Identifier)
	if ident == "" {
		ident = strings.TrimSpace(r.Name)
	}
	if ident == "" {
		return fmt.Errorf("risky rule has neither name nor identifier")
	}
	r.Identifier = ident
	if r.Name == "" {
		r.Name = ident
	}
	if r.Severity == "" {
		r.Severity = "high"
	}
	pat, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(ident) + `\b`)
	if err != nil {
		return fmt.Errorf("rule %q: %w", r.Name, err)
	}
	r.Pattern = pat
	return nil
}

// Compile compiles every rule and fills defaults.
func (rs *RuleSet) Compile() error {
	if rs.ErrorMarker == "" {
		rs.ErrorMarker = DefaultErrorMarker
	}
	for i := range rs.Risky {
		if err := rs.Risky[i].Compile(); err != nil {
			return err
		}
	}
	return nil
}

// BuiltinRules returns the default rule set: process spawning, dynamic
// execution and ActiveX automation.
func BuiltinRules() RuleSet {
	rs := RuleSet{
		ErrorMarker: DefaultErrorMarker,
		Risky: []RiskyRule{
			{Name: "Shell", Identifier: "Shell", Severity: "high",
				Description: "Launches an external process"},
			{Name: "Execute", Identifier: "Execute", Severity: "high",
				Description: "Executes dynamically built code or commands"},
			{Name: "ActiveX", Identifier: "ActiveX", Severity: "medium",
				Description: "Automates an external ActiveX control"},
		},
	}
	// Builtin identifiers are plain words and always compile.
	_ = rs.Compile()
	return rs
}

// LoadRulesFromFile reads a YAML rule file. A file that sets no risky rules
// keeps the builtin ones.
func LoadRulesFromFile(path string) (RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, fmt.Errorf("could not read rules %s: %w", path, err)
	}
	return ParseRules(data)
}

// ParseRules decodes a YAML rule document.
func ParseRules(data []byte) (RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return RuleSet{}, fmt.Errorf("could not parse rules: %w", err)
	}
	if len(rs.Risky) == 0 {
		rs.Risky = BuiltinRules().Risky
	}
	if err := rs.Compile(); err != nil {
		return RuleSet{}, err
	}
	return rs, nil
}
