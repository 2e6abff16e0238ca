// Package analysis runs the documentation, review and static analyses over
// a workbook's macro source and writes their artifacts.
package analysis

import (
	"fmt"
	"strings"
)

// Kind names one analysis.
type Kind string

const (
	Documentation Kind = "documentation"
	Logic         Kind = "logic"
	Quality       Kind = "quality"
	DataFlow      Kind = "dataflow"
	Refactor      Kind = "refactor"
	Security      Kind = "security"
	Graph         Kind = "graph"
)

// AllKinds is every analysis in the order `run` executes them.
var AllKinds = []Kind{Documentation, Logic, Quality, DataFlow, Refactor, Security, Graph}

// Graph artifact names.
const (
	DataJSArtifact    = "data.js"
	GraphJSONArtifact = "graph.json"
	FlowHTMLArtifact  = "flow_diagram.html"
)

type kindInfo struct {
	title     string
	artifacts []string
	model     bool
}

var kinds = map[Kind]kindInfo{
	Documentation: {"VBA Macro Documentation", []string{"vba_macro_documentation.txt"}, true},
	Logic:         {"Functional Logic Extractor", []string{"vba_macro_functional_logic.txt"}, true},
	Quality:       {"VBA Macro Code Quality", []string{"vba_macro_code_quality.txt"}, true},
	DataFlow:      {"Data Flow Analysis", []string{"vba_macro_data_flow.txt"}, true},
	Refactor:      {"Refactoring Recommendations", []string{"vba_macro_refactor.txt"}, true},
	Security:      {"VBA Security Report", []string{"vba_security_report.txt"}, false},
	Graph:         {"Process Flow Visualization", []string{DataJSArtifact, GraphJSONArtifact, FlowHTMLArtifact}, false},
}

// Short names used by the CLI commands.
var aliases = map[string]Kind{
	"doc":  Documentation,
	"docs": Documentation,
	"flow": Graph,
}

// ParseKind accepts a kind name or its short form, case-insensitively.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if a, ok := aliases[string(k)]; ok {
		k = a
	}
	if _, ok := kinds[k]; !ok {
		names := make([]string, len(AllKinds))
		for i, k := range AllKinds {
			names[i] = string(k)
		}
		return "", fmt.Errorf("unknown analysis %q, expected one of: %s", s, strings.Join(names, ", "))
	}
	return k, nil
}

// Title is the heading shown above the analysis output.
func (k Kind) Title() string {
	return kinds[k].title
}

// Artifacts lists the files the analysis writes.
func (k Kind) Artifacts() []string {
	return append([]string(nil), kinds[k].artifacts...)
}

// UsesModel reports whether the analysis calls a text generator.
func (k Kind) UsesModel() bool {
	return kinds[k].model
}

// Flattened reports whether newlines in model output are replaced by spaces.
// Refactoring advice keeps its line structure.
func (k Kind) Flattened() bool {
	return k != Refactor
}
