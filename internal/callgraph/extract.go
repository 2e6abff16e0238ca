// Package callgraph recovers subroutine declarations and Call references from
// VBA macro source and renders them as a node/link graph.
package callgraph

import (
	"fmt"
	"regexp"
)

// Span locates a match within the source text.
type Span struct {
	Start int
	End   int
}

// Declaration is a subroutine declaration found by a Lexer.
type Declaration struct {
	Name string
	Span Span
}

// Lexer finds the syntax the extractor needs. RegexLexer is the default; a
// real tokenizer can be substituted without changing the graph contract.
type Lexer interface {
	// Declarations returns subroutine declarations in order of appearance.
	Declarations(src string) []Declaration
	// Terminator returns the offset of the first subroutine terminator at or
	// after from, or -1.
	Terminator(src string, from int) int
	// Calls returns the identifiers referenced by call statements in body.
	Calls(body string) []string
}

var (
	declPattern       = regexp.MustCompile(`Sub\s+(\w+)\(`)
	callPattern       = regexp.MustCompile(`Call\s+(\w+)\b`)
	terminatorPattern = regexp.MustCompile(`End\s+Sub`)
)

// RegexLexer matches `Sub Name(`, `Call Name` and `End Sub`.
type RegexLexer struct{}

func (RegexLexer) Declarations(src string) []Declaration {
	var decls []Declaration
	for _, m := range declPattern.FindAllStringSubmatchIndex(src, -1) {
		decls = append(decls, Declaration{
			Name: src[m[2]:m[3]],
			Span: Span{Start: m[0], End: m[1]},
		})
	}
	return decls
}

func (RegexLexer) Terminator(src string, from int) int {
	if from > len(src) {
		return -1
	}
	loc := terminatorPattern.FindStringIndex(src[from:])
	if loc == nil {
		return -1
	}
	return from + loc[0]
}

func (RegexLexer) Calls(body string) []string {
	var names []string
	for _, m := range callPattern.FindAllStringSubmatch(body, -1) {
		names = append(names, m[1])
	}
	return names
}

// DiagnosticKind classifies a data-quality problem found while extracting.
type DiagnosticKind string

// DiagnosticUnterminated marks a declaration with no terminator after it.
const DiagnosticUnterminated DiagnosticKind = "unterminated-subroutine"

// Diagnostic reports a subroutine whose edges could not be extracted.
type Diagnostic struct {
	Kind       DiagnosticKind `json:"kind"`
	Subroutine string         `json:"subroutine"`
	Offset     int            `json:"offset"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s at offset %d", d.Kind, d.Subroutine, d.Offset)
}

// Extractor builds graphs with a Lexer.
type Extractor struct {
	Lexer Lexer
}

// Extract builds the call graph of src with the default lexer.
func Extract(src string) (*Graph, []Diagnostic) {
	return (&Extractor{Lexer: RegexLexer{}}).Extract(src)
}

// Extract collects every declaration as a node before scanning bodies, so
// forward references resolve. A body runs from the end of its declaration to
// the first terminator after it. Calls to names that are not declared are
// dropped. An unterminated subroutine stays a node, contributes no edges and
// yields a Diagnostic.
func (e *Extractor) Extract(src string) (*Graph, []Diagnostic) {
	lx := e.Lexer
	if lx == nil {
		lx = RegexLexer{}
	}

	decls := lx.Declarations(src)
	g := &Graph{}
	for _, d := range decls {
		g.addNode(d.Name)
	}

	var diags []Diagnostic
	for _, d := range decls {
		end := lx.Terminator(src, d.Span.End)
		if end < 0 {
			diags = append(diags, Diagnostic{
				Kind:       DiagnosticUnterminated,
				Subroutine: d.Name,
				Offset:     d.Span.Start,
			})
			continue
		}
		for _, callee := range lx.Calls(src[d.Span.End:end]) {
			if g.HasNode(callee) {
				g.Links = append(g.Links, Link{Source: d.Name, Target: callee})
			}
		}
	}

	return g, diags
}
