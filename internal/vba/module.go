// Package vba extracts macro source code from Excel workbooks.
//
// The VBA project is an OLE compound file stored inside the workbook (the
// xl/vbaProject.bin part of OOXML containers, or the _VBA_PROJECT_CUR storage
// of legacy .xls files). Module source lives in compressed streams described
// by the project's dir stream.
package vba

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DefaultModuleSuffix selects standard code modules.
const DefaultModuleSuffix = ".bas"

var (
	// ErrNoMacros means the workbook carries no VBA project.
	ErrNoMacros = errors.New("no macros found in the given workbook")
	// ErrNoCode means a project exists but the selected modules hold no code.
	ErrNoCode = errors.New("the macros do not contain any written code")

	// ErrNotFound and ErrUnsupported are wrapped in an *ExtractError when the
	// path itself is wrong.
	ErrNotFound    = errors.New("file not found, check that the path is correct")
	ErrUnsupported = errors.New("unsupported file type")
)

// ExtractError is a failure of the extraction itself, as opposed to a
// workbook that simply has nothing to extract.
type ExtractError struct {
	Path string
	Err  error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("could not extract macros from %s: %v", e.Path, e.Err)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// ModuleKind is the kind of a VBA module.
type ModuleKind int

const (
	KindStandard ModuleKind = iota
	KindClass
	KindDocument
	KindForm
)

// Suffix returns the file extension a module of this kind exports as.
func (k ModuleKind) Suffix() string {
	switch k {
	case KindStandard:
		return ".bas"
	case KindForm:
		return ".frm"
	default:
		return ".cls"
	}
}

func (k ModuleKind) String() string {
	switch k {
	case KindStandard:
		return "standard"
	case KindClass:
		return "class"
	case KindDocument:
		return "document"
	case KindForm:
		return "form"
	default:
		return "unknown"
	}
}

// Module is one VBA module with its decompressed source.
type Module struct {
	Name string     `json:"name"`
	Kind ModuleKind `json:"-"`
	Code string     `json:"code"`
}

// FileName is the module name plus its export suffix.
func (m Module) FileName() string {
	return m.Name + m.Kind.Suffix()
}

// Project is the set of modules in a workbook's VBA project.
type Project struct {
	CodePage uint16   `json:"codePage"`
	Modules  []Module `json:"modules"`
}

// Select returns the modules whose file name ends in suffix.
func (p *Project) Select(suffix string) []Module {
	if suffix == "" {
		suffix = DefaultModuleSuffix
	}
	var out []Module
	for _, m := range p.Modules {
		if strings.HasSuffix(strings.ToLower(m.FileName()), strings.ToLower(suffix)) {
			out = append(out, m)
		}
	}
	return out
}

// Source concatenates the code of modules matching suffix and collapses
// whitespace. It returns ErrNoCode when nothing remains.
func (p *Project) Source(suffix string) (string, error) {
	var b strings.Builder
	for _, m := range p.Select(suffix) {
		b.WriteString(m.Code)
	}
	src := CollapseWhitespace(b.String())
	if src == "" {
		return "", ErrNoCode
	}
	return src, nil
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// CollapseWhitespace replaces every whitespace run with one space and trims.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}
