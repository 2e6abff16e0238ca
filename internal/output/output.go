// Package output renders command results for the terminal and for --json.
package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/klytics/macrodoc/cmd/version"
	"github.com/klytics/macrodoc/internal/analysis"
	"github.com/klytics/macrodoc/internal/vba"
)

// Exit codes for consistent error reporting.
const (
	ExitOK          = 0 // success, or a workbook with nothing to analyse
	ExitUserError   = 1 // bad flags, missing or unsupported workbook
	ExitSystemError = 2 // extraction failure, model failure, IO error
)

// JSONResult is the standard JSON output envelope for all commands.
type JSONResult struct {
	OK      bool   `json:"ok"`
	Command string `json:"command"`
	Version string `json:"version"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// UserError marks a failure caused by how the command was invoked.
type UserError struct {
	Err error
}

func (e *UserError) Error() string { return e.Err.Error() }
func (e *UserError) Unwrap() error { return e.Err }

// UserErrorf builds a UserError from a format string.
func UserErrorf(format string, args ...any) error {
	return &UserError{Err: fmt.Errorf(format, args...)}
}

// IsNothingToAnalyse reports whether err means the workbook has no macro
// code. Such workbooks are reported, not failed.
func IsNothingToAnalyse(err error) bool {
	return errors.Is(err, vba.ErrNoMacros) || errors.Is(err, vba.ErrNoCode)
}

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	var (
		userErr *UserError
		extErr  *vba.ExtractError
		genErr  *analysis.GenerationError
	)
	switch {
	case err == nil, IsNothingToAnalyse(err):
		return ExitOK
	case errors.As(err, &userErr), errors.Is(err, vba.ErrNotFound), errors.Is(err, vba.ErrUnsupported):
		return ExitUserError
	case errors.As(err, &extErr), errors.As(err, &genErr):
		return ExitSystemError
	default:
		return ExitUserError
	}
}

// PrintJSON writes a success envelope.
func PrintJSON(w io.Writer, cmd string, data any) error {
	return encode(w, JSONResult{
		OK:      true,
		Command: cmd,
		Version: version.Version,
		Data:    data,
	})
}

// PrintJSONError writes a failure envelope.
func PrintJSONError(w io.Writer, cmd string, err error) error {
	return encode(w, JSONResult{
		OK:      false,
		Command: cmd,
		Version: version.Version,
		Error:   err.Error(),
		Code:    ExitCode(err),
	})
}

func encode(w io.Writer, v JSONResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("could not encode JSON result: %w", err)
	}
	return nil
}

var (
	okMark   = color.New(color.FgGreen).SprintFunc()
	warnMark = color.New(color.FgYellow).SprintFunc()
	failMark = color.New(color.FgRed).SprintFunc()
	heading  = color.New(color.Bold).SprintFunc()
)

// Success prints a green status line.
func Success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", okMark("✓"), fmt.Sprintf(format, args...))
}

// Warn prints a yellow status line.
func Warn(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", warnMark("!"), fmt.Sprintf(format, args...))
}

// Fail prints a red status line.
func Fail(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", failMark("✗"), fmt.Sprintf(format, args...))
}

// Heading prints a bold title followed by a blank line.
func Heading(w io.Writer, title string) {
	fmt.Fprintf(w, "%s\n\n", heading(title))
}
