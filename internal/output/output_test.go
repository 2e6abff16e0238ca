package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/klytics/macrodoc/internal/analysis"
	"github.com/klytics/macrodoc/internal/vba"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"no macros", vba.ErrNoMacros, ExitOK},
		{"no code wrapped", fmt.Errorf("book.xlsm: %w", vba.ErrNoCode), ExitOK},
		{"user", UserErrorf("workbook %s not found", "x.xlsm"), ExitUserError},
		{"missing workbook", &vba.ExtractError{Path: "x.xlsm", Err: vba.ErrNotFound}, ExitUserError},
		{"unsupported", &vba.ExtractError{Path: "x.csv", Err: fmt.Errorf("%w %q", vba.ErrUnsupported, ".csv")}, ExitUserError},
		{"extract", &vba.ExtractError{Path: "x.xlsm", Err: errors.New("corrupt")}, ExitSystemError},
		{"generation", &analysis.GenerationError{Kind: analysis.Documentation, Err: errors.New("503")}, ExitSystemError},
		{"other", errors.New("unknown flag"), ExitUserError},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("%s: ExitCode = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintJSON(&buf, "graph", map[string]int{"nodes": 2}); err != nil {
		t.Fatal(err)
	}
	var res JSONResult
	if err := json.Unmarshal(buf.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if !res.OK || res.Command != "graph" || res.Error != "" {
		t.Errorf("result = %+v", res)
	}
}

func TestPrintJSONError(t *testing.T) {
	var buf bytes.Buffer
	err := &analysis.GenerationError{Kind: analysis.Quality, Provider: "groq", Err: errors.New("rate limited")}
	if err := PrintJSONError(&buf, "quality", err); err != nil {
		t.Fatal(err)
	}
	var res JSONResult
	json.Unmarshal(buf.Bytes(), &res)
	if res.OK || res.Code != ExitSystemError || !strings.Contains(res.Error, "rate limited") {
		t.Errorf("result = %+v", res)
	}
}

func TestStatusLines(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	Success(&buf, "wrote %d artifacts", 3)
	Warn(&buf, "no macros")
	Fail(&buf, "failed")
	want := "✓ wrote 3 artifacts\n! no macros\n✗ failed\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestShowNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	content := strings.Repeat("line\n", 200)
	if err := Show(&buf, content); err != nil {
		t.Fatal(err)
	}
	if buf.String() != content {
		t.Error("expected content written directly")
	}
}
