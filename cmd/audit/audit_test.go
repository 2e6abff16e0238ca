package audit

import (
	"bytes"
	"strings"
	"testing"
	"time"

	auditpkg "github.com/klytics/macrodoc/internal/audit"
)

func TestPrintEntries(t *testing.T) {
	var buf bytes.Buffer
	printEntries(&buf, []auditpkg.Entry{
		{Timestamp: time.Now(), Command: "security", Kind: "security", Workbook: "book.xlsm", DurationMs: 42},
		{Timestamp: time.Now(), Command: "doc", Kind: "documentation", DurationMs: 2500, Cached: true, ExitCode: 2},
	})
	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %q", out)
	}
	if !strings.HasPrefix(lines[0], "TIMESTAMP") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "42ms") || !strings.Contains(lines[1], "book.xlsm") {
		t.Errorf("row 1 = %q", lines[1])
	}
	if !strings.Contains(lines[2], "2.5s") || !strings.Contains(lines[2], "yes") || !strings.HasSuffix(lines[2], "2") {
		t.Errorf("row 2 = %q", lines[2])
	}
}

func TestFormatSize(t *testing.T) {
	tests := map[int64]string{
		10:          "10 B",
		2048:        "2.0 KB",
		3 * 1 << 20: "3.0 MB",
	}
	for in, want := range tests {
		if got := formatSize(in); got != want {
			t.Errorf("formatSize(%d) = %q, want %q", in, got, want)
		}
	}
}
