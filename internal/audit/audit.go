// Package audit keeps a JSON-lines record of analysis runs.
package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Entry is one line of the audit log.
type Entry struct {
	Timestamp  time.Time `json:"timestamp"`
	Command    string    `json:"command"`
	Args       []string  `json:"args,omitempty"`
	Workbook   string    `json:"workbook,omitempty"`
	Kind       string    `json:"kind,omitempty"`
	Model      string    `json:"model,omitempty"`
	Cached     bool      `json:"cached"`
	DurationMs int64     `json:"duration_ms"`
	ExitCode   int       `json:"exit_code"`
	Error      string    `json:"error,omitempty"`
}

// Logger appends entries to a file. A disabled Logger, or one with no
// path, does nothing.
type Logger struct {
	Path    string
	Enabled bool

	mu sync.Mutex
}

// NewLogger creates a Logger writing to path.
func NewLogger(path string, enabled bool) *Logger {
	return &Logger{Path: path, Enabled: enabled}
}

// Log appends entry. Args are redacted before they are written.
func (l *Logger) Log(entry Entry) error {
	if l == nil || !l.Enabled || l.Path == "" {
		return nil
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entry.Args = Redact(entry.Args)

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("could not encode audit entry: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.Path), 0o755); err != nil {
		return fmt.Errorf("could not create audit directory: %w", err)
	}
	f, err := os.OpenFile(l.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("could not open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("could not write audit log: %w", err)
	}
	return nil
}

// ReadEntries reads every well-formed entry in the log at path. A missing
// log has no entries.
func ReadEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, sc.Err()
}

// Filter selects entries for `audit log`. Zero fields match everything.
type Filter struct {
	Since    time.Time
	Command  string
	Workbook string
	Kind     string
	Failed   bool
	Last     int
}

// Apply returns the entries matching f, oldest first.
func (f Filter) Apply(entries []Entry) []Entry {
	var out []Entry
	for _, e := range entries {
		if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
			continue
		}
		if f.Command != "" && !strings.Contains(e.Command, f.Command) {
			continue
		}
		if f.Workbook != "" && !strings.Contains(e.Workbook, f.Workbook) {
			continue
		}
		if f.Kind != "" && e.Kind != f.Kind {
			continue
		}
		if f.Failed && e.ExitCode == 0 {
			continue
		}
		out = append(out, e)
	}
	if f.Last > 0 && len(out) > f.Last {
		out = out[len(out)-f.Last:]
	}
	return out
}

// Stats aggregates log entries.
type Stats struct {
	Runs          int            `json:"runs"`
	ByKind        map[string]int `json:"byKind"`
	ByCommand     map[string]int `json:"byCommand"`
	Workbooks     int            `json:"workbooks"`
	CacheHits     int            `json:"cacheHits"`
	Failures      int            `json:"failures"`
	AvgDurationMs float64        `json:"avgDurationMs"`
}

// Summarize aggregates entries. Skipped workbooks count as runs without a
// kind.
func Summarize(entries []Entry) Stats {
	st := Stats{ByKind: map[string]int{}, ByCommand: map[string]int{}}
	books := map[string]bool{}
	var total int64
	for _, e := range entries {
		st.Runs++
		st.ByCommand[e.Command]++
		if e.Kind != "" {
			st.ByKind[e.Kind]++
		}
		if e.Workbook != "" {
			books[e.Workbook] = true
		}
		if e.Cached {
			st.CacheHits++
		}
		if e.ExitCode != 0 {
			st.Failures++
		}
		total += e.DurationMs
	}
	st.Workbooks = len(books)
	if st.Runs > 0 {
		st.AvgDurationMs = float64(total) / float64(st.Runs)
	}
	return st
}

// LogSize returns the size of the log in bytes, or 0 if it does not exist.
func LogSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Clear empties the log. Clearing a missing log is not an error.
func Clear(path string) error {
	err := os.Truncate(path, 0)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

var sensitiveFlags = map[string]bool{
	"--key": true, "--api-key": true, "--apikey": true,
	"--token": true, "--secret": true, "--password": true,
}

// Key prefixes used by the supported providers.
var sensitivePrefixes = []string{"gsk_", "sk-ant-", "sk-", "Bearer "}

// Redact replaces secrets in args with [REDACTED]. Both "--api-key value"
// and "--api-key=value" forms are handled.
func Redact(args []string) []string {
	if args == nil {
		return nil
	}
	out := make([]string, len(args))
	redactNext := false
	for i, arg := range args {
		switch {
		case redactNext:
			out[i] = "[REDACTED]"
			redactNext = false
		case sensitiveFlags[arg]:
			out[i] = arg
			redactNext = true
		case strings.Contains(arg, "=") && sensitiveFlags[arg[:strings.Index(arg, "=")]]:
			out[i] = arg[:strings.Index(arg, "=")+1] + "[REDACTED]"
		case hasSecretPrefix(arg):
			out[i] = "[REDACTED]"
		default:
			out[i] = arg
		}
	}
	return out
}

func hasSecretPrefix(s string) bool {
	for _, p := range sensitivePrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
