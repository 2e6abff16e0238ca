// Package artifact writes analysis outputs to disk. Every write replaces the
// whole file; artifacts are regenerated from source on each run.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Artifact describes one written file.
type Artifact struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	Bytes int    `json:"bytes"`
}

// Writer places artifacts in a single directory.
type Writer struct {
	Dir string
}

// NewWriter returns a writer for dir. The directory is created on first
// write.
func NewWriter(dir string) *Writer {
	return &Writer{Dir: dir}
}

// Path returns where the artifact called name lives.
func (w *Writer) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// Write replaces the artifact called name with data.
func (w *Writer) Write(name string, data []byte) (Artifact, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return Artifact{}, fmt.Errorf("invalid artifact name %q", name)
	}
	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return Artifact{}, fmt.Errorf("could not create output directory %s: %w", w.Dir, err)
	}
	path := w.Path(name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return Artifact{}, fmt.Errorf("could not write %s: %w", path, err)
	}
	return Artifact{Name: name, Path: path, Bytes: len(data)}, nil
}

// WriteString is Write for text content.
func (w *Writer) WriteString(name, content string) (Artifact, error) {
	return w.Write(name, []byte(content))
}

// Read returns the current content of an artifact.
func (w *Writer) Read(name string) ([]byte, error) {
	return os.ReadFile(w.Path(name))
}
