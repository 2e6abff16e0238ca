// Package session holds the workbook an analysis is working on. A Session
// is created once per workbook and passed explicitly to every operation.
package session

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/klytics/macrodoc/internal/artifact"
	"github.com/klytics/macrodoc/internal/vba"
)

// SourceArtifact is the file the assembled macro source is saved as.
const SourceArtifact = "vba_code.txt"

// Session is the workbook and its extracted macro source.
type Session struct {
	WorkbookPath string       `json:"workbook"`
	DisplayName  string       `json:"name"`
	Suffix       string       `json:"suffix"`
	Source       string       `json:"-"`
	Project      *vba.Project `json:"-"`
	OpenedAt     time.Time    `json:"openedAt"`
}

// Open extracts the macros of the workbook at path. Modules are selected by
// suffix. vba.ErrNoMacros and vba.ErrNoCode are returned unchanged.
func Open(path, suffix string) (*Session, error) {
	if suffix == "" {
		suffix = vba.DefaultModuleSuffix
	}
	src, project, err := vba.ExtractSource(path, suffix)
	if err != nil {
		return nil, err
	}
	return &Session{
		WorkbookPath: path,
		DisplayName:  filepath.Base(path),
		Suffix:       suffix,
		Source:       src,
		Project:      project,
		OpenedAt:     time.Now(),
	}, nil
}

// FromSource builds a session around macro source that is already at hand.
func FromSource(name, src string) *Session {
	return &Session{DisplayName: name, Suffix: vba.DefaultModuleSuffix, Source: src, OpenedAt: time.Now()}
}

// SaveSource writes the assembled source to the work directory.
func (s *Session) SaveSource(w *artifact.Writer) (artifact.Artifact, error) {
	return w.WriteString(SourceArtifact, s.Source)
}

// Modules returns the number of modules that contributed to Source.
func (s *Session) Modules() int {
	if s.Project == nil {
		return 0
	}
	return len(s.Project.Select(s.Suffix))
}

func (s *Session) String() string {
	return fmt.Sprintf("%s (%d module(s), %d chars)", s.DisplayName, s.Modules(), len(s.Source))
}
