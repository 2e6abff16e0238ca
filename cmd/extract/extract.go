// Package extract provides the command that pulls VBA source out of a workbook.
package extract

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/klytics/macrodoc/internal/app"
	"github.com/klytics/macrodoc/internal/output"
	"github.com/klytics/macrodoc/internal/session"
)

type moduleInfo struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	FileName string `json:"fileName"`
	Chars    int    `json:"chars"`
	Selected bool   `json:"selected"`
}

type extractOutput struct {
	Workbook string       `json:"workbook"`
	Source   string       `json:"source"`
	Chars    int          `json:"chars"`
	Modules  []moduleInfo `json:"modules"`
	NoMacros bool         `json:"noMacros,omitempty"`
}

// NewCommand returns the extract subcommand.
func NewCommand() *cobra.Command {
	var printSource bool

	cmd := &cobra.Command{
		Use:   "extract <workbook>",
		Short: "Extract the macro source of a workbook",
		Long: `Reads the VBA project of a workbook and writes the code of its standard
modules, whitespace collapsed, to <work>/vba_code.txt.

Use extract.module_suffix in the config to select .cls or .frm modules.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(app.OptionsFromFlags(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.OpenSession(args[0], a.Opts.WorkDir)
			if output.IsNothingToAnalyse(err) {
				a.RecordSkip("extract", args[0], err)
				if a.Opts.JSON {
					return output.PrintJSON(os.Stdout, "extract", extractOutput{Workbook: args[0], NoMacros: true})
				}
				output.Warn(os.Stderr, "%s: %v", args[0], err)
				return nil
			}
			if err != nil {
				return err
			}

			if a.Opts.JSON {
				return output.PrintJSON(os.Stdout, "extract", describe(s))
			}
			if printSource {
				fmt.Println(s.Source)
				return nil
			}
			output.Success(os.Stderr, "Extracted %s", s)
			output.Success(os.Stderr, "Wrote %s", filepath.Join(a.Opts.WorkDir, session.SourceArtifact))
			for _, m := range describe(s).Modules {
				mark := " "
				if m.Selected {
					mark = "*"
				}
				fmt.Printf("  %s %-28s %-9s %6d chars\n", mark, m.FileName, m.Kind, m.Chars)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&printSource, "print", false, "Print the assembled source instead of the module list")
	return cmd
}

func describe(s *session.Session) extractOutput {
	out := extractOutput{Workbook: s.WorkbookPath, Source: s.Source, Chars: len(s.Source)}
	if s.Project == nil {
		return out
	}
	selected := make(map[string]bool)
	for _, m := range s.Project.Select(s.Suffix) {
		selected[m.Name] = true
	}
	for _, m := range s.Project.Modules {
		out.Modules = append(out.Modules, moduleInfo{
			Name:     m.Name,
			Kind:     m.Kind.String(),
			FileName: m.FileName(),
			Chars:    len(m.Code),
			Selected: selected[m.Name],
		})
	}
	return out
}
