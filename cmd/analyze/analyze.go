// Package analyze provides one command per analysis kind and the run
// command that executes all of them.
package analyze

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/klytics/macrodoc/internal/analysis"
	"github.com/klytics/macrodoc/internal/app"
	"github.com/klytics/macrodoc/internal/output"
	"github.com/klytics/macrodoc/internal/progress"
)

var commands = []struct {
	use   string
	kind  analysis.Kind
	short string
}{
	{"doc", analysis.Documentation, "Generate documentation for the macros"},
	{"logic", analysis.Logic, "Extract the functional logic of the macros"},
	{"quality", analysis.Quality, "Review the code quality of the macros"},
	{"dataflow", analysis.DataFlow, "Describe how data moves through the macros"},
	{"refactor", analysis.Refactor, "Suggest refactorings for the macros"},
	{"security", analysis.Security, "Scan the macros for risky patterns"},
	{"graph", analysis.Graph, "Build the subroutine call graph and flow diagram"},
}

// NewCommands returns the per-kind analysis commands.
func NewCommands() []*cobra.Command {
	cmds := make([]*cobra.Command, 0, len(commands))
	for _, c := range commands {
		cmds = append(cmds, newKindCommand(c.use, c.kind, c.short))
	}
	return cmds
}

func newKindCommand(use string, kind analysis.Kind, short string) *cobra.Command {
	long := fmt.Sprintf("%s.\n\nWrites %s to the output directory.", short, strings.Join(kind.Artifacts(), ", "))
	if kind.UsesModel() {
		long += "\nThe macro source is sent to the configured text generator."
	}

	return &cobra.Command{
		Use:   use + " <workbook>",
		Short: short,
		Long:  long,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(app.OptionsFromFlags(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			r, err := a.Runner(a.Opts.OutDir, kind)
			if err != nil {
				return err
			}

			s, err := a.OpenSession(args[0], a.Opts.WorkDir)
			if output.IsNothingToAnalyse(err) {
				a.RecordSkip(use, args[0], err)
				return reportNothing(a.Opts.JSON, use, args[0], err)
			}
			if err != nil {
				return err
			}

			var spin *progress.Spinner
			if kind.UsesModel() {
				spin = progress.NewSpinner(fmt.Sprintf("%s: waiting for %s", kind, a.Opts.Provider))
				spin.Start()
			}
			res, err := a.Analyse(cmd.Context(), r, s, kind, use)
			if spin != nil {
				spin.Stop(fmt.Sprintf("%s done", kind))
			}
			if err != nil {
				return err
			}

			if a.Opts.JSON {
				return output.PrintJSON(os.Stdout, use, res)
			}
			return Render(os.Stdout, os.Stderr, res)
		},
	}
}

type nothingOutput struct {
	Workbook string `json:"workbook"`
	NoMacros bool   `json:"noMacros"`
	Reason   string `json:"reason"`
}

// reportNothing tells the user a workbook has no macro code. This is not a
// failure.
func reportNothing(jsonOut bool, command, workbook string, reason error) error {
	if jsonOut {
		return output.PrintJSON(os.Stdout, command, nothingOutput{Workbook: workbook, NoMacros: true, Reason: reason.Error()})
	}
	output.Warn(os.Stderr, "%s: %v", workbook, reason)
	return nil
}

// Render prints a result for the terminal: the formatted report on out,
// status lines on status.
func Render(out, status io.Writer, res *analysis.Result) error {
	output.Heading(out, res.Kind.Title())

	switch res.Kind {
	case analysis.Graph:
		g := res.Graph
		fmt.Fprintf(out, "%d subroutines, %d calls\n", len(g.Nodes), len(g.Links))
		if roots := g.Roots(); len(roots) > 0 {
			fmt.Fprintf(out, "Entry points: %s\n", strings.Join(roots, ", "))
		}
		for _, d := range res.Diagnostics {
			output.Warn(status, "%s", d)
		}
	default:
		body := res.Display
		if !strings.HasSuffix(body, "\n") {
			body += "\n"
		}
		if err := output.Show(out, body); err != nil {
			return err
		}
	}

	for _, art := range res.Artifacts {
		if res.Cached {
			output.Success(status, "Wrote %s (cached result)", art.Path)
		} else {
			output.Success(status, "Wrote %s", art.Path)
		}
	}
	return nil
}
