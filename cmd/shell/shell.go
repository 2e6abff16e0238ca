// Package shell provides the "macrodoc shell" interactive command.
package shell

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/klytics/macrodoc/internal/analysis"
	"github.com/klytics/macrodoc/internal/app"
	"github.com/klytics/macrodoc/internal/config"
	"github.com/klytics/macrodoc/internal/session"
	shellpkg "github.com/klytics/macrodoc/internal/shell"
)

// NewCommand creates the "shell" command.
func NewCommand() *cobra.Command {
	var evalCmd string

	cmd := &cobra.Command{
		Use:   "shell [workbook]",
		Short: "Start an interactive macrodoc shell",
		Long: `Start an interactive session. A workbook is extracted once when it is
opened and every analysis after that reuses the extracted source.

Commands: open <workbook>, doc, logic, quality, dataflow, refactor,
security, graph, status, history, help, exit.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(app.OptionsFromFlags(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			open := func(path string) (*session.Session, error) {
				return a.OpenSession(path, a.Opts.WorkDir)
			}
			sh := shellpkg.New(open, &analyzer{app: a}, os.Stdout, config.Dir())

			if len(args) == 1 {
				if _, err := sh.Exec(cmd.Context(), "open "+args[0]); err != nil {
					return err
				}
			}
			if evalCmd != "" {
				_, err := sh.Exec(cmd.Context(), evalCmd)
				return err
			}
			return sh.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&evalCmd, "eval", "", "Run a single command and exit")
	return cmd
}

// analyzer runs analyses for the shell, creating the text generator only
// when a command first needs it.
type analyzer struct {
	app   *app.App
	local *analysis.Runner
	model *analysis.Runner
}

func (z *analyzer) Run(ctx context.Context, s *session.Session, kind analysis.Kind) (*analysis.Result, error) {
	r, err := z.runner(kind)
	if err != nil {
		return nil, err
	}
	return z.app.Analyse(ctx, r, s, kind, "shell")
}

func (z *analyzer) runner(kind analysis.Kind) (*analysis.Runner, error) {
	slot := &z.local
	if kind.UsesModel() {
		slot = &z.model
	}
	if *slot == nil {
		r, err := z.app.Runner(z.app.Opts.OutDir, kind)
		if err != nil {
			return nil, err
		}
		*slot = r
	}
	return *slot, nil
}
