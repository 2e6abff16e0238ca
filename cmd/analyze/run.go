package analyze

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/klytics/macrodoc/internal/analysis"
	"github.com/klytics/macrodoc/internal/app"
	"github.com/klytics/macrodoc/internal/output"
	"github.com/klytics/macrodoc/internal/progress"
)

type runOutput struct {
	Workbook string             `json:"workbook"`
	Results  []*analysis.Result `json:"results"`
	Failed   map[string]string  `json:"failed,omitempty"`
}

// NewRunCommand returns the run subcommand.
func NewRunCommand() *cobra.Command {
	var (
		only  []string
		local bool
	)

	cmd := &cobra.Command{
		Use:   "run <workbook>",
		Short: "Run every analysis on a workbook",
		Long: `Extracts the macros once and runs every analysis against them, writing
all artifacts to the output directory. A failed analysis does not stop the
others; failures are reported at the end.

Use --local to run only the security scan and the call graph, which need no
text generator.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds, err := SelectKinds(only, local)
			if err != nil {
				return err
			}

			a, err := app.New(app.OptionsFromFlags(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			r, err := a.Runner(a.Opts.OutDir, kinds...)
			if err != nil {
				return err
			}

			s, err := a.OpenSession(args[0], a.Opts.WorkDir)
			if output.IsNothingToAnalyse(err) {
				a.RecordSkip("run", args[0], err)
				return reportNothing(a.Opts.JSON, "run", args[0], err)
			}
			if err != nil {
				return err
			}

			bar := progress.New(s.DisplayName, len(kinds))
			out := runOutput{Workbook: s.WorkbookPath, Failed: map[string]string{}}
			var errs []error
			for _, kind := range kinds {
				res, err := a.Analyse(cmd.Context(), r, s, kind, "run")
				bar.Increment(string(kind))
				if err != nil {
					errs = append(errs, err)
					out.Failed[string(kind)] = err.Error()
					continue
				}
				out.Results = append(out.Results, res)
			}
			bar.Finish(fmt.Sprintf("%d/%d analyses completed", len(out.Results), len(kinds)))

			if a.Opts.JSON {
				if len(errs) > 0 {
					output.PrintJSON(os.Stdout, "run", out)
					return errors.Join(errs...)
				}
				return output.PrintJSON(os.Stdout, "run", out)
			}

			for _, res := range out.Results {
				if err := Render(os.Stdout, os.Stderr, res); err != nil {
					return err
				}
				fmt.Println()
			}
			for _, kind := range kinds {
				if msg, ok := out.Failed[string(kind)]; ok {
					output.Fail(os.Stderr, "%s: %s", kind, msg)
				}
			}
			return errors.Join(errs...)
		},
	}

	cmd.Flags().StringSliceVar(&only, "only", nil, "Run only these analyses (comma-separated)")
	cmd.Flags().BoolVar(&local, "local", false, "Run only analyses that need no text generator")
	return cmd
}

// SelectKinds resolves the --only and --local flags to a list of kinds in
// run order.
func SelectKinds(only []string, local bool) ([]analysis.Kind, error) {
	want := make(map[analysis.Kind]bool)
	for _, name := range only {
		k, err := analysis.ParseKind(name)
		if err != nil {
			return nil, output.UserErrorf("--only: %v", err)
		}
		want[k] = true
	}

	var kinds []analysis.Kind
	for _, k := range analysis.AllKinds {
		if len(want) > 0 && !want[k] {
			continue
		}
		if local && k.UsesModel() {
			continue
		}
		kinds = append(kinds, k)
	}
	if len(kinds) == 0 {
		return nil, output.UserErrorf("no analyses selected")
	}
	return kinds, nil
}
