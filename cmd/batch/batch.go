// Package batch provides the command that analyses many workbooks at once.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/klytics/macrodoc/cmd/analyze"
	"github.com/klytics/macrodoc/internal/analysis"
	"github.com/klytics/macrodoc/internal/app"
	"github.com/klytics/macrodoc/internal/output"
	"github.com/klytics/macrodoc/internal/progress"
	"github.com/klytics/macrodoc/internal/watch"
)

// Item is the outcome for one workbook.
type Item struct {
	Workbook  string   `json:"workbook"`
	Status    string   `json:"status"` // "ok", "no-macros", "error"
	OutDir    string   `json:"outDir,omitempty"`
	Artifacts []string `json:"artifacts,omitempty"`
	Findings  int      `json:"findings"`
	Error     string   `json:"error,omitempty"`
	Duration  string   `json:"duration"`
}

// NewCommand returns the batch subcommand.
func NewCommand() *cobra.Command {
	var (
		only        []string
		local       bool
		concurrency int
		recursive   bool
	)

	cmd := &cobra.Command{
		Use:   "batch <glob-or-directory>...",
		Short: "Analyse many workbooks concurrently",
		Long: `Runs the selected analyses on every matching workbook. Each workbook
gets its own subdirectory of the output directory, named after the
workbook file plus a short hash of its path. A failing workbook is reported and the batch continues.

Examples:
  macrodoc batch 'reports/*.xlsm' --local
  macrodoc batch finance/ --recursive --only doc,security --concurrency 8`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(app.OptionsFromFlags(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			kinds, err := analyze.SelectKinds(only, local)
			if err != nil {
				return err
			}
			files, err := Collect(args, recursive)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return output.UserErrorf("no workbooks matched %v", args)
			}
			if concurrency <= 0 {
				concurrency = a.Config.Batch.Concurrency
			}

			bar := progress.New("batch", len(files))
			items, err := Run(cmd.Context(), files, concurrency, func(ctx context.Context, path string) Item {
				item := Process(ctx, a, "batch", path, kinds)
				bar.Increment(filepath.Base(path))
				return item
			})
			if err != nil {
				return err
			}

			ok, skipped, failed := 0, 0, 0
			for _, it := range items {
				switch it.Status {
				case "ok":
					ok++
				case "no-macros":
					skipped++
				default:
					failed++
				}
			}
			bar.Finish(fmt.Sprintf("%d workbooks processed", len(items)))

			if a.Opts.JSON {
				if err := output.PrintJSON(os.Stdout, "batch", items); err != nil {
					return err
				}
			} else {
				for _, it := range items {
					switch it.Status {
					case "ok":
						output.Success(os.Stdout, "%s: %d artifacts in %s (%s)", it.Workbook, len(it.Artifacts), it.OutDir, it.Duration)
					case "no-macros":
						output.Warn(os.Stdout, "%s: %s", it.Workbook, it.Error)
					default:
						output.Fail(os.Stdout, "%s: %s", it.Workbook, it.Error)
					}
				}
				fmt.Printf("\nProcessed %d workbooks. %d succeeded, %d without macros, %d failed.\n", len(items), ok, skipped, failed)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d workbooks failed", failed, len(items))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&only, "only", nil, "Run only these analyses (comma-separated)")
	cmd.Flags().BoolVar(&local, "local", false, "Run only analyses that need no text generator")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Workbooks processed in parallel (default from config: batch.concurrency)")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Descend into subdirectories of directory arguments")
	return cmd
}

// Run calls fn for every file with at most limit calls in flight and
// returns the items in input order. It stops early only when ctx ends.
func Run(ctx context.Context, files []string, limit int, fn func(context.Context, string) Item) ([]Item, error) {
	if limit <= 0 {
		limit = 1
	}
	items := make([]Item, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			items[i] = fn(gctx, f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

// Process runs kinds on one workbook, writing artifacts to its own
// subdirectory of the output directory. Failures are reported in the Item.
func Process(ctx context.Context, a *app.App, command, path string, kinds []analysis.Kind) Item {
	start := time.Now()
	item := Item{Workbook: path, Status: "ok", OutDir: app.BatchDir(a.Opts.OutDir, path)}
	done := func(status string, err error) Item {
		item.Status = status
		if err != nil {
			item.Error = err.Error()
		}
		item.Duration = time.Since(start).Round(time.Millisecond).String()
		return item
	}
	fail := func(err error) Item { return done("error", err) }

	r, err := a.Runner(item.OutDir, kinds...)
	if err != nil {
		return fail(err)
	}
	s, err := a.OpenSession(path, app.BatchDir(a.Opts.WorkDir, path))
	if output.IsNothingToAnalyse(err) {
		a.RecordSkip(command, path, err)
		return done("no-macros", err)
	}
	if err != nil {
		return fail(err)
	}

	var errs []error
	for _, kind := range kinds {
		res, err := a.Analyse(ctx, r, s, kind, command)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, art := range res.Artifacts {
			item.Artifacts = append(item.Artifacts, art.Path)
		}
		if res.Report != nil {
			item.Findings = len(res.Report.Findings())
		}
	}
	if len(errs) > 0 {
		return fail(errors.Join(errs...))
	}
	return done("ok", nil)
}

// Collect expands glob patterns and directories into a sorted list of
// distinct workbook paths.
func Collect(args []string, recursive bool) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	add := func(p string) {
		if !seen[p] && watch.IsWorkbook(p) {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err == nil && info.IsDir() {
			err := filepath.WalkDir(arg, func(p string, d os.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() && p != arg && !recursive {
					return filepath.SkipDir
				}
				if !d.IsDir() {
					add(p)
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("could not read %s: %w", arg, err)
			}
			continue
		}

		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, output.UserErrorf("invalid glob pattern %q: %v", arg, err)
		}
		for _, m := range matches {
			add(m)
		}
	}
	sort.Strings(files)
	return files, nil
}
