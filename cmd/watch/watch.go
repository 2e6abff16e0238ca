// Package watch provides the "macrodoc watch" commands that re-analyse
// workbooks as they are saved.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/klytics/macrodoc/cmd/analyze"
	"github.com/klytics/macrodoc/cmd/batch"
	"github.com/klytics/macrodoc/internal/app"
	"github.com/klytics/macrodoc/internal/config"
	"github.com/klytics/macrodoc/internal/output"
	w "github.com/klytics/macrodoc/internal/watch"
)

// NewCommand creates the "watch" command with subcommands.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-analyse workbooks whenever they are saved",
		Long: `Watch directories for new or modified macro-enabled workbooks and run
the selected analyses on each one once it has finished saving.

Example:
  macrodoc watch start ./models --local
  macrodoc watch status
  macrodoc watch stop`,
	}

	cmd.AddCommand(newStartCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newStatusCmd())
	return cmd
}

func newStartCmd() *cobra.Command {
	var (
		only      []string
		local     bool
		recursive bool
		debounce  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "start <directory> [directory...]",
		Short: "Start watching directories for workbook changes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds, err := analyze.SelectKinds(only, local)
			if err != nil {
				return err
			}
			a, err := app.New(app.OptionsFromFlags(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			names := make([]string, len(kinds))
			for i, k := range kinds {
				names[i] = string(k)
			}
			cfg := w.Config{Directories: args, Recursive: recursive, Debounce: debounce, Analyses: names}

			watcher, err := w.New(cfg, func(ctx context.Context, path string) error {
				item := batch.Process(ctx, a, "watch", path, kinds)
				switch item.Status {
				case "ok":
					output.Success(os.Stdout, "%s: %d artifacts in %s (%s)", path, len(item.Artifacts), item.OutDir, item.Duration)
				case "no-macros":
					output.Warn(os.Stdout, "%s: %s", path, item.Error)
				default:
					output.Fail(os.Stdout, "%s: %s", path, item.Error)
					return errors.New(item.Error)
				}
				return nil
			})
			if err != nil {
				return err
			}
			if a.Opts.Verbose {
				watcher.Logger = log.New(os.Stderr, "[watch] ", log.LstdFlags)
			}

			dir := config.Dir()
			if err := w.WritePIDFile(dir); err != nil {
				output.Warn(os.Stderr, "could not write PID file: %v", err)
			}
			defer w.RemovePIDFile(dir)
			if err := w.SaveConfig(dir, watcher.Config); err != nil {
				output.Warn(os.Stderr, "could not save watcher state: %v", err)
			}

			fmt.Printf("Watching %d directory(ies), running %s\n", len(args), strings.Join(names, ", "))
			fmt.Println("Press Ctrl+C to stop")

			err = watcher.Start(cmd.Context())
			st := watcher.GetStatus()
			fmt.Printf("\nStopped. %d workbooks processed, %d errors.\n", st.EventCount, st.Errors)
			return err
		},
	}

	cmd.Flags().StringSliceVar(&only, "only", nil, "Run only these analyses (comma-separated)")
	cmd.Flags().BoolVar(&local, "local", false, "Run only analyses that need no text generator")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Watch directories recursively")
	cmd.Flags().DurationVar(&debounce, "debounce", w.DefaultDebounce, "Quiet period before a changed workbook is processed")
	return cmd
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running watcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := config.Dir()
			pid, err := w.ReadPIDFile(dir)
			if err != nil {
				return output.UserErrorf("no watcher running (PID file not found)")
			}

			process, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("could not find process %d: %w", pid, err)
			}
			if err := process.Signal(syscall.SIGTERM); err != nil {
				w.RemovePIDFile(dir)
				return fmt.Errorf("could not stop watcher (PID %d): %w", pid, err)
			}
			w.RemovePIDFile(dir)

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return output.PrintJSON(os.Stdout, "watch stop", map[string]any{"stopped": true, "pid": pid})
			}
			fmt.Printf("Stopped watcher (PID %d)\n", pid)
			return nil
		},
	}
}

type statusOutput struct {
	Running bool      `json:"running"`
	PID     int       `json:"pid,omitempty"`
	Config  *w.Config `json:"config,omitempty"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a watcher is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := config.Dir()
			st := statusOutput{}

			if pid, err := w.ReadPIDFile(dir); err == nil {
				// Signal 0 only checks that the process exists.
				if p, err := os.FindProcess(pid); err == nil && p.Signal(syscall.Signal(0)) == nil {
					st.Running = true
					st.PID = pid
					st.Config, _ = w.LoadConfig(dir)
				} else {
					w.RemovePIDFile(dir)
				}
			}

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return output.PrintJSON(os.Stdout, "watch status", st)
			}
			if !st.Running {
				fmt.Println("Watcher is not running")
				return nil
			}
			fmt.Printf("Watcher is running (PID %d)\n", st.PID)
			if c := st.Config; c != nil {
				fmt.Printf("  Directories: %s\n", strings.Join(c.Directories, ", "))
				fmt.Printf("  Analyses:    %s\n", strings.Join(c.Analyses, ", "))
				fmt.Printf("  Recursive:   %v\n", c.Recursive)
				fmt.Printf("  Debounce:    %s\n", c.Debounce)
			}
			return nil
		},
	}
}
