// Package audit provides the "macrodoc audit" commands for the run log.
package audit

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	auditpkg "github.com/klytics/macrodoc/internal/audit"
	"github.com/klytics/macrodoc/internal/config"
	"github.com/klytics/macrodoc/internal/output"
)

// NewCommand creates the "audit" command with all subcommands.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "View and manage the analysis log",
		Long: `Every analysis is recorded in a JSON-lines log with the workbook, the
model, whether the result came from the cache, and the exit code.`,
	}

	cmd.AddCommand(newLogCmd())
	cmd.AddCommand(newClearCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newStatsCmd())
	return cmd
}

func logPath() (string, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	return cfg.Audit.Path, nil
}

func newLogCmd() *cobra.Command {
	var (
		f     auditpkg.Filter
		since string
	)

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := logPath()
			if err != nil {
				return err
			}
			entries, err := auditpkg.ReadEntries(path)
			if err != nil {
				return err
			}

			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return output.UserErrorf("invalid --since date %q (use YYYY-MM-DD)", since)
				}
				f.Since = t
			}
			filtered := f.Apply(entries)

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				if filtered == nil {
					filtered = []auditpkg.Entry{}
				}
				return output.PrintJSON(os.Stdout, "audit log", filtered)
			}

			if len(filtered) == 0 {
				fmt.Println("No audit log entries found.")
				return nil
			}
			fmt.Printf("Audit Log: %d entries\n", len(filtered))
			fmt.Printf("File: %s\n\n", path)
			printEntries(os.Stdout, filtered)
			return nil
		},
	}

	cmd.Flags().IntVar(&f.Last, "last", 20, "Show last N entries")
	cmd.Flags().StringVar(&f.Command, "command", "", "Filter by command name")
	cmd.Flags().StringVar(&f.Workbook, "workbook", "", "Filter by workbook path")
	cmd.Flags().StringVar(&f.Kind, "kind", "", "Filter by analysis kind")
	cmd.Flags().BoolVar(&f.Failed, "failed", false, "Show only failed runs")
	cmd.Flags().StringVar(&since, "since", "", "Filter entries since date (YYYY-MM-DD)")
	return cmd
}

func printEntries(w io.Writer, entries []auditpkg.Entry) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "TIMESTAMP\tCOMMAND\tKIND\tWORKBOOK\tDURATION\tCACHED\tEXIT\n")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			e.Timestamp.Local().Format("2006-01-02 15:04:05"),
			e.Command, dash(e.Kind), dash(e.Workbook),
			formatDuration(e.DurationMs), yesNo(e.Cached), e.ExitCode)
	}
	tw.Flush()
}

func formatDuration(ms int64) string {
	if ms >= 1000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	return fmt.Sprintf("%dms", ms)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear the analysis log",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := logPath()
			if err != nil {
				return err
			}
			if err := auditpkg.Clear(path); err != nil {
				return err
			}
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return output.PrintJSON(os.Stdout, "audit clear", map[string]string{"cleared": path})
			}
			output.Success(os.Stdout, "Audit log cleared: %s", path)
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show log path and size",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			path := cfg.Audit.Path
			size := auditpkg.LogSize(path)
			entries, _ := auditpkg.ReadEntries(path)

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return output.PrintJSON(os.Stdout, "audit status", map[string]any{
					"path":    path,
					"enabled": cfg.Audit.Enabled,
					"size":    size,
					"entries": len(entries),
				})
			}

			fmt.Printf("Audit log: %s\n", path)
			fmt.Printf("Enabled:   %v\n", cfg.Audit.Enabled)
			if size == 0 {
				fmt.Println("Size:      empty (no entries)")
			} else {
				fmt.Printf("Size:      %s\n", formatSize(size))
			}
			fmt.Printf("Entries:   %d\n", len(entries))
			return nil
		},
	}
}

func newStatsCmd() *cobra.Command {
	var since string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarise logged runs by analysis and command",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := logPath()
			if err != nil {
				return err
			}
			entries, err := auditpkg.ReadEntries(path)
			if err != nil {
				return err
			}
			var f auditpkg.Filter
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return output.UserErrorf("invalid --since date %q (use YYYY-MM-DD)", since)
				}
				f.Since = t
			}
			st := auditpkg.Summarize(f.Apply(entries))

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return output.PrintJSON(os.Stdout, "audit stats", st)
			}
			fmt.Printf("Runs:       %d (%d failed, %d from cache)\n", st.Runs, st.Failures, st.CacheHits)
			fmt.Printf("Workbooks:  %d\n", st.Workbooks)
			fmt.Printf("Average:    %s\n", formatDuration(int64(st.AvgDurationMs)))
			printCounts("By analysis", st.ByKind)
			printCounts("By command", st.ByCommand)
			return nil
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "Only count entries since date (YYYY-MM-DD)")
	return cmd
}

func printCounts(title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	fmt.Printf("\n%s:\n", title)
	for _, k := range keys {
		fmt.Printf("  %-14s %d\n", k, counts[k])
	}
}

func formatSize(bytes int64) string {
	if bytes < 1024 {
		return fmt.Sprintf("%d B", bytes)
	}
	if bytes < 1024*1024 {
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	}
	return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
}
