// Package cache provides the "macrodoc cache" commands for the result cache.
package cache

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	cachepkg "github.com/klytics/macrodoc/internal/cache"
	"github.com/klytics/macrodoc/internal/config"
	"github.com/klytics/macrodoc/internal/output"
)

// NewCommand creates the "cache" command with subcommands.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear cached model results",
		Long: `Generated analyses are cached by analysis kind, model and macro source,
so re-running an unchanged workbook does not call the model again.
Use --no-cache on any command to bypass it.`,
	}
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newClearCmd())
	return cmd
}

func open() (*cachepkg.Cache, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return cachepkg.Open(cfg.Cache.Path)
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache location and contents",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := open()
			if err != nil {
				return err
			}
			defer c.Close()

			st, err := c.Stats()
			if err != nil {
				return err
			}
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return output.PrintJSON(os.Stdout, "cache stats", st)
			}

			fmt.Printf("Cache:   %s\n", st.Path)
			fmt.Printf("Entries: %d\n", st.Entries)
			fmt.Printf("Content: %d bytes\n", st.Bytes)
			kinds := make([]string, 0, len(st.ByKind))
			for k := range st.ByKind {
				kinds = append(kinds, k)
			}
			sort.Strings(kinds)
			for _, k := range kinds {
				fmt.Printf("  %-14s %d\n", k, st.ByKind[k])
			}
			return nil
		},
	}
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every cached result",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := open()
			if err != nil {
				return err
			}
			defer c.Close()

			n, err := c.Clear()
			if err != nil {
				return err
			}
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return output.PrintJSON(os.Stdout, "cache clear", map[string]int{"removed": n})
			}
			output.Success(os.Stdout, "Removed %d cached result(s)", n)
			return nil
		},
	}
}
