// Package version provides the version command for the macrodoc CLI.
package version

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

// NewCommand returns the version subcommand.
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the macrodoc version",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonFlag, _ := cmd.Flags().GetBool("json"); jsonFlag {
				return json.NewEncoder(os.Stdout).Encode(map[string]string{
					"version": Version,
					"go":      runtime.Version(),
				})
			}
			fmt.Printf("macrodoc %s (%s %s/%s)\n", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
			return nil
		},
	}
}
