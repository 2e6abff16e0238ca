// Package completion provides shell completion generation commands.
package completion

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// NewCommand returns the completion command.
func NewCommand(rootCmd *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completions",
		Long: `Generate shell completion scripts for macrodoc.

Install instructions:
  Bash:       macrodoc completion bash > /etc/bash_completion.d/macrodoc
  Zsh:        macrodoc completion zsh > ~/.zsh/completions/_macrodoc
  Fish:       macrodoc completion fish > ~/.config/fish/completions/macrodoc.fish
  PowerShell: macrodoc completion powershell >> $PROFILE`,
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		Args:      cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return Generate(rootCmd, args[0], os.Stdout)
		},
	}
}

// Generate writes the completion script for shell to w.
func Generate(root *cobra.Command, shell string, w io.Writer) error {
	switch shell {
	case "bash":
		return root.GenBashCompletionV2(w, true)
	case "zsh":
		return root.GenZshCompletion(w)
	case "fish":
		return root.GenFishCompletion(w, true)
	case "powershell":
		return root.GenPowerShellCompletionWithDesc(w)
	default:
		return fmt.Errorf("unsupported shell: %s (supported: bash, zsh, fish, powershell)", shell)
	}
}
