// Package config provides CLI commands for configuration management.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/klytics/macrodoc/internal/config"
	"github.com/klytics/macrodoc/internal/output"
)

// NewCommand returns the config command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage macrodoc configuration",
		Long: `Interactive setup, view, and modify settings stored in
~/.macrodoc/config.yaml. Every key can also be set with a MACRODOC_*
environment variable, e.g. MACRODOC_CHUNK_SIZE=4000.`,
	}

	cmd.AddCommand(newInitCommand())
	cmd.AddCommand(newShowCommand())
	cmd.AddCommand(newSetCommand())
	cmd.AddCommand(newGetCommand())
	cmd.AddCommand(newResetCommand())
	cmd.AddCommand(newPathCommand())
	cmd.AddCommand(newValidateCommand())
	cmd.AddCommand(newEnvCommand())
	return cmd
}

func newInitCommand() *cobra.Command {
	var noInteractive bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactive setup wizard",
		RunE: func(cmd *cobra.Command, args []string) error {
			config.Load()
			if noInteractive {
				if err := config.WizardNonInteractive(); err != nil {
					return err
				}
				output.Success(os.Stdout, "Wrote %s", config.ConfigPath())
				return nil
			}
			return config.Wizard(os.Stdin, os.Stdout)
		},
	}
	cmd.Flags().BoolVar(&noInteractive, "no-interactive", false, "Skip prompts, use defaults")
	return cmd
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(); err != nil {
				return err
			}
			if jsonFlag, _ := cmd.Flags().GetBool("json"); jsonFlag {
				return output.PrintJSON(os.Stdout, "config show", config.ToEnv())
			}
			fmt.Print(config.ShowConfig())
			return nil
		},
	}
}

func newSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Example: `  macrodoc config set provider anthropic
  macrodoc config set api_keys.groq gsk_...
  macrodoc config set extract.module_suffix .cls`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			config.Load()
			if err := config.Set(args[0], args[1]); err != nil {
				return err
			}
			output.Success(os.Stdout, "Set %s = %s", args[0], mask(args[0], args[1]))
			return nil
		},
	}
}

func newGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config.Load()
			val := config.Get(args[0])
			if val == "" {
				fmt.Printf("%s: (not set)\n", args[0])
			} else {
				fmt.Printf("%s: %s\n", args[0], mask(args[0], val))
			}
			return nil
		},
	}
}

// mask hides all but the prefix of API keys.
func mask(key, value string) string {
	if !strings.HasPrefix(key, "api_keys.") {
		return value
	}
	return value[:min(6, len(value))] + "****"
}

func newResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset configuration to defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ResetConfig(); err != nil {
				return err
			}
			output.Success(os.Stdout, "Configuration reset to defaults")
			return nil
		},
	}
}

func newPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(config.ConfigPath())
		},
	}
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			config.Load()
			issues := config.Validate()

			if jsonFlag, _ := cmd.Flags().GetBool("json"); jsonFlag {
				if issues == nil {
					issues = []config.ConfigIssue{}
				}
				return output.PrintJSON(os.Stdout, "config validate", issues)
			}

			errs, warnings := 0, 0
			for _, issue := range issues {
				switch issue.Severity {
				case "error":
					errs++
				case "warning":
					warnings++
				}
			}
			if errs == 0 && warnings == 0 {
				output.Success(os.Stdout, "Configuration is valid")
				return nil
			}

			fmt.Printf("Config validation: %d errors, %d warnings\n\n", errs, warnings)
			for _, issue := range issues {
				switch issue.Severity {
				case "error":
					output.Fail(os.Stdout, "%s: %s", issue.Key, issue.Message)
				case "warning":
					output.Warn(os.Stdout, "%s: %s", issue.Key, issue.Message)
				default:
					output.Success(os.Stdout, "%s: %s", issue.Key, issue.Message)
				}
				if issue.Fix != "" {
					fmt.Printf("   Fix: %s\n", issue.Fix)
				}
			}
			if errs > 0 {
				return output.UserErrorf("configuration has %d error(s)", errs)
			}
			return nil
		},
	}
}

func newEnvCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Export configuration as environment variables",
		RunE: func(cmd *cobra.Command, args []string) error {
			config.Load()
			env := config.ToEnv()

			if jsonFlag, _ := cmd.Flags().GetBool("json"); jsonFlag {
				return output.PrintJSON(os.Stdout, "config env", env)
			}

			keys := make([]string, 0, len(env))
			for k := range env {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("export %s=%q\n", k, env[k])
			}
			fmt.Println("# Add these to your ~/.zshrc or ~/.bashrc")
			return nil
		},
	}
}
