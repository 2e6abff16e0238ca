// Package doctor provides the "macrodoc doctor" command for checking the
// local setup.
package doctor

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klytics/macrodoc/internal/ai"
	"github.com/klytics/macrodoc/internal/cache"
	"github.com/klytics/macrodoc/internal/config"
	"github.com/klytics/macrodoc/internal/output"
	"github.com/klytics/macrodoc/internal/scan"
)

// Check represents a single health check result.
type Check struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "ok", "warning", "error"
	Message string `json:"message"`
}

// NewCommand creates the "doctor" command.
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and dependencies",
		Long:  "Run diagnostic checks to verify macrodoc is ready to analyse workbooks.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			config.ExportAPIKeys()
			checks := RunChecks(cfg)

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return output.PrintJSON(os.Stdout, "doctor", checks)
			}
			if errCount := Print(os.Stdout, checks); errCount > 0 {
				return fmt.Errorf("%d check(s) failed", errCount)
			}
			return nil
		},
	}
}

// Print writes checks as a report and returns the number of errors.
func Print(w io.Writer, checks []Check) int {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Fprintln(w, "macrodoc doctor")
	fmt.Fprintln(w, "===============")
	fmt.Fprintln(w)

	okCount, warnCount, errCount := 0, 0, 0
	for _, c := range checks {
		var icon string
		switch c.Status {
		case "ok":
			icon = green("✓")
			okCount++
		case "warning":
			icon = yellow("!")
			warnCount++
		default:
			icon = red("✗")
			errCount++
		}
		fmt.Fprintf(w, "  %s %s: %s\n", icon, c.Name, c.Message)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %d passed, %d warnings, %d errors\n", okCount, warnCount, errCount)
	return errCount
}

// RunChecks inspects the runtime, the config directory, the provider
// credentials, the result cache and the scan rules.
func RunChecks(cfg *config.Config) []Check {
	checks := []Check{{
		Name:    "Go Runtime",
		Status:  "ok",
		Message: fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
	}}

	dir := config.Dir()
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		checks = append(checks, Check{"Config Directory", "ok", dir})
	} else {
		checks = append(checks, Check{"Config Directory", "warning", dir + " not found, run 'macrodoc config init'"})
	}
	if _, err := os.Stat(config.ConfigPath()); err == nil {
		checks = append(checks, Check{"Config File", "ok", config.ConfigPath()})
	} else {
		checks = append(checks, Check{"Config File", "warning", "not found, using defaults"})
	}

	checks = append(checks, providerCheck(cfg.Provider))

	if cfg.Cache.Enabled {
		if c, err := cache.Open(cfg.Cache.Path); err != nil {
			checks = append(checks, Check{"Result Cache", "error", err.Error()})
		} else {
			msg := cfg.Cache.Path
			if st, err := c.Stats(); err == nil {
				msg = fmt.Sprintf("%s (%d entries)", cfg.Cache.Path, st.Entries)
			}
			c.Close()
			checks = append(checks, Check{"Result Cache", "ok", msg})
		}
	} else {
		checks = append(checks, Check{"Result Cache", "ok", "disabled"})
	}

	if cfg.Scan.Rules != "" {
		if rs, err := scan.LoadRulesFromFile(cfg.Scan.Rules); err != nil {
			checks = append(checks, Check{"Scan Rules", "error", err.Error()})
		} else {
			checks = append(checks, Check{"Scan Rules", "ok", fmt.Sprintf("%s (%d rules)", filepath.Base(cfg.Scan.Rules), len(rs.Risky))})
		}
	} else {
		checks = append(checks, Check{"Scan Rules", "ok", fmt.Sprintf("built-in (%d rules)", len(scan.BuiltinRules().Risky))})
	}

	for _, issue := range config.Validate() {
		switch issue.Key {
		case "provider", "scan.rules":
			// covered above
		default:
			if issue.Severity == "error" || issue.Severity == "warning" {
				checks = append(checks, Check{"Setting " + issue.Key, issue.Severity, issue.Message})
			}
		}
	}
	return checks
}

func providerCheck(provider string) Check {
	name := fmt.Sprintf("Text Generator (%s)", provider)
	if provider == "ollama" {
		if _, err := exec.LookPath("ollama"); err == nil {
			return Check{name, "ok", "ollama found in PATH"}
		}
		return Check{name, "warning", "ollama not found in PATH, the server must be reachable at OLLAMA_HOST"}
	}
	env := ai.KeyEnv(provider)
	if env == "" {
		return Check{name, "error", "unknown provider"}
	}
	if config.APIKey(provider) != "" {
		return Check{name, "ok", "API key configured"}
	}
	return Check{name, "warning", fmt.Sprintf("no API key, set %s or api_keys.%s; security and graph still work", env, provider)}
}
