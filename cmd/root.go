// Package cmd contains all CLI commands for the macrodoc binary.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/klytics/macrodoc/cmd/analyze"
	cmdaudit "github.com/klytics/macrodoc/cmd/audit"
	"github.com/klytics/macrodoc/cmd/batch"
	cmdcache "github.com/klytics/macrodoc/cmd/cache"
	"github.com/klytics/macrodoc/cmd/completion"
	cmdconfig "github.com/klytics/macrodoc/cmd/config"
	"github.com/klytics/macrodoc/cmd/doctor"
	"github.com/klytics/macrodoc/cmd/extract"
	"github.com/klytics/macrodoc/cmd/serve"
	cmdshell "github.com/klytics/macrodoc/cmd/shell"
	"github.com/klytics/macrodoc/cmd/version"
	cmdwatch "github.com/klytics/macrodoc/cmd/watch"
	"github.com/klytics/macrodoc/internal/output"
)

var (
	jsonOutput bool
	verbose    bool
	modelName  string
	provider   string
	noColor    bool
	outDir     string
	workDir    string
	noCache    bool
)

// NewRootCommand creates and returns the root cobra command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "macrodoc",
		Short: "Document, audit and visualize Excel VBA macros",
		Long: `macrodoc extracts the VBA macros of a workbook and analyses them.

Model-backed analyses (doc, logic, quality, dataflow, refactor) send the
macro source to a text generator. The security scan and the call graph run
locally.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
			if jsonOutput {
				os.Setenv("MACRODOC_JSON", "true")
			}
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&jsonOutput, "json", false, "Output as machine-readable JSON")
	pf.BoolVar(&verbose, "verbose", false, "Enable debug logging")
	pf.StringVar(&modelName, "model", os.Getenv("MACRODOC_MODEL"), "Model name override")
	pf.StringVar(&provider, "provider", os.Getenv("MACRODOC_PROVIDER"), "Text generator: groq | anthropic | openai | ollama")
	pf.BoolVar(&noColor, "no-color", false, "Disable ANSI color output")
	pf.StringVar(&outDir, "out", "", "Directory for analysis artifacts (default from config: outputs)")
	pf.StringVar(&workDir, "work", "", "Directory for the extracted macro source (default from config: vba)")
	pf.BoolVar(&noCache, "no-cache", false, "Always call the model, ignoring cached results")

	rootCmd.AddCommand(extract.NewCommand())
	for _, c := range analyze.NewCommands() {
		rootCmd.AddCommand(c)
	}
	rootCmd.AddCommand(analyze.NewRunCommand())
	rootCmd.AddCommand(batch.NewCommand())
	rootCmd.AddCommand(cmdwatch.NewCommand())
	rootCmd.AddCommand(serve.NewCommand())
	rootCmd.AddCommand(cmdshell.NewCommand())
	rootCmd.AddCommand(cmdcache.NewCommand())
	rootCmd.AddCommand(cmdaudit.NewCommand())
	rootCmd.AddCommand(cmdconfig.NewCommand())
	rootCmd.AddCommand(doctor.NewCommand())
	rootCmd.AddCommand(completion.NewCommand(rootCmd))
	rootCmd.AddCommand(version.NewCommand())

	return rootCmd
}

// Execute runs the root command and exits with the code matching the error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCommand()
	cmd, err := rootCmd.ExecuteContextC(ctx)
	stop()
	if err == nil {
		return
	}
	if jsonOutput {
		output.PrintJSONError(os.Stdout, cmd.Name(), err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
	os.Exit(output.ExitCode(err))
}
