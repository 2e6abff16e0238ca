// Package serve provides the command that serves a workbook's call graph
// and security report over HTTP.
package serve

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/klytics/macrodoc/internal/app"
	"github.com/klytics/macrodoc/internal/callgraph"
	"github.com/klytics/macrodoc/internal/output"
	"github.com/klytics/macrodoc/internal/server"
)

// NewCommand creates the "serve" command.
func NewCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve <workbook>",
		Short: "Browse the call graph and security report in a web browser",
		Long: `Extracts the macros once and serves the interactive flow diagram at /,
with the graph, security report and diagnostics as JSON under /api.
Runs locally and needs no text generator.

Example:
  macrodoc serve Budget.xlsm --addr 127.0.0.1:9000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(app.OptionsFromFlags(cmd))
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.OpenSession(args[0], a.Opts.WorkDir)
			if output.IsNothingToAnalyse(err) {
				a.RecordSkip("serve", args[0], err)
				return output.UserErrorf("%s: %v", args[0], err)
			}
			if err != nil {
				return err
			}

			srv, err := server.New(s, a.Scanner(), &callgraph.Extractor{Lexer: callgraph.RegexLexer{}})
			if err != nil {
				return err
			}
			srv.Logger = log.New(os.Stderr, "[serve] ", log.LstdFlags)

			if addr == "" {
				addr = a.Config.Serve.Addr
			}
			output.Success(os.Stderr, "Serving %s at http://%s (Ctrl+C to stop)", s, addr)
			return srv.Serve(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config: serve.addr)")
	return cmd
}
