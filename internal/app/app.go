// Package app wires configuration, flags and the analysis packages together
// for the commands. It owns the resources a command opens (the result cache,
// the audit log) and releases them in Close.
package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/zeebo/xxh3"

	"github.com/klytics/macrodoc/internal/ai"
	"github.com/klytics/macrodoc/internal/analysis"
	"github.com/klytics/macrodoc/internal/artifact"
	"github.com/klytics/macrodoc/internal/audit"
	"github.com/klytics/macrodoc/internal/cache"
	"github.com/klytics/macrodoc/internal/callgraph"
	"github.com/klytics/macrodoc/internal/config"
	"github.com/klytics/macrodoc/internal/format"
	"github.com/klytics/macrodoc/internal/output"
	"github.com/klytics/macrodoc/internal/scan"
	"github.com/klytics/macrodoc/internal/session"
)

// Options are the global flags. Empty fields fall back to the config file.
type Options struct {
	Provider string
	Model    string
	OutDir   string
	WorkDir  string
	NoCache  bool
	Verbose  bool
	JSON     bool
}

// OptionsFromFlags reads the persistent root flags of cmd.
func OptionsFromFlags(cmd *cobra.Command) Options {
	var o Options
	o.Provider, _ = cmd.Flags().GetString("provider")
	o.Model, _ = cmd.Flags().GetString("model")
	o.OutDir, _ = cmd.Flags().GetString("out")
	o.WorkDir, _ = cmd.Flags().GetString("work")
	o.NoCache, _ = cmd.Flags().GetBool("no-cache")
	o.Verbose, _ = cmd.Flags().GetBool("verbose")
	o.JSON, _ = cmd.Flags().GetBool("json")
	return o
}

// App is the per-invocation context shared by the commands.
type App struct {
	Config *config.Config
	Opts   Options
	Logger *log.Logger
	Audit  *audit.Logger

	scanner *scan.Scanner

	mu        sync.Mutex
	cache     *cache.Cache
	cacheOpen bool
}

// New loads the configuration and applies opts on top of it.
func New(opts Options) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("could not load config: %w", err)
	}
	config.ExportAPIKeys()

	if opts.Provider == "" {
		opts.Provider = cfg.Provider
	}
	if opts.Model == "" {
		opts.Model = cfg.Model
	}
	if opts.OutDir == "" {
		opts.OutDir = cfg.OutputDir
	}
	if opts.WorkDir == "" {
		opts.WorkDir = cfg.WorkDir
	}

	a := &App{
		Config: cfg,
		Opts:   opts,
		Logger: log.New(io.Discard, "", log.LstdFlags),
		Audit:  audit.NewLogger(cfg.Audit.Path, cfg.Audit.Enabled),
	}
	if opts.Verbose {
		a.Logger.SetOutput(os.Stderr)
	}

	rules := scan.BuiltinRules()
	if cfg.Scan.Rules != "" {
		rs, err := scan.LoadRulesFromFile(cfg.Scan.Rules)
		if err != nil {
			return nil, output.UserErrorf("scan.rules: %v", err)
		}
		rules = rs
	}
	sc, err := scan.New(rules)
	if err != nil {
		return nil, output.UserErrorf("scan.rules: %v", err)
	}
	a.scanner = sc
	return a, nil
}

// OpenSession extracts the macros of the workbook at path and saves the
// assembled source to workDir.
func (a *App) OpenSession(path, workDir string) (*session.Session, error) {
	s, err := session.Open(path, a.Config.Extract.ModuleSuffix)
	if err != nil {
		return nil, err
	}
	if _, err := s.SaveSource(artifact.NewWriter(workDir)); err != nil {
		return nil, err
	}
	a.Logger.Printf("[extract] %s", s)
	return s, nil
}

// Runner builds an analysis runner writing to outDir. A text generator is
// created only when one of kinds needs it, so scans and graphs work without
// an API key.
func (a *App) Runner(outDir string, kinds ...analysis.Kind) (*analysis.Runner, error) {
	var provider ai.Provider
	for _, k := range kinds {
		if !k.UsesModel() {
			continue
		}
		p, err := ai.NewProvider(a.Opts.Provider, a.Opts.Model)
		if err != nil {
			return nil, &output.UserError{Err: err}
		}
		provider = p
		break
	}

	r := analysis.NewRunner(provider, a.Opts.Model, artifact.NewWriter(outDir))
	r.Scanner = a.Scanner()
	r.Extractor = &callgraph.Extractor{Lexer: callgraph.RegexLexer{}}
	r.Formatter = format.New(a.Config.Format.HeadingMarker)
	r.Chunk = ai.ChunkOptions{MaxChunkSize: a.Config.Chunk.Size}
	r.Logger = a.Logger

	if provider != nil && a.Config.Cache.Enabled && !a.Opts.NoCache {
		if c := a.sharedCache(); c != nil {
			r.Cache = c
		}
	}
	return r, nil
}

// sharedCache opens the result cache on first use. Every runner of the
// invocation shares the one connection.
func (a *App) sharedCache() *cache.Cache {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.cacheOpen {
		a.cacheOpen = true
		c, err := cache.Open(a.Config.Cache.Path)
		if err != nil {
			a.Logger.Printf("[cache] disabled: %v", err)
			return nil
		}
		a.cache = c
	}
	return a.cache
}

// Scanner returns the scanner over the configured rule set. It is safe to
// share between runners.
func (a *App) Scanner() *scan.Scanner {
	return a.scanner
}

// Analyse runs kind against s and records the run in the audit log.
func (a *App) Analyse(ctx context.Context, r *analysis.Runner, s *session.Session, kind analysis.Kind, command string) (*analysis.Result, error) {
	start := time.Now()
	res, err := r.Run(ctx, s, kind)

	entry := audit.Entry{
		Command:    command,
		Args:       os.Args[1:],
		Workbook:   s.WorkbookPath,
		Kind:       string(kind),
		DurationMs: time.Since(start).Milliseconds(),
		ExitCode:   output.ExitCode(err),
	}
	if res != nil {
		entry.Cached = res.Cached
		entry.Model = res.Model
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if aerr := a.Audit.Log(entry); aerr != nil {
		a.Logger.Printf("[audit] %v", aerr)
	}
	return res, err
}

// RecordSkip logs a workbook that had nothing to analyse.
func (a *App) RecordSkip(command, workbook string, reason error) {
	a.Audit.Log(audit.Entry{Command: command, Args: os.Args[1:], Workbook: workbook, Error: reason.Error()})
}

// Close releases the cache connection opened by Runner.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cache == nil {
		return nil
	}
	err := a.cache.Close()
	a.cache = nil
	return err
}

// BatchDir is the output directory for one workbook of a batch: a
// subdirectory of base named after the workbook file, suffixed with a hash
// of its absolute path so same-named workbooks in different folders do not
// share one. The name is stable across runs for the same path.
func BatchDir(base, workbook string) string {
	abs, err := filepath.Abs(workbook)
	if err != nil {
		abs = filepath.Clean(workbook)
	}
	sum := uint32(xxh3.HashString(abs))
	return filepath.Join(base, fmt.Sprintf("%s-%08x", filepath.Base(workbook), sum))
}
