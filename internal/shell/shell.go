// Package shell provides the interactive macrodoc REPL. A workbook is opened
// once and every analysis command then runs against it.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/klytics/macrodoc/internal/analysis"
	"github.com/klytics/macrodoc/internal/session"
	"github.com/klytics/macrodoc/internal/vba"
)

// ErrNoWorkbook is returned by analysis commands before a workbook is open.
var ErrNoWorkbook = errors.New("no workbook open, use: open <workbook>")

// Opener loads the workbook at path.
type Opener func(path string) (*session.Session, error)

// Analyzer runs one analysis against a session.
type Analyzer interface {
	Run(ctx context.Context, s *session.Session, kind analysis.Kind) (*analysis.Result, error)
}

// Shell is one interactive session.
type Shell struct {
	Open        Opener
	Analyzer    Analyzer
	Out         io.Writer
	HistoryFile string

	Current   *session.Session
	History   []string
	Results   map[analysis.Kind]*analysis.Result
	StartTime time.Time
}

var builtins = []string{"open", "status", "history", "help", "exit", "quit"}

// New creates a Shell writing to out. History is kept in dir.
func New(open Opener, a Analyzer, out io.Writer, dir string) *Shell {
	hist := ""
	if dir != "" {
		os.MkdirAll(dir, 0o755)
		hist = filepath.Join(dir, "shell_history")
	}
	return &Shell{
		Open:        open,
		Analyzer:    a,
		Out:         out,
		HistoryFile: hist,
		Results:     make(map[analysis.Kind]*analysis.Result),
		StartTime:   time.Now(),
	}
}

// Commands returns every command the shell understands.
func Commands() []string {
	cmds := append([]string{}, builtins...)
	for _, k := range analysis.AllKinds {
		cmds = append(cmds, string(k))
	}
	sort.Strings(cmds)
	return cmds
}

// Run starts the REPL loop. It returns on exit, Ctrl+D or when ctx ends.
func (s *Shell) Run(ctx context.Context) error {
	var items []readline.PrefixCompleterInterface
	for _, c := range Commands() {
		if c == "open" {
			items = append(items, readline.PcItem(c, readline.PcItemDynamic(listWorkbooks)))
			continue
		}
		items = append(items, readline.PcItem(c))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "macrodoc> ",
		HistoryFile:     s.HistoryFile,
		AutoComplete:    readline.NewPrefixCompleter(items...),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Fprintln(s.Out, "macrodoc interactive shell")
	fmt.Fprintln(s.Out, "Type 'help' for commands, 'exit' to quit.")
	fmt.Fprintln(s.Out)

	for ctx.Err() == nil {
		line, err := rl.Readline()
		if err != nil {
			break
		}
		quit, err := s.Exec(ctx, line)
		if err != nil {
			fmt.Fprintf(s.Out, "Error: %s\n", err)
		}
		if quit {
			break
		}
	}

	fmt.Fprintf(s.Out, "\nSession ended. %d commands run in %s.\n", len(s.History), formatDuration(time.Since(s.StartTime)))
	return nil
}

// Exec runs one input line. quit is true when the line ends the session.
func (s *Shell) Exec(ctx context.Context, line string) (quit bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	fields := strings.Fields(line)
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	if cmd == "exit" || cmd == "quit" {
		return true, nil
	}
	s.History = append(s.History, line)

	switch cmd {
	case "help":
		s.printHelp()
		return false, nil
	case "history":
		for i, h := range s.History {
			fmt.Fprintf(s.Out, "  %d  %s\n", i+1, h)
		}
		return false, nil
	case "status":
		s.printStatus()
		return false, nil
	case "open":
		if len(args) == 0 {
			return false, fmt.Errorf("usage: open <workbook>")
		}
		return false, s.open(strings.Join(args, " "))
	}

	kind, err := analysis.ParseKind(cmd)
	if err != nil {
		return false, fmt.Errorf("unknown command %q, type 'help' for a list", cmd)
	}
	return false, s.analyse(ctx, kind)
}

func (s *Shell) open(path string) error {
	sess, err := s.Open(path)
	if err != nil {
		return err
	}
	s.Current = sess
	s.Results = make(map[analysis.Kind]*analysis.Result)
	fmt.Fprintf(s.Out, "Opened %s\n", sess)
	return nil
}

func (s *Shell) analyse(ctx context.Context, kind analysis.Kind) error {
	if s.Current == nil {
		return ErrNoWorkbook
	}
	res, err := s.Analyzer.Run(ctx, s.Current, kind)
	if err != nil {
		return err
	}
	s.Results[kind] = res

	fmt.Fprintf(s.Out, "%s\n\n", kind.Title())
	fmt.Fprint(s.Out, res.Display)
	if !strings.HasSuffix(res.Display, "\n") {
		fmt.Fprintln(s.Out)
	}
	for _, a := range res.Artifacts {
		fmt.Fprintf(s.Out, "  wrote %s\n", a.Path)
	}
	return nil
}

func (s *Shell) printStatus() {
	if s.Current == nil {
		fmt.Fprintln(s.Out, "No workbook open.")
		return
	}
	fmt.Fprintf(s.Out, "Workbook: %s\n", s.Current)
	if len(s.Results) == 0 {
		fmt.Fprintln(s.Out, "No analyses run yet.")
		return
	}
	for _, k := range analysis.AllKinds {
		res, ok := s.Results[k]
		if !ok {
			continue
		}
		note := ""
		if res.Cached {
			note = " (cached)"
		}
		fmt.Fprintf(s.Out, "  %-14s %s%s\n", k, res.Duration.Round(time.Millisecond), note)
	}
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.Out, "Workbook:")
	fmt.Fprintln(s.Out, "  open <workbook>   extract macros and make the workbook current")
	fmt.Fprintln(s.Out, "  status            show the open workbook and analyses run")
	fmt.Fprintln(s.Out)
	fmt.Fprintln(s.Out, "Analyses:")
	for _, k := range analysis.AllKinds {
		fmt.Fprintf(s.Out, "  %-17s %s\n", k, k.Title())
	}
	fmt.Fprintln(s.Out)
	fmt.Fprintln(s.Out, "  history           show command history")
	fmt.Fprintln(s.Out, "  exit              leave the shell")
}

// Complete returns completion candidates for the first word of input.
func Complete(input string) []string {
	input = strings.TrimLeft(input, " ")
	if strings.Contains(input, " ") {
		return nil
	}
	var out []string
	for _, c := range Commands() {
		if strings.HasPrefix(c, strings.ToLower(input)) {
			out = append(out, c)
		}
	}
	return out
}

// listWorkbooks offers workbooks in the current directory after "open".
func listWorkbooks(string) []string {
	entries, err := os.ReadDir(".")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if vba.SupportedExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			names = append(names, e.Name())
		}
	}
	return names
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}
