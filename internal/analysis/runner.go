package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/klytics/macrodoc/internal/ai"
	"github.com/klytics/macrodoc/internal/artifact"
	"github.com/klytics/macrodoc/internal/cache"
	"github.com/klytics/macrodoc/internal/callgraph"
	"github.com/klytics/macrodoc/internal/format"
	"github.com/klytics/macrodoc/internal/scan"
	"github.com/klytics/macrodoc/internal/session"
)

// ErrNoProvider is returned when a model analysis runs without a generator.
var ErrNoProvider = errors.New("no AI provider configured")

// GenerationError wraps a text generator failure for one analysis.
type GenerationError struct {
	Kind     Kind
	Provider string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s analysis failed (%s): %v", e.Kind, e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Store is the completion cache the runner consults.
type Store interface {
	Get(key string) (*cache.Entry, bool, error)
	Put(e cache.Entry) error
}

// Result is the outcome of one analysis.
type Result struct {
	Kind        Kind                   `json:"kind"`
	Content     string                 `json:"content"`
	Display     string                 `json:"-"`
	Model       string                 `json:"model,omitempty"`
	Cached      bool                   `json:"cached"`
	Artifacts   []artifact.Artifact    `json:"artifacts"`
	Report      *scan.Report           `json:"report,omitempty"`
	Graph       *callgraph.Graph       `json:"graph,omitempty"`
	Diagnostics []callgraph.Diagnostic `json:"diagnostics,omitempty"`
	Duration    time.Duration          `json:"durationNs"`
}

// Runner executes analyses for a session. Model analyses run one at a time;
// a Runner is not meant to be shared between goroutines.
type Runner struct {
	Provider  ai.Provider
	Model     string
	Scanner   *scan.Scanner
	Extractor *callgraph.Extractor
	Formatter *format.Formatter
	Writer    *artifact.Writer
	Cache     Store
	Chunk     ai.ChunkOptions
	Logger    *log.Logger
}

// NewRunner returns a runner with the default scanner, extractor and
// formatter. Provider and Cache may be nil.
func NewRunner(provider ai.Provider, model string, w *artifact.Writer) *Runner {
	return &Runner{
		Provider:  provider,
		Model:     model,
		Scanner:   scan.Default(),
		Extractor: &callgraph.Extractor{Lexer: callgraph.RegexLexer{}},
		Formatter: format.New(format.DefaultHeadingMarker),
		Writer:    w,
		Logger:    log.New(io.Discard, "", 0),
	}
}

// Run executes one analysis and writes its artifacts.
func (r *Runner) Run(ctx context.Context, s *session.Session, kind Kind) (*Result, error) {
	if _, ok := kinds[kind]; !ok {
		return nil, fmt.Errorf("unknown analysis %q", kind)
	}
	start := time.Now()

	var (
		res *Result
		err error
	)
	switch kind {
	case Security:
		res, err = r.security(s)
	case Graph:
		res, err = r.graph(s)
	default:
		res, err = r.generate(ctx, s, kind)
	}
	if err != nil {
		return nil, err
	}
	res.Duration = time.Since(start)
	return res, nil
}

func (r *Runner) security(s *session.Session) (*Result, error) {
	report := r.Scanner.Scan(s.Source)
	text := report.Text()
	a, err := r.Writer.WriteString(Security.Artifacts()[0], text)
	if err != nil {
		return nil, err
	}
	return &Result{
		Kind:      Security,
		Content:   text,
		Display:   text,
		Artifacts: []artifact.Artifact{a},
		Report:    report,
	}, nil
}

func (r *Runner) graph(s *session.Session) (*Result, error) {
	g, diags := r.Extractor.Extract(s.Source)
	for _, d := range diags {
		r.Logger.Printf("[graph] %s: %s", s.DisplayName, d)
	}

	js := g.DataJS()
	data, err := g.JSON()
	if err != nil {
		return nil, err
	}
	page, err := g.HTML(s.DisplayName)
	if err != nil {
		return nil, err
	}

	res := &Result{Kind: Graph, Content: js, Display: js, Graph: g, Diagnostics: diags}
	for _, out := range []struct {
		name string
		data []byte
	}{
		{DataJSArtifact, []byte(js)},
		{GraphJSONArtifact, data},
		{FlowHTMLArtifact, page},
	} {
		a, err := r.Writer.Write(out.name, out.data)
		if err != nil {
			return nil, err
		}
		res.Artifacts = append(res.Artifacts, a)
	}
	return res, nil
}

func (r *Runner) generate(ctx context.Context, s *session.Session, kind Kind) (*Result, error) {
	if r.Provider == nil {
		return nil, &GenerationError{Kind: kind, Provider: "none", Err: ErrNoProvider}
	}
	modelKey := r.Provider.Name() + "/" + r.Model
	key := cache.Key(string(kind), modelKey, s.Source)

	res := &Result{Kind: kind, Model: r.Model}
	if r.Cache != nil {
		entry, ok, err := r.Cache.Get(key)
		if err != nil {
			r.Logger.Printf("cache lookup failed, calling the model: %v", err)
		} else if ok {
			r.Logger.Printf("%s: cache hit for %s", kind, s.DisplayName)
			res.Content = entry.Content
			res.Model = entry.Model
			res.Cached = true
		}
	}

	if !res.Cached {
		content, model, err := r.complete(ctx, kind, s.Source)
		if err != nil {
			return nil, &GenerationError{Kind: kind, Provider: r.Provider.Name(), Err: err}
		}
		res.Content = content
		if model != "" {
			res.Model = model
		}
		if r.Cache != nil {
			if err := r.Cache.Put(cache.Entry{Key: key, Kind: string(kind), Model: res.Model, Content: content}); err != nil {
				r.Logger.Printf("cache store failed: %v", err)
			}
		}
	}

	a, err := r.Writer.WriteString(kind.Artifacts()[0], res.Content)
	if err != nil {
		return nil, err
	}
	res.Artifacts = []artifact.Artifact{a}
	res.Display = res.Content
	if r.Formatter != nil && kind.Flattened() {
		res.Display = r.Formatter.Format(res.Content)
	}
	return res, nil
}

// complete sends the prompt for kind, one chunk at a time when the source
// is too large for a single request.
func (r *Runner) complete(ctx context.Context, kind Kind, src string) (string, string, error) {
	chunks := ai.ChunkText(src, r.Chunk)
	parts := make([]string, 0, len(chunks))
	var model string
	for i, chunk := range chunks {
		if len(chunks) > 1 {
			r.Logger.Printf("%s: chunk %d/%d", kind, i+1, len(chunks))
		}
		out, err := ai.Complete(ctx, r.Provider, Prompt(kind, chunk), ai.InferOptions{Model: r.Model})
		if err != nil {
			return "", "", err
		}
		model = out.Model
		parts = append(parts, out.Content)
	}

	if !kind.Flattened() {
		return strings.Join(parts, "\n\n"), model, nil
	}
	return strings.ReplaceAll(strings.Join(parts, " "), "\n", " "), model, nil
}
