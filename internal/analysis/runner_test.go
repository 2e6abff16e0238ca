package analysis

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klytics/macrodoc/internal/ai"
	"github.com/klytics/macrodoc/internal/artifact"
	"github.com/klytics/macrodoc/internal/cache"
	"github.com/klytics/macrodoc/internal/session"
)

type fakeProvider struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeProvider) Infer(_ context.Context, _ string, messages []ai.Message, _ ai.InferOptions) (*ai.InferResult, error) {
	f.prompts = append(f.prompts, messages[len(messages)-1].Content)
	if f.err != nil {
		return nil, f.err
	}
	return &ai.InferResult{Content: f.reply, Model: "fake-model"}, nil
}

func (f *fakeProvider) Name() string { return "fake" }

type memStore struct {
	entries map[string]cache.Entry
}

func (m *memStore) Get(key string) (*cache.Entry, bool, error) {
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	return &e, true, nil
}

func (m *memStore) Put(e cache.Entry) error {
	if m.entries == nil {
		m.entries = make(map[string]cache.Entry)
	}
	m.entries[e.Key] = e
	return nil
}

const sample = "Sub Main() Call Helper Shell \"calc\" End Sub Sub Helper() x = 1 End Sub"

func newRunner(t *testing.T, p ai.Provider) (*Runner, *artifact.Writer) {
	t.Helper()
	w := artifact.NewWriter(filepath.Join(t.TempDir(), "outputs"))
	return NewRunner(p, "", w), w
}

func TestRunDocumentationFlattensNewlines(t *testing.T) {
	p := &fakeProvider{reply: "Functional Logic: sums\n\n- step one\nplain"}
	r, w := newRunner(t, p)

	res, err := r.Run(context.Background(), session.FromSource("book.xlsm", sample), Documentation)
	if err != nil {
		t.Fatal(err)
	}
	want := "Functional Logic: sums  - step one plain"
	if res.Content != want {
		t.Errorf("content = %q, want %q", res.Content, want)
	}
	if !strings.Contains(p.prompts[0], "VBA Code:"+sample) {
		t.Errorf("prompt does not embed the source: %q", p.prompts[0])
	}

	saved, err := w.Read("vba_macro_documentation.txt")
	if err != nil {
		t.Fatal(err)
	}
	if string(saved) != want {
		t.Errorf("artifact = %q", saved)
	}
	if !strings.HasPrefix(res.Display, "**Functional Logic: sums**\n\n<ul><li>step one plain</li></ul>") {
		t.Errorf("display = %q", res.Display)
	}
}

func TestRunRefactorKeepsNewlines(t *testing.T) {
	p := &fakeProvider{reply: "Use Python.\nUse pandas."}
	r, w := newRunner(t, p)

	res, err := r.Run(context.Background(), session.FromSource("book.xlsm", sample), Refactor)
	if err != nil {
		t.Fatal(err)
	}
	if res.Content != "Use Python.\nUse pandas." {
		t.Errorf("content = %q", res.Content)
	}
	saved, _ := w.Read("vba_macro_refactor.txt")
	if string(saved) != res.Content {
		t.Errorf("artifact = %q", saved)
	}
}

func TestRunUsesCache(t *testing.T) {
	p := &fakeProvider{reply: "documented"}
	r, _ := newRunner(t, p)
	r.Cache = &memStore{}
	s := session.FromSource("book.xlsm", sample)

	first, err := r.Run(context.Background(), s, Quality)
	if err != nil {
		t.Fatal(err)
	}
	if first.Cached {
		t.Error("first run should not be cached")
	}

	second, err := r.Run(context.Background(), s, Quality)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Cached || second.Content != "documented" {
		t.Errorf("second run = %+v", second)
	}
	if len(p.prompts) != 1 {
		t.Errorf("model called %d times, want 1", len(p.prompts))
	}

	// A different kind over the same source is a different key.
	if _, err := r.Run(context.Background(), s, DataFlow); err != nil {
		t.Fatal(err)
	}
	if len(p.prompts) != 2 {
		t.Errorf("model called %d times, want 2", len(p.prompts))
	}
}

func TestRunGenerationError(t *testing.T) {
	cause := errors.New("503 from upstream")
	r, _ := newRunner(t, &fakeProvider{err: cause})

	_, err := r.Run(context.Background(), session.FromSource("book.xlsm", sample), Logic)
	var gerr *GenerationError
	if !errors.As(err, &gerr) {
		t.Fatalf("expected *GenerationError, got %v", err)
	}
	if gerr.Kind != Logic || !errors.Is(err, cause) {
		t.Errorf("error = %+v", gerr)
	}
}

func TestRunWithoutProvider(t *testing.T) {
	r, _ := newRunner(t, nil)
	_, err := r.Run(context.Background(), session.FromSource("book.xlsm", sample), Documentation)
	if !errors.Is(err, ErrNoProvider) {
		t.Errorf("expected ErrNoProvider, got %v", err)
	}

	// Static analyses need no provider.
	if _, err := r.Run(context.Background(), session.FromSource("book.xlsm", sample), Security); err != nil {
		t.Errorf("security: %v", err)
	}
}

func TestRunSecurity(t *testing.T) {
	r, w := newRunner(t, nil)
	res, err := r.Run(context.Background(), session.FromSource("book.xlsm", sample), Security)
	if err != nil {
		t.Fatal(err)
	}
	if res.Report == nil || len(res.Report.RiskyPatterns) != 1 {
		t.Fatalf("report = %+v", res.Report)
	}
	saved, _ := w.Read("vba_security_report.txt")
	if string(saved) != res.Report.Text() {
		t.Errorf("artifact does not match report text")
	}
	if !strings.HasPrefix(string(saved), "Risky Patterns Found:\n - Shell\n") {
		t.Errorf("artifact = %q", saved)
	}
}

func TestRunGraph(t *testing.T) {
	r, w := newRunner(t, nil)
	res, err := r.Run(context.Background(), session.FromSource("book.xlsm", sample), Graph)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Artifacts) != 3 {
		t.Fatalf("expected 3 artifacts, got %d", len(res.Artifacts))
	}
	js, _ := w.Read(DataJSArtifact)
	want := "const nodes = [\n{ id: 'Main' },\n{ id: 'Helper' }\n];\n\nconst links = [\n{ source: 'Main', target: 'Helper' }\n];\n"
	if string(js) != want {
		t.Errorf("data.js = %q", js)
	}
	if len(res.Diagnostics) != 0 {
		t.Errorf("unexpected diagnostics: %v", res.Diagnostics)
	}
}

func TestRunGraphDiagnostics(t *testing.T) {
	r, _ := newRunner(t, nil)
	res, err := r.Run(context.Background(), session.FromSource("book.xlsm", "Sub A() Call A"), Graph)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Diagnostics) != 1 || len(res.Graph.Links) != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestRunChunksLargeSource(t *testing.T) {
	p := &fakeProvider{reply: "part"}
	r, _ := newRunner(t, p)
	r.Chunk = ai.ChunkOptions{MaxChunkSize: 40, Overlap: -1}

	src := strings.Repeat("Sub A() x = 1 End Sub ", 6)
	res, err := r.Run(context.Background(), session.FromSource("big.xlsm", src), Documentation)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.prompts) < 2 {
		t.Fatalf("expected several model calls, got %d", len(p.prompts))
	}
	if res.Content != strings.TrimSpace(strings.Repeat("part ", len(p.prompts))) {
		t.Errorf("content = %q", res.Content)
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range AllKinds {
		got, err := ParseKind(strings.ToUpper(string(k)))
		if err != nil || got != k {
			t.Errorf("ParseKind(%q) = %q, %v", k, got, err)
		}
	}
	if got, _ := ParseKind("doc"); got != Documentation {
		t.Errorf("ParseKind(doc) = %q", got)
	}
	if _, err := ParseKind("poetry"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestPromptsEmbedSource(t *testing.T) {
	for _, k := range AllKinds {
		p := Prompt(k, "Sub X() End Sub")
		if k.UsesModel() != (p != "") {
			t.Errorf("%s: UsesModel=%v but prompt=%q", k, k.UsesModel(), p)
		}
		if p != "" && !strings.Contains(p, "VBA Code:Sub X() End Sub") {
			t.Errorf("%s prompt does not embed source", k)
		}
	}
}
