// Package server serves the process-flow visualization of one workbook over
// HTTP. Everything is computed when the App is created; handlers only read.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/klytics/macrodoc/internal/callgraph"
	"github.com/klytics/macrodoc/internal/scan"
	"github.com/klytics/macrodoc/internal/session"
)

// App holds the analysis results for the bound workbook.
type App struct {
	Logger *log.Logger

	session *session.Session
	graph   *callgraph.Graph
	diags   []callgraph.Diagnostic
	report  *scan.Report
	dataJS  []byte
	page    []byte
}

// New scans and extracts the call graph of s.
func New(s *session.Session, sc *scan.Scanner, ex *callgraph.Extractor) (*App, error) {
	g, diags := ex.Extract(s.Source)
	page, err := g.HTML(s.DisplayName)
	if err != nil {
		return nil, err
	}
	return &App{
		Logger:  log.New(io.Discard, "[serve] ", log.LstdFlags),
		session: s,
		graph:   g,
		diags:   diags,
		report:  sc.Scan(s.Source),
		dataJS:  []byte(g.DataJS()),
		page:    page,
	}, nil
}

// Handler returns the router.
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(a.logRequests)

	r.Get("/", a.handleIndex)
	r.Get("/data.js", a.handleDataJS)
	r.Get("/healthz", a.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/session", a.handleSession)
		r.Get("/graph", a.handleGraph)
		r.Get("/graph/{node}", a.handleNode)
		r.Get("/security", a.handleSecurity)
		r.Get("/diagnostics", a.handleDiagnostics)
	})
	return r
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (a *App) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      a.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		a.Logger.Printf("listening on http://%s (%s)", addr, a.session.DisplayName)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	a.Logger.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (a *App) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.Logger.Printf("%s %s %d %s", r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Microsecond))
	})
}

func (a *App) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(a.page)
}

func (a *App) handleDataJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Write(a.dataJS)
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

type sessionInfo struct {
	Workbook    string `json:"workbook"`
	Name        string `json:"name"`
	Modules     int    `json:"modules"`
	SourceChars int    `json:"sourceChars"`
	Nodes       int    `json:"nodes"`
	Links       int    `json:"links"`
	Findings    int    `json:"findings"`
}

func (a *App) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, sessionInfo{
		Workbook:    a.session.WorkbookPath,
		Name:        a.session.DisplayName,
		Modules:     a.session.Modules(),
		SourceChars: len(a.session.Source),
		Nodes:       len(a.graph.Nodes),
		Links:       len(a.graph.Links),
		Findings:    len(a.report.Findings()),
	})
}

func (a *App) handleGraph(w http.ResponseWriter, r *http.Request) {
	data, err := a.graph.JSON()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Write(data)
}

type nodeInfo struct {
	ID      string   `json:"id"`
	Callees []string `json:"callees"`
	Callers []string `json:"callers"`
}

func (a *App) handleNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "node")
	if !a.graph.HasNode(id) {
		http.Error(w, "no subroutine named "+id, http.StatusNotFound)
		return
	}
	info := nodeInfo{ID: id, Callees: a.graph.Callees(id), Callers: a.graph.Callers(id)}
	if info.Callees == nil {
		info.Callees = []string{}
	}
	if info.Callers == nil {
		info.Callers = []string{}
	}
	writeJSON(w, info)
}

type securityResponse struct {
	*scan.Report
	Clean bool   `json:"clean"`
	Text  string `json:"text"`
}

func (a *App) handleSecurity(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, a.report.Text())
		return
	}
	rep := *a.report
	if rep.RiskyPatterns == nil {
		rep.RiskyPatterns = []scan.Finding{}
	}
	if rep.SanitizationIssues == nil {
		rep.SanitizationIssues = []scan.Finding{}
	}
	writeJSON(w, securityResponse{Report: &rep, Clean: rep.Clean(), Text: rep.Text()})
}

func (a *App) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	diags := a.diags
	if diags == nil {
		diags = []callgraph.Diagnostic{}
	}
	writeJSON(w, diags)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
