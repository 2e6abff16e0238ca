package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/klytics/macrodoc/internal/callgraph"
	"github.com/klytics/macrodoc/internal/scan"
	"github.com/klytics/macrodoc/internal/session"
)

const testSource = `Sub Main() Call LoadData Shell "calc.exe" End Sub ` +
	`Sub LoadData() x = 1 End Sub ` +
	`Sub Broken() Call LoadData`

func newTestApp(t *testing.T) *App {
	t.Helper()
	s := session.FromSource("sales.xlsm", testSource)
	app, err := New(s, scan.Default(), &callgraph.Extractor{Lexer: callgraph.RegexLexer{}})
	if err != nil {
		t.Fatal(err)
	}
	return app
}

func get(t *testing.T, app *App, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	return rec
}

func TestIndexServesFlowDiagram(t *testing.T) {
	rec := get(t, newTestApp(t), "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /: want 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "sales.xlsm") {
		t.Error("expected workbook name in page title")
	}
}

func TestDataJS(t *testing.T) {
	rec := get(t, newTestApp(t), "/data.js")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /data.js: want 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "const nodes = [") || !strings.Contains(body, "{ source: 'Main', target: 'LoadData' }") {
		t.Errorf("data.js = %q", body)
	}
}

func TestAPIGraph(t *testing.T) {
	rec := get(t, newTestApp(t), "/api/graph")
	var g struct {
		Nodes []callgraph.Node `json:"nodes"`
		Links []callgraph.Link `json:"links"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &g); err != nil {
		t.Fatal(err)
	}
	if len(g.Nodes) != 3 {
		t.Errorf("nodes = %v", g.Nodes)
	}
	if len(g.Links) != 1 {
		t.Errorf("links = %v", g.Links)
	}
}

func TestAPIGraphNode(t *testing.T) {
	app := newTestApp(t)

	rec := get(t, app, "/api/graph/LoadData")
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	var n nodeInfo
	json.Unmarshal(rec.Body.Bytes(), &n)
	if len(n.Callers) != 1 || n.Callers[0] != "Main" || len(n.Callees) != 0 {
		t.Errorf("node = %+v", n)
	}

	if rec := get(t, app, "/api/graph/Missing"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown node: want 404, got %d", rec.Code)
	}
}

func TestAPISecurity(t *testing.T) {
	app := newTestApp(t)

	rec := get(t, app, "/api/security")
	var resp struct {
		RiskyPatterns        []scan.Finding `json:"riskyPatterns"`
		ErrorHandlingPresent bool           `json:"errorHandlingPresent"`
		Clean                bool           `json:"clean"`
		Text                 string         `json:"text"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.RiskyPatterns) != 1 || resp.RiskyPatterns[0].Evidence != "Shell" {
		t.Errorf("risky = %+v", resp.RiskyPatterns)
	}
	if resp.ErrorHandlingPresent || resp.Clean {
		t.Errorf("resp = %+v", resp)
	}

	text := get(t, app, "/api/security?format=text")
	if !strings.HasPrefix(text.Body.String(), "Risky Patterns Found:") {
		t.Errorf("text report = %q", text.Body.String())
	}
}

func TestAPIGraphNodeCallersDistinct(t *testing.T) {
	s := session.FromSource("loop.xlsm", `Sub Main() Call Step Call Step End Sub Sub Step() Call Step End Sub`)
	app, err := New(s, scan.Default(), &callgraph.Extractor{Lexer: callgraph.RegexLexer{}})
	if err != nil {
		t.Fatal(err)
	}

	var n nodeInfo
	json.Unmarshal(get(t, app, "/api/graph/Step").Body.Bytes(), &n)
	if len(n.Callers) != 1 || n.Callers[0] != "Main" {
		t.Errorf("callers = %v, want [Main]", n.Callers)
	}
}

func TestAPISecurityEmptyLists(t *testing.T) {
	s := session.FromSource("calm.xlsm", `Sub Main() On Error GoTo Done x = 1 Done: End Sub`)
	app, err := New(s, scan.Default(), &callgraph.Extractor{Lexer: callgraph.RegexLexer{}})
	if err != nil {
		t.Fatal(err)
	}

	body := get(t, app, "/api/security").Body.String()
	for _, want := range []string{`"riskyPatterns": []`, `"sanitizationIssues": []`, `"clean": true`} {
		if !strings.Contains(body, want) {
			t.Errorf("response lacks %s:\n%s", want, body)
		}
	}
}

func TestAPIDiagnostics(t *testing.T) {
	rec := get(t, newTestApp(t), "/api/diagnostics")
	var diags []callgraph.Diagnostic
	if err := json.Unmarshal(rec.Body.Bytes(), &diags); err != nil {
		t.Fatal(err)
	}
	if len(diags) != 1 || diags[0].Subroutine != "Broken" {
		t.Errorf("diagnostics = %+v", diags)
	}
}

func TestAPIDiagnosticsEmptyArray(t *testing.T) {
	s := session.FromSource("clean.xlsm", "Sub A() End Sub")
	app, err := New(s, scan.Default(), &callgraph.Extractor{Lexer: callgraph.RegexLexer{}})
	if err != nil {
		t.Fatal(err)
	}
	rec := get(t, app, "/api/diagnostics")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("want [], got %q", rec.Body.String())
	}
}

func TestAPISessionAndHealth(t *testing.T) {
	app := newTestApp(t)

	var info sessionInfo
	json.Unmarshal(get(t, app, "/api/session").Body.Bytes(), &info)
	if info.Name != "sales.xlsm" || info.Nodes != 3 || info.Findings == 0 {
		t.Errorf("session = %+v", info)
	}

	if rec := get(t, app, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("healthz: want 200, got %d", rec.Code)
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	app := newTestApp(t)
	if rec := get(t, app, "/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("want 404, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/graph", nil)
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /api/graph: want 405, got %d", rec.Code)
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	app := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx, addr) }()

	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://" + addr + "/healthz")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server did not come up: %v", err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
