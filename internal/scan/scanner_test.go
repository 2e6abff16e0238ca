package scan

import (
	"strings"
	"testing"
)

func TestRiskyCallsCaseInsensitive(t *testing.T) {
	src := `Sub A() shell "cmd" End Sub Sub B() Shell "calc" End Sub Sub C() SHELL "x" End Sub`
	r := Default().Scan(src)

	if len(r.RiskyPatterns) != 3 {
		t.Fatalf("expected 3 risky matches, got %d", len(r.RiskyPatterns))
	}
	want := []string{"shell", "Shell", "SHELL"}
	for i, f := range r.RiskyPatterns {
		if f.Evidence != want[i] {
			t.Errorf("match %d = %q, want %q", i, f.Evidence, want[i])
		}
		if f.Category != CategoryRiskyPattern {
			t.Errorf("match %d category = %q", i, f.Category)
		}
	}
}

func TestRiskyCallsKeepDuplicates(t *testing.T) {
	src := `Execute "a" Execute "b" Shell "c"`
	r := Default().Scan(src)

	var got []string
	for _, f := range r.RiskyPatterns {
		got = append(got, f.Evidence)
	}
	// Grouped by rule order: Shell first, then both Execute matches.
	if strings.Join(got, ",") != "Shell,Execute,Execute" {
		t.Errorf("risky matches = %v", got)
	}
}

func TestRiskyCallsWordBoundary(t *testing.T) {
	r := Default().Scan(`Sub ShellSort() x = ExecuteCount End Sub`)
	if len(r.RiskyPatterns) != 0 {
		t.Errorf("expected no matches inside longer identifiers, got %v", r.RiskyPatterns)
	}
}

func TestErrorHandlingAbsent(t *testing.T) {
	r := Default().Scan(`Sub A() x = 1 End Sub`)
	if r.ErrorHandlingPresent {
		t.Fatal("expected error handling to be absent")
	}
	if !strings.Contains(r.Text(), "Error Handling: \nNot present.") {
		t.Errorf("report should state error handling is absent:\n%s", r.Text())
	}
}

func TestErrorHandlingPresent(t *testing.T) {
	r := Default().Scan(`Sub A() On Error GoTo Fail x = 1 Fail: End Sub`)
	if !r.ErrorHandlingPresent {
		t.Fatal("expected error handling to be present")
	}
	if strings.Contains(r.Text(), "Error Handling") {
		t.Errorf("report should not complain about error handling:\n%s", r.Text())
	}
	for _, f := range r.Findings() {
		if f.Category == CategoryMissingErrorHandling {
			t.Error("unexpected missing-error-handling finding")
		}
	}
}

func TestSanitizationNeedsQuoteSomewhere(t *testing.T) {
	noQuote := `Sub Q() sql = "SELECT * FROM Users" End Sub`
	r := Default().Scan(noQuote)
	if len(r.SanitizationIssues) != 0 {
		t.Errorf("no quote in source: expected no issues, got %v", r.SanitizationIssues)
	}

	withQuote := noQuote + ` Sub R() ' a comment elsewhere End Sub`
	r = Default().Scan(withQuote)
	if len(r.SanitizationIssues) != 1 {
		t.Fatalf("expected 1 issue, got %v", r.SanitizationIssues)
	}
	if r.SanitizationIssues[0].Evidence != `SELECT \* FROM` {
		t.Errorf("evidence = %q", r.SanitizationIssues[0].Evidence)
	}
}

func TestSanitizationAllShapes(t *testing.T) {
	src := `insert into T values ('a') select * from T update T set x=1 delete from T`
	r := Default().Scan(src)
	var got []string
	for _, f := range r.SanitizationIssues {
		got = append(got, f.Evidence)
	}
	want := `INSERT INTO|SELECT \* FROM|UPDATE .* SET|DELETE FROM`
	if strings.Join(got, "|") != want {
		t.Errorf("issues = %q, want %q", strings.Join(got, "|"), want)
	}
}

func TestEmptySource(t *testing.T) {
	r := Default().Scan("")
	text := r.Text()

	if !strings.Contains(text, "No risky patterns identified") {
		t.Error("expected no-risky statement")
	}
	if !strings.Contains(text, "Not present.") {
		t.Error("expected error handling absent statement")
	}
	if !strings.Contains(text, "All user inputs are properly sanitized") {
		t.Error("expected no-sanitization-issues statement")
	}
	if r.Clean() {
		t.Error("empty source lacks error handling and should not be clean")
	}
}

func TestReportSectionOrder(t *testing.T) {
	src := `Sub A() Shell "x" sql = "DELETE FROM T WHERE n = '" & n & "'" End Sub`
	text := Default().Scan(src).Text()

	risky := strings.Index(text, "Risky Patterns Found:")
	eh := strings.Index(text, "Error Handling:")
	san := strings.Index(text, "Sanitization Issues Found:")
	if risky < 0 || eh < 0 || san < 0 {
		t.Fatalf("missing section in report:\n%s", text)
	}
	if !(risky < eh && eh < san) {
		t.Errorf("sections out of order: risky=%d error=%d sanitization=%d", risky, eh, san)
	}
	if !strings.Contains(text, " - Shell\n") {
		t.Errorf("expected bulleted match:\n%s", text)
	}
}

func TestFindingsOrder(t *testing.T) {
	r := Default().Scan(`Shell 'x' INSERT INTO T`)
	fs := r.Findings()
	if len(fs) != 3 {
		t.Fatalf("expected 3 findings, got %d", len(fs))
	}
	cats := []Category{CategoryRiskyPattern, CategoryMissingErrorHandling, CategorySanitization}
	for i, c := range cats {
		if fs[i].Category != c {
			t.Errorf("finding %d category = %q, want %q", i, fs[i].Category, c)
		}
	}
}

type stubDetector struct{ present bool }

func (s stubDetector) HasErrorHandling(string) bool { return s.present }

func TestScannerSubstituteCapability(t *testing.T) {
	s := Default()
	s.ErrorHandling = stubDetector{present: true}
	if r := s.Scan(""); !r.ErrorHandlingPresent {
		t.Error("substituted detector was not used")
	}
}

func largeSource(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		sb.WriteString("Sub Step")
		sb.WriteString(strings.Repeat("x", i%7))
		sb.WriteString(`() On Error GoTo Fail sql = "SELECT * FROM t WHERE id = " & txtId.Text Shell "cmd" End Sub `)
	}
	return sb.String()
}

func BenchmarkScan(b *testing.B) {
	src := largeSource(500)
	sc := Default()
	b.SetBytes(int64(len(src)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sc.Scan(src)
	}
}
