package doctor

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/viper"

	"github.com/klytics/macrodoc/internal/config"
)

func setup(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, env := range []string{"GROQ_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY", "MACRODOC_PROVIDER", "MACRODOC_SCAN_RULES"} {
		t.Setenv(env, "")
	}
	viper.Reset()
	t.Cleanup(viper.Reset)
	return home
}

func find(checks []Check, prefix string) *Check {
	for i := range checks {
		if strings.HasPrefix(checks[i].Name, prefix) {
			return &checks[i]
		}
	}
	return nil
}

func TestRunChecksFreshHome(t *testing.T) {
	setup(t)
	cfg, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}
	checks := RunChecks(cfg)

	if c := find(checks, "Config File"); c == nil || c.Status != "warning" {
		t.Errorf("config file check = %+v", c)
	}
	if c := find(checks, "Text Generator"); c == nil || c.Status != "warning" || !strings.Contains(c.Message, "GROQ_API_KEY") {
		t.Errorf("provider check = %+v", c)
	}
	if c := find(checks, "Scan Rules"); c == nil || !strings.HasPrefix(c.Message, "built-in") {
		t.Errorf("rules check = %+v", c)
	}
	if c := find(checks, "Result Cache"); c == nil || c.Status != "ok" {
		t.Errorf("cache check = %+v", c)
	}
}

func TestRunChecksBadRules(t *testing.T) {
	setup(t)
	t.Setenv("GROQ_API_KEY", "gsk_test")
	rules := filepath.Join(t.TempDir(), "rules.yaml")
	os.WriteFile(rules, []byte("risky: [\n"), 0644)
	t.Setenv("MACRODOC_SCAN_RULES", rules)

	cfg, _ := config.Load()
	checks := RunChecks(cfg)
	if c := find(checks, "Scan Rules"); c == nil || c.Status != "error" {
		t.Errorf("rules check = %+v", c)
	}
	if c := find(checks, "Text Generator"); c == nil || c.Status != "ok" {
		t.Errorf("provider check = %+v", c)
	}
}

func TestPrintCountsErrors(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	n := Print(&buf, []Check{{"A", "ok", "fine"}, {"B", "warning", "hmm"}, {"C", "error", "bad"}})
	if n != 1 {
		t.Errorf("errors = %d", n)
	}
	if !strings.Contains(buf.String(), "1 passed, 1 warnings, 1 errors") {
		t.Errorf("out = %q", buf.String())
	}
	if !strings.Contains(buf.String(), "✗ C: bad") {
		t.Errorf("out = %q", buf.String())
	}
}
