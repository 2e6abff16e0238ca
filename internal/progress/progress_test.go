package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestNewWithEnvDisable(t *testing.T) {
	t.Setenv("MACRODOC_NO_PROGRESS", "1")
	bar := New("analyses", 7)
	if bar.Enabled {
		t.Error("expected bar to be disabled with MACRODOC_NO_PROGRESS=1")
	}
}

func TestNewWithJSONDisable(t *testing.T) {
	t.Setenv("MACRODOC_JSON", "true")
	bar := New("analyses", 7)
	if bar.Enabled {
		t.Error("expected bar to be disabled with MACRODOC_JSON=true")
	}
}

func TestBarIncrementCaps(t *testing.T) {
	bar := newBar("analyses", 3, &bytes.Buffer{}, false)
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		bar.Increment(s)
	}
	if bar.Current() != 3 {
		t.Errorf("expected current capped at 3, got %d", bar.Current())
	}
}

func TestBarPct(t *testing.T) {
	bar := newBar("analyses", 4, &bytes.Buffer{}, false)
	if bar.Pct() != 0 {
		t.Errorf("expected 0%%, got %.1f%%", bar.Pct())
	}
	bar.Increment("documentation")
	bar.Increment("logic")
	if bar.Pct() != 50 {
		t.Errorf("expected 50%%, got %.1f%%", bar.Pct())
	}

	empty := newBar("none", 0, &bytes.Buffer{}, false)
	if empty.Pct() != 0 {
		t.Errorf("expected 0%% for zero total, got %.1f%%", empty.Pct())
	}
}

func TestDisabledBarDoesNotWrite(t *testing.T) {
	var buf bytes.Buffer
	bar := newBar("analyses", 2, &buf, false)
	bar.Increment("security")
	bar.Finish("done")
	if buf.Len() != 0 {
		t.Errorf("disabled bar wrote %q", buf.String())
	}
}

func TestEnabledBarWritesSummary(t *testing.T) {
	var buf bytes.Buffer
	bar := newBar("analyses", 2, &buf, true)
	bar.Increment("security")
	bar.Increment("graph")
	bar.Finish("2 analyses written")
	if !strings.Contains(buf.String(), "✓ 2 analyses written") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestSpinnerDisabled(t *testing.T) {
	t.Setenv("MACRODOC_NO_PROGRESS", "1")
	s := NewSpinner("waiting for model")
	if s.Enabled {
		t.Error("expected spinner to be disabled")
	}
	s.Start()
	s.Update("still waiting")
	s.Stop("done")
	if s.Label != "still waiting" {
		t.Errorf("label = %q", s.Label)
	}
}

func TestSpinnerStartStop(t *testing.T) {
	var buf bytes.Buffer
	s := &Spinner{Label: "documentation", Enabled: true, out: &buf}
	s.Start()
	time.Sleep(250 * time.Millisecond)
	s.Update("documentation (chunk 2)")
	s.Stop("documentation written")
	s.Stop("second stop is a no-op")
	if !strings.Contains(buf.String(), "✓ documentation written") {
		t.Errorf("output = %q", buf.String())
	}
	if strings.Contains(buf.String(), "second stop") {
		t.Error("second Stop should not print")
	}
}
