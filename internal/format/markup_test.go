package format

import (
	"strings"
	"testing"
)

func TestBlock(t *testing.T) {
	f := New("")
	tests := []struct {
		in, want string
	}{
		{"- item one", "<ul><li>item one</li></ul>"},
		{"~Overview", "<h4>~Overview</h4>"},
		{"Functional Logic: pricing", "**Functional Logic: pricing**"},
		{"  plain text here  ", "plain text here"},
		{"", ""},
		{"-", "<ul><li></li></ul>"},
	}
	for _, tt := range tests {
		if got := f.Block(tt.in); got != tt.want {
			t.Errorf("Block(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatSplitsOnDoubleSpace(t *testing.T) {
	in := "Functional Logic: Overview  - loads data  - writes report  ~Details  The macro runs nightly."
	got := Format(in)

	want := "**Functional Logic: Overview**\n\n" +
		"<ul><li>loads data</li></ul>\n\n" +
		"<ul><li>writes report</li></ul>\n\n" +
		"<h4>~Details</h4>\n\n" +
		"The macro runs nightly.\n\n"
	if got != want {
		t.Errorf("Format =\n%q\nwant\n%q", got, want)
	}
}

func TestFormatNoMarkers(t *testing.T) {
	in := "Just one paragraph with single spaces."
	if got := Format(in); got != in+"\n\n" {
		t.Errorf("Format = %q", got)
	}
}

func TestFormatCustomMarker(t *testing.T) {
	f := New("Summary:")
	got := f.Format("Summary: all good  Functional Logic: not a heading now")
	if !strings.HasPrefix(got, "**Summary: all good**") {
		t.Errorf("custom marker not used: %q", got)
	}
	if strings.Contains(got, "**Functional Logic") {
		t.Errorf("default marker should not apply: %q", got)
	}
}

func TestFormatArbitraryInput(t *testing.T) {
	inputs := []string{"", "   ", "\x00\xff", strings.Repeat("-", 1000), "~~  --  ~"}
	for _, in := range inputs {
		_ = Format(in)
	}
}
