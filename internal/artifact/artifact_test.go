package artifact

import (
	"path/filepath"
	"testing"
)

func TestWriteOverwrites(t *testing.T) {
	w := NewWriter(filepath.Join(t.TempDir(), "outputs"))

	a, err := w.WriteString("data.js", "const nodes = [\nlonger first version\n];\n")
	if err != nil {
		t.Fatal(err)
	}
	if a.Path != filepath.Join(w.Dir, "data.js") {
		t.Errorf("path = %q", a.Path)
	}

	if _, err := w.WriteString("data.js", "short"); err != nil {
		t.Fatal(err)
	}
	got, err := w.Read("data.js")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "short" {
		t.Errorf("expected whole-file replacement, got %q", got)
	}
}

func TestWriteRejectsPaths(t *testing.T) {
	w := NewWriter(t.TempDir())
	for _, name := range []string{"", "..", "../escape.txt", `sub\file.txt`} {
		if _, err := w.WriteString(name, "x"); err == nil {
			t.Errorf("expected error for %q", name)
		}
	}
}

func TestWriteReportsSize(t *testing.T) {
	w := NewWriter(t.TempDir())
	a, err := w.Write("vba_code.txt", []byte("Sub A() End Sub"))
	if err != nil {
		t.Fatal(err)
	}
	if a.Bytes != 15 || a.Name != "vba_code.txt" {
		t.Errorf("artifact = %+v", a)
	}
}
