package cache

import (
	"path/filepath"
	"testing"
	"time"
)

func openTemp(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "nested", "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestKey(t *testing.T) {
	a := Key("documentation", "mixtral", "Sub A() End Sub")
	if a != Key("documentation", "mixtral", "Sub A() End Sub") {
		t.Error("key is not deterministic")
	}
	if len(a) != 32 {
		t.Errorf("expected 32 hex chars, got %d", len(a))
	}

	others := []string{
		Key("logic", "mixtral", "Sub A() End Sub"),
		Key("documentation", "gpt-4o", "Sub A() End Sub"),
		Key("documentation", "mixtral", "Sub B() End Sub"),
		// the separator keeps field boundaries distinct
		Key("documentationm", "ixtral", "Sub A() End Sub"),
	}
	for i, k := range others {
		if k == a {
			t.Errorf("variant %d collides with base key", i)
		}
	}
}

func TestPutGet(t *testing.T) {
	c := openTemp(t)

	if _, ok, err := c.Get("missing"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := c.Put(Entry{Key: "k1", Kind: "documentation", Model: "mixtral", Content: "first", CreatedAt: created}); err != nil {
		t.Fatal(err)
	}
	e, ok, err := c.Get("k1")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if e.Content != "first" || e.Kind != "documentation" || e.Model != "mixtral" || !e.CreatedAt.Equal(created) {
		t.Errorf("entry = %+v", e)
	}

	if err := c.Put(Entry{Key: "k1", Kind: "documentation", Model: "mixtral", Content: "second"}); err != nil {
		t.Fatal(err)
	}
	e, _, _ = c.Get("k1")
	if e.Content != "second" {
		t.Errorf("upsert did not replace content: %q", e.Content)
	}
}

func TestStatsAndClear(t *testing.T) {
	c := openTemp(t)
	c.Put(Entry{Key: "a", Kind: "documentation", Model: "m", Content: "1234"})
	c.Put(Entry{Key: "b", Kind: "documentation", Model: "m", Content: "56"})
	c.Put(Entry{Key: "c", Kind: "refactor", Model: "m", Content: "7"})

	s, err := c.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if s.Entries != 3 || s.ByKind["documentation"] != 2 || s.ByKind["refactor"] != 1 {
		t.Errorf("stats = %+v", s)
	}
	if s.Bytes != 7 {
		t.Errorf("bytes = %d", s.Bytes)
	}

	n, err := c.Clear()
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("cleared %d entries, want 3", n)
	}
	s, _ = c.Stats()
	if s.Entries != 0 {
		t.Errorf("expected empty cache, got %d", s.Entries)
	}
}

func TestPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	c.Put(Entry{Key: "k", Kind: "quality", Model: "m", Content: "kept"})
	c.Close()

	c, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	e, ok, err := c.Get("k")
	if err != nil || !ok || e.Content != "kept" {
		t.Errorf("expected persisted entry, got %+v ok=%v err=%v", e, ok, err)
	}
}
