// Package cache stores model completions in a SQLite database so unchanged
// macro source is not sent to the model twice.
package cache

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zeebo/xxh3"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const schema = `
CREATE TABLE IF NOT EXISTS completions (
	key        TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	model      TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_completions_kind ON completions(kind);
`

// Entry is one cached completion.
type Entry struct {
	Key       string    `json:"key"`
	Kind      string    `json:"kind"`
	Model     string    `json:"model"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Stats summarizes the cache contents.
type Stats struct {
	Path    string         `json:"path"`
	Entries int            `json:"entries"`
	Bytes   int64          `json:"bytes"`
	ByKind  map[string]int `json:"byKind"`
}

// Cache is a completion cache backed by a single SQLite connection. It is
// safe for concurrent use.
type Cache struct {
	mu   sync.Mutex
	conn *sqlite.Conn
	path string
}

// Key derives the cache key for an analysis of src with model.
func Key(kind, model, src string) string {
	h := xxh3.New()
	for i, part := range []string{kind, model, src} {
		if i > 0 {
			h.Write([]byte{0})
		}
		io.WriteString(h, part)
	}
	sum := h.Sum128()
	return fmt.Sprintf("%016x%016x", sum.Hi, sum.Lo)
}

// Open opens or creates the cache database at path.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("could not create cache directory: %w", err)
	}
	conn, err := sqlite.OpenConn(path, sqlite.OpenCreate, sqlite.OpenReadWrite, sqlite.OpenWAL)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := sqlitex.ExecuteTransient(conn, "PRAGMA synchronous = NORMAL", nil); err != nil {
		conn.Close()
		return nil, err
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}
	return &Cache{conn: conn, path: path}, nil
}

// Path returns the database file location.
func (c *Cache) Path() string {
	return c.path
}

// Get looks up a completion by key.
func (c *Cache) Get(key string) (*Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var entry *Entry
	err := sqlitex.Execute(c.conn,
		`SELECT key, kind, model, content, created_at FROM completions WHERE key = ?`,
		&sqlitex.ExecOptions{
			Args: []any{key},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				entry = &Entry{
					Key:       stmt.ColumnText(0),
					Kind:      stmt.ColumnText(1),
					Model:     stmt.ColumnText(2),
					Content:   stmt.ColumnText(3),
					CreatedAt: time.Unix(stmt.ColumnInt64(4), 0).UTC(),
				}
				return nil
			},
		})
	if err != nil {
		return nil, false, fmt.Errorf("cache lookup: %w", err)
	}
	return entry, entry != nil, nil
}

// Put stores a completion, replacing any entry with the same key.
func (c *Cache) Put(e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	err := sqlitex.Execute(c.conn,
		`INSERT INTO completions (key, kind, model, content, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET kind = excluded.kind, model = excluded.model,
		 content = excluded.content, created_at = excluded.created_at`,
		&sqlitex.ExecOptions{
			Args: []any{e.Key, e.Kind, e.Model, e.Content, e.CreatedAt.Unix()},
		})
	if err != nil {
		return fmt.Errorf("cache store: %w", err)
	}
	return nil
}

// Stats counts entries per analysis kind.
func (c *Cache) Stats() (*Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Stats{Path: c.path, ByKind: make(map[string]int)}
	err := sqlitex.Execute(c.conn,
		`SELECT kind, COUNT(*), COALESCE(SUM(LENGTH(content)), 0) FROM completions GROUP BY kind`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				n := int(stmt.ColumnInt64(1))
				s.ByKind[stmt.ColumnText(0)] = n
				s.Entries += n
				s.Bytes += stmt.ColumnInt64(2)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("cache stats: %w", err)
	}
	return s, nil
}

// Clear deletes every entry and returns how many were removed.
func (c *Cache) Clear() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := sqlitex.Execute(c.conn, `DELETE FROM completions`, nil); err != nil {
		return 0, fmt.Errorf("cache clear: %w", err)
	}
	return c.conn.Changes(), nil
}

// Close releases the database connection.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}
