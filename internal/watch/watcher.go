// Package watch re-analyses workbooks when they change on disk.
package watch

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/klytics/macrodoc/internal/vba"
)

// DefaultDebounce is how long a workbook must stay quiet before it is
// processed. Excel writes a workbook in several bursts when saving.
const DefaultDebounce = 500 * time.Millisecond

// Config describes what to watch.
type Config struct {
	Directories []string      `yaml:"directories"`
	Recursive   bool          `yaml:"recursive"`
	Debounce    time.Duration `yaml:"debounce"`
	Analyses    []string      `yaml:"analyses,omitempty"`
}

// Event records one processed workbook.
type Event struct {
	Time      time.Time `json:"time"`
	Path      string    `json:"path"`
	Operation string    `json:"operation"`
	Status    string    `json:"status"` // "processed", "error"
	Error     string    `json:"error,omitempty"`
	Duration  string    `json:"duration"`
}

// Handler is called once per settled workbook change.
type Handler func(ctx context.Context, path string) error

// Status summarises a running watcher.
type Status struct {
	Running     bool     `json:"running"`
	Directories []string `json:"directories"`
	EventCount  int      `json:"eventCount"`
	Errors      int      `json:"errors"`
	StartedAt   string   `json:"startedAt,omitempty"`
}

// Watcher monitors directories for workbook changes.
type Watcher struct {
	Config  Config
	Handler Handler
	Logger  *log.Logger

	mu        sync.Mutex
	events    []Event
	running   bool
	startedAt time.Time
	fsw       *fsnotify.Watcher
	pending   map[string]*time.Timer
	wg        sync.WaitGroup
}

// New creates a Watcher. Handler may be set afterwards, before Start.
func New(cfg Config, h Handler) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("could not create file watcher: %w", err)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	return &Watcher{
		Config:  cfg,
		Handler: h,
		Logger:  log.New(io.Discard, "[watch] ", log.LstdFlags),
		fsw:     fsw,
		pending: make(map[string]*time.Timer),
	}, nil
}

// Start watches the configured directories until ctx is cancelled. Handlers
// still running when ctx ends are waited for.
func (w *Watcher) Start(ctx context.Context) error {
	for _, dir := range w.Config.Directories {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("could not resolve %s: %w", dir, err)
		}
		if w.Config.Recursive {
			err = w.addRecursive(abs)
		} else {
			err = w.fsw.Add(abs)
		}
		if err != nil {
			w.fsw.Close()
			return fmt.Errorf("could not watch %s: %w", abs, err)
		}
	}

	w.mu.Lock()
	w.running = true
	w.startedAt = time.Now()
	w.mu.Unlock()

	w.Logger.Printf("watching %d directory(ies)", len(w.Config.Directories))

	for {
		select {
		case <-ctx.Done():
			w.stop()
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				w.stop()
				return nil
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				w.stop()
				return nil
			}
			w.Logger.Printf("error: %v", err)
		}
	}
}

func (w *Watcher) stop() {
	w.mu.Lock()
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
	w.running = false
	w.mu.Unlock()

	w.wg.Wait()
	w.fsw.Close()
	w.Logger.Println("stopped")
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// IsWorkbook reports whether path names a workbook macrodoc can analyse.
// Office lock files (~$book.xlsm) are excluded.
func IsWorkbook(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, "~$") || strings.HasPrefix(base, ".~") {
		return false
	}
	return vba.SupportedExtensions[strings.ToLower(filepath.Ext(base))]
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return
	}
	if !IsWorkbook(ev.Name) {
		return
	}
	w.schedule(ctx, ev.Name, ev.Op.String())
}

// schedule runs the handler for path after the debounce window, replacing
// any run already scheduled for it.
func (w *Watcher) schedule(ctx context.Context, path, op string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok && t.Stop() {
		w.wg.Done()
	}
	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.Config.Debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.pending[path] == t {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		w.process(ctx, path, op)
	})
	w.pending[path] = t
}

func (w *Watcher) process(ctx context.Context, path, op string) {
	// Rename events also fire for the old name.
	if _, err := os.Stat(path); err != nil {
		return
	}

	start := time.Now()
	ev := Event{Time: start, Path: path, Operation: op, Status: "processed"}
	if w.Handler != nil {
		if err := w.Handler(ctx, path); err != nil {
			ev.Status = "error"
			ev.Error = err.Error()
			w.Logger.Printf("%s: %v", path, err)
		} else {
			w.Logger.Printf("processed %s", path)
		}
	}
	ev.Duration = time.Since(start).Round(time.Millisecond).String()

	w.mu.Lock()
	w.events = append(w.events, ev)
	w.mu.Unlock()
}

// GetStatus returns the current watcher status.
func (w *Watcher) GetStatus() Status {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := Status{
		Running:     w.running,
		Directories: w.Config.Directories,
		EventCount:  len(w.events),
	}
	for _, ev := range w.events {
		if ev.Status == "error" {
			s.Errors++
		}
	}
	if w.running {
		s.StartedAt = w.startedAt.Format(time.RFC3339)
	}
	return s
}

// GetEvents returns a copy of the recorded events.
func (w *Watcher) GetEvents() []Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	events := make([]Event, len(w.events))
	copy(events, w.events)
	return events
}

const pidFile = ".macrodoc-watch.pid"

// WritePIDFile records the current process ID in dir.
func WritePIDFile(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, pidFile), []byte(fmt.Sprintf("%d", os.Getpid())), 0o644)
}

// ReadPIDFile returns the PID recorded in dir.
func ReadPIDFile(dir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(dir, pidFile))
	if err != nil {
		return 0, err
	}
	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return 0, fmt.Errorf("invalid PID file: %w", err)
	}
	return pid, nil
}

// RemovePIDFile deletes the PID file in dir.
func RemovePIDFile(dir string) error {
	return os.Remove(filepath.Join(dir, pidFile))
}

const stateFile = "watch.yaml"

// SaveConfig records cfg in dir so other processes can report what the
// running watcher covers.
func SaveConfig(dir string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, stateFile), data, 0o644)
}

// LoadConfig reads the configuration saved by SaveConfig.
func LoadConfig(dir string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(dir, stateFile))
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid watcher state: %w", err)
	}
	return &cfg, nil
}
