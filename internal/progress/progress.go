// Package progress shows progress on stderr while analyses run, so stdout
// stays clean for reports and JSON.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Bar tracks a known number of steps.
type Bar struct {
	Total   int
	Label   string
	Enabled bool

	mu      sync.Mutex
	current int
	out     io.Writer
	bar     *progressbar.ProgressBar
}

// New creates a progress bar. It is disabled when stderr is not a TTY, when
// --json is set or when MACRODOC_NO_PROGRESS=1.
func New(label string, total int) *Bar {
	return newBar(label, total, os.Stderr, shouldEnable())
}

func newBar(label string, total int, out io.Writer, enabled bool) *Bar {
	b := &Bar{Total: total, Label: label, Enabled: enabled, out: out}
	if enabled {
		b.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(out),
			progressbar.OptionSetDescription(label),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	return b
}

// Increment advances the bar by one step and shows status next to it.
func (b *Bar) Increment(status string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current >= b.Total {
		return
	}
	b.current++
	if b.bar != nil {
		b.bar.Describe(fmt.Sprintf("%s %s", b.Label, status))
		b.bar.Add(1)
	}
}

// Current returns the number of completed steps.
func (b *Bar) Current() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Pct returns the completed percentage (0-100).
func (b *Bar) Pct() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Total == 0 {
		return 0
	}
	return float64(b.current) / float64(b.Total) * 100
}

// Finish clears the bar and prints a summary line.
func (b *Bar) Finish(summary string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bar == nil {
		return
	}
	b.bar.Finish()
	fmt.Fprintf(b.out, "✓ %s\n", summary)
}

// Spinner shows activity while waiting on something of unknown length,
// such as a model response.
type Spinner struct {
	Label   string
	Enabled bool

	mu   sync.Mutex
	out  io.Writer
	bar  *progressbar.ProgressBar
	done chan struct{}
}

// NewSpinner creates a spinner.
func NewSpinner(label string) *Spinner {
	return &Spinner{Label: label, Enabled: shouldEnable(), out: os.Stderr}
}

// Start begins the animation.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Enabled || s.done != nil {
		return
	}
	s.bar = progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(s.out),
		progressbar.OptionSetDescription(s.Label),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionClearOnFinish(),
	)
	s.done = make(chan struct{})

	go func(bar *progressbar.ProgressBar, done chan struct{}) {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				bar.Add(1)
			}
		}
	}(s.bar, s.done)
}

// Update changes the label while the spinner runs.
func (s *Spinner) Update(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Label = label
	if s.bar != nil {
		s.bar.Describe(label)
	}
}

// Stop ends the animation and prints result.
func (s *Spinner) Stop(result string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		return
	}
	close(s.done)
	s.done = nil
	s.bar.Finish()
	fmt.Fprintf(s.out, "✓ %s\n", result)
}

func shouldEnable() bool {
	if os.Getenv("MACRODOC_NO_PROGRESS") == "1" {
		return false
	}
	if os.Getenv("MACRODOC_JSON") == "true" {
		return false
	}
	return isTTY()
}

func isTTY() bool {
	stat, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}
