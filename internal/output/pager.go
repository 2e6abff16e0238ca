package output

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

const defaultTermHeight = 40

// ShouldPage reports whether content is taller than the terminal. Output
// that is not going to a terminal is never paged.
func ShouldPage(content string, termHeight int) bool {
	if !isTerminal() {
		return false
	}
	return strings.Count(content, "\n") > termHeight
}

// Page pipes content through $PAGER, or less.
func Page(content string) error {
	pager := os.Getenv("PAGER")
	if pager == "" {
		pager = "less"
	}
	cmd := exec.Command(pager)
	cmd.Stdin = strings.NewReader(content)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Show writes a long report to w, through the pager when w is the terminal
// and the report does not fit.
func Show(w io.Writer, content string) error {
	if w == os.Stdout && ShouldPage(content, termHeight()) {
		if err := Page(content); err == nil {
			return nil
		}
	}
	_, err := fmt.Fprint(w, content)
	return err
}

func termHeight() int {
	if n, err := strconv.Atoi(os.Getenv("LINES")); err == nil && n > 0 {
		return n
	}
	return defaultTermHeight
}

func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
