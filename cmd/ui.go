package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
)

// success prints a green ✓ line.
func success(w io.Writer, format string, args ...any) {
	color.New(color.FgGreen).Fprintf(w, "✓ %s\n", fmt.Sprintf(format, args...))
}

// warning prints a yellow ⚠ line.
func warning(w io.Writer, format string, args ...any) {
	color.New(color.FgYellow).Fprintf(w, "⚠ %s\n", fmt.Sprintf(format, args...))
}

// failure prints a red ✗ line.
func failure(w io.Writer, format string, args ...any) {
	color.New(color.FgRed).Fprintf(w, "✗ %s\n", fmt.Sprintf(format, args...))
}

// newSpinner returns a stderr spinner; it stays silent when stderr is not a terminal.
func newSpinner(message string) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Writer = os.Stderr
	return s
}
