package printer

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
)

func init() {
	// Force color output even when not connected to TTY
	// Users can disable with NO_COLOR environment variable
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// Printer writes operator-facing CLI output. Normal output goes to out,
// errors to errOut.
type Printer struct {
	out    io.Writer
	errOut io.Writer
}

// New creates a printer. Cobra commands pass cmd.OutOrStdout() and
// cmd.ErrOrStderr() so output can be captured in tests.
func New(out, errOut io.Writer) *Printer {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return &Printer{out: out, errOut: errOut}
}

// Out returns the writer used for normal output.
func (p *Printer) Out() io.Writer {
	return p.out
}

// Success prints a message in green with a checkmark prefix
func (p *Printer) Success(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		msg = "✓ " + msg
	}
	green.Fprint(p.out, msg)
}

// Info prints a message in the default color
func (p *Printer) Info(format string, a ...any) {
	fmt.Fprintf(p.out, format, a...)
}

// Warning prints a message in yellow with a warning prefix
func (p *Printer) Warning(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "⚠️") {
		msg = "⚠️  " + msg
	}
	yellow.Fprint(p.out, msg)
}

// Step prints a step of a multi-step operation
func (p *Printer) Step(format string, a ...any) {
	cyan.Fprintf(p.out, "→ %s", fmt.Sprintf(format, a...))
}

// Cooldown prints how long identity must wait before its next edit.
func (p *Printer) Cooldown(identity string, remaining time.Duration) {
	if remaining <= 0 {
		p.Success("%s can edit now\n", identity)
		return
	}
	seconds := int(math.Ceil(remaining.Seconds()))
	p.Warning("%s is cooling down: %s left (%d more minutes)\n",
		identity, time.Duration(seconds)*time.Second, int(math.Ceil(remaining.Minutes())))
}

// Error prints a formatted error with title, explanation, and suggestions to
// errOut and returns a simple error for Cobra
func (p *Printer) Error(title string, explanation string, suggestions ...string) error {
	return p.ErrorWithContext(title, explanation, nil, suggestions...)
}

// ErrorWithContext is Error with key/value details, printed in key order
func (p *Printer) ErrorWithContext(title string, explanation string, context map[string]string, suggestions ...string) error {
	red.Fprintf(p.errOut, "%s\n\n", title)

	if explanation != "" {
		fmt.Fprintf(p.errOut, "%s\n", explanation)
	}

	if len(context) > 0 {
		keys := make([]string, 0, len(context))
		for key := range context {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		fmt.Fprintf(p.errOut, "\n")
		for _, key := range keys {
			fmt.Fprintf(p.errOut, "  %s: %s\n", key, context[key])
		}
	}

	switch len(suggestions) {
	case 0:
	case 1:
		fmt.Fprintf(p.errOut, "\n%s\n", suggestions[0])
	default:
		fmt.Fprintf(p.errOut, "\nEither:\n")
		for i, suggestion := range suggestions {
			fmt.Fprintf(p.errOut, "  %d. %s\n", i+1, suggestion)
		}
	}

	// Cobra won't print this due to SilenceErrors
	return fmt.Errorf("%s", title)
}
