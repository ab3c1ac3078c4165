// Package printer formats user-facing CLI output. Structured diagnostics go
// through zap; this package only renders what a person reads.
package printer

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
)

func init() {
	// Containers rarely attach a TTY. NO_COLOR still disables colours.
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	// Out and Err are where messages are written. Tests swap them.
	Out io.Writer = os.Stdout
	Err io.Writer = os.Stderr

	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	faint  = color.New(color.Faint)
)

func prefixed(prefix, format string, a []any) string {
	msg := fmt.Sprintf(format, a...)
	if strings.HasPrefix(msg, prefix) {
		return msg
	}
	return prefix + " " + msg
}

// Success prints a green message with a checkmark.
func Success(format string, a ...any) {
	green.Fprint(Out, prefixed("✓", format, a))
}

// Warning prints a yellow message with a warning sign.
func Warning(format string, a ...any) {
	yellow.Fprint(Out, prefixed("⚠️ ", format, a))
}

// Step prints a progress line for multi-step operations.
func Step(format string, a ...any) {
	cyan.Fprint(Out, prefixed("→", format, a))
}

// Info prints an uncoloured message.
func Info(format string, a ...any) {
	fmt.Fprintf(Out, format, a...)
}

// Field prints an aligned "label: value" line.
func Field(label string, value any) {
	faint.Fprintf(Out, "  %-18s", label+":")
	fmt.Fprintf(Out, " %v\n", value)
}

// Error prints a formatted error to Err and returns an error holding only
// the title, for cobra to propagate with SilenceErrors set.
func Error(title, explanation string, suggestions []string) error {
	return ErrorWithContext(title, explanation, nil, suggestions)
}

// ErrorWithContext is Error with a block of key/value details, sorted by key.
func ErrorWithContext(title, explanation string, details map[string]string, suggestions []string) error {
	red.Fprintf(Err, "%s\n\n", title)
	if explanation != "" {
		fmt.Fprintf(Err, "%s\n", explanation)
	}

	if len(details) > 0 {
		keys := make([]string, 0, len(details))
		for k := range details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(Err)
		for _, k := range keys {
			fmt.Fprintf(Err, "  %s: %s\n", k, details[k])
		}
	}

	switch len(suggestions) {
	case 0:
	case 1:
		fmt.Fprintf(Err, "\n%s\n", suggestions[0])
	default:
		fmt.Fprintf(Err, "\nEither:\n")
		for i, s := range suggestions {
			fmt.Fprintf(Err, "  %d. %s\n", i+1, s)
		}
	}

	return fmt.Errorf("%s", title)
}
