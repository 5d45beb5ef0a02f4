package internal

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	progressStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)
)

// ProgressStep represents a single step in a multi-step process
type ProgressStep struct {
	Message string
	Fn      func() error
}

// Printer writes user-facing status lines, styled when attached to a terminal
type Printer struct {
	out io.Writer
	err io.Writer
}

// NewPrinter creates a printer for the given output and error streams
func NewPrinter(out, errOut io.Writer) *Printer {
	return &Printer{out: out, err: errOut}
}

// ShowProgressWithSteps runs steps in order, with a spinner on terminals
func (p *Printer) ShowProgressWithSteps(ctx context.Context, steps []ProgressStep) error {
	for i, step := range steps {
		msg := fmt.Sprintf("[%d/%d] %s", i+1, len(steps), step.Message)
		if !isTerminal(p.err) {
			fmt.Fprintln(p.err, msg)
			if err := step.Fn(); err != nil {
				return fmt.Errorf("%s: %w", step.Message, err)
			}
			continue
		}
		if err := p.showProgressSimple(ctx, msg, step.Fn); err != nil {
			return fmt.Errorf("%s: %w", step.Message, err)
		}
	}
	return nil
}

// showProgressSimple uses a simple text-based spinner
func (p *Printer) showProgressSimple(ctx context.Context, message string, fn func() error) error {
	spinnerChars := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	done := make(chan error, 1)
	stop := make(chan struct{})
	spinnerDone := make(chan struct{})

	go func() {
		defer close(spinnerDone)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		i := 0
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				char := spinnerChars[i%len(spinnerChars)]
				fmt.Fprintf(p.err, "\r%s %s", progressStyle.Render(char), message)
				i++
			}
		}
	}()

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		close(stop)
		<-spinnerDone
		if err != nil {
			fmt.Fprintf(p.err, "\r%s %s\n", errorStyle.Render("✗"), message)
			return err
		}
		fmt.Fprintf(p.err, "\r%s %s\n", successStyle.Render("✓"), message)
		return nil
	case <-ctx.Done():
		close(stop)
		<-spinnerDone
		return ctx.Err()
	}
}

// isTerminal checks if the writer is a terminal
func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil {
			return false
		}
		return (stat.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

// IsTerminal reports whether w is attached to a terminal
func IsTerminal(w io.Writer) bool {
	return isTerminal(w)
}

// Success prints a success message
func (p *Printer) Success(message string) {
	if isTerminal(p.out) {
		fmt.Fprintf(p.out, "%s %s\n", successStyle.Render("✓"), message)
	} else {
		fmt.Fprintln(p.out, message)
	}
}

// Error prints an error message
func (p *Printer) Error(message string) {
	if isTerminal(p.err) {
		fmt.Fprintf(p.err, "%s %s\n", errorStyle.Render("✗"), message)
	} else {
		fmt.Fprintf(p.err, "%s\n", message)
	}
}

// Info prints an info message
func (p *Printer) Info(message string) {
	if isTerminal(p.out) {
		fmt.Fprintf(p.out, "%s %s\n", progressStyle.Render("ℹ"), message)
	} else {
		fmt.Fprintln(p.out, message)
	}
}

// Warning prints a warning message
func (p *Printer) Warning(message string) {
	if isTerminal(p.err) {
		fmt.Fprintf(p.err, "%s %s\n", warningStyle.Render("⚠"), message)
	} else {
		fmt.Fprintf(p.err, "WARNING: %s\n", message)
	}
}
