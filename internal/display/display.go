// Package display renders run output to the terminal. The orchestrator
// treats it as a fire-and-forget collaborator: nothing here affects the
// outcome of an iteration.
package display

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
)

// Printer writes colorized run output. A nil Printer is valid and silent,
// which keeps display wiring optional in tests.
type Printer struct {
	out           io.Writer
	showReasoning bool

	text    *color.Color
	tool    *color.Color
	info    *color.Color
	warn    *color.Color
	errc    *color.Color
	success *color.Color
}

// NewPrinter creates a printer. When colorize is false all styling is
// suppressed but the text still flows.
func NewPrinter(out io.Writer, colorize, showReasoning bool) *Printer {
	if out == nil {
		out = os.Stdout
	}

	p := &Printer{
		out:           out,
		showReasoning: showReasoning,
		text:          color.New(color.Faint),
		tool:          color.New(color.FgCyan),
		info:          color.New(color.FgBlue),
		warn:          color.New(color.FgYellow),
		errc:          color.New(color.FgRed, color.Bold),
		success:       color.New(color.FgGreen, color.Bold),
	}
	if !colorize {
		for _, c := range []*color.Color{p.text, p.tool, p.info, p.warn, p.errc, p.success} {
			c.DisableColor()
		}
	}
	return p
}

// StreamText forwards a text delta as it arrives. No buffering: the
// point is to watch the assistant think.
func (p *Printer) StreamText(delta string) {
	if p == nil || !p.showReasoning {
		return
	}
	p.text.Fprint(p.out, delta)
}

// EndStream terminates the streamed text block.
func (p *Printer) EndStream() {
	if p == nil || !p.showReasoning {
		return
	}
	fmt.Fprintln(p.out)
}

// ToolCall announces a dispatched tool call.
func (p *Printer) ToolCall(name string) {
	if p == nil {
		return
	}
	p.tool.Fprintf(p.out, "⚙ %s\n", name)
}

// ToolError reports a recoverable tool failure.
func (p *Printer) ToolError(name string, err error) {
	if p == nil {
		return
	}
	p.warn.Fprintf(p.out, "⚙ %s failed: %v\n", name, err)
}

// Info prints a status line.
func (p *Printer) Info(format string, args ...any) {
	if p == nil {
		return
	}
	p.info.Fprintf(p.out, format+"\n", args...)
}

// Warn prints a non-fatal problem.
func (p *Printer) Warn(format string, args ...any) {
	if p == nil {
		return
	}
	p.warn.Fprintf(p.out, format+"\n", args...)
}

// Error prints a fatal problem.
func (p *Printer) Error(format string, args ...any) {
	if p == nil {
		return
	}
	p.errc.Fprintf(p.out, format+"\n", args...)
}

// Success prints a completion line.
func (p *Printer) Success(format string, args ...any) {
	if p == nil {
		return
	}
	p.success.Fprintf(p.out, format+"\n", args...)
}

var (
	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Padding(0, 1)

	bannerSubStyle = lipgloss.NewStyle().
			Faint(true).
			Padding(0, 1)
)

// Banner prints the run banner.
func (p *Printer) Banner(version string) {
	if p == nil {
		return
	}
	fmt.Fprintln(p.out, bannerStyle.Render("coralph "+version))
	fmt.Fprintln(p.out, bannerSubStyle.Render("iterate until done"))
}
