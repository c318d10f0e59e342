// Package ui renders command output: styled status lines, tables and
// Markdown.
package ui

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/pterm/pterm"
)

var (
	// Colors
	PrimaryColor   = lipgloss.Color("#00D9FF")
	SuccessColor   = lipgloss.Color("#00FF88")
	WarningColor   = lipgloss.Color("#FFB800")
	ErrorColor     = lipgloss.Color("#FF4444")
	SecondaryColor = lipgloss.Color("#6C757D")

	// Styles
	TitleStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(SuccessColor).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(WarningColor).
			Bold(true)

	SecondaryStyle = lipgloss.NewStyle().
			Foreground(SecondaryColor)
)

// Printer writes user-facing output. Plain disables colors and borders.
type Printer struct {
	Out   io.Writer
	Err   io.Writer
	Plain bool
}

// New creates a printer writing to out and errOut. Nil writers default to
// the process streams.
func New(out, errOut io.Writer, plain bool) *Printer {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return &Printer{Out: out, Err: errOut, Plain: plain}
}

func (p *Printer) render(style lipgloss.Style, s string) string {
	if p.Plain {
		return s
	}
	return style.Render(s)
}

// color returns a color scoped to this printer.
func (p *Printer) color(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if p.Plain {
		c.DisableColor()
	}
	return c
}

// Header prints a title line with an optional subtitle.
func (p *Printer) Header(title, subtitle string) {
	fmt.Fprintln(p.Out, p.render(TitleStyle, title))
	if subtitle != "" {
		fmt.Fprintln(p.Out, p.render(SecondaryStyle, subtitle))
	}
	fmt.Fprintln(p.Out)
}

// Success prints a success message
func (p *Printer) Success(format string, args ...any) {
	fmt.Fprintln(p.Out, p.render(SuccessStyle, "✓ "+fmt.Sprintf(format, args...)))
}

// Error prints an error message
func (p *Printer) Error(format string, args ...any) {
	fmt.Fprintln(p.Err, p.render(ErrorStyle, "✗ "+fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func (p *Printer) Warning(format string, args ...any) {
	fmt.Fprintln(p.Out, p.render(WarningStyle, "⚠ "+fmt.Sprintf(format, args...)))
}

// Table prints a table using pterm
func (p *Printer) Table(headers []string, rows [][]string) error {
	data := pterm.TableData{headers}
	data = append(data, rows...)

	table := pterm.DefaultTable.WithHasHeader().WithData(data)
	if p.Plain {
		table = table.WithHeaderStyle(pterm.NewStyle()).WithSeparatorStyle(pterm.NewStyle())
	}
	out, err := table.Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(p.Out, out)
	return nil
}

// Markdown renders Markdown content.
func (p *Printer) Markdown(content string) error {
	style := glamour.WithAutoStyle()
	if p.Plain {
		style = glamour.WithStandardStyle("notty")
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(80))
	if err != nil {
		return err
	}
	out, err := r.Render(content)
	if err != nil {
		return err
	}
	fmt.Fprint(p.Out, out)
	return nil
}

// Outcome prints the result line of one task run.
func (p *Printer) Outcome(path, requestID string, d time.Duration, err error) {
	ok := p.color(color.FgGreen, color.Bold)
	failed := p.color(color.FgRed, color.Bold)
	dim := p.color(color.FgHiBlack)

	if err != nil {
		failed.Fprint(p.Out, "FAIL ")
	} else {
		ok.Fprint(p.Out, "OK   ")
	}
	fmt.Fprintf(p.Out, "%s ", path)
	dim.Fprintf(p.Out, "(%s, %s)", requestID, d.Round(time.Millisecond))
	fmt.Fprintln(p.Out)
	if err != nil {
		fmt.Fprintf(p.Out, "     %v\n", err)
	}
}
