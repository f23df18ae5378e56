// Package report renders parse results for a terminal.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"

	"github.com/kernelci/logspec/internal/faults"
	"github.com/kernelci/logspec/internal/parser"
)

// DefaultWidth is used when the terminal width is unknown.
const DefaultWidth = 100

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("247"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	errorTypeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214"))
)

// Options controls rendering.
type Options struct {
	// Parser is the parser id shown in the title.
	Parser string
	// Width is the total width available. Zero selects DefaultWidth.
	Width int
	// Verbose adds the summaries and the log excerpt of every fault.
	Verbose bool
}

// Render returns a styled summary of res.
func Render(res *parser.Result, opts Options) string {
	width := opts.Width
	if width <= 0 {
		width = DefaultWidth
	}
	// Border and padding take four columns.
	inner := max(width-4, 20)

	var b strings.Builder
	title := "logspec"
	if opts.Parser != "" {
		title += ": " + opts.Parser
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")

	keys := make([]string, 0, len(res.Fields))
	labelWidth := 0
	for k := range res.Fields {
		if strings.HasPrefix(k, "_") {
			continue
		}
		keys = append(keys, k)
		labelWidth = max(labelWidth, len(k))
	}
	sort.Strings(keys)
	for _, k := range keys {
		label := labelStyle.Render(fmt.Sprintf("%-*s", labelWidth, k))
		b.WriteString(label + "  " + renderValue(res.Fields[k]) + "\n")
	}
	if res.Signature != "" {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-*s", labelWidth, "signature")) + "  " + dimStyle.Render(res.Signature) + "\n")
	}

	if opts.Verbose && len(res.Summary) > 0 {
		b.WriteString("\n")
		for _, s := range res.Summary {
			b.WriteString(dimStyle.Render("• "+truncate.StringWithTail(s, uint(inner-2), "...")) + "\n")
		}
	}

	b.WriteString("\n")
	if len(res.Errors) == 0 {
		b.WriteString(successStyle.Render("No errors found"))
	} else {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Errors (%d)", len(res.Errors))))
		for i, e := range res.Errors {
			b.WriteString("\n")
			b.WriteString(renderError(i+1, e, inner, opts.Verbose))
		}
	}

	return panelStyle.Width(width - 2).Render(b.String())
}

func renderValue(v any) string {
	switch val := v.(type) {
	case bool:
		if val {
			return successStyle.Render("✓ yes")
		}
		return errorStyle.Render("✗ no")
	case []string:
		return valueStyle.Render(strings.Join(val, ", "))
	default:
		return valueStyle.Render(fmt.Sprint(val))
	}
}

func renderError(n int, e faults.Error, width int, verbose bool) string {
	var b strings.Builder
	head := fmt.Sprintf("%d. %s", n, e.Type())
	b.WriteString(errorTypeStyle.Render(head))
	if e.Summary() != "" {
		summary := truncate.StringWithTail(e.Summary(), uint(max(width-len(head)-1, 10)), "...")
		b.WriteString(" " + valueStyle.Render(summary))
	}
	b.WriteString("\n")

	fields := faults.Fields(e, false)
	keys := make([]string, 0, len(fields))
	for k, v := range fields {
		if k == "error_type" || k == "error_summary" || faults.IsEmpty(v) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		line := fmt.Sprintf("   %s: %s", k, formatField(fields[k]))
		b.WriteString(dimStyle.Render(truncate.StringWithTail(line, uint(width), "...")) + "\n")
	}
	if verbose {
		if sig := e.Signature(); sig != "" {
			b.WriteString(dimStyle.Render("   signature: "+sig) + "\n")
		}
		if excerpt := strings.TrimSpace(e.Report()); excerpt != "" {
			wrapped := wordwrap.String(excerpt, width-3)
			for _, line := range strings.Split(wrapped, "\n") {
				b.WriteString(dimStyle.Render("   │ "+line) + "\n")
			}
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func formatField(v any) string {
	if list, ok := v.([]any); ok {
		parts := make([]string, len(list))
		for i, item := range list {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprint(v)
}
