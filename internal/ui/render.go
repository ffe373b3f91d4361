// Package ui renders catalog listings, signal values and register dumps for
// the terminal.
package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tturner/farmreg/internal/catalog"
	"github.com/tturner/farmreg/internal/dispatch"
)

var (
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	sectionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	metaStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	frameStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("12")).
			Padding(0, 1)
)

// Title renders a heading.
func Title(s string) string {
	return titleStyle.Render(s)
}

// Section renders a sub-heading.
func Section(s string) string {
	return sectionStyle.Render(s)
}

// OK renders a success marker line.
func OK(format string, args ...any) string {
	return okStyle.Render("OK") + " " + fmt.Sprintf(format, args...)
}

// Fail renders a failure marker line.
func Fail(format string, args ...any) string {
	return errStyle.Render("FAIL") + " " + fmt.Sprintf(format, args...)
}

// RenderSignalTable lists signals one per line.
func RenderSignalTable(signals []*catalog.Signal) string {
	var b strings.Builder
	b.WriteString(sectionStyle.Render(fmt.Sprintf("%-56s %-9s %4s %-5s %-5s %-6s %s",
		"NAME", "KIND", "ADDR", "BITS", "ACC", "UNIT", "LABEL")))
	b.WriteString("\n")
	for _, s := range signals {
		fmt.Fprintf(&b, "%-56s %-9s %4d %-5s %-5s %-6s %s\n",
			s.Name, s.Kind, s.Address, s.BitsString(), s.Access, s.Unit, s.Label)
	}
	b.WriteString(metaStyle.Render(fmt.Sprintf("%d signal(s)", len(signals))))
	return b.String()
}

// RenderSignalDetail shows every attribute of one signal.
func RenderSignalDetail(s *catalog.Signal) string {
	lines := []string{
		titleStyle.Render(s.Name),
		"",
		field("Label", s.Label),
		field("Kind", string(s.Kind)),
		field("Category", string(s.Category())),
		field("Address", fmt.Sprintf("%d (0x%04X)", s.Address, s.Address)),
		field("Bits", s.BitsString()),
		field("Words", fmt.Sprintf("%d", s.WordCount)),
		field("Access", string(s.Access)),
		field("Writable", fmt.Sprintf("%t", s.Writable())),
	}
	if !s.Kind.IsBitField() {
		lines = append(lines, field("Scale", fmt.Sprintf("%g", s.Scale)))
	}
	if s.Unit != "" {
		lines = append(lines, field("Unit", s.Unit))
	}
	if s.Alias != "" {
		lines = append(lines, field("Alias", s.Alias))
	}
	if s.Description != "" {
		lines = append(lines, "", metaStyle.Render(s.Description))
	}
	return frameStyle.Render(strings.Join(lines, "\n"))
}

func field(name, value string) string {
	return fmt.Sprintf("%-10s %s", sectionStyle.Render(name+":"), value)
}

// RenderValues prints one line per name in the given order: the decoded
// value, the raw word(s) and the error for failed names.
func RenderValues(names []string, results dispatch.Results) string {
	var b strings.Builder
	width := 0
	for _, n := range names {
		if len(n) > width {
			width = len(n)
		}
	}
	for _, name := range names {
		res, ok := results[name]
		if !ok {
			continue
		}
		if res.Err != nil {
			fmt.Fprintf(&b, "%-*s  %s\n", width, name, errStyle.Render(res.Err.Error()))
			continue
		}
		fmt.Fprintf(&b, "%-*s  %-14s %s\n", width, name, res.Value.String(),
			metaStyle.Render(RenderRaw(res.Value.Raw)))
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderRaw renders words as "0x00A0" or "0x0001 0x0002".
func RenderRaw(words []uint16) string {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = fmt.Sprintf("0x%04X", w)
	}
	return strings.Join(parts, " ")
}

// RenderWords dumps count words from addr with the signals decoded from
// each address alongside.
func RenderWords(cat *catalog.Catalog, addr uint16, words []uint16) string {
	var b strings.Builder
	b.WriteString(sectionStyle.Render(fmt.Sprintf("%-5s %-6s %6s %-16s %s", "ADDR", "HEX", "DEC", "BINARY", "SIGNALS")))
	b.WriteString("\n")
	for i, w := range words {
		a := addr + uint16(i)
		names := make([]string, 0)
		for _, s := range cat.ByAddress(a) {
			names = append(names, s.Name)
		}
		sort.Strings(names)
		fmt.Fprintf(&b, "%-5d 0x%04X %6d %016b %s\n", a, w, w, w, metaStyle.Render(summarize(names, 3)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func summarize(names []string, limit int) string {
	if len(names) <= limit {
		return strings.Join(names, ", ")
	}
	return fmt.Sprintf("%s (+%d)", strings.Join(names[:limit], ", "), len(names)-limit)
}

// RenderLint prints lint warnings and errors.
func RenderLint(result *catalog.ValidationResult) string {
	var lines []string
	for _, e := range result.Errors {
		lines = append(lines, errStyle.Render("error")+"   "+e.Error())
	}
	for _, w := range result.Warnings {
		lines = append(lines, warnStyle.Render("warning")+" "+w.Error())
	}
	if len(lines) == 0 {
		return okStyle.Render("no findings")
	}
	return strings.Join(lines, "\n")
}
