package output

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// PrettyFormatter renders a styled report for terminals.
type PrettyFormatter struct{}

// Format writes the report to w.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Result) error {
	w.WriteString(f.header(r))
	w.WriteString("\n")

	if len(r.Categories) == 0 {
		w.WriteString(SuccessStyle.Render("  Nothing to report"))
		w.WriteString("\n")
	}
	for i := range r.Categories {
		f.category(w, &r.Categories[i])
	}

	if len(r.Warnings) > 0 {
		w.WriteString("\n")
		w.WriteString(WarningStyle.Bold(true).Render("Warnings:"))
		w.WriteString("\n")
		for _, warning := range r.Warnings {
			w.WriteString(WarningStyle.Render("  " + warning))
			w.WriteString("\n")
		}
	}

	w.WriteString(f.footer(r))
	w.WriteString("\n")
	return nil
}

func (f *PrettyFormatter) header(r *Result) string {
	field := func(label, value string) string {
		return LabelStyle.Render(label) + " " + ValueStyle.Render(value)
	}

	lines := []string{
		field("Mode:", r.Mode) + "  " + field("Hash:", r.Algorithm),
		field("Directory:", r.BasePath),
	}
	if r.Manifest != "" {
		lines = append(lines, field("Manifest:", r.Manifest))
	}

	stats := fmt.Sprintf("%d files, %s, %d hashed in %s",
		r.Files, humanize.IBytes(r.TotalBytes), r.Hashed, formatDuration(r.Elapsed))
	if r.Unchanged > 0 {
		stats += fmt.Sprintf(", %d unchanged", r.Unchanged)
	}
	lines = append(lines, field("Scanned:", stats))

	return HeaderBox.Render(strings.Join(lines, "\n"))
}

func (f *PrettyFormatter) category(w *bytes.Buffer, c *Category) {
	accent := severityStyle(c.Severity)
	fmt.Fprintf(w, "%s %s\n",
		accent.Bold(true).Render(c.Title),
		MutedStyle.Render(fmt.Sprintf("(%d)", c.Count())))

	for _, p := range c.Paths {
		fmt.Fprintf(w, "  %s\n", PathStyle.Render(p))
	}
	for _, g := range c.Groups {
		fmt.Fprintf(w, "  %s\n", MutedStyle.Render(g.Hash))
		for _, p := range g.Disk {
			fmt.Fprintf(w, "    %s\n", PathStyle.Render(p))
		}
		fmt.Fprintf(w, "    %s\n", accent.Render("from digest:"))
		for _, p := range g.From {
			fmt.Fprintf(w, "    %s\n", MutedStyle.Render(p))
		}
	}
	w.WriteString("\n")
}

func (f *PrettyFormatter) footer(r *Result) string {
	ok, warnings, errs := r.Totals()
	parts := []string{
		SuccessStyle.Render(fmt.Sprintf("%d ok", ok)),
		WarningStyle.Render(fmt.Sprintf("%d warnings", warnings)),
		ErrorStyle.Render(fmt.Sprintf("%d errors", errs)),
	}
	if r.SavedTo != "" {
		parts = append(parts, LabelStyle.Render("Saved:")+" "+ValueStyle.Render(r.SavedTo))
	}
	return FooterBox.Render(strings.Join(parts, "  "))
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

var _ Formatter = (*PrettyFormatter)(nil)
