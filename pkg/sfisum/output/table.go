package output

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
)

var tableHeader = []string{"CATEGORY", "SEVERITY", "HASH", "PATH", "FROM"}

// tableRows flattens the report into one row per path. Moved groups get a
// row per on-disk path, with the manifest paths joined by ';' in FROM.
func tableRows(r *Result) [][]string {
	var rows [][]string
	for i := range r.Categories {
		c := &r.Categories[i]
		sev := c.Severity.String()
		for _, p := range c.Paths {
			rows = append(rows, []string{c.Key, sev, "", p, ""})
		}
		for _, g := range c.Groups {
			from := strings.Join(g.From, ";")
			for _, p := range g.Disk {
				rows = append(rows, []string{c.Key, sev, g.Hash, p, from})
			}
		}
	}
	return rows
}

// TSVFormatter writes the findings as tab-separated values with a header row.
type TSVFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *TSVFormatter) Format(w *bytes.Buffer, r *Result) error {
	w.WriteString(strings.Join(tableHeader, "\t"))
	w.WriteByte('\n')
	for _, row := range tableRows(r) {
		w.WriteString(strings.Join(row, "\t"))
		w.WriteByte('\n')
	}
	return nil
}

// CSVFormatter writes the findings as RFC 4180 comma-separated values.
type CSVFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *CSVFormatter) Format(w *bytes.Buffer, r *Result) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(tableHeader); err != nil {
		return err
	}
	if err := writer.WriteAll(tableRows(r)); err != nil {
		return err
	}
	return writer.Error()
}

// MarkdownFormatter writes the findings as a GitHub-flavored Markdown table.
type MarkdownFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *MarkdownFormatter) Format(w *bytes.Buffer, r *Result) error {
	w.WriteString("| " + strings.Join(tableHeader, " | ") + " |\n")
	w.WriteString(strings.Repeat("|---", len(tableHeader)) + "|\n")
	for _, row := range tableRows(r) {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = escapeMarkdownPipe(cell)
		}
		fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | "))
	}
	return nil
}

// escapeMarkdownPipe escapes pipe characters in a string for Markdown tables.
func escapeMarkdownPipe(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func init() {
	Register("tsv", func() Formatter { return &TSVFormatter{} })
	Register("csv", func() Formatter { return &CSVFormatter{} })
	Register("markdown", func() Formatter { return &MarkdownFormatter{} })
}

var (
	_ Formatter = (*TSVFormatter)(nil)
	_ Formatter = (*CSVFormatter)(nil)
	_ Formatter = (*MarkdownFormatter)(nil)
)
