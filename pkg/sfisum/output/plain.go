package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
)

const sectionRule = "######"

// PlainFormatter renders an uncolored report: a summary table followed by
// one ruled section per category.
type PlainFormatter struct{}

// Format writes the report to w.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	fmt.Fprintf(tw, "mode:\t%s\n", r.Mode)
	fmt.Fprintf(tw, "hash:\t%s\n", r.Algorithm)
	fmt.Fprintf(tw, "directory:\t%s\n", r.BasePath)
	if r.Manifest != "" {
		fmt.Fprintf(tw, "manifest:\t%s\n", r.Manifest)
	}
	fmt.Fprintf(tw, "files:\t%d (%s)\n", r.Files, humanize.IBytes(r.TotalBytes))
	fmt.Fprintf(tw, "hashed:\t%d\n", r.Hashed)
	fmt.Fprintf(tw, "elapsed:\t%s\n", formatDuration(r.Elapsed))
	if r.SavedTo != "" {
		fmt.Fprintf(tw, "saved:\t%s\n", r.SavedTo)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	ok, warnings, errs := r.Totals()
	fmt.Fprintf(w, "There are %d successful operations, %d warnings and %d errors\n", ok, warnings, errs)

	for i := range r.Categories {
		c := &r.Categories[i]
		fmt.Fprintf(w, "%s\n%s\n%s\n", sectionRule, c.Title, sectionRule)
		for _, p := range c.Paths {
			fmt.Fprintln(w, p)
		}
		for _, g := range c.Groups {
			fmt.Fprintln(w, "------")
			for _, p := range g.Disk {
				fmt.Fprintln(w, p)
			}
			fmt.Fprintln(w, "From digest:")
			for _, p := range g.From {
				fmt.Fprintln(w, p)
			}
		}
	}

	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	return nil
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

var _ Formatter = (*PlainFormatter)(nil)
