package output

import (
	"bytes"
)

// PathsFormatter writes every flagged path once per line, for piping into
// other tools. Categories with SeverityOK are left out. For moved groups
// only the on-disk paths are listed.
type PathsFormatter struct{}

// Format writes the flagged paths to w.
func (f *PathsFormatter) Format(w *bytes.Buffer, r *Result) error {
	for _, p := range flaggedPaths(r) {
		w.WriteString(p)
		w.WriteByte('\n')
	}
	return nil
}

// NullFormatter is PathsFormatter with NUL separators, for xargs -0.
type NullFormatter struct{}

// Format writes the flagged paths to w.
func (f *NullFormatter) Format(w *bytes.Buffer, r *Result) error {
	for _, p := range flaggedPaths(r) {
		w.WriteString(p)
		w.WriteByte(0)
	}
	return nil
}

func flaggedPaths(r *Result) []string {
	var paths []string
	for i := range r.Categories {
		c := &r.Categories[i]
		if c.Severity == SeverityOK {
			continue
		}
		paths = append(paths, c.Paths...)
		for _, g := range c.Groups {
			paths = append(paths, g.Disk...)
		}
	}
	return paths
}

func init() {
	Register("paths", func() Formatter {
		return &PathsFormatter{}
	})
	Register("null", func() Formatter {
		return &NullFormatter{}
	})
}

var (
	_ Formatter = (*PathsFormatter)(nil)
	_ Formatter = (*NullFormatter)(nil)
)
