package output

import (
	"bytes"
	"encoding/json"
)

// JSONFormatter writes the report as one indented JSON document.
type JSONFormatter struct{}

type jsonResult struct {
	*Result
	Elapsed string `json:"elapsed"`
	Totals  totals `json:"totals"`
}

type totals struct {
	OK       int `json:"ok" yaml:"ok"`
	Warnings int `json:"warnings" yaml:"warnings"`
	Errors   int `json:"errors" yaml:"errors"`
}

func totalsOf(r *Result) totals {
	ok, warnings, errs := r.Totals()
	return totals{OK: ok, Warnings: warnings, Errors: errs}
}

// Format writes the report to w.
func (f *JSONFormatter) Format(w *bytes.Buffer, r *Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonResult{
		Result:  r,
		Elapsed: r.Elapsed.String(),
		Totals:  totalsOf(r),
	})
}

func init() {
	Register("json", func() Formatter {
		return &JSONFormatter{}
	})
}

var _ Formatter = (*JSONFormatter)(nil)
