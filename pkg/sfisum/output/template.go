package output

import (
	"bytes"
	"sync"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"
)

// TemplateFormatter renders the report through a user supplied text/template.
// The data is the Result plus a Totals field with OK, Warnings and Errors.
type TemplateFormatter struct {
	mu          sync.Mutex
	templateStr string
	template    *template.Template
}

type templateData struct {
	*Result
	Totals totals
}

// NewTemplateFormatter creates a formatter for templateStr. The template is
// parsed on first use.
func NewTemplateFormatter(templateStr string) *TemplateFormatter {
	return &TemplateFormatter{templateStr: templateStr}
}

// SetTemplate replaces the template.
func (f *TemplateFormatter) SetTemplate(templateStr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.templateStr = templateStr
	f.template = nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		// {{bytes .TotalBytes}}
		"bytes": func(n uint64) string { return humanize.IBytes(n) },
		// {{duration .Elapsed}}
		"duration": func(d time.Duration) string { return formatDuration(d) },
		// {{count .}} inside range .Categories
		"count": func(c Category) int { return c.Count() },
	}
}

// Format writes the formatted output to the buffer.
func (f *TemplateFormatter) Format(w *bytes.Buffer, r *Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.template == nil {
		tmpl, err := template.New("output").Funcs(templateFuncs()).Parse(f.templateStr)
		if err != nil {
			return err
		}
		f.template = tmpl
	}

	return f.template.Execute(w, templateData{Result: r, Totals: totalsOf(r)})
}

// DefaultTemplate prints one summary line and a count per category.
const DefaultTemplate = `{{.Mode}} {{.BasePath}}: {{.Files}} files, {{bytes .TotalBytes}}, {{.Events}} events in {{duration .Elapsed}}
{{range .Categories}}{{.Key}}	{{count .}}
{{end}}`

func init() {
	Register("template", func() Formatter {
		return NewTemplateFormatter(DefaultTemplate)
	})
}

var _ Formatter = (*TemplateFormatter)(nil)
