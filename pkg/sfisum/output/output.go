// Package output renders sfisum run reports in several formats (pretty,
// plain, json, yaml, paths). Formatters are looked up by name through a
// registry, so the CLI can expose them with a single --format flag.
//
//	f, err := output.Get("pretty")
//	if err != nil {
//	    return err
//	}
//	var buf bytes.Buffer
//	if err := f.Format(&buf, report); err != nil {
//	    return err
//	}
package output

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Severity ranks a report category.
type Severity int

// Severities from benign to serious.
const (
	SeverityOK Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityOK:
		return "ok"
	case SeverityWarning:
		return "warning"
	default:
		return "error"
	}
}

// MarshalText encodes the severity by name in json and yaml output.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Category keys.
const (
	KeyHashErrors            = "hash_errors"
	KeyInvalidHash           = "invalid_hash"
	KeyChangedSize           = "changed_size"
	KeyChangedDate           = "changed_date"
	KeyChangedSizeAndDate    = "changed_size_and_date"
	KeyOnlyInManifest        = "only_in_manifest"
	KeyOnlyOnDisk            = "only_on_disk"
	KeyOnlyInManifestWithDup = "only_in_manifest_with_duplicate"
	KeyMetadataOnly          = "metadata_only"
	KeyMoved                 = "moved"
)

// Group lists paths that share one content hash: where the content is now,
// and where the manifest said it was.
type Group struct {
	Hash string   `json:"hash" yaml:"hash"`
	Disk []string `json:"disk" yaml:"disk"`
	From []string `json:"from_manifest" yaml:"from_manifest"`
}

// Category is one bucket of findings.
type Category struct {
	Key      string   `json:"key" yaml:"key"`
	Title    string   `json:"title" yaml:"title"`
	Severity Severity `json:"severity" yaml:"severity"`
	Paths    []string `json:"paths,omitempty" yaml:"paths,omitempty"`
	Groups   []Group  `json:"groups,omitempty" yaml:"groups,omitempty"`
}

// Count returns the number of entries in the category. A group counts once.
func (c *Category) Count() int {
	return len(c.Paths) + len(c.Groups)
}

// Result is the report of one engine run.
type Result struct {
	Mode       string        `json:"mode" yaml:"mode"`
	Algorithm  string        `json:"algorithm" yaml:"algorithm"`
	BasePath   string        `json:"base_path" yaml:"base_path"`
	Manifest   string        `json:"manifest,omitempty" yaml:"manifest,omitempty"`
	SavedTo    string        `json:"saved_to,omitempty" yaml:"saved_to,omitempty"`
	Files      int           `json:"files" yaml:"files"`
	TotalBytes uint64        `json:"total_bytes" yaml:"total_bytes"`
	Hashed     int           `json:"hashed" yaml:"hashed"`
	Unchanged  int           `json:"unchanged,omitempty" yaml:"unchanged,omitempty"`
	Elapsed    time.Duration `json:"-" yaml:"-"`
	Events     int           `json:"events" yaml:"events"`
	Categories []Category    `json:"categories" yaml:"categories"`
	Warnings   []string      `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Add appends a category unless it is empty.
func (r *Result) Add(c Category) {
	if c.Count() == 0 {
		return
	}
	r.Categories = append(r.Categories, c)
}

// Category returns the category with the given key, or nil.
func (r *Result) Category(key string) *Category {
	for i := range r.Categories {
		if r.Categories[i].Key == key {
			return &r.Categories[i]
		}
	}
	return nil
}

// Totals sums category counts by severity.
func (r *Result) Totals() (ok, warnings, errors int) {
	for i := range r.Categories {
		c := &r.Categories[i]
		switch c.Severity {
		case SeverityOK:
			ok += c.Count()
		case SeverityWarning:
			warnings += c.Count()
		case SeverityError:
			errors += c.Count()
		}
	}
	return ok, warnings, errors
}

// Formatter renders a Result.
type Formatter interface {
	Format(w *bytes.Buffer, r *Result) error
}

// FormatterFactory creates a Formatter.
type FormatterFactory func() Formatter

// Registry maps formatter names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]FormatterFactory)}
}

// Register adds or replaces a formatter.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns the registered names, sorted.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry holds the built-in formatters.
var DefaultRegistry = NewRegistry()

// Register adds a formatter to DefaultRegistry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a formatter from DefaultRegistry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available lists the formatters in DefaultRegistry.
func Available() []string {
	return DefaultRegistry.Available()
}

// formatDuration renders d for humans: milliseconds under a second, one
// decimal under a minute, then minutes and hours.
func formatDuration(d time.Duration) string {
	sec := d.Seconds()
	if sec < 1 {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if sec < 60 {
		return fmt.Sprintf("%.1fs", sec)
	}
	minutes := int(sec) / 60
	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, int(sec)%60)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}
