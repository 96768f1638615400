// Package history records a summary of every sfisum run in a Badger
// database so past audits can be listed and compared.
package history

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/jamesainslie/sfisum/pkg/sfisum/output"
)

// Errors returned by Store lookups.
var (
	ErrNotFound  = errors.New("history entry not found")
	ErrAmbiguous = errors.New("history id prefix is ambiguous")
)

var (
	runPrefix = []byte("run/")
	idPrefix  = []byte("id/")
)

// DefaultPath returns the default database directory.
func DefaultPath() string {
	return filepath.Join(xdg.DataHome, "sfisum", "history")
}

// Totals mirrors output.Result.Totals.
type Totals struct {
	OK       int `json:"ok"`
	Warnings int `json:"warnings"`
	Errors   int `json:"errors"`
}

// Entry summarizes one run.
type Entry struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Mode       string         `json:"mode"`
	Algorithm  string         `json:"algorithm"`
	BasePath   string         `json:"base_path"`
	Manifest   string         `json:"manifest,omitempty"`
	SavedTo    string         `json:"saved_to,omitempty"`
	Files      int            `json:"files"`
	TotalBytes uint64         `json:"total_bytes"`
	Hashed     int            `json:"hashed"`
	Elapsed    time.Duration  `json:"elapsed"`
	Events     int            `json:"events"`
	Counts     map[string]int `json:"counts,omitempty"`
	Totals     Totals         `json:"totals"`
	Error      string         `json:"error,omitempty"`
}

// ShortID returns the first eight characters of the ID.
func (e *Entry) ShortID() string {
	if len(e.ID) > 8 {
		return e.ID[:8]
	}
	return e.ID
}

// FromResult builds an entry from a run report. runErr, when non-nil, is
// recorded as the run's failure.
func FromResult(r *output.Result, runErr error) *Entry {
	ok, warnings, errs := r.Totals()
	e := &Entry{
		Mode:       r.Mode,
		Algorithm:  r.Algorithm,
		BasePath:   r.BasePath,
		Manifest:   r.Manifest,
		SavedTo:    r.SavedTo,
		Files:      r.Files,
		TotalBytes: r.TotalBytes,
		Hashed:     r.Hashed,
		Elapsed:    r.Elapsed,
		Events:     r.Events,
		Totals:     Totals{OK: ok, Warnings: warnings, Errors: errs},
	}
	if len(r.Categories) > 0 {
		e.Counts = make(map[string]int, len(r.Categories))
		for i := range r.Categories {
			e.Counts[r.Categories[i].Key] = r.Categories[i].Count()
		}
	}
	if runErr != nil {
		e.Error = runErr.Error()
	}
	return e
}

// Store wraps Badger for history operations.
type Store struct {
	db  *badger.DB
	now func() time.Time
}

// Open opens or creates a history store in dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// runKey orders runs by time: run/<big-endian unix nanos>/<id>.
func runKey(ts time.Time, id string) []byte {
	key := make([]byte, 0, len(runPrefix)+8+1+len(id))
	key = append(key, runPrefix...)
	key = binary.BigEndian.AppendUint64(key, uint64(ts.UnixNano()))
	key = append(key, '/')
	return append(key, id...)
}

func idKey(id string) []byte {
	return append(append([]byte(nil), idPrefix...), id...)
}

// Log stores e, assigning its ID and timestamp when unset.
func (s *Store) Log(e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now().UTC()
	}

	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode history entry: %w", err)
	}
	key := runKey(e.Timestamp, e.ID)

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, value); err != nil {
			return err
		}
		return txn.Set(idKey(e.ID), key)
	})
}

// List returns entries newest first. A limit of zero or less returns all.
func (s *Store) List(limit int) ([]Entry, error) {
	entries := []Entry{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = runPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration seeks to the last key not greater than the seek key.
		seek := append(append([]byte(nil), runPrefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(runPrefix); it.Next() {
			var e Entry
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &e)
			}); err != nil {
				return err
			}
			entries = append(entries, e)
			if limit > 0 && len(entries) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return entries, nil
}

// Get returns the entry whose ID equals id or, failing that, the only entry
// whose ID starts with id.
func (s *Store) Get(id string) (*Entry, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrNotFound)
	}

	var e Entry
	err := s.db.View(func(txn *badger.Txn) error {
		runK, err := s.resolve(txn, id)
		if err != nil {
			return err
		}
		item, err := txn.Get(runK)
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &e)
		})
	})
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) resolve(txn *badger.Txn, id string) ([]byte, error) {
	item, err := txn.Get(idKey(id))
	if err == nil {
		return item.ValueCopy(nil)
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return nil, err
	}

	prefix := idKey(id)
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 2})
	defer it.Close()

	var found []byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if found != nil {
			return nil, fmt.Errorf("%w: %s", ErrAmbiguous, id)
		}
		found, err = it.Item().ValueCopy(nil)
		if err != nil {
			return nil, err
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return found, nil
}

// Cleanup removes entries older than retentionDays and returns how many
// were removed. A retention of zero or less keeps everything.
func (s *Store) Cleanup(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := runKey(s.now().AddDate(0, 0, -retentionDays), "")

	removed := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(runPrefix); it.ValidForPrefix(runPrefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if string(key) >= string(cutoff) {
				break
			}
			id := key[len(runPrefix)+9:]
			if err := txn.Delete(key); err != nil {
				return err
			}
			if err := txn.Delete(idKey(string(id))); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to clean history: %w", err)
	}
	return removed, nil
}
