// Package corpus persists (doc_id, embedding) records as an append-only
// sequence and reads them back whole or in batches.
//
// The backend is chosen from the file name:
//
//	*.db, *.sqlite, *.sqlite3   SQLite table, one row per record
//	*.zst                       zstd-compressed JSON lines
//	*.lz4                       lz4-compressed JSON lines
//	anything else               plain JSON lines
//
// Every backend preserves insertion order.
package corpus

import (
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"
)

// DefaultBatchSize is the batch size ReadAll uses internally.
const DefaultBatchSize = 1024

var (
	// ErrCorrupt is returned when persisted data cannot be decoded.
	ErrCorrupt = errors.New("corpus is corrupt")
	// ErrDuplicateID is returned when a doc_id is appended twice.
	ErrDuplicateID = errors.New("duplicate doc_id")
	// ErrInvalidRecord is returned for records without an id or embedding.
	ErrInvalidRecord = errors.New("invalid record")
	// ErrDimensionMismatch is returned when a record's embedding length
	// differs from the corpus dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrClosed is returned when using a closed reader or writer.
	ErrClosed = errors.New("corpus is closed")
)

// Record is one corpus entry.
type Record struct {
	DocID     string    `json:"doc_id"`
	Embedding []float32 `json:"embedding"`
}

// Validate rejects records that cannot be searched: no id, no embedding, or
// a NaN or infinite component.
func (r Record) Validate() error {
	if r.DocID == "" {
		return fmt.Errorf("%w: empty doc_id", ErrInvalidRecord)
	}
	if len(r.Embedding) == 0 {
		return fmt.Errorf("%w: %s has an empty embedding", ErrInvalidRecord, r.DocID)
	}
	for i, f := range r.Embedding {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return fmt.Errorf("%w: %s has non-finite component %d", ErrInvalidRecord, r.DocID, i)
		}
	}
	return nil
}

// dimensionGuard pins a writer to the dimension of the first record it sees.
type dimensionGuard int

func (d *dimensionGuard) check(rec Record) error {
	if *d == 0 {
		return nil
	}
	if n := len(rec.Embedding); n != int(*d) {
		return fmt.Errorf("%w: %s has %d dimensions, corpus has %d", ErrDimensionMismatch, rec.DocID, n, int(*d))
	}
	return nil
}

func (d *dimensionGuard) observe(rec Record) {
	if *d == 0 {
		*d = dimensionGuard(len(rec.Embedding))
	}
}

// Writer appends records one at a time.
type Writer interface {
	Append(rec Record) error
	Close() error
}

// Reader reads records in insertion order.
type Reader interface {
	// NextBatch returns up to n records, or io.EOF when none are left.
	NextBatch(n int) ([]Record, error)
	// ReadAll returns every remaining record.
	ReadAll() ([]Record, error)
	Close() error
}

// Format identifies a storage backend.
type Format int

const (
	FormatJSONL Format = iota
	FormatZstd
	FormatLZ4
	FormatSQLite
)

func (f Format) String() string {
	switch f {
	case FormatJSONL:
		return "jsonl"
	case FormatZstd:
		return "jsonl+zstd"
	case FormatLZ4:
		return "jsonl+lz4"
	case FormatSQLite:
		return "sqlite"
	default:
		return fmt.Sprintf("Unknown(%d)", int(f))
	}
}

// FormatFor picks the backend for a path.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite
	case ".zst":
		return FormatZstd
	case ".lz4":
		return FormatLZ4
	default:
		return FormatJSONL
	}
}

// Open opens a corpus for reading.
func Open(path string) (Reader, error) {
	if FormatFor(path) == FormatSQLite {
		return openSQLiteReader(path)
	}
	return openStreamReader(path)
}

// Create creates a corpus, discarding any existing content.
func Create(path string) (Writer, error) {
	if FormatFor(path) == FormatSQLite {
		return createSQLiteWriter(path, true)
	}
	return createStreamWriter(path, true)
}

// OpenAppend opens a corpus for appending, creating it if needed. Existing
// ids are loaded so duplicates are rejected across sessions.
func OpenAppend(path string) (Writer, error) {
	if FormatFor(path) == FormatSQLite {
		return createSQLiteWriter(path, false)
	}
	return createStreamWriter(path, false)
}

// WriteAll creates a corpus holding records.
func WriteAll(path string, records []Record) error {
	w, err := Create(path)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := w.Append(rec); err != nil {
			_ = w.Close()
			return err
		}
	}
	return w.Close()
}

// ReadFile reads every record of the corpus at path.
func ReadFile(path string) ([]Record, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.ReadAll()
}

func readAll(r Reader) ([]Record, error) {
	var all []Record
	for {
		batch, err := r.NextBatch(DefaultBatchSize)
		if errors.Is(err, io.EOF) {
			return all, nil
		}
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
	}
}

func checkBatchSize(n int) error {
	if n <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", n)
	}
	return nil
}
