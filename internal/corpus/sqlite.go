package corpus

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS records (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	doc_id TEXT NOT NULL UNIQUE,
	embedding BLOB NOT NULL
)`

type sqliteWriter struct {
	db   *sql.DB
	tx   *sql.Tx
	dims dimensionGuard
}

func createSQLiteWriter(path string, truncate bool) (*sqliteWriter, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create corpus directory: %w", err)
		}
	}
	if truncate {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("remove existing corpus: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}

	w := &sqliteWriter{db: db}
	var blobLen int
	err = db.QueryRow(`SELECT length(embedding) FROM records ORDER BY seq LIMIT 1`).Scan(&blobLen)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		db.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	default:
		w.dims = dimensionGuard(blobLen / 4)
	}
	return w, nil
}

// Append inserts one row. Rows become visible to readers on Close.
func (w *sqliteWriter) Append(rec Record) error {
	if w.db == nil {
		return ErrClosed
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	if w.tx == nil {
		tx, err := w.db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		w.tx = tx
	}

	var exists int
	err := w.tx.QueryRow(`SELECT COUNT(1) FROM records WHERE doc_id = ?`, rec.DocID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", rec.DocID, err)
	}
	if exists > 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateID, rec.DocID)
	}
	if err := w.dims.check(rec); err != nil {
		return err
	}

	if _, err := w.tx.Exec(`INSERT INTO records (doc_id, embedding) VALUES (?, ?)`, rec.DocID, encodeVector(rec.Embedding)); err != nil {
		return fmt.Errorf("insert %s: %w", rec.DocID, err)
	}
	w.dims.observe(rec)
	return nil
}

// Close commits pending rows.
func (w *sqliteWriter) Close() error {
	if w.db == nil {
		return nil
	}
	var err error
	if w.tx != nil {
		err = w.tx.Commit()
		w.tx = nil
	}
	if cerr := w.db.Close(); err == nil {
		err = cerr
	}
	w.db = nil
	return err
}

type sqliteReader struct {
	path    string
	db      *sql.DB
	lastSeq int64
}

func openSQLiteReader(path string) (*sqliteReader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	var name string
	err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'records'`).Scan(&name)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	return &sqliteReader{path: path, db: db}, nil
}

// NextBatch pages through rows by seq, so insertion order is kept.
func (r *sqliteReader) NextBatch(n int) ([]Record, error) {
	if err := checkBatchSize(n); err != nil {
		return nil, err
	}
	if r.db == nil {
		return nil, ErrClosed
	}

	rows, err := r.db.Query(`SELECT seq, doc_id, embedding FROM records WHERE seq > ? ORDER BY seq LIMIT ?`, r.lastSeq, n)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, r.path, err)
	}
	defer rows.Close()

	var batch []Record
	for rows.Next() {
		var (
			seq  int64
			rec  Record
			blob []byte
		)
		if err := rows.Scan(&seq, &rec.DocID, &blob); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, r.path, err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("%w: %s row %d: %v", ErrCorrupt, r.path, seq, err)
		}
		rec.Embedding = vec
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s row %d: %v", ErrCorrupt, r.path, seq, err)
		}
		r.lastSeq = seq
		batch = append(batch, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, r.path, err)
	}

	if len(batch) == 0 {
		return nil, io.EOF
	}
	return batch, nil
}

func (r *sqliteReader) ReadAll() ([]Record, error) { return readAll(r) }

func (r *sqliteReader) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// encodeVector stores float32 values little-endian.
func encodeVector(v []float32) []byte {
	out := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(f))
	}
	return out
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out, nil
}
