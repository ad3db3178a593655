package corpus

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
)

type streamWriter struct {
	path string
	file *os.File
	buf  *bufio.Writer
	comp io.WriteCloser
	out  io.Writer
	ids  map[string]struct{}
	dims dimensionGuard
}

func createStreamWriter(path string, truncate bool) (*streamWriter, error) {
	ids := make(map[string]struct{})
	var dims dimensionGuard
	if !truncate {
		existing, err := ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to scan existing corpus %s: %w", path, err)
		}
		for _, rec := range existing {
			ids[rec.DocID] = struct{}{}
			dims.observe(rec)
		}
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create corpus directory: %w", err)
		}
	}

	flag := os.O_WRONLY | os.O_CREATE | os.O_APPEND
	if truncate {
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, err
	}

	w := &streamWriter{path: path, file: f, buf: bufio.NewWriter(f), ids: ids, dims: dims}
	w.out = w.buf
	comp, err := newCompressor(FormatFor(path), w.buf)
	if err != nil {
		f.Close()
		return nil, err
	}
	if comp != nil {
		w.comp = comp
		w.out = comp
	}
	return w, nil
}

// Append serializes one record as a JSON line.
func (w *streamWriter) Append(rec Record) error {
	if w.file == nil {
		return ErrClosed
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	if _, ok := w.ids[rec.DocID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, rec.DocID)
	}
	if err := w.dims.check(rec); err != nil {
		return err
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.DocID, err)
	}
	if _, err := w.out.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write record %s: %w", rec.DocID, err)
	}
	w.ids[rec.DocID] = struct{}{}
	w.dims.observe(rec)
	return nil
}

// Close flushes the compressor and buffer and closes the file.
func (w *streamWriter) Close() error {
	if w.file == nil {
		return nil
	}
	var errs []error
	if w.comp != nil {
		errs = append(errs, w.comp.Close())
	}
	errs = append(errs, w.buf.Flush(), w.file.Close())
	w.file = nil
	return errors.Join(errs...)
}

type streamReader struct {
	path   string
	file   *os.File
	lines  *bufio.Reader
	decomp io.Closer
	line   int
	eof    bool
}

func openStreamReader(path string) (*streamReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	src := bufio.NewReader(f)
	in, decomp, err := newDecompressor(FormatFor(path), src)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}

	return &streamReader{
		path:   path,
		file:   f,
		lines:  bufio.NewReader(in),
		decomp: decomp,
	}, nil
}

// NextBatch decodes up to n JSON lines.
func (r *streamReader) NextBatch(n int) ([]Record, error) {
	if err := checkBatchSize(n); err != nil {
		return nil, err
	}
	if r.file == nil {
		return nil, ErrClosed
	}

	var batch []Record
	for len(batch) < n && !r.eof {
		line, err := r.lines.ReadBytes('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, r.path, err)
			}
			r.eof = true
			if len(line) == 0 {
				break
			}
		}
		r.line++

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", ErrCorrupt, r.path, r.line, err)
		}
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", ErrCorrupt, r.path, r.line, err)
		}
		batch = append(batch, rec)
	}

	if len(batch) == 0 {
		return nil, io.EOF
	}
	return batch, nil
}

func (r *streamReader) ReadAll() ([]Record, error) { return readAll(r) }

func (r *streamReader) Close() error {
	if r.file == nil {
		return nil
	}
	if r.decomp != nil {
		_ = r.decomp.Close()
	}
	err := r.file.Close()
	r.file = nil
	return err
}
