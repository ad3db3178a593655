package corpus

import (
	"bufio"
	"errors"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// newCompressor returns nil for uncompressed formats. Every writer session
// produces one complete frame, so appends to an existing file add a frame.
func newCompressor(format Format, w io.Writer) (io.WriteCloser, error) {
	switch format {
	case FormatZstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	case FormatLZ4:
		return lz4.NewWriter(w), nil
	default:
		return nil, nil
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// newDecompressor wraps src for the format. Concatenated frames are read as
// one stream.
func newDecompressor(format Format, src *bufio.Reader) (io.Reader, io.Closer, error) {
	switch format {
	case FormatZstd:
		dec, err := zstd.NewReader(src)
		if err != nil {
			return nil, nil, err
		}
		return dec, closerFunc(func() error { dec.Close(); return nil }), nil
	case FormatLZ4:
		return &lz4Frames{src: src, zr: lz4.NewReader(src)}, nil, nil
	default:
		return src, nil, nil
	}
}

// lz4Frames restarts the lz4 reader whenever a frame ends before the file does.
type lz4Frames struct {
	src *bufio.Reader
	zr  *lz4.Reader
}

func (r *lz4Frames) Read(p []byte) (int, error) {
	for {
		n, err := r.zr.Read(p)
		if !errors.Is(err, io.EOF) {
			return n, err
		}
		if _, perr := r.src.Peek(1); perr != nil {
			return n, io.EOF
		}
		r.zr.Reset(r.src)
		if n > 0 {
			return n, nil
		}
	}
}
