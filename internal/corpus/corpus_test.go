package corpus

import (
	"database/sql"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allFormats = []string{"corpus.jsonl", "corpus.jsonl.zst", "corpus.jsonl.lz4", "corpus.db"}

func sampleRecords(n, dim int) []Record {
	records := make([]Record, n)
	for i := range records {
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = float32(i*dim+j) / 10
		}
		records[i] = Record{DocID: fmt.Sprintf("d%d", i), Embedding: vec}
	}
	return records
}

func TestFormatFor(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"corpus.jsonl", FormatJSONL},
		{"corpus.pkl", FormatJSONL},
		{"data/corpus.jsonl.zst", FormatZstd},
		{"corpus.LZ4", FormatLZ4},
		{"corpus.db", FormatSQLite},
		{"corpus.sqlite3", FormatSQLite},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatFor(tt.path))
		})
	}
	assert.Equal(t, "sqlite", FormatSQLite.String())
}

func TestRoundTripAllFormats(t *testing.T) {
	records := sampleRecords(25, 4)
	for _, name := range allFormats {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			require.NoError(t, WriteAll(path, records))

			got, err := ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, records, got)
		})
	}
}

func TestNextBatch(t *testing.T) {
	records := sampleRecords(10, 3)
	for _, name := range allFormats {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, WriteAll(path, records))

			r, err := Open(path)
			require.NoError(t, err)
			defer r.Close()

			var sizes []int
			var got []Record
			for {
				batch, err := r.NextBatch(4)
				if err == io.EOF {
					break
				}
				require.NoError(t, err)
				sizes = append(sizes, len(batch))
				got = append(got, batch...)
			}
			assert.Equal(t, []int{4, 4, 2}, sizes)
			assert.Equal(t, records, got)

			_, err = r.NextBatch(4)
			assert.ErrorIs(t, err, io.EOF)
			_, err = r.NextBatch(0)
			assert.Error(t, err)
		})
	}
}

func TestOpenAppendAcrossSessions(t *testing.T) {
	records := sampleRecords(6, 2)
	for _, name := range allFormats {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)

			w, err := OpenAppend(path)
			require.NoError(t, err)
			for _, rec := range records[:3] {
				require.NoError(t, w.Append(rec))
			}
			require.NoError(t, w.Close())

			w, err = OpenAppend(path)
			require.NoError(t, err)
			for _, rec := range records[3:] {
				require.NoError(t, w.Append(rec))
			}
			err = w.Append(records[0])
			assert.ErrorIs(t, err, ErrDuplicateID)
			require.NoError(t, w.Close())

			got, err := ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, records, got)
		})
	}
}

func TestCreateTruncates(t *testing.T) {
	for _, name := range allFormats {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, WriteAll(path, sampleRecords(5, 2)))
			require.NoError(t, WriteAll(path, sampleRecords(2, 2)))

			got, err := ReadFile(path)
			require.NoError(t, err)
			assert.Len(t, got, 2)
		})
	}
}

func TestWriterRejectsInvalidRecords(t *testing.T) {
	for _, name := range allFormats {
		t.Run(name, func(t *testing.T) {
			w, err := Create(filepath.Join(t.TempDir(), name))
			require.NoError(t, err)
			defer w.Close()

			assert.ErrorIs(t, w.Append(Record{Embedding: []float32{1}}), ErrInvalidRecord)
			assert.ErrorIs(t, w.Append(Record{DocID: "x"}), ErrInvalidRecord)
			require.NoError(t, w.Append(Record{DocID: "x", Embedding: []float32{1}}))
			assert.ErrorIs(t, w.Append(Record{DocID: "x", Embedding: []float32{2}}), ErrDuplicateID)
		})
	}
}

func TestClosedWriter(t *testing.T) {
	w, err := Create(filepath.Join(t.TempDir(), "c.jsonl"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Append(Record{DocID: "a", Embedding: []float32{1}}), ErrClosed)
}

func TestOpenMissing(t *testing.T) {
	for _, name := range allFormats {
		t.Run(name, func(t *testing.T) {
			_, err := Open(filepath.Join(t.TempDir(), name))
			assert.ErrorIs(t, err, os.ErrNotExist)
		})
	}
}

func TestCorruptJSONL(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"garbage", "not json\n"},
		{"truncated", `{"doc_id":"d1","embedding":[1,2,3]}` + "\n" + `{"doc_id":"d2","embed`},
		{"missing id", `{"embedding":[1,2]}` + "\n"},
		{"empty embedding", `{"doc_id":"d1","embedding":[]}` + "\n"},
		{"wrong type", `{"doc_id":"d1","embedding":"abc"}` + "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "c.jsonl")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o644))
			_, err := ReadFile(path)
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestJSONLToleratesBlankLinesAndMissingTrailingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.jsonl")
	body := `{"doc_id":"d1","embedding":[3,7,1]}` + "\n\n" + `{"doc_id":"d2","embedding":[5,3,2]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []Record{
		{DocID: "d1", Embedding: []float32{3, 7, 1}},
		{DocID: "d2", Embedding: []float32{5, 3, 2}},
	}, got)
}

func TestCorruptCompressed(t *testing.T) {
	for _, name := range []string{"c.jsonl.zst", "c.jsonl.lz4"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, os.WriteFile(path, []byte("definitely not compressed data"), 0o644))
			_, err := ReadFile(path)
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestCorruptSQLite(t *testing.T) {
	t.Run("not a database", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "c.db")
		require.NoError(t, os.WriteFile(path, []byte("this is not an sqlite file at all, just text padding it out"), 0o644))
		_, err := Open(path)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("bad blob", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "c.db")
		require.NoError(t, WriteAll(path, sampleRecords(1, 2)))

		db, err := sql.Open("sqlite", path)
		require.NoError(t, err)
		_, err = db.Exec(`INSERT INTO records (doc_id, embedding) VALUES ('bad', x'010203')`)
		require.NoError(t, err)
		require.NoError(t, db.Close())

		_, err = ReadFile(path)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("non-finite blob", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "c.db")
		require.NoError(t, WriteAll(path, sampleRecords(1, 2)))

		db, err := sql.Open("sqlite", path)
		require.NoError(t, err)
		_, err = db.Exec(`INSERT INTO records (doc_id, embedding) VALUES (?, ?)`, "nan", encodeVector([]float32{float32(math.NaN()), 1}))
		require.NoError(t, err)
		require.NoError(t, db.Close())

		_, err = ReadFile(path)
		assert.ErrorIs(t, err, ErrCorrupt)
	})
}

func TestWriterRejectsNonFinite(t *testing.T) {
	for _, name := range allFormats {
		t.Run(name, func(t *testing.T) {
			w, err := Create(filepath.Join(t.TempDir(), name))
			require.NoError(t, err)
			defer w.Close()

			assert.ErrorIs(t, w.Append(Record{DocID: "nan", Embedding: []float32{float32(math.NaN())}}), ErrInvalidRecord)
			assert.ErrorIs(t, w.Append(Record{DocID: "inf", Embedding: []float32{1, float32(math.Inf(-1))}}), ErrInvalidRecord)
		})
	}
}

func TestWriterKeepsOneDimension(t *testing.T) {
	for _, name := range allFormats {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)

			w, err := OpenAppend(path)
			require.NoError(t, err)
			require.NoError(t, w.Append(Record{DocID: "a", Embedding: []float32{1, 2, 3}}))
			assert.ErrorIs(t, w.Append(Record{DocID: "b", Embedding: []float32{1, 2}}), ErrDimensionMismatch)
			require.NoError(t, w.Append(Record{DocID: "c", Embedding: []float32{4, 5, 6}}))
			require.NoError(t, w.Close())

			// A later session inherits the dimension from the stored records.
			w, err = OpenAppend(path)
			require.NoError(t, err)
			assert.ErrorIs(t, w.Append(Record{DocID: "d", Embedding: make([]float32, 3072)}), ErrDimensionMismatch)
			require.NoError(t, w.Append(Record{DocID: "e", Embedding: []float32{7, 8, 9}}))
			require.NoError(t, w.Close())

			got, err := ReadFile(path)
			require.NoError(t, err)
			require.Len(t, got, 3)
			for _, rec := range got {
				assert.Len(t, rec.Embedding, 3, rec.DocID)
			}

			// Create starts a fresh corpus with no dimension yet.
			w, err = Create(path)
			require.NoError(t, err)
			require.NoError(t, w.Append(Record{DocID: "f", Embedding: []float32{1, 2}}))
			require.NoError(t, w.Close())
		})
	}
}

func TestVectorCodec(t *testing.T) {
	in := []float32{0, -1.5, 3.25, 1e-7}
	out, err := decodeVector(encodeVector(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
