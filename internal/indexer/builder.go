package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"embedknn/internal/config"
	"embedknn/internal/corpus"
	"embedknn/internal/embedder"
	"embedknn/internal/log"
)

var ignoredDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"__pycache__":  true,
	"venv":         true,
}

var staticExcludes = map[string]bool{
	"package-lock.json": true,
	"yarn.lock":         true,
	"pnpm-lock.yaml":    true,
	"go.sum":            true,
}

var defaultSuffixes = []string{".lock", ".csv", ".json", ".jsonl", ".zst", ".lz4", ".db", ".svg", ".png", ".a", ".o", ".so"}

// Stats summarises one IndexDirectory run.
type Stats struct {
	Files    int `json:"files"`
	Chunks   int `json:"chunks"`
	Embedded int `json:"embedded"`
	Skipped  int `json:"skipped"`
}

// Builder chunks source trees and appends their embeddings to a corpus.
type Builder struct {
	provider           *embedder.Provider
	excludedFiles      []string
	excludedExtensions []string
}

// NewBuilder creates a Builder using the exclusion lists from cfg.
func NewBuilder(provider *embedder.Provider, cfg *config.Config) *Builder {
	return &Builder{
		provider:           provider,
		excludedFiles:      cfg.ExcludedFiles,
		excludedExtensions: cfg.ExcludedExtensions,
	}
}

// isExcluded checks if a file name should be ignored during indexing,
// factoring in the static exclusions plus user-configured excludes.
func (b *Builder) isExcluded(name string) bool {
	if staticExcludes[name] {
		return true
	}
	for _, suffix := range defaultSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	for _, excluded := range b.excludedFiles {
		if excluded != "" && excluded == name {
			return true
		}
	}
	lower := strings.ToLower(name)
	for _, ext := range b.excludedExtensions {
		ext = strings.TrimPrefix(ext, ".")
		if ext != "" && strings.HasSuffix(lower, "."+strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

// IndexDirectory walks root, chunks every eligible file and appends one
// record per embedded chunk to w. Chunks whose embedding is absent, or whose
// id the corpus already holds, are skipped.
func (b *Builder) IndexDirectory(ctx context.Context, root string, w corpus.Writer) (Stats, error) {
	var stats Stats
	log.InfoLogger.Printf("📂 Starting to index directory: %s", root)

	seen := make(map[string]int)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				log.DebugLogger.Printf("🙈 Ignoring hidden directory: %s", path)
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if ignoredDirs[d.Name()] {
				log.DebugLogger.Printf("🙈 Ignoring directory: %s", path)
				return filepath.SkipDir
			}
			return nil
		}
		if b.isExcluded(d.Name()) {
			log.DebugLogger.Printf("🙈 Ignoring file: %s", path)
			return nil
		}

		chunks, err := b.chunk(ctx, path)
		if err != nil {
			log.WarnLogger.Printf("⚠️ Could not chunk file %s: %v. Skipping.", path, err)
			return nil
		}
		if len(chunks) == 0 {
			return nil
		}
		stats.Files++

		for _, chunk := range chunks {
			stats.Chunks++
			if err := b.add(ctx, w, chunk, seen); err != nil {
				if errors.Is(err, errSkipped) {
					stats.Skipped++
					continue
				}
				return err
			}
			stats.Embedded++
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("index %s: %w", root, err)
	}

	log.InfoLogger.Printf("✅ Finished indexing %s: %d files, %d chunks, %d embedded, %d skipped",
		root, stats.Files, stats.Chunks, stats.Embedded, stats.Skipped)
	return stats, nil
}

var errSkipped = errors.New("chunk skipped")

func (b *Builder) chunk(ctx context.Context, path string) ([]Chunk, error) {
	if filepath.Ext(path) == ".go" {
		chunks, err := ChunkGoFile(ctx, path)
		if err != nil || len(chunks) > 0 {
			return chunks, err
		}
		// Files without declarations still get window chunks.
	}
	return ChunkFile(path)
}

func (b *Builder) add(ctx context.Context, w corpus.Writer, chunk Chunk, seen map[string]int) error {
	id := chunk.ID()
	// Windows inside one long line share a line range.
	if n := seen[id]; n > 0 {
		seen[id] = n + 1
		id = fmt.Sprintf("%s#%d", id, n)
	} else {
		seen[id] = 1
	}

	vec, ok := b.provider.Embed(ctx, chunk.Content)
	if !ok {
		if err := ctx.Err(); err != nil {
			return err
		}
		return errSkipped
	}

	err := w.Append(corpus.Record{DocID: id, Embedding: vec})
	if errors.Is(err, corpus.ErrDuplicateID) {
		log.DebugLogger.Printf("Chunk %s already indexed", id)
		return errSkipped
	}
	return err
}
