package indexer

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	// ChunkSize is the window length of ChunkFile, in runes.
	ChunkSize = 1000
	// ChunkOverlap is how many runes consecutive windows share.
	ChunkOverlap = 100
)

// Chunk represents a piece of a source file.
type Chunk struct {
	FilePath  string
	Content   string
	StartLine int
	EndLine   int
}

// ID names the chunk by file and 1-based line range, e.g. "main.go:3-17".
func (c Chunk) ID() string {
	return fmt.Sprintf("%s:%d-%d", c.FilePath, c.StartLine, c.EndLine)
}

// ChunkFile reads a file and splits it into overlapping windows of
// ChunkSize runes. Non UTF-8 and blank files yield no chunks.
func ChunkFile(filePath string) ([]Chunk, error) {
	contentBytes, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	// Skip non UTF-8 files to avoid embedding binaries
	if !utf8.Valid(contentBytes) {
		return nil, nil
	}
	return chunkText(filePath, string(contentBytes)), nil
}

func chunkText(filePath, content string) []Chunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	// Offsets are counted in runes so they line up with the window indices.
	lines := strings.Split(content, "\n")
	lineOffsets := make([]int, len(lines))
	offset := 0
	for i, line := range lines {
		lineOffsets[i] = offset
		offset += utf8.RuneCountInString(line) + 1
	}

	// findLine returns the 1-based line holding the rune at offset.
	findLine := func(offset int) int {
		idx := sort.Search(len(lineOffsets), func(i int) bool {
			return lineOffsets[i] > offset
		})
		if idx == 0 {
			return 1
		}
		return idx
	}

	var chunks []Chunk
	runes := []rune(content)
	for i := 0; i < len(runes); i += ChunkSize - ChunkOverlap {
		end := min(i+ChunkSize, len(runes))
		chunks = append(chunks, Chunk{
			FilePath:  filePath,
			Content:   string(runes[i:end]),
			StartLine: findLine(i),
			EndLine:   findLine(end - 1),
		})
		if end == len(runes) {
			break
		}
	}
	return chunks
}
