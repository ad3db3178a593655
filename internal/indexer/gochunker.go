package indexer

import (
	"context"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

// Only direct children of the file, so types declared inside function
// bodies stay part of their function's chunk.
const declarationQuery = `
	(source_file (function_declaration) @func)
	(source_file (method_declaration) @method)
	(source_file (type_declaration) @type)
	(source_file (var_declaration) @var)
	(source_file (const_declaration) @const)
`

// ChunkGoFile splits a Go source file into one corpus chunk per top-level
// declaration, doc comment included. Text between declarations (package
// clause, imports, stray comments) is indexed as window chunks, so no
// non-blank line is left out of the corpus.
func ChunkGoFile(ctx context.Context, filePath string) ([]Chunk, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(content) {
		return nil, nil
	}
	return chunkGoSource(ctx, filePath, content)
}

func chunkGoSource(ctx context.Context, filePath string, content []byte) ([]Chunk, error) {
	lang := golang.GetLanguage()

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	query, err := sitter.NewQuery([]byte(declarationQuery), lang)
	if err != nil {
		return nil, err
	}
	defer query.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(query, tree.RootNode())

	lines := strings.Split(string(content), "\n")
	covered := make([]bool, len(lines))

	var chunks []Chunk
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		for _, c := range m.Captures {
			start, end := withDocComment(c.Node), int(c.Node.EndPoint().Row)
			for row := start; row <= end && row < len(covered); row++ {
				covered[row] = true
			}
			chunks = append(chunks, Chunk{
				FilePath:  filePath,
				Content:   strings.Join(lines[start:end+1], "\n"),
				StartLine: start + 1,
				EndLine:   end + 1,
			})
		}
	}

	chunks = append(chunks, uncoveredChunks(filePath, lines, covered)...)
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].StartLine < chunks[j].StartLine })
	return chunks, nil
}

// withDocComment returns the 0-based first row of node, moved up over the
// comment lines directly above it.
func withDocComment(node *sitter.Node) int {
	start := int(node.StartPoint().Row)
	for prev := node.PrevNamedSibling(); prev != nil && prev.Type() == "comment"; prev = prev.PrevNamedSibling() {
		if int(prev.EndPoint().Row)+1 != start {
			break
		}
		start = int(prev.StartPoint().Row)
	}
	return start
}

// uncoveredChunks windows every run of lines no declaration claimed.
func uncoveredChunks(filePath string, lines []string, covered []bool) []Chunk {
	var chunks []Chunk
	for row := 0; row < len(lines); {
		if covered[row] {
			row++
			continue
		}
		first := row
		for row < len(lines) && !covered[row] {
			row++
		}
		for _, c := range chunkText(filePath, strings.Join(lines[first:row], "\n")) {
			c.StartLine += first
			c.EndLine += first
			chunks = append(chunks, c)
		}
	}
	return chunks
}
