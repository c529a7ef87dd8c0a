package parser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"pdf-qa/internal/models"

	"github.com/tmc/langchaingo/textsplitter"
)

const (
	defaultChunkSize    = 1000 // characters
	defaultChunkOverlap = 200  // characters
)

// Chunker splits extracted text into overlapping chunks, trying paragraph,
// line and word boundaries before cutting inside a word.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	splitter     textsplitter.RecursiveCharacter
}

func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = min(defaultChunkOverlap, chunkSize/2)
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}),
			textsplitter.WithLenFunc(utf8.RuneCountInString),
		),
	}
}

func (c *Chunker) Overlap() int {
	return c.chunkOverlap
}

// Split returns the ordered chunks of content; blank content has no chunks
func (c *Chunker) Split(content string) ([]models.Chunk, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	parts, err := c.splitter.SplitText(content)
	if err != nil {
		return nil, fmt.Errorf("failed to split text: %w", err)
	}

	chunks := make([]models.Chunk, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		chunks = append(chunks, models.Chunk{
			Content: part,
			ChunkID: len(chunks) + 1,
		})
	}
	return chunks, nil
}

// MergeChunks rebuilds the text the chunks were cut from. Each chunk is appended
// without the longest prefix (at most maxOverlap bytes) that the previous chunk
// ends with; chunks that share nothing are joined with a space.
func MergeChunks(chunks []string, maxOverlap int) string {
	var sb strings.Builder
	for i, chunk := range chunks {
		if i == 0 {
			sb.WriteString(chunk)
			continue
		}
		k := overlapLen(chunks[i-1], chunk, maxOverlap)
		if k == 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(chunk[k:])
	}
	return sb.String()
}

func overlapLen(prev, next string, maxOverlap int) int {
	for k := min(len(prev), len(next), maxOverlap); k > 0; k-- {
		if strings.HasSuffix(prev, next[:k]) {
			return k
		}
	}
	return 0
}
