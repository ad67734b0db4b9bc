// Package chunker splits documents into overlapping text segments at
// sentence and word boundaries for embedding and retrieval.
package chunker

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	// DefaultChunkSize is the target chunk length in runes.
	DefaultChunkSize = 1000
	// DefaultOverlap is the number of trailing runes repeated at the start
	// of the following chunk.
	DefaultOverlap = 200
)

// Document is an immutable input to chunking.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]any
}

// Chunk is a bounded contiguous slice of a document's normalized text.
type Chunk struct {
	ID                 string
	Content            string
	ChunkIndex         int
	OriginalDocumentID string
	Metadata           map[string]any
}

// Splitter produces chunks of at most Size runes, advancing by the emitted
// chunk length minus Overlap so adjacent chunks share trailing context.
type Splitter struct {
	size    int
	overlap int
}

func NewSplitter(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunk overlap must not be negative, got %d", overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", overlap, size)
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

// Split chunks a single document. Empty content yields no chunks; content
// shorter than the chunk size yields exactly one chunk.
func (s *Splitter) Split(doc Document) []Chunk {
	content := []rune(Normalize(doc.Content))
	if len(content) == 0 {
		return nil
	}

	chunks := make([]Chunk, 0, 1+len(content)/(s.size-s.overlap+1))
	cursor := 0
	for cursor < len(content) {
		// A previous boundary snap can leave the cursor on the separator.
		for cursor < len(content) && content[cursor] == ' ' {
			cursor++
		}
		if cursor >= len(content) {
			break
		}

		end := cursor + s.size
		if end >= len(content) {
			end = len(content)
		} else {
			end = snapBoundary(content, cursor+s.size/2, end)
		}

		text := string(content[cursor:end])
		chunks = append(chunks, Chunk{
			ID:                 fmt.Sprintf("%s_chunk_%d", doc.ID, len(chunks)),
			Content:            text,
			ChunkIndex:         len(chunks),
			OriginalDocumentID: doc.ID,
			Metadata:           chunkMetadata(doc, len(chunks)),
		})

		if end >= len(content) {
			break
		}
		step := (end - cursor) - s.overlap
		if step < 1 {
			// A snapped chunk shorter than the overlap must still advance.
			step = end - cursor
		}
		cursor += step
	}

	for i := range chunks {
		chunks[i].Metadata["totalChunks"] = len(chunks)
	}
	return chunks
}

// SplitAll flattens the chunks of multiple documents, preserving
// per-document ordering.
func (s *Splitter) SplitAll(docs []Document) []Chunk {
	all := make([]Chunk, 0, len(docs))
	for _, doc := range docs {
		all = append(all, s.Split(doc)...)
	}
	return all
}

// snapBoundary truncates the window [_, end) to the last sentence end at or
// after mid, falling back to the last space, then to a hard cut at end.
func snapBoundary(content []rune, mid, end int) int {
	for i := end - 1; i >= mid; i-- {
		if content[i] == '\n' {
			return i + 1
		}
		if content[i] == '.' && i+1 < len(content) && content[i+1] == ' ' {
			return i + 1
		}
	}
	for i := end - 1; i >= mid; i-- {
		if content[i] == ' ' {
			return i
		}
	}
	return end
}

func chunkMetadata(doc Document, index int) map[string]any {
	meta := make(map[string]any, len(doc.Metadata)+3)
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	meta["chunkIndex"] = index
	meta["originalDocumentId"] = doc.ID
	return meta
}

// Normalize collapses whitespace runs to a single space, trims the result,
// and strips non-printable control characters.
func Normalize(content string) string {
	var sb strings.Builder
	sb.Grow(len(content))
	pendingSpace := false
	for _, r := range content {
		if unicode.IsSpace(r) {
			pendingSpace = true
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		if pendingSpace && sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		pendingSpace = false
		sb.WriteRune(r)
	}
	return sb.String()
}
