package rag

import (
	"fmt"
	"strings"
)

// Chunker splits transcript text into overlapping windows. Windows are
// measured in runes so multi-byte text never splits mid-character.
// Chunking is deterministic: the same input always yields the same
// chunks.
type Chunker struct {
	maxSize int
	overlap int
}

// NewChunker creates a chunker producing windows of at most maxSize
// runes, with overlap runes shared between consecutive windows.
// overlap must be smaller than maxSize or the window would never
// advance.
func NewChunker(maxSize, overlap int) (*Chunker, error) {
	if maxSize < 1 {
		return nil, fmt.Errorf("%w: chunk size must be at least 1, got %d", ErrValidation, maxSize)
	}
	if overlap < 0 || overlap >= maxSize {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrValidation, maxSize, overlap)
	}
	return &Chunker{maxSize: maxSize, overlap: overlap}, nil
}

// Chunk joins the transcript segments and splits the result into
// overlapping windows. Every rune of the input appears in at least one
// chunk, and consecutive chunks share exactly the configured overlap
// except possibly the last, which may be shorter.
func (c *Chunker) Chunk(segments []string) ([]string, error) {
	text := joinSegments(segments)
	if text == "" {
		return nil, fmt.Errorf("%w: transcript is empty", ErrValidation)
	}

	runes := []rune(text)
	if len(runes) <= c.maxSize {
		return []string{text}, nil
	}

	step := c.maxSize - c.overlap
	chunks := make([]string, 0, (len(runes)+step-1)/step)
	for start := 0; start < len(runes); start += step {
		end := min(start+c.maxSize, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}

// joinSegments concatenates non-blank transcript segments with a blank
// line between them, preserving paragraph boundaries from the source
// page.
func joinSegments(segments []string) string {
	kept := make([]string, 0, len(segments))
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg != "" {
			kept = append(kept, seg)
		}
	}
	return strings.Join(kept, "\n\n")
}
