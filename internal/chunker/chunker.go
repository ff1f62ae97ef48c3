// Package chunker splits extracted document text into overlapping fragments
// sized for embedding. Splitting prefers sentence boundaries and falls back
// to hard cuts only for single sentences longer than the chunk size.
package chunker

import (
	"regexp"
	"strings"
)

const (
	// DefaultChunkSize is the target fragment length in characters.
	DefaultChunkSize = 1000
	// DefaultOverlap is the number of trailing characters carried into the
	// next fragment.
	DefaultOverlap = 200
)

var sentenceRe = regexp.MustCompile(`[^.!?]+[.!?]+\s*`)

// Chunker splits text into overlapping fragments.
type Chunker struct {
	chunkSize int
	overlap   int
}

// New returns a Chunker with the given size and overlap. Non-positive size
// falls back to DefaultChunkSize; overlap is clamped below size.
func New(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 2
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap}
}

// Split breaks text into ordered fragments. Every character of the input is
// covered by at least one fragment; consecutive fragments overlap by roughly
// the configured amount. Empty or whitespace-only input yields no fragments.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	sentences := splitSentences(text)

	var (
		chunks  []string
		current strings.Builder
	)
	flush := func() {
		chunk := strings.TrimSpace(current.String())
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		current.Reset()
	}
	for _, sentence := range sentences {
		// A single sentence longer than the chunk size is cut hard.
		if len(sentence) > c.chunkSize {
			flush()
			for _, piece := range hardSplit(sentence, c.chunkSize, c.overlap) {
				chunks = append(chunks, strings.TrimSpace(piece))
			}
			continue
		}
		if current.Len() > 0 && current.Len()+len(sentence) > c.chunkSize {
			chunk := current.String()
			flush()
			current.WriteString(overlapTail(chunk, c.overlap))
		}
		current.WriteString(sentence)
	}
	flush()
	return chunks
}

// splitSentences returns the sentence segments of text in order, including a
// trailing segment without terminal punctuation so no input is dropped.
func splitSentences(text string) []string {
	locs := sentenceRe.FindAllStringIndex(text, -1)
	var out []string
	last := 0
	for _, loc := range locs {
		if loc[0] > last {
			out = append(out, text[last:loc[0]])
		}
		out = append(out, text[loc[0]:loc[1]])
		last = loc[1]
	}
	if last < len(text) {
		out = append(out, text[last:])
	}
	return out
}

// overlapTail returns the last n characters of chunk, snapped forward to the
// next word boundary so fragments never begin mid-word.
func overlapTail(chunk string, n int) string {
	if n <= 0 || len(chunk) <= n {
		if n <= 0 {
			return ""
		}
		return chunk
	}
	tail := chunk[len(chunk)-n:]
	if idx := strings.IndexAny(tail, " \t\n"); idx >= 0 {
		tail = tail[idx+1:]
	}
	if tail != "" && !strings.HasSuffix(tail, " ") {
		tail += " "
	}
	return tail
}

func hardSplit(s string, size, overlap int) []string {
	step := size - overlap
	if step <= 0 {
		step = size
	}
	var out []string
	for start := 0; start < len(s); start += step {
		end := start + size
		if end >= len(s) {
			out = append(out, s[start:])
			break
		}
		out = append(out, s[start:end])
	}
	return out
}
