// Package chunker implements the sliding-window text splitter and the
// URL/content deduplicator (C5) described in spec.md §4.4.
package chunker

import (
	"unicode"

	"github.com/Agnikulu/veritas/internal/models"
)

const (
	// DefaultWindow is W_CHUNK, the default chunk width in characters.
	DefaultWindow = 800
	// DefaultOverlap is W_OVERLAP, the default overlap between consecutive chunks.
	DefaultOverlap = 120
	// boundarySlack bounds how far a split point may drift from the ideal
	// window edge while searching for whitespace.
	boundarySlack = 64
)

// Config controls chunk width and overlap. Zero values fall back to the
// spec defaults.
type Config struct {
	Window  int
	Overlap int
}

func (c Config) resolved() Config {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.Overlap <= 0 {
		c.Overlap = DefaultOverlap
	}
	return c
}

// Split partitions body into overlapping Chunks with dense ordinals starting
// at 0, splitting on the nearest whitespace within ±boundarySlack characters
// of the ideal window boundary so words are not severed.
func Split(parentRawID, body string, cfg Config) []models.Chunk {
	cfg = cfg.resolved()
	runes := []rune(body)
	n := len(runes)
	if n == 0 {
		return nil
	}

	var chunks []models.Chunk
	start := 0
	ordinal := 0

	for start < n {
		end := start + cfg.Window
		if end >= n {
			end = n
		} else {
			end = snapToWhitespace(runes, end)
		}

		chunks = append(chunks, models.Chunk{
			ParentRawID: parentRawID,
			Ordinal:     ordinal,
			Text:        string(runes[start:end]),
			CharSpan:    [2]int{start, end},
		})
		ordinal++

		if end >= n {
			break
		}

		next := end - cfg.Overlap
		if next <= start {
			// Degenerate case: overlap ≥ window. Force progress.
			next = start + 1
		}
		start = next
	}

	return chunks
}

// snapToWhitespace searches outward from ideal within boundarySlack runes in
// each direction for the nearest whitespace, preferring the earlier match so
// chunks never exceed W_CHUNK + boundarySlack.
func snapToWhitespace(runes []rune, ideal int) int {
	n := len(runes)
	if ideal >= n {
		return n
	}

	for offset := 0; offset <= boundarySlack; offset++ {
		if ideal-offset >= 0 && ideal-offset < n && unicode.IsSpace(runes[ideal-offset]) {
			return ideal - offset
		}
		if ideal+offset < n && unicode.IsSpace(runes[ideal+offset]) {
			return ideal + offset
		}
	}
	return ideal
}
