package document

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/anansi-ai/anansi/internal/types"
)

// SplitStrategy selects how chunk boundaries are chosen.
type SplitStrategy string

const (
	// SplitFixed cuts at fixed offsets, snapped to rune boundaries.
	SplitFixed SplitStrategy = "fixed"
	// SplitSentence prefers sentence boundaries near the target size.
	SplitSentence SplitStrategy = "sentence"
)

// ChunkConfig controls chunking. Chunking is pure: the same text and config
// always produce the same chunk sequence.
type ChunkConfig struct {
	// Size is the target chunk length in bytes. Cuts snap to rune
	// boundaries, so a chunk may run slightly short of Size.
	Size int `yaml:"size" json:"size" mapstructure:"size"`
	// Overlap is roughly how many trailing bytes of one chunk reappear at
	// the head of the next. Must be smaller than Size.
	Overlap int `yaml:"overlap" json:"overlap" mapstructure:"overlap"`
	// Strategy selects boundary placement.
	Strategy SplitStrategy `yaml:"strategy" json:"strategy" mapstructure:"strategy"`
}

// ApplyDefaults fills zero values with working defaults.
func (c *ChunkConfig) ApplyDefaults() {
	if c.Size == 0 {
		c.Size = 800
	}
	if c.Strategy == "" {
		c.Strategy = SplitSentence
	}
}

// Validate checks the configuration is internally consistent.
func (c *ChunkConfig) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.Size)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("chunk overlap must be non-negative, got %d", c.Overlap)
	}
	if c.Overlap >= c.Size {
		return fmt.Errorf("chunk overlap (%d) must be smaller than size (%d)", c.Overlap, c.Size)
	}
	switch c.Strategy {
	case SplitFixed, SplitSentence:
	default:
		return fmt.Errorf("invalid split strategy: %s", c.Strategy)
	}
	return nil
}

// SplitChunks splits text into the ordered chunk sequence for a document.
//
// Edge cases: empty (or all-whitespace) text yields zero chunks; text shorter
// than one chunk yields exactly one. Under a fixed strategy with zero overlap
// the spans tile the text with no gaps.
func SplitChunks(documentID types.ID, text string, cfg ChunkConfig) ([]Chunk, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if len(text) <= cfg.Size {
		return []Chunk{NewChunk(documentID, 0, text, 0, len(text))}, nil
	}

	var chunks []Chunk
	step := cfg.Size - cfg.Overlap
	start := 0
	for seq := 0; start < len(text); seq++ {
		end := start + cfg.Size
		if end >= len(text) {
			end = len(text)
		} else {
			end = prevRuneStart(text, end)
			if cfg.Strategy == SplitSentence {
				end = sentenceCut(text, start, end)
			}
			if end <= start {
				_, n := utf8.DecodeRuneInString(text[start:])
				end = start + n
			}
		}
		chunks = append(chunks, NewChunk(documentID, seq, text[start:end], start, end))
		if end == len(text) {
			break
		}
		prev := start
		start = end - cfg.Overlap
		// Guard forward progress when a short sentence boundary plus a large
		// overlap would rewind past the previous start.
		if start <= prev {
			start = prev + step
		}
		start = nextRuneStart(text, start)
	}
	return chunks, nil
}

// prevRuneStart moves i back to the nearest rune boundary at or before i, so
// a cut never lands inside a multi-byte rune.
func prevRuneStart(text string, i int) int {
	for i > 0 && i < len(text) && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}

// nextRuneStart moves i forward to the nearest rune boundary at or after i.
func nextRuneStart(text string, i int) int {
	for i < len(text) && !utf8.RuneStart(text[i]) {
		i++
	}
	return i
}

// sentenceCut moves the cut point back to the nearest sentence terminator in
// (start, end], falling back to the nearest whitespace, then to the exact
// offset when the window has no boundary at all.
func sentenceCut(text string, start, end int) int {
	window := text[start:end]
	best := -1
	for i := len(window) - 1; i >= 0; i-- {
		switch window[i] {
		case '.', '!', '?', '\n':
			// cut after the terminator
			best = i + 1
		}
		if best >= 0 {
			break
		}
	}
	if best <= 0 {
		for i := len(window) - 1; i >= 0; i-- {
			if window[i] == ' ' || window[i] == '\t' {
				best = i + 1
				break
			}
		}
	}
	// A boundary too close to the window start would stall progress; require
	// at least half the target size.
	if best < len(window)/2 {
		return end
	}
	return start + best
}
