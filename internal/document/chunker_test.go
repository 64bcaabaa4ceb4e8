package document

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anansi-ai/anansi/internal/types"
)

var chunkDocID = types.DeterministicID("doc:id:chunker-test")

func TestSplitChunksEmptyText(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t\n"} {
		chunks, err := SplitChunks(chunkDocID, text, ChunkConfig{})
		require.NoError(t, err)
		assert.Empty(t, chunks)
	}
}

func TestSplitChunksShortText(t *testing.T) {
	chunks, err := SplitChunks(chunkDocID, "one short document", ChunkConfig{Size: 100})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "one short document", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 18, chunks[0].End)
	assert.Equal(t, 0, chunks[0].Seq)
}

func TestSplitChunksFixedTilesWithoutGaps(t *testing.T) {
	text := strings.Repeat("abcdefghij", 10)
	chunks, err := SplitChunks(chunkDocID, text, ChunkConfig{Size: 30, Strategy: SplitFixed})
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	for i, c := range chunks {
		assert.Equal(t, i, c.Seq)
		assert.Equal(t, text[c.Start:c.End], c.Text)
		if i > 0 {
			assert.Equal(t, chunks[i-1].End, c.Start)
		}
	}
	assert.Equal(t, len(text), chunks[len(chunks)-1].End)
}

func TestSplitChunksFixedOverlap(t *testing.T) {
	text := strings.Repeat("x", 100)
	chunks, err := SplitChunks(chunkDocID, text, ChunkConfig{Size: 40, Overlap: 10, Strategy: SplitFixed})
	require.NoError(t, err)
	require.True(t, len(chunks) >= 3)

	for i := 1; i < len(chunks); i++ {
		assert.Equal(t, chunks[i-1].Start+30, chunks[i].Start, "step should be size minus overlap")
	}
}

func TestSplitChunksNeverSplitRunes(t *testing.T) {
	texts := map[string]string{
		"accented": "a" + strings.Repeat("é", 40),
		"cjk":      strings.Repeat("名古屋市は大きい。", 20),
		"emoji":    strings.Repeat("go 🚀 launch. ", 30),
	}
	for name, text := range texts {
		t.Run(name, func(t *testing.T) {
			for _, strategy := range []SplitStrategy{SplitFixed, SplitSentence} {
				chunks, err := SplitChunks(chunkDocID, text,
					ChunkConfig{Size: 4, Strategy: strategy})
				require.NoError(t, err)
				require.NotEmpty(t, chunks)
				for _, c := range chunks {
					assert.True(t, utf8.ValidString(c.Text),
						"%s chunk %d is not valid UTF-8: %q", strategy, c.Seq, c.Text)
					assert.Equal(t, text[c.Start:c.End], c.Text)
				}
			}
		})
	}
}

func TestSplitChunksMultiByteTiling(t *testing.T) {
	text := "a" + strings.Repeat("é", 10)
	chunks, err := SplitChunks(chunkDocID, text, ChunkConfig{Size: 4, Strategy: SplitFixed})
	require.NoError(t, err)
	require.True(t, len(chunks) >= 2)

	// Spans stay contiguous even when cuts back off to rune boundaries.
	assert.Equal(t, 0, chunks[0].Start)
	for i := 1; i < len(chunks); i++ {
		assert.Equal(t, chunks[i-1].End, chunks[i].Start)
	}
	assert.Equal(t, len(text), chunks[len(chunks)-1].End)
}

func TestSplitChunksSentenceBoundary(t *testing.T) {
	text := "First sentence here. Second sentence follows it. Third one closes the paragraph out completely."
	chunks, err := SplitChunks(chunkDocID, text, ChunkConfig{Size: 40, Strategy: SplitSentence})
	require.NoError(t, err)
	require.True(t, len(chunks) >= 2)

	// Non-final chunks should end just after a sentence terminator.
	for _, c := range chunks[:len(chunks)-1] {
		trimmed := strings.TrimRight(c.Text, " \n")
		require.NotEmpty(t, trimmed)
		last := trimmed[len(trimmed)-1]
		assert.Contains(t, []byte{'.', '!', '?'}, last, "chunk %d ends mid-sentence: %q", c.Seq, c.Text)
	}
}

func TestSplitChunksDeterministic(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 30)
	cfg := ChunkConfig{Size: 120, Overlap: 20, Strategy: SplitSentence}

	first, err := SplitChunks(chunkDocID, text, cfg)
	require.NoError(t, err)
	second, err := SplitChunks(chunkDocID, text, cfg)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Chunk IDs derive from document and sequence, not text position.
	for i, c := range first {
		assert.Equal(t, types.DeterministicID(fmt.Sprintf("chunk:%s:%d", chunkDocID, i)), c.ID)
	}
}

func TestSplitChunksForwardProgress(t *testing.T) {
	// Pathological input: sentence boundaries right at window starts with a
	// large overlap must never rewind the cursor.
	text := strings.Repeat("A. ", 200)
	chunks, err := SplitChunks(chunkDocID, text, ChunkConfig{Size: 30, Overlap: 25, Strategy: SplitSentence})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for i := 1; i < len(chunks); i++ {
		assert.Greater(t, chunks[i].Start, chunks[i-1].Start)
	}
	assert.Equal(t, len(text), chunks[len(chunks)-1].End)
}

func TestChunkConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ChunkConfig
		wantErr bool
	}{
		{"defaults", ChunkConfig{Size: 800, Strategy: SplitSentence}, false},
		{"negative size", ChunkConfig{Size: -1, Strategy: SplitFixed}, true},
		{"negative overlap", ChunkConfig{Size: 100, Overlap: -1, Strategy: SplitFixed}, true},
		{"overlap not below size", ChunkConfig{Size: 100, Overlap: 100, Strategy: SplitFixed}, true},
		{"unknown strategy", ChunkConfig{Size: 100, Strategy: "recursive"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
