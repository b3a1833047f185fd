package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitTextShortInputSingleChunk(t *testing.T) {
	chunks := SplitText("hello world", 100, 20)
	assert.Equal(t, []string{"hello world"}, chunks)
}

func TestSplitTextChunksOverlap(t *testing.T) {
	text := strings.Repeat("abcdefghij", 10) // 100 chars
	chunks := SplitText(text, 40, 10)

	assert.Greater(t, len(chunks), 1)
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		// Each chunk starts with the tail of the previous one.
		assert.Equal(t, prev[len(prev)-10:], chunks[i][:10])
	}
}

func TestSplitTextCoversAllContent(t *testing.T) {
	text := strings.Repeat("0123456789", 37)
	chunks := SplitText(text, 100, 25)

	last := chunks[len(chunks)-1]
	assert.True(t, strings.HasSuffix(text, last))
}

func TestSplitTextOverlapLargerThanChunkFallsBack(t *testing.T) {
	text := strings.Repeat("x", 50)
	chunks := SplitText(text, 10, 15)

	// Fallback stepping must still terminate and cover the input.
	assert.Equal(t, 5, len(chunks))
}

func TestSplitTextBreaksOnWordBoundaries(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta ", 20)
	chunks := SplitText(text, 100, 20)

	assert.Greater(t, len(chunks), 1)
	for i := 0; i < len(chunks)-1; i++ {
		assert.True(t, strings.HasSuffix(chunks[i], " "),
			"chunk %d ends mid-word: %q", i, chunks[i])
	}
}

func TestSplitTextHardCutWhenNoWhitespaceNearBoundary(t *testing.T) {
	text := strings.Repeat("a", 250) // one long token
	chunks := SplitText(text, 100, 20)

	assert.Greater(t, len(chunks), 1)
	assert.Len(t, chunks[0], 100)
}

func TestSplitTextMultibyteRunesStayIntact(t *testing.T) {
	text := strings.Repeat("héllo wörld ", 30)
	chunks := SplitText(text, 50, 10)

	for _, c := range chunks {
		assert.True(t, strings.Contains(text, c))
	}
}
