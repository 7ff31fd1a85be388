package tokens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeuristic(t *testing.T) {
	h := Heuristic{}

	assert.Zero(t, h.Tokens(""))
	assert.Equal(t, 1, h.Tokens("a"), "rounds up")
	assert.Equal(t, 1, h.Tokens("abcd"))
	assert.Equal(t, 2, h.Tokens("abcde"))
	assert.Equal(t, 25, h.Tokens(strings.Repeat("x", 100)))
}

func TestHeuristicMonotonic(t *testing.T) {
	h := Heuristic{}
	prev := 0
	for i := 0; i < 64; i++ {
		n := h.Tokens(strings.Repeat("a", i))
		assert.GreaterOrEqual(t, n, prev)
		prev = n
	}
}

func TestDefault(t *testing.T) {
	assert.IsType(t, Heuristic{}, Default())
}

func TestForName(t *testing.T) {
	assert.IsType(t, Heuristic{}, ForName(""))
	assert.IsType(t, Heuristic{}, ForName("heuristic"))
	assert.IsType(t, &Counter{}, ForName("cl100k_base"))
}

func TestCounterTokens(t *testing.T) {
	c := NewCounter("")
	assert.Equal(t, DefaultEncoding, c.encoding)

	assert.Zero(t, c.Tokens(""))
	assert.Positive(t, c.Tokens("hello world"))

	// A sentence is always at most one token per rune, whichever path
	// (real encoding or heuristic fallback) resolved the count.
	text := "the quick brown fox jumps over the lazy dog"
	assert.LessOrEqual(t, c.Tokens(text), len(text))
}

func TestCounterFallsBackOnUnknownEncoding(t *testing.T) {
	c := NewCounter("no-such-encoding")
	h := Heuristic{}

	for _, text := range []string{"", "a", "abcd", "a longer piece of text"} {
		assert.Equal(t, h.Tokens(text), c.Tokens(text))
	}
}
