// Package tokens provides token estimation for context budgeting.
// The default estimator is the ceil(chars/4) heuristic; a tiktoken-backed
// counter is available where accuracy matters more than startup cost.
package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator converts text to an estimated token count.
type Estimator interface {
	Tokens(text string) int
}

// Heuristic estimates tokens as ceil(characterCount / 4).
type Heuristic struct{}

func (Heuristic) Tokens(text string) int {
	return (len(text) + 3) / 4
}

// DefaultEncoding is the tiktoken encoding used when none is named.
const DefaultEncoding = "cl100k_base"

// Counter estimates tokens with a tiktoken encoding, falling back to the
// heuristic when the encoding cannot be loaded.
type Counter struct {
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	err      error
}

func NewCounter(encoding string) *Counter {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return &Counter{encoding: encoding}
}

func (c *Counter) Tokens(text string) int {
	c.once.Do(func() {
		c.enc, c.err = tiktoken.GetEncoding(c.encoding)
	})
	if c.err != nil || c.enc == nil {
		return Heuristic{}.Tokens(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

// Default returns the estimator used when none is configured.
func Default() Estimator {
	return Heuristic{}
}

// ForName resolves a configured tokenizer name: empty or "heuristic"
// selects the default, anything else names a tiktoken encoding.
func ForName(name string) Estimator {
	if name == "" || name == "heuristic" {
		return Default()
	}
	return NewCounter(name)
}
