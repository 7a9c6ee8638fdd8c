package ai

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const (
	budgetEncoding = "cl100k_base"
	charsPerToken  = 4
)

var loadEncoding = func() (*tiktoken.Tiktoken, error) {
	return tiktoken.GetEncoding(budgetEncoding)
}

// TokenBudget bounds the amount of retrieved context placed into a prompt.
// When the BPE ranks cannot be loaded it falls back to a character estimate.
type TokenBudget struct {
	limit int
	once  sync.Once
	enc   *tiktoken.Tiktoken
}

func NewTokenBudget(limit int) *TokenBudget {
	return &TokenBudget{limit: limit}
}

func (b *TokenBudget) Limit() int {
	if b == nil {
		return 0
	}
	return b.limit
}

func (b *TokenBudget) encoder() *tiktoken.Tiktoken {
	b.once.Do(func() {
		enc, err := loadEncoding()
		if err == nil {
			b.enc = enc
		}
	})
	return b.enc
}

func (b *TokenBudget) Count(text string) int {
	if enc := b.encoder(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return (len([]rune(text)) + charsPerToken - 1) / charsPerToken
}

// Fit trims text to at most n tokens.
func (b *TokenBudget) Fit(text string, n int) string {
	if n <= 0 {
		return ""
	}
	if enc := b.encoder(); enc != nil {
		tokens := enc.Encode(text, nil, nil)
		if len(tokens) <= n {
			return text
		}
		return enc.Decode(tokens[:n])
	}
	runes := []rune(text)
	if len(runes) <= n*charsPerToken {
		return text
	}
	return string(runes[:n*charsPerToken])
}
