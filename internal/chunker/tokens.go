package chunker

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/northwind-labs/atlas/internal/logger"
)

// TokenCounter counts tokens in a text for chunk sizing.
type TokenCounter interface {
	// Count returns the number of tokens in text.
	Count(text string) int
}

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// tiktokenCounter counts with the cl100k_base BPE encoding, loaded from the
// offline vocabulary so no network access is needed. Falls back to word
// counting when the encoding cannot be initialised.
type tiktokenCounter struct{}

// NewTokenCounter returns the default token counter.
func NewTokenCounter() TokenCounter {
	return tiktokenCounter{}
}

func (tiktokenCounter) Count(text string) int {
	encodingOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			logger.Warn("Chunker: tiktoken init failed, falling back to word counts: %v", err)
			return
		}
		encoding = enc
	})

	if encoding == nil {
		return wordCounter{}.Count(text)
	}
	return len(encoding.Encode(text, nil, nil))
}

// wordCounter approximates tokens by whitespace-separated words.
// Deterministic and dependency-free, used in tests and as fallback.
type wordCounter struct{}

// NewWordCounter returns a word-count based token counter.
func NewWordCounter() TokenCounter {
	return wordCounter{}
}

func (wordCounter) Count(text string) int {
	return len(strings.Fields(text))
}
