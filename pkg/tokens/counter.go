// Package tokens estimates how many model tokens a conversation uses.
package tokens

import (
	"strings"
	"sync"

	"github.com/killallgit/composer/pkg/chat"
	"github.com/killallgit/composer/pkg/logger"
	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is used when no encoding is named.
const DefaultEncoding = "cl100k_base"

// messageOverhead approximates the boundary tokens around every message.
const messageOverhead = 4

// TokenCounter counts tokens with a BPE encoding, or by estimation when the
// encoding cannot be loaded.
type TokenCounter struct {
	encoder *tiktoken.Tiktoken
	mu      sync.RWMutex
}

// Usage splits a conversation's tokens by author.
type Usage struct {
	User      int
	Assistant int
}

func (u Usage) Total() int {
	return u.User + u.Assistant
}

// NewTokenCounter creates a counter for encoding. An empty encoding uses
// DefaultEncoding. The counter degrades to estimation instead of failing
// when the encoding is unavailable, e.g. offline.
func NewTokenCounter(encoding string) *TokenCounter {
	if encoding == "" {
		encoding = DefaultEncoding
	}

	encoder, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		logger.WithComponent("tokens").Warn("Falling back to token estimation", "encoding", encoding, "error", err)
		return &TokenCounter{}
	}
	return &TokenCounter{encoder: encoder}
}

// Estimating reports whether counts are estimates.
func (tc *TokenCounter) Estimating() bool {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.encoder == nil
}

// CountTokens counts the number of tokens in the given text
func (tc *TokenCounter) CountTokens(text string) int {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.count(text)
}

func (tc *TokenCounter) count(text string) int {
	if text == "" {
		return 0
	}
	if tc.encoder == nil {
		return estimateTokens(text)
	}
	return len(tc.encoder.Encode(text, nil, nil))
}

// CountConversation counts the tokens of every message in history,
// including source bodies shown with assistant answers.
func (tc *TokenCounter) CountConversation(history []chat.AssembledMessage) Usage {
	tc.mu.RLock()
	defer tc.mu.RUnlock()

	var usage Usage
	for _, msg := range history {
		n := tc.count(string(msg.Role)) + tc.count(msg.Text) + messageOverhead
		if msg.IsUser() {
			usage.User += n
			continue
		}
		for _, src := range msg.Sources {
			n += tc.count(src.Body)
		}
		usage.Assistant += n
	}
	return usage
}

// estimateTokens takes the larger of one token per word and one per four
// bytes.
func estimateTokens(text string) int {
	wordEstimate := len(strings.Fields(text))
	charEstimate := len(text) / 4

	if wordEstimate > charEstimate {
		return wordEstimate
	}
	return charEstimate
}
