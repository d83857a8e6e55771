// Package budget estimates token usage of prompt parts and trims prior
// conversation to fit a context budget. Generation backends use different
// tokenizers, so estimation is a character heuristic: 1 token ≈ 4 characters.
package budget

import (
	"github.com/54b3r/docqa-go/internal/rag"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// messageOverhead is the per-message cost of role markers and separators.
	messageOverhead = 4

	// DefaultMaxContextTokens is the default input budget for the whole
	// prompt: instructions, retrieved context, history and question.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated token count of msgs, counting role,
// content and a fixed per-message overhead.
func EstimateMessages(msgs []rag.Message) int {
	total := 0
	for _, m := range msgs {
		total += messageOverhead
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// TrimHistory drops the oldest messages of history until fixedTokens plus
// the remaining history fits within maxTokens. fixedTokens is the cost of
// the prompt parts that are never trimmed. If nothing fits, an empty slice
// is returned; callers should warn separately when fixedTokens alone exceeds
// the budget. maxTokens <= 0 disables trimming.
func TrimHistory(fixedTokens int, history []rag.Message, maxTokens int) []rag.Message {
	if len(history) == 0 || maxTokens <= 0 {
		return history
	}

	for len(history) > 0 {
		if fixedTokens+EstimateMessages(history) <= maxTokens {
			break
		}
		history = history[1:]
	}
	return history
}
