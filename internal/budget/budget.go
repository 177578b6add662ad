// Package budget provides token budget estimation for prompts sent to the
// generation model. Because the service supports multiple LLM backends with
// different tokenizers, this package uses a conservative character-based
// heuristic: 1 token ≈ 4 characters (English prose). This deliberately
// under-estimates token counts to leave headroom for model-specific overhead.
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation. 4 chars/token is standard for English; using 3 would be more
	// aggressive but risks overflowing context windows.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input context budget in tokens.
	// Conservative enough to fit within 8k-context models while leaving room
	// for the output. Override via MODEL_MAX_CONTEXT_TOKENS.
	DefaultMaxContextTokens = 6000

	// chunkSeparatorTokens approximates the cost of the blank line placed
	// between chunks in a prompt.
	chunkSeparatorTokens = 1
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		// Each message has a small per-message overhead (~4 tokens in most APIs).
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// EstimateChunks returns the estimated token count of chunks joined into a
// single context block.
func EstimateChunks(chunks []string) int {
	total := 0
	for _, c := range chunks {
		total += Estimate(c) + chunkSeparatorTokens
	}
	return total
}

// Fits reports whether fixed plus every chunk fits within maxTokens.
// fixed carries the prompt scaffolding (instructions, question).
func Fits(fixed []*schema.Message, chunks []string, maxTokens int) bool {
	return EstimateMessages(fixed)+EstimateChunks(chunks) <= maxTokens
}

// TrimChunks removes chunks from the end of the slice until fixed + chunks
// fits within maxTokens. Chunks are expected in priority order (best first),
// so the least relevant context is dropped first.
//
// If even the first chunk does not fit, it is kept alone: a prompt without
// any context is never useful, and the model truncates rather than fails.
func TrimChunks(fixed []*schema.Message, chunks []string, maxTokens int) []string {
	if len(chunks) == 0 {
		return chunks
	}

	budget := maxTokens - EstimateMessages(fixed)
	used := 0
	for i, c := range chunks {
		used += Estimate(c) + chunkSeparatorTokens
		if used > budget {
			return chunks[:max(i, 1)]
		}
	}
	return chunks
}
