// Package model describes the target text-generation model and hosts the
// token accounting used by the session budget logic. Counting is an
// estimate by design: the authoritative count lives server side, and the
// session only needs a stable signal for its compression threshold.
package model

import (
	"unicode"

	"github.com/milanglacier/aichat/internal/message"
)

// Tokens charged per message on top of its content, approximating the
// chat-format framing overhead of OpenAI-style APIs.
const perMessageTokens = 4

// Estimator converts a flattened text payload into a token count.
type Estimator func(text string) int

// Model identifies the remote model plus the local bookkeeping needed to
// budget requests against it.
type Model struct {
	// ID is the provider-side model identifier, e.g. "gpt-4o-mini".
	ID string
	// MaxInputTokens is the declared input context ceiling; 0 means the
	// model declares none and percentage reporting is disabled.
	MaxInputTokens int
	// Estimate overrides the default token estimator when set.
	Estimate Estimator
}

// New returns a model bound to the default estimator.
func New(id string, maxInputTokens int) Model {
	return Model{ID: id, MaxInputTokens: maxInputTokens}
}

// TotalTokens estimates the token cost of a full message sequence,
// including per-message framing overhead.
func (m Model) TotalTokens(messages []message.Message) int {
	estimate := m.Estimate
	if estimate == nil {
		estimate = EstimateTokens
	}
	total := 0
	for _, msg := range messages {
		total += perMessageTokens
		if msg.Content.IsText() {
			total += estimate(msg.Content.Text)
			continue
		}
		for _, part := range msg.Content.Parts {
			if part.Type == message.PartText {
				total += estimate(part.Text)
			}
		}
	}
	return total
}

// EstimateTokens is the built-in heuristic estimator: roughly one token per
// four latin characters, with wide (CJK and similar) runes charged a token
// each. It deliberately overshoots slightly rather than undershooting, so
// compression triggers early instead of late.
func EstimateTokens(text string) int {
	narrow := 0
	tokens := 0
	for _, r := range text {
		if r > unicode.MaxASCII && unicode.Is(unicode.Han, r) {
			tokens++
			continue
		}
		narrow++
	}
	tokens += (narrow + 3) / 4
	return tokens
}
