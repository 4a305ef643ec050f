package model

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/milanglacier/aichat/internal/message"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("ls"))
	assert.Equal(t, 3, EstimateTokens("hello world!"))
	// Han runes are charged one token each.
	assert.Equal(t, 2, EstimateTokens("你好"))
}

func TestTotalTokensUsesInjectedEstimator(t *testing.T) {
	m := New("test-model", 8192)
	m.Estimate = func(string) int { return 100 }

	msgs := []message.Message{
		message.NewSystem("be terse"),
		message.NewUser(message.NewText("hi")),
	}
	// 2 * (100 + framing overhead)
	assert.Equal(t, 2*(100+perMessageTokens), m.TotalTokens(msgs))
}

func TestTotalTokensCountsOnlyTextParts(t *testing.T) {
	m := New("test-model", 0)
	m.Estimate = func(text string) int { return len(text) }

	msgs := []message.Message{
		message.NewUser(message.NewMixed([]message.Part{
			{Type: message.PartText, Text: "abcd"},
			{Type: message.PartImageURL, ImageURL: &message.ImageURL{URL: "data:image/png;base64,AAAA"}},
		})),
	}
	assert.Equal(t, perMessageTokens+4, m.TotalTokens(msgs))
}
