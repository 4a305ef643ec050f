package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInferMaxInputTokens(t *testing.T) {
	// Longest matching prefix wins.
	assert.Equal(t, 128000, InferMaxInputTokens("gpt-4o-mini-2024-07-18"))
	assert.Equal(t, 8192, InferMaxInputTokens("gpt-4-0613"))
	assert.Equal(t, 0, InferMaxInputTokens("mystery-model"))
}
