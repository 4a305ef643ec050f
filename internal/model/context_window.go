package model

import "strings"

// contextWindows maps model id prefixes to their declared input ceilings.
// Longest prefix wins. Unknown models get 0, which disables percentage
// reporting rather than guessing.
var contextWindows = map[string]int{
	"gpt-3.5-turbo":     16385,
	"gpt-4":             8192,
	"gpt-4-turbo":       128000,
	"gpt-4o":            128000,
	"gpt-4o-mini":       128000,
	"o1":                200000,
	"o3":                200000,
	"deepseek-chat":     65536,
	"deepseek-reasoner": 65536,
	"llama3":            8192,
	"qwen2.5":           32768,
}

// InferMaxInputTokens returns the known input ceiling for a model id, or 0
// when the model is unknown.
func InferMaxInputTokens(id string) int {
	best := 0
	bestLen := -1
	for prefix, tokens := range contextWindows {
		if strings.HasPrefix(id, prefix) && len(prefix) > bestLen {
			best = tokens
			bestLen = len(prefix)
		}
	}
	return best
}
