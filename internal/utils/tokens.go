package utils

import "strings"

// charsPerToken is the rough ratio used for prompt budgeting. Estimates only
// decide how much dataset profile fits next to the planner prompt.
const charsPerToken = 4

// EstimateTokens approximates the token count of text. Non-empty text is at
// least one token.
func EstimateTokens(text string) int {
	n := len([]rune(text))
	if n == 0 {
		return 0
	}
	return max(n/charsPerToken, 1)
}

// ClipToTokens shortens text to about limit tokens. When a cut is needed it
// prefers the last line break so rendered tables keep whole rows.
func ClipToTokens(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	keep := limit * charsPerToken
	if len(runes) <= keep {
		return text
	}
	clipped := string(runes[:keep])
	if i := strings.LastIndexByte(clipped, '\n'); i > len(clipped)/2 {
		return clipped[:i+1]
	}
	return clipped
}
