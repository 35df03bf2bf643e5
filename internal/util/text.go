package util

import (
	"regexp"
	"strings"
)

var (
	// Matches <think>/<thinking> reasoning blocks emitted by reasoning models
	thinkTagRegex = regexp.MustCompile(`(?i)<think(?:ing)?>([\s\S]*?)</think(?:ing)?>`)
	// Leading "Here is section ..." style preambles
	preambleRegex = regexp.MustCompile(`(?i)^(sure[,!.]?\s*)?(here is|here's|below is)[^\n]*:\s*\n`)
)

// StripThinkTags removes reasoning blocks and their content from a response
func StripThinkTags(response string) string {
	return strings.TrimSpace(thinkTagRegex.ReplaceAllString(response, ""))
}

// ContainsThinkTags reports whether the response carries reasoning blocks
func ContainsThinkTags(response string) bool {
	return thinkTagRegex.MatchString(response)
}

// CleanMetaFromLLMResponse trims assistant chatter around the document text:
// a leading "Here is the section:" line and trailing offers of further help.
func CleanMetaFromLLMResponse(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return content
	}

	if loc := preambleRegex.FindStringIndex(trimmed); loc != nil {
		trimmed = strings.TrimSpace(trimmed[loc[1]:])
	}

	lower := strings.ToLower(trimmed)
	cutIndex := len(trimmed)
	phrases := []string{
		"let me know if you would like",
		"let me know if you'd like",
		"i hope this helps",
		"feel free to ask",
		"would you like me to",
		"shall i continue with",
	}
	for _, phrase := range phrases {
		// Only trailing chatter is cut; ignore matches in the first half
		if idx := strings.LastIndex(lower, phrase); idx >= len(lower)/2 && idx < cutIndex {
			cutIndex = idx
		}
	}

	if cutIndex < len(trimmed) {
		result := strings.TrimSpace(trimmed[:cutIndex])
		if result != "" {
			return result
		}
	}
	return trimmed
}
