package generation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/lamim/folioforge/internal/util"
)

// Common refusal openings from LLM responses
var refusalPatterns = []string{
	"i'm sorry, but i can't help with that",
	"i cannot help with that",
	"i can't assist with that",
	"i'm unable to help with that",
	"i apologize, but i cannot",
	"i'm not able to assist",
	"i cannot provide",
	"i cannot generate",
	"i'm sorry, i cannot",
	"i'm sorry, but i cannot",
	"as an ai",
	"i don't feel comfortable",
}

// refusalWindow is how many leading runes are searched for refusal phrases.
// Refusals open the response; a long document may quote the phrases legitimately.
const refusalWindow = 300

// CleanSection strips reasoning blocks and assistant chatter from a section response
func CleanSection(text string) string {
	return util.CleanMetaFromLLMResponse(util.StripThinkTags(text))
}

// LooksLikeRefusal reports whether the opening of text matches a refusal pattern
func LooksLikeRefusal(text string) (bool, string) {
	head := strings.ToLower(util.TruncateString(strings.TrimSpace(text), refusalWindow))
	for _, pattern := range refusalPatterns {
		if strings.Contains(head, pattern) {
			return true, "contains refusal pattern: " + pattern
		}
	}
	return false, ""
}

// LooksTruncated reports whether text appears cut off mid-sentence.
// Only a final prose line is judged; headings, list items and tables may end without punctuation.
func LooksTruncated(text string) (bool, string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true, "empty output"
	}

	lines := strings.Split(trimmed, "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" || strings.ContainsAny(last[:1], "#-*|>[`") || startsWithNumberedItem(last) {
		return false, ""
	}

	lastRune := []rune(last)[len([]rune(last))-1]
	switch {
	case strings.ContainsRune(".!?\"')]*_:", lastRune):
		return false, ""
	case lastRune == ',' || lastRune == ';':
		return true, fmt.Sprintf("ends with %q", lastRune)
	case unicode.IsLower(lastRune):
		words := strings.Fields(last)
		return true, fmt.Sprintf("incomplete ending: last word %q suggests mid-sentence cutoff", words[len(words)-1])
	}
	return false, ""
}

func startsWithNumberedItem(line string) bool {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	return i > 0 && i < len(line) && (line[i] == '.' || line[i] == ')')
}

// checkSection validates cleaned section text, returning a *ContentError when unusable
func checkSection(text string, minWords int) error {
	if strings.TrimSpace(text) == "" {
		return &ContentError{Reason: "empty response"}
	}
	if refusal, reason := LooksLikeRefusal(text); refusal {
		return &ContentError{Reason: reason}
	}
	if words := util.WordCount(text); words < minWords {
		return &ContentError{Reason: fmt.Sprintf("response too short (%d words, need %d)", words, minWords)}
	}
	if truncated, reason := LooksTruncated(text); truncated {
		return &ContentError{Reason: reason}
	}
	return nil
}
