package orchestrator

import (
	"strings"

	"github.com/lamim/folioforge/pkg/models"
)

// mergeDuplicateTopics folds topics whose titles differ only in case or
// surrounding space into the first occurrence, merging their sub-topics.
func mergeDuplicateTopics(outline models.Outline) models.Outline {
	out := outline
	out.Topics = make([]models.Topic, 0, len(outline.Topics))
	position := make(map[string]int, len(outline.Topics))

	for _, topic := range outline.Topics {
		title := strings.TrimSpace(topic.Title)
		key := strings.ToLower(title)
		if key == "" {
			out.Topics = append(out.Topics, topic)
			continue
		}
		if i, ok := position[key]; ok {
			out.Topics[i].SubTopics = deduplicateStrings(append(out.Topics[i].SubTopics, topic.SubTopics...))
			continue
		}
		position[key] = len(out.Topics)
		out.Topics = append(out.Topics, models.Topic{Title: title, SubTopics: deduplicateStrings(topic.SubTopics)})
	}
	return out
}

// deduplicateStrings removes duplicates while preserving order
// Uses case-insensitive comparison for duplicate detection
func deduplicateStrings(items []string) []string {
	seen := make(map[string]bool, len(items))
	unique := make([]string, 0, len(items))

	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		normalized := strings.ToLower(trimmed)
		if normalized == "" {
			continue
		}

		if !seen[normalized] {
			seen[normalized] = true
			unique = append(unique, trimmed) // Keep original casing
		}
	}

	return unique
}
