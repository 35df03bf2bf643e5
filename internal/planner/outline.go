package planner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lamim/folioforge/pkg/models"
)

// LoadOutline reads an outline from a .json, .yaml or .yml file
func LoadOutline(path string) (models.Outline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Outline{}, fmt.Errorf("failed to read outline: %w", err)
	}

	var outline models.Outline
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &outline)
	default:
		err = json.Unmarshal(data, &outline)
	}
	if err != nil {
		return models.Outline{}, fmt.Errorf("failed to parse outline %s: %w", path, err)
	}
	return Normalize(outline), nil
}

// Normalize trims whitespace and drops empty sub-topics
func Normalize(outline models.Outline) models.Outline {
	out := models.Outline{
		Title:  strings.TrimSpace(outline.Title),
		Brief:  strings.TrimSpace(outline.Brief),
		Topics: make([]models.Topic, 0, len(outline.Topics)),
	}
	for _, t := range outline.Topics {
		out.Topics = append(out.Topics, models.Topic{
			Title:     strings.TrimSpace(t.Title),
			SubTopics: cleanSubTopics(t.SubTopics),
		})
	}
	return out
}
