package orchestrator

import (
	"strings"

	"github.com/lamim/folioforge/internal/writer"
	"github.com/lamim/folioforge/pkg/models"
)

// CollectImageCues gathers [IMAGE: ...] suggestions from the drafted
// sections in plan order. Repeated descriptions within a section are kept once.
func CollectImageCues(plan *models.SectionPlan, sections map[int]models.SectionRecord) []models.ImageCue {
	cues := []models.ImageCue{}
	for _, s := range plan.Sections {
		rec, ok := sections[s.Index]
		if !ok {
			continue
		}
		seen := make(map[string]bool)
		for _, m := range writer.ImageCueRegex.FindAllStringSubmatch(rec.Content, -1) {
			desc := strings.TrimSpace(m[1])
			if desc == "" || seen[strings.ToLower(desc)] {
				continue
			}
			seen[strings.ToLower(desc)] = true
			cues = append(cues, models.ImageCue{SectionIndex: s.Index, Description: desc})
		}
	}
	return cues
}
