package writer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lamim/folioforge/pkg/models"
)

// ImageCueRegex matches figure suggestions such as [IMAGE: revenue by region chart]
var ImageCueRegex = regexp.MustCompile(`\[IMAGE:\s*([^\]]+)\]`)

// AssembleMarkdown renders the plan and its sections as one Markdown document.
// Image cues become figure notes; missing sections are marked.
func AssembleMarkdown(plan *models.SectionPlan, sections map[int]models.SectionRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", plan.DocumentTitle)

	currentTopic := ""
	for _, s := range plan.Sections {
		if s.ParentTopic != currentTopic {
			currentTopic = s.ParentTopic
			fmt.Fprintf(&b, "\n## %s\n", currentTopic)
		}
		fmt.Fprintf(&b, "\n### %s\n\n", s.Title)

		rec, ok := sections[s.Index]
		if !ok {
			b.WriteString("_Section not generated._\n")
			continue
		}
		body := ImageCueRegex.ReplaceAllStringFunc(rec.Content, func(m string) string {
			desc := strings.TrimSpace(ImageCueRegex.FindStringSubmatch(m)[1])
			return "> Figure: " + desc
		})
		b.WriteString(strings.TrimSpace(body))
		b.WriteString("\n")
	}
	return b.String()
}

// WriteDocument assembles and writes document.md
func (p *ProjectDir) WriteDocument(plan *models.SectionPlan, sections map[int]models.SectionRecord) error {
	return WriteAtomic(p.DocumentPath(), []byte(AssembleMarkdown(plan, sections)))
}
