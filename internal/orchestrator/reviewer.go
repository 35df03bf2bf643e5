package orchestrator

import (
	"fmt"
	"time"

	"github.com/lamim/folioforge/internal/generation"
	"github.com/lamim/folioforge/pkg/models"
)

// shortSectionRatio flags sections below this fraction of their length hint
const shortSectionRatio = 0.5

// Review inspects the committed sections and reports likely quality
// problems. Findings are advisory; nothing is regenerated.
func Review(projectID string, plan *models.SectionPlan, sections map[int]models.SectionRecord, completed []int, now time.Time) models.ReviewReport {
	report := models.ReviewReport{
		ProjectID:  projectID,
		Findings:   []models.ReviewFinding{},
		ReviewedAt: now.UTC(),
	}

	done := make(map[int]bool, len(completed))
	for _, idx := range completed {
		done[idx] = true
	}

	for _, s := range plan.Sections {
		if !done[s.Index] {
			continue
		}
		rec, ok := sections[s.Index]
		if !ok {
			report.MissingBodies = append(report.MissingBodies, s.Index)
			continue
		}
		report.SectionsRead++
		report.TotalWords += rec.Words

		add := func(issue string) {
			report.Findings = append(report.Findings, models.ReviewFinding{
				SectionIndex: s.Index,
				Title:        s.Title,
				Issue:        issue,
				Words:        rec.Words,
			})
		}
		if s.TargetLengthHint > 0 && float64(rec.Words) < shortSectionRatio*float64(s.TargetLengthHint) {
			add(fmt.Sprintf("short: %d words against a target of %d", rec.Words, s.TargetLengthHint))
		}
		if refusal, reason := generation.LooksLikeRefusal(rec.Content); refusal {
			add("possible refusal: " + reason)
		}
		if truncated, reason := generation.LooksTruncated(rec.Content); truncated {
			add("possibly truncated: " + reason)
		}
	}
	return report
}
