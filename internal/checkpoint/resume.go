package checkpoint

import (
	"fmt"

	"github.com/lamim/folioforge/pkg/models"
)

// NextIndex returns the lowest section index not yet completed, or planSize
// when every section is done.
func NextIndex(rec *models.CheckpointRecord, planSize int) int {
	done := completedSet(rec)
	for i := 0; i < planSize; i++ {
		if !done[i] {
			return i
		}
	}
	return planSize
}

// Pending returns the indices still to generate, ascending
func Pending(rec *models.CheckpointRecord, planSize int) []int {
	done := completedSet(rec)
	var pending []int
	for i := 0; i < planSize; i++ {
		if !done[i] {
			pending = append(pending, i)
		}
	}
	return pending
}

// ProgressPercentage returns completion percentage
func ProgressPercentage(rec *models.CheckpointRecord) float64 {
	if rec.PlanSize == 0 {
		return 0.0
	}
	return float64(len(rec.CompletedSections)) / float64(rec.PlanSize) * 100.0
}

// ValidateAgainstPlan verifies a record belongs to the given plan
func ValidateAgainstPlan(rec *models.CheckpointRecord, plan *models.SectionPlan) error {
	if rec.PlanSize != plan.Len() {
		return fmt.Errorf("%w: checkpoint has %d sections, plan has %d", ErrPlanMismatch, rec.PlanSize, plan.Len())
	}
	if rec.PlanHash != plan.Hash {
		return fmt.Errorf("%w: plan hash %s vs %s", ErrPlanMismatch, shortHash(rec.PlanHash), shortHash(plan.Hash))
	}
	return Validate(rec)
}

func completedSet(rec *models.CheckpointRecord) map[int]bool {
	done := make(map[int]bool, len(rec.CompletedSections))
	for _, idx := range rec.CompletedSections {
		done[idx] = true
	}
	return done
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
