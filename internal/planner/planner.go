// Package planner expands a coarse outline into the ordered list of
// sections that the worker generates one call at a time.
package planner

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lamim/folioforge/pkg/models"
)

const (
	DefaultSectionsPerTopic = 10
	DefaultMinSections      = 120
	DefaultTargetWords      = 900
)

// ErrPlanning matches every *PlanningError
var ErrPlanning = errors.New("planning failed")

// PlanningError reports an outline that cannot produce a valid plan
type PlanningError struct {
	Reason string
}

func (e *PlanningError) Error() string {
	return "planning failed: " + e.Reason
}

// Is lets errors.Is(err, ErrPlanning) match
func (e *PlanningError) Is(target error) bool { return target == ErrPlanning }

// DefaultOptions returns the stock planner settings
func DefaultOptions() models.PlanOptions {
	return models.PlanOptions{
		SectionsPerTopic: DefaultSectionsPerTopic,
		MinSections:      DefaultMinSections,
		TargetWords:      DefaultTargetWords,
	}
}

// Plan expands every topic into exactly opts.SectionsPerTopic sections.
// The result is a pure function of its inputs.
func Plan(outline models.Outline, opts models.PlanOptions) (*models.SectionPlan, error) {
	if opts.SectionsPerTopic < 1 {
		return nil, &PlanningError{Reason: fmt.Sprintf("sections per topic must be positive (got %d)", opts.SectionsPerTopic)}
	}
	if opts.TargetWords < 1 {
		opts.TargetWords = DefaultTargetWords
	}
	if len(outline.Topics) == 0 {
		return nil, &PlanningError{Reason: "outline has no topics"}
	}
	for i, topic := range outline.Topics {
		if strings.TrimSpace(topic.Title) == "" {
			return nil, &PlanningError{Reason: fmt.Sprintf("topic %d has an empty title", i+1)}
		}
	}

	total := len(outline.Topics) * opts.SectionsPerTopic
	if total < opts.MinSections {
		return nil, &PlanningError{Reason: fmt.Sprintf(
			"%d topics x %d sections = %d, below the minimum of %d",
			len(outline.Topics), opts.SectionsPerTopic, total, opts.MinSections)}
	}

	plan := &models.SectionPlan{
		DocumentTitle: strings.TrimSpace(outline.Title),
		Options:       opts,
		Sections:      make([]models.Section, 0, total),
	}

	for _, topic := range outline.Topics {
		title := strings.TrimSpace(topic.Title)
		for part, focus := range distribute(cleanSubTopics(topic.SubTopics), opts.SectionsPerTopic) {
			plan.Sections = append(plan.Sections, models.Section{
				Index:            len(plan.Sections),
				Title:            sectionTitle(title, focus, part, opts.SectionsPerTopic),
				ParentTopic:      title,
				Focus:            focus,
				TargetLengthHint: opts.TargetWords,
			})
		}
	}

	plan.Hash = Hash(plan)
	return plan, nil
}

// distribute spreads sub-topics over n sections in order. With more
// sub-topics than sections each section takes a contiguous run; with fewer,
// each sub-topic spans several sections.
func distribute(subTopics []string, n int) [][]string {
	out := make([][]string, n)
	if len(subTopics) == 0 {
		return out
	}
	if len(subTopics) >= n {
		for i, st := range subTopics {
			slot := i * n / len(subTopics)
			out[slot] = append(out[slot], st)
		}
		return out
	}
	for i := 0; i < n; i++ {
		out[i] = []string{subTopics[i*len(subTopics)/n]}
	}
	return out
}

func sectionTitle(topic string, focus []string, part, n int) string {
	if n == 1 {
		return topic
	}
	if len(focus) == 1 {
		return fmt.Sprintf("%s: %s (Part %d)", topic, focus[0], part+1)
	}
	if len(focus) > 1 {
		return fmt.Sprintf("%s: %s and more (Part %d)", topic, focus[0], part+1)
	}
	return fmt.Sprintf("%s (Part %d)", topic, part+1)
}

func cleanSubTopics(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Hash fingerprints the sections and options of a plan. Two plans with the
// same hash generate the same sections in the same order.
func Hash(plan *models.SectionPlan) string {
	payload := struct {
		Title    string             `json:"title"`
		Options  models.PlanOptions `json:"options"`
		Sections []models.Section   `json:"sections"`
	}{plan.DocumentTitle, plan.Options, plan.Sections}

	data, _ := json.Marshal(payload) // plain structs, cannot fail
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
