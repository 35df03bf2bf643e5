package models

import "time"

// Outline is the coarse document structure supplied by the caller
type Outline struct {
	Title  string  `json:"title" yaml:"title"`
	Brief  string  `json:"brief,omitempty" yaml:"brief,omitempty"`
	Topics []Topic `json:"topics" yaml:"topics"`
}

// Topic is one coarse outline node
type Topic struct {
	Title     string   `json:"title" yaml:"title"`
	SubTopics []string `json:"subtopics,omitempty" yaml:"subtopics,omitempty"`
}

// Section is a single generation unit produced by the planner
type Section struct {
	Index            int      `json:"index"`
	Title            string   `json:"title"`
	ParentTopic      string   `json:"parent_topic"`
	Focus            []string `json:"focus,omitempty"`
	TargetLengthHint int      `json:"target_length_hint"` // words
}

// PlanOptions are the inputs besides the outline that shape a plan
type PlanOptions struct {
	SectionsPerTopic int `json:"sections_per_topic"`
	MinSections      int `json:"min_sections"`
	TargetWords      int `json:"target_words"`
}

// SectionPlan is the ordered, immutable list of sections for a project
type SectionPlan struct {
	DocumentTitle string      `json:"document_title"`
	Options       PlanOptions `json:"options"`
	Sections      []Section   `json:"sections"`
	Hash          string      `json:"hash"`
}

// Len returns the number of planned sections
func (p *SectionPlan) Len() int {
	return len(p.Sections)
}

// Project is one document generation run
type Project struct {
	ID        string    `json:"project_id"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
}

// SectionRecord is one line of the project's section log
type SectionRecord struct {
	Index       int       `json:"index"`
	Title       string    `json:"title"`
	ParentTopic string    `json:"parent_topic"`
	Content     string    `json:"content"`
	Words       int       `json:"words"`
	Model       string    `json:"model"`
	GeneratedAt time.Time `json:"generated_at"`
}

// WorkerState is the generation worker lifecycle state
type WorkerState string

const (
	WorkerIdle      WorkerState = "idle"
	WorkerRunning   WorkerState = "running"
	WorkerCompleted WorkerState = "completed"
	WorkerFailed    WorkerState = "failed"
	WorkerPaused    WorkerState = "paused"
)

// ImageCue is a figure suggestion found in generated content
type ImageCue struct {
	SectionIndex int    `json:"section_index"`
	Description  string `json:"description"`
}

// ReviewFinding describes a problem spotted in a generated section
type ReviewFinding struct {
	SectionIndex int    `json:"section_index"`
	Title        string `json:"title"`
	Issue        string `json:"issue"`
	Words        int    `json:"words"`
}

// ReviewReport summarizes the reviewer pass
type ReviewReport struct {
	ProjectID     string          `json:"project_id"`
	SectionsRead  int             `json:"sections_read"`
	TotalWords    int             `json:"total_words"`
	Findings      []ReviewFinding `json:"findings"`
	ReviewedAt    time.Time       `json:"reviewed_at"`
	MissingBodies []int           `json:"missing_bodies,omitempty"`
}

// RunSummary describes a finished pipeline run
type RunSummary struct {
	ProjectID    string `json:"project_id"`
	Sections     int    `json:"sections"`
	Words        int    `json:"words"`
	ImageCues    int    `json:"image_cues"`
	Findings     int    `json:"findings"`
	DocumentPath string `json:"document_path"`
}
