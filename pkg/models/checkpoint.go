package models

import "time"

// CheckpointVersion is written into every record so older files can be detected.
const CheckpointVersion = "1.0"

// CheckpointStatus is the last known worker outcome recorded with the checkpoint
type CheckpointStatus string

const (
	StatusRunning   CheckpointStatus = "running"
	StatusPaused    CheckpointStatus = "paused"
	StatusFailed    CheckpointStatus = "failed"
	StatusCompleted CheckpointStatus = "completed"
)

// CheckpointRecord is the durable ledger of which sections of a project are done
type CheckpointRecord struct {
	Version   string `json:"version"`
	ProjectID string `json:"project_id"`
	Model     string `json:"model"`

	// CompletedSections is append-only and in generation order
	CompletedSections []int `json:"completed_sections"`

	// Plan fingerprint (for re-plan detection)
	PlanSize int    `json:"plan_size"`
	PlanHash string `json:"plan_hash"`

	Status    CheckpointStatus `json:"status"`
	LastError string           `json:"last_error,omitempty"`

	CreatedAt     time.Time `json:"created_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// IsComplete reports whether every planned section has been committed
func (r *CheckpointRecord) IsComplete() bool {
	return r.PlanSize > 0 && len(r.CompletedSections) >= r.PlanSize
}

// Clone returns a deep copy of the record
func (r *CheckpointRecord) Clone() *CheckpointRecord {
	c := *r
	c.CompletedSections = append([]int(nil), r.CompletedSections...)
	return &c
}

// IndexEntry is the summary row kept in the checkpoint index
type IndexEntry struct {
	ProjectID     string           `json:"project_id"`
	Model         string           `json:"model"`
	PlanSize      int              `json:"plan_size"`
	Completed     int              `json:"completed"`
	Status        CheckpointStatus `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
	LastUpdatedAt time.Time        `json:"last_updated_at"`
}

// EntryFromRecord builds the index row for a record
func EntryFromRecord(r *CheckpointRecord) IndexEntry {
	return IndexEntry{
		ProjectID:     r.ProjectID,
		Model:         r.Model,
		PlanSize:      r.PlanSize,
		Completed:     len(r.CompletedSections),
		Status:        r.Status,
		CreatedAt:     r.CreatedAt,
		LastUpdatedAt: r.LastUpdatedAt,
	}
}

// Incomplete reports whether the project still has sections to generate
func (e IndexEntry) Incomplete() bool {
	return e.Completed < e.PlanSize
}
