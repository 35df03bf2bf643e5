package models

import "time"

// Phase is a coarse pipeline phase shown to operators
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhasePlanning     Phase = "planning"
	PhaseDrafting     Phase = "drafting"
	PhaseCurating     Phase = "curating"
	PhaseReviewing    Phase = "reviewing"
	PhaseAssembling   Phase = "assembling"
	PhaseCompleted    Phase = "completed"
	PhaseFailed       Phase = "failed"
	PhasePaused       Phase = "paused"
)

// AgentID names a logical pipeline role
type AgentID string

const (
	AgentArchitect    AgentID = "architect"
	AgentWriter       AgentID = "writer"
	AgentImageCurator AgentID = "imageCurator"
	AgentReviewer     AgentID = "reviewer"
)

// Agents lists every tracked agent in display order
var Agents = []AgentID{AgentArchitect, AgentWriter, AgentImageCurator, AgentReviewer}

// AgentStatus is the status of one agent
type AgentStatus string

const (
	AgentPending AgentStatus = "pending"
	AgentRunning AgentStatus = "running"
	AgentDone    AgentStatus = "done"
	AgentError   AgentStatus = "error"
)

// AgentState is the tracked state of one agent
type AgentState struct {
	Status   AgentStatus `json:"status"`
	Progress int         `json:"progress"`
	Detail   string      `json:"detail"`
}

// LogLevel classifies a progress log entry
type LogLevel string

const (
	LogInfo    LogLevel = "info"
	LogSuccess LogLevel = "success"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
)

// LogEntry is one line of the rolling progress log
type LogEntry struct {
	Message   string   `json:"message"`
	Level     LogLevel `json:"type"`
	Agent     AgentID  `json:"agent,omitempty"`
	Timestamp int64    `json:"timestamp"` // unix millis
	Time      string   `json:"time"`
}

// ProgressState is the in-memory status of a project
type ProgressState struct {
	ProjectID string                 `json:"project_id"`
	Phase     Phase                  `json:"phase"`
	Agents    map[AgentID]AgentState `json:"agents"`
	Logs      []LogEntry             `json:"logs"`
	StartedAt time.Time              `json:"started_at"`
}
