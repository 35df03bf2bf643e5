package progress

import "github.com/lamim/folioforge/pkg/models"

// Status returns a pointer for AgentUpdate.Status
func Status(s models.AgentStatus) *models.AgentStatus { return &s }

// Percent returns a pointer for AgentUpdate.Progress
func Percent(p int) *int { return &p }

// Detail returns a pointer for AgentUpdate.Detail
func Detail(d string) *string { return &d }

// Log is a shorthand for AddLog with a level and agent
func (t *Tracker) Log(projectID string, agent models.AgentID, level models.LogLevel, msg string) {
	t.AddLog(projectID, models.LogEntry{Message: msg, Level: level, Agent: agent})
}

// Fail marks an agent as errored and records why
func (t *Tracker) Fail(projectID string, agent models.AgentID, msg string) {
	t.UpdateAgent(projectID, agent, AgentUpdate{Status: Status(models.AgentError), Detail: Detail(msg)})
	t.Log(projectID, agent, models.LogError, msg)
}
