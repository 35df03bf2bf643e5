package progress

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/lamim/folioforge/pkg/models"
)

// MaxLogEntries bounds the rolling log of each project
const MaxLogEntries = 100

// AgentUpdate carries the fields to merge into an agent's state.
// Nil fields are left untouched.
type AgentUpdate struct {
	Status   *models.AgentStatus
	Progress *int
	Detail   *string
}

// Tracker holds the advisory, in-memory progress of every project in the process.
// Operations on unknown project or agent ids are no-ops.
type Tracker struct {
	mu     sync.RWMutex
	states map[string]*models.ProgressState
	now    func() time.Time
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{
		states: make(map[string]*models.ProgressState),
		now:    time.Now,
	}
}

// SetClock replaces the time source, for tests
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// Init creates a fresh state for projectID, replacing any previous one
func (t *Tracker) Init(projectID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	agents := make(map[models.AgentID]models.AgentState, len(models.Agents))
	for _, id := range models.Agents {
		agents[id] = models.AgentState{Status: models.AgentPending}
	}

	t.states[projectID] = &models.ProgressState{
		ProjectID: projectID,
		Phase:     models.PhaseInitializing,
		Agents:    agents,
		Logs:      []models.LogEntry{},
		StartedAt: t.now(),
	}
}

// UpdateAgent merges update into the named agent
func (t *Tracker) UpdateAgent(projectID string, agentID models.AgentID, update AgentUpdate) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[projectID]
	if !ok {
		return
	}
	agent, ok := state.Agents[agentID]
	if !ok {
		return
	}

	if update.Status != nil {
		agent.Status = *update.Status
	}
	if update.Progress != nil {
		agent.Progress = clamp(*update.Progress)
	}
	if update.Detail != nil {
		agent.Detail = *update.Detail
	}
	state.Agents[agentID] = agent
}

// AddLog appends a timestamped entry, evicting the oldest beyond MaxLogEntries
func (t *Tracker) AddLog(projectID string, entry models.LogEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[projectID]
	if !ok {
		return
	}

	now := t.now()
	entry.Timestamp = now.UnixMilli()
	entry.Time = now.Format("15:04:05")
	if entry.Level == "" {
		entry.Level = models.LogInfo
	}

	state.Logs = append(state.Logs, entry)
	if over := len(state.Logs) - MaxLogEntries; over > 0 {
		// copy so the evicted prefix does not pin the backing array
		state.Logs = append([]models.LogEntry(nil), state.Logs[over:]...)
	}
}

// UpdatePhase sets the project's phase
func (t *Tracker) UpdatePhase(projectID string, phase models.Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if state, ok := t.states[projectID]; ok {
		state.Phase = phase
	}
}

// Get returns a copy of the project's state
func (t *Tracker) Get(projectID string) (models.ProgressState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	state, ok := t.states[projectID]
	if !ok {
		return models.ProgressState{}, false
	}

	out := *state
	out.Agents = make(map[models.AgentID]models.AgentState, len(state.Agents))
	for id, a := range state.Agents {
		out.Agents[id] = a
	}
	out.Logs = append([]models.LogEntry(nil), state.Logs...)
	return out, true
}

// CalculateOverallProgress returns the mean agent progress rounded half up, or 0 if unknown
func (t *Tracker) CalculateOverallProgress(projectID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	state, ok := t.states[projectID]
	if !ok || len(state.Agents) == 0 {
		return 0
	}

	total := 0
	for _, a := range state.Agents {
		total += a.Progress
	}
	mean := float64(total) / float64(len(state.Agents))
	return int(math.Floor(mean + 0.5))
}

// Clear drops all state for projectID
func (t *Tracker) Clear(projectID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, projectID)
}

// Projects lists tracked project ids in sorted order
func (t *Tracker) Projects() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0, len(t.states))
	for id := range t.states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func clamp(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
