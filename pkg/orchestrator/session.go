package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/plugincraft/forge/pkg/shared/types"
)

func newSession(pluginName, userID, prompt string, ttl time.Duration) *types.Session {
	now := time.Now()
	phases := make(map[types.PhaseName]*types.PhaseState, len(types.PhaseOrder))
	for _, name := range types.PhaseOrder {
		phases[name] = &types.PhaseState{Name: name, Status: types.PhasePending}
	}
	return &types.Session{
		ID:             uuid.NewString(),
		PluginName:     pluginName,
		UserID:         userID,
		OriginalPrompt: prompt,
		StartedAt:      now,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
		Phases:         phases,
	}
}

// recordAgentUsed appends agentID to the session's AgentsUsed list, if not
// already present. Called concurrently by the analysis phase's fan-out, so
// it is guarded by the orchestrator's own mutex rather than one on Session.
func (o *Orchestrator) recordAgentUsed(session *types.Session, agentID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, id := range session.AgentsUsed {
		if id == agentID {
			return
		}
	}
	session.AgentsUsed = append(session.AgentsUsed, agentID)
}

func (o *Orchestrator) register(session *types.Session, cancel context.CancelFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sessions[session.ID] = session
	o.cancels[session.ID] = cancel
}

// forget drops the session's cancel handle and closes its bus
// subscriptions. The session itself stays in the registry (and hence in
// ListSessions) until it ages past its ExpiresAt.
func (o *Orchestrator) forget(sessionID string) {
	o.mu.Lock()
	delete(o.cancels, sessionID)
	o.mu.Unlock()
	if o.bus != nil {
		o.bus.CloseSession(sessionID)
	}
}

// ListSessions returns a snapshot of every session still tracked in
// memory, active or recently finished (spec.md's supplemented session-
// listing API).
func (o *Orchestrator) ListSessions() []types.Session {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := time.Now()
	out := make([]types.Session, 0, len(o.sessions))
	for id, s := range o.sessions {
		if now.After(s.ExpiresAt) {
			delete(o.sessions, id)
			continue
		}
		out = append(out, *s)
	}
	return out
}

// CancelSession cancels the running creation for sessionID, if any, and
// reports whether a live session was found (spec.md's supplemented
// cancellation API).
func (o *Orchestrator) CancelSession(sessionID string) bool {
	o.mu.Lock()
	cancel, ok := o.cancels[sessionID]
	if ok {
		if s, exists := o.sessions[sessionID]; exists {
			s.Cancelled = true
		}
	}
	o.mu.Unlock()

	if ok {
		cancel()
	}
	return ok
}

// publishPhaseProgress advances the named phase's own 0-100 progress,
// recomputes the session's overall weighted progress, and publishes an
// agent.progress envelope.
func (o *Orchestrator) publishPhaseProgress(session *types.Session, phase types.PhaseName, step string, progress int, message string) {
	o.mu.Lock()
	state := session.Phases[phase]
	if state.Status == types.PhasePending {
		state.Status = types.PhaseActive
		state.StartedAt = time.Now()
	}
	state.Progress = progress
	session.Overall = overallProgress(session)
	overall := session.Overall
	o.mu.Unlock()

	o.emitProgress(session.ID, phase, step, overall, message)
}

// completePhase marks phase 100% done and publishes the resulting overall
// progress.
func (o *Orchestrator) completePhase(session *types.Session, phase types.PhaseName) {
	o.mu.Lock()
	state := session.Phases[phase]
	state.Status = types.PhaseCompleted
	state.Progress = 100
	state.EndedAt = time.Now()
	session.Overall = overallProgress(session)
	overall := session.Overall
	o.mu.Unlock()

	o.emitProgress(session.ID, phase, "complete", overall, string(phase)+" phase complete")
}

// failPhase marks a phase failed without advancing its progress further;
// per spec.md §7 a phase failure stops the pipeline but any artifacts
// already written to disk are left in place.
func (o *Orchestrator) failPhase(session *types.Session, phase types.PhaseName, err error) {
	o.mu.Lock()
	state := session.Phases[phase]
	state.Status = types.PhaseFailed
	state.EndedAt = time.Now()
	overall := session.Overall
	o.mu.Unlock()

	o.emitProgress(session.ID, phase, "failed", overall, err.Error())
}

func (o *Orchestrator) emitProgress(sessionID string, phase types.PhaseName, step string, progress int, message string) {
	if o.bus == nil {
		return
	}
	o.bus.PublishProgress(types.ProgressEvent{
		SessionID: sessionID,
		Phase:     phase,
		Step:      step,
		Progress:  progress,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// overallProgress is the weighted sum of each phase's own progress
// (invariant I3: the weights in types.PhaseWeights sum to 100, so this is
// always in [0,100]).
func overallProgress(session *types.Session) int {
	var total int
	for name, weight := range types.PhaseWeights {
		state := session.Phases[name]
		if state == nil {
			continue
		}
		contribution := state.Progress
		if state.Status == types.PhaseCompleted {
			contribution = 100
		}
		total += weight * contribution / 100
	}
	return total
}
