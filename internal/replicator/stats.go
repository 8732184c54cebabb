package replicator

import "github.com/ssd-technologies/nocturne-fleet/internal/decisionmaker"

// Stats summarizes replica counts for the Decision Maker's Context (§4.1
// Scale/Deploy triggers read Active against Min/Max).
func (m *Manager) Stats() decisionmaker.ReplicaStats {
	recs := m.records.all()
	active, healthy := 0, 0
	for _, r := range recs {
		switch r.State {
		case StateRunning, StateDeploying, StatePending:
			active++
		}
		if r.State == StateRunning {
			healthy++
		}
	}
	return decisionmaker.ReplicaStats{
		Active:  active,
		Healthy: healthy,
		Max:     m.maxReplicas,
		Min:     m.minReplicas,
	}
}

// Candidates lists every enabled server as a decisionmaker.Candidate, so the
// Decision Maker can pick Deploy targets without importing this package's
// registry types.
func (m *Manager) Candidates() []decisionmaker.Candidate {
	enabled := m.tracker.Enabled()
	out := make([]decisionmaker.Candidate, 0, len(enabled))
	for _, e := range enabled {
		rec, _ := m.records.get(e.ID)
		out = append(out, decisionmaker.Candidate{
			ID:           e.ID,
			Priority:     priorityOf(e),
			FailureCount: rec.AttemptCount,
			Running:      rec.State == StateRunning || rec.State == StateDeploying || rec.State == StatePending,
		})
	}
	return out
}
