package replicator

import (
	"sort"
	"sync"

	"github.com/ssd-technologies/nocturne-fleet/internal/registry"
)

// Tracker holds the loaded target-server registry in memory and answers the
// "who is eligible next" question the auto-manage loop and the Decision
// Maker both need (§4.4 "Own the target-server registry").
type Tracker struct {
	mu      sync.RWMutex
	servers map[string]registry.ServerEntry
}

// NewTracker builds a Tracker from a loaded registry.File.
func NewTracker(f *registry.File) *Tracker {
	t := &Tracker{servers: make(map[string]registry.ServerEntry, len(f.TargetServers))}
	for _, e := range f.TargetServers {
		t.servers[e.ID] = e
	}
	return t
}

// Replace swaps in a freshly loaded registry wholesale, used after the
// registry file is edited and reloaded.
func (t *Tracker) Replace(f *registry.File) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.servers = make(map[string]registry.ServerEntry, len(f.TargetServers))
	for _, e := range f.TargetServers {
		t.servers[e.ID] = e
	}
}

// Get returns one server entry by id.
func (t *Tracker) Get(id string) (registry.ServerEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.servers[id]
	return e, ok
}

// Enabled returns every enabled server entry.
func (t *Tracker) Enabled() []registry.ServerEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]registry.ServerEntry, 0, len(t.servers))
	for _, e := range t.servers {
		if e.Enabled != nil && *e.Enabled {
			out = append(out, e)
		}
	}
	return out
}

func priorityOf(e registry.ServerEntry) int {
	if e.Priority == nil {
		return 100
	}
	return *e.Priority
}

// selectTarget picks the next server to replicate onto: enabled, with no
// record or only a Failed one, ordered by priority then fewest historical
// failures then lexicographic id (§4.4 "Tie-breaks").
func (t *Tracker) selectTarget(recs *records) (registry.ServerEntry, bool) {
	candidates := t.Enabled()
	eligible := make([]registry.ServerEntry, 0, len(candidates))
	for _, e := range candidates {
		rec, ok := recs.get(e.ID)
		if !ok || rec.State == StateFailed {
			eligible = append(eligible, e)
		}
	}
	if len(eligible) == 0 {
		return registry.ServerEntry{}, false
	}
	sort.Slice(eligible, func(i, j int) bool {
		pi, pj := priorityOf(eligible[i]), priorityOf(eligible[j])
		if pi != pj {
			return pi < pj
		}
		fi, _ := recs.get(eligible[i].ID)
		fj, _ := recs.get(eligible[j].ID)
		if fi.AttemptCount != fj.AttemptCount {
			return fi.AttemptCount < fj.AttemptCount
		}
		return eligible[i].ID < eligible[j].ID
	})
	return eligible[0], true
}
