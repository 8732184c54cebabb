package replicator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ssd-technologies/nocturne-fleet/internal/registry"
)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func entry(id string, priority int) registry.ServerEntry {
	return registry.ServerEntry{
		ID: id, Name: id, IP: "127.0.0.1", Port: 0, Username: "svc",
		RemotePath: "/opt/fleet", Enabled: boolPtr(true), Priority: intPtr(priority),
		MaxRetries: intPtr(3),
	}
}

type fakeDeployer struct {
	mu          sync.Mutex
	calls       int
	concurrent  int32
	maxObserved int32
	fail        map[string]bool
	delay       time.Duration
}

func (f *fakeDeployer) FullDeploy(ctx context.Context, server registry.ServerEntry, binaryPath string, aux []string) (int64, bool, error) {
	cur := atomic.AddInt32(&f.concurrent, 1)
	defer atomic.AddInt32(&f.concurrent, -1)
	for {
		max := atomic.LoadInt32(&f.maxObserved)
		if cur <= max || atomic.CompareAndSwapInt32(&f.maxObserved, max, cur) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.calls++
	fail := f.fail[server.ID]
	f.mu.Unlock()
	if fail {
		return 0, false, errors.New("deploy refused")
	}
	return 1024, true, nil
}

func TestManager_ReplicatesUpToMinReplicas(t *testing.T) {
	tracker := NewTracker(&registry.File{TargetServers: []registry.ServerEntry{
		entry("a", 10), entry("b", 20),
	}})
	dep := &fakeDeployer{}
	m := NewManager(tracker, dep, Config{MinReplicas: 1, MaxReplicas: 5, Concurrency: 2})

	m.RunOnce(context.Background())

	stats := m.Stats()
	if stats.Active != 1 || stats.Healthy != 1 {
		t.Fatalf("expected one running replica, got %+v", stats)
	}
	if dep.calls != 1 {
		t.Fatalf("expected exactly one deploy call, got %d", dep.calls)
	}
}

func TestManager_SelectsLowestPriorityFirst(t *testing.T) {
	tracker := NewTracker(&registry.File{TargetServers: []registry.ServerEntry{
		entry("high-number", 50), entry("low-number", 5),
	}})
	dep := &fakeDeployer{}
	m := NewManager(tracker, dep, Config{MinReplicas: 1, MaxReplicas: 5, Concurrency: 1})

	m.RunOnce(context.Background())

	recs := m.Records()
	if len(recs) != 1 || recs[0].ServerID != "low-number" {
		t.Fatalf("expected low-number selected first, got %+v", recs)
	}
}

func TestManager_TriggerDeployHonorsExplicitTargets(t *testing.T) {
	tracker := NewTracker(&registry.File{TargetServers: []registry.ServerEntry{
		entry("low-priority-number", 5), entry("explicit-pick", 50),
	}})
	dep := &fakeDeployer{}
	m := NewManager(tracker, dep, Config{MinReplicas: 0, MaxReplicas: 5, Concurrency: 1})

	m.TriggerDeploy(context.Background(), []string{"explicit-pick"})

	recs := m.Records()
	if len(recs) != 1 || recs[0].ServerID != "explicit-pick" {
		t.Fatalf("expected the explicitly named target to be deployed instead of the tracker's own priority pick, got %+v", recs)
	}
}

func TestManager_TriggerDeployFallsBackToTrackerSelectionWhenTargetsEmpty(t *testing.T) {
	tracker := NewTracker(&registry.File{TargetServers: []registry.ServerEntry{
		entry("low-number", 5), entry("high-number", 50),
	}})
	dep := &fakeDeployer{}
	m := NewManager(tracker, dep, Config{MinReplicas: 0, MaxReplicas: 5, Concurrency: 1})

	m.TriggerDeploy(context.Background(), nil)

	recs := m.Records()
	if len(recs) != 1 || recs[0].ServerID != "low-number" {
		t.Fatalf("expected the tracker's own priority selection with no explicit targets, got %+v", recs)
	}
}

func TestManager_FailedRecordEventuallyTerminal(t *testing.T) {
	tracker := NewTracker(&registry.File{TargetServers: []registry.ServerEntry{entry("a", 10)}})
	dep := &fakeDeployer{fail: map[string]bool{"a": true}}
	m := NewManager(tracker, dep, Config{MinReplicas: 1, MaxReplicas: 5, Concurrency: 1})

	for i := 0; i < 3; i++ {
		m.RunOnce(context.Background())
	}

	recs := m.Records()
	if len(recs) != 1 || recs[0].State != StateFailed {
		t.Fatalf("expected server a to end up Failed after exhausting retries, got %+v", recs)
	}
}

func TestManager_ConcurrencyCapped(t *testing.T) {
	entries := make([]registry.ServerEntry, 0, 6)
	for i := 0; i < 6; i++ {
		entries = append(entries, entry(string(rune('a'+i)), 10))
	}
	tracker := NewTracker(&registry.File{TargetServers: entries})
	dep := &fakeDeployer{delay: 20 * time.Millisecond}
	m := NewManager(tracker, dep, Config{MinReplicas: 6, MaxReplicas: 6, Concurrency: 2})

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.TriggerDeploy(context.Background(), nil)
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&dep.maxObserved); got > 2 {
		t.Fatalf("expected at most 2 concurrent deploys, observed %d", got)
	}
}
