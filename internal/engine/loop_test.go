package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ssd-technologies/nocturne-fleet/internal/decisionmaker"
	"github.com/ssd-technologies/nocturne-fleet/internal/health"
	"github.com/ssd-technologies/nocturne-fleet/internal/mesh"
	"github.com/ssd-technologies/nocturne-fleet/internal/recovery"
	"github.com/ssd-technologies/nocturne-fleet/internal/registry"
	"github.com/ssd-technologies/nocturne-fleet/internal/replicator"
	"github.com/ssd-technologies/nocturne-fleet/internal/scheduler"
	"github.com/ssd-technologies/nocturne-fleet/internal/storage"
)

type noopDeployer struct{}

func (noopDeployer) FullDeploy(ctx context.Context, server registry.ServerEntry, binaryPath string, auxFiles []string) (int64, bool, error) {
	return 0, true, nil
}

func newTestEngine(t *testing.T, servers ...registry.ServerEntry) *Engine {
	t.Helper()
	db, err := storage.NewDB(filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatalf("storage.NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	history := recovery.NewHistory(db)
	recoveryMgr := recovery.NewManager("self", history, recovery.Executors{})

	f := &registry.File{TargetServers: servers}
	f.ApplyDefaults()
	tracker := replicator.NewTracker(f)
	replicas := replicator.NewManager(tracker, noopDeployer{}, replicator.Config{MinReplicas: 2, MaxReplicas: 3, Concurrency: 1})

	reg := scheduler.NewRegistry()
	reg.Register(scheduler.KindHealthCheck, func(ctx context.Context, task *scheduler.Task) error { return nil })
	tasks := scheduler.New(reg, scheduler.Config{Workers: 1})

	store := health.NewStore(5)

	return New(EngineContext{
		Decisions: decisionmaker.New(0.1),
		Health:    store,
		Replicas:  replicas,
		Recovery:  recoveryMgr,
		Tasks:     tasks,
		Events:    mesh.NewEventLog(10),
		NodeID:    "self",
	})
}

func TestTick_HealthySnapshotWithNoTargetsYieldsMonitorDecision(t *testing.T) {
	e := newTestEngine(t) // no target servers registered, so Deploy has nowhere to go
	e.ctx.Health.Update(health.Snapshot{CPUPercent: 10, MemoryPercent: 10, DiskPercent: 10})

	if err := e.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	events := e.ctx.Events.Recent()
	if len(events) != 1 {
		t.Fatalf("expected 1 recorded event, got %d", len(events))
	}
	if events[0].Kind != "monitor/success" {
		t.Fatalf("expected monitor/success event, got %s", events[0].Kind)
	}
}

func TestTick_CriticalHealthTriggersRecovery(t *testing.T) {
	e := newTestEngine(t)
	e.ctx.Health.Update(health.Snapshot{CPUPercent: 99, MemoryPercent: 99, DiskPercent: 99, NetworkLatencyMs: 500, ErrorRate: 0.5})
	// No target servers registered; a Recover decision still takes precedence
	// over Deploy regardless of replica headroom.

	if err := e.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	events := e.ctx.Events.Recent()
	if len(events) != 1 || events[0].Kind != "recover/success" {
		t.Fatalf("expected recover/success event, got %+v", events)
	}
}

func TestTick_UnderMinReplicasTriggersDeploy(t *testing.T) {
	entry := registry.ServerEntry{ID: "web-01", IP: "10.0.0.1", Username: "deploy", RemotePath: "/opt/fleet"}
	entry.Auth.Method = registry.MethodKey
	entry.Auth.KeyPath = "k"
	e := newTestEngine(t, entry)
	e.ctx.Health.Update(health.Snapshot{CPUPercent: 10, MemoryPercent: 10, DiskPercent: 10})

	if err := e.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(e.ctx.Replicas.Records()) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(e.ctx.Replicas.Records()) == 0 {
		t.Fatal("expected a replication attempt to have been recorded")
	}
}

func TestSnapshot_ReflectsLocalAndReplicaState(t *testing.T) {
	e := newTestEngine(t)
	e.ctx.Health.Update(health.Snapshot{CPUPercent: 10, MemoryPercent: 10, DiskPercent: 10})

	status := e.Snapshot()
	if status.Total < 1 {
		t.Fatalf("expected at least the local node in the snapshot, got %+v", status)
	}
}
