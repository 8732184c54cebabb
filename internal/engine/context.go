package engine

import (
	"log"

	"github.com/ssd-technologies/nocturne-fleet/internal/decisionmaker"
	"github.com/ssd-technologies/nocturne-fleet/internal/health"
	"github.com/ssd-technologies/nocturne-fleet/internal/mesh"
	"github.com/ssd-technologies/nocturne-fleet/internal/recovery"
	"github.com/ssd-technologies/nocturne-fleet/internal/replicator"
	"github.com/ssd-technologies/nocturne-fleet/internal/scheduler"
)

// EngineContext wires every component the control loop touches. It is
// built once at startup and threaded explicitly into Engine — nothing here
// lives behind a package-level variable (§9 "No hidden globals": the
// teacher's cmd/nocturne/main.go already wires its server this way, this
// generalizes the same practice to six components instead of one).
type EngineContext struct {
	Decisions  *decisionmaker.DecisionMaker
	Health     *health.Store
	Monitor    *health.Monitor
	Replicas   *replicator.Manager
	Recovery   *recovery.Manager
	Tasks      *scheduler.Scheduler
	Events     *mesh.EventLog
	NodeID     string
	Logger     *log.Logger
}
