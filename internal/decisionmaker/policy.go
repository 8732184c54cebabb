package decisionmaker

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/ssd-technologies/nocturne-fleet/internal/health"
)

// Recovery action hints a Decision may carry. The Recovery Manager (§4.3)
// runs its own cause-keyed escalation and is free to select a different
// action than the one suggested here; this is a starting guess, not a
// binding instruction.
const (
	ActionRestartProcess     = "restart_process"
	ActionRollbackDeployment = "rollback_deployment"
	ActionEmergencyShutdown  = "emergency_shutdown"
)

// selfNode is the identifier the Decision Maker uses for the local node it
// runs inside — the engine can only directly observe and recover itself.
const selfNode = "self"

// DefaultTickInterval is the Interval carried by a Monitor decision when
// nothing else warrants attention: one default decision tick.
const DefaultTickInterval = 30 * time.Second

// DecisionMaker evaluates Context snapshots against learned Thresholds and
// emits exactly one Decision per tick (§4.1).
type DecisionMaker struct {
	Thresholds *Thresholds
}

// New builds a DecisionMaker with a fresh default Thresholds set.
func New(learningRate float64) *DecisionMaker {
	return &DecisionMaker{Thresholds: NewThresholds(learningRate)}
}

// Evaluate applies the precedence rule Recover > Scale > Deploy > Monitor
// and returns the single Decision for this tick.
func (d *DecisionMaker) Evaluate(ctx Context) Decision {
	th := d.Thresholds.Snapshot()
	score := health.Score(ctx.Health)

	if ctx.Health.Status == health.Critical || score < th.MinHealthCritical {
		return Decision{
			ID:         uuid.NewString(),
			Kind:       KindRecover,
			Reason:     "health status critical or composite score below critical threshold",
			FailedNode: selfNode,
			Action:     ActionRestartProcess,
		}
	}

	if (ctx.Health.CPUPercent > th.ScaleUp || ctx.Health.MemoryPercent > th.ScaleUp) &&
		ctx.Replicas.Active < ctx.Replicas.Max {
		return Decision{
			ID:     uuid.NewString(),
			Kind:   KindScale,
			Reason: "cpu or memory above scale-up threshold with replica headroom",
			// Factor is a replica delta, not a multiplier: every Scale
			// decision requests exactly one additional replica.
			Factor: 1,
		}
	}

	if score > th.MinHealthHealthy && ctx.Replicas.Active < ctx.Replicas.Min {
		targets := selectTargets(ctx.Candidates, ctx.Replicas.Min-ctx.Replicas.Active)
		if len(targets) > 0 {
			return Decision{
				ID:       uuid.NewString(),
				Kind:     KindDeploy,
				Reason:   "active replicas below configured minimum",
				Targets:  targets,
				Priority: "normal",
			}
		}
	}

	return Decision{
		ID:       uuid.NewString(),
		Kind:     KindMonitor,
		Reason:   "no threshold crossed",
		Interval: DefaultTickInterval,
	}
}

// selectTargets picks up to n candidates that are not already running,
// preferring lower Priority values, then fewer prior failures, then
// lexicographically smaller IDs for determinism.
func selectTargets(candidates []Candidate, n int) []string {
	if n <= 0 {
		return nil
	}
	eligible := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if !c.Running {
			eligible = append(eligible, c)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].Priority != eligible[j].Priority {
			return eligible[i].Priority < eligible[j].Priority
		}
		if eligible[i].FailureCount != eligible[j].FailureCount {
			return eligible[i].FailureCount < eligible[j].FailureCount
		}
		return eligible[i].ID < eligible[j].ID
	})
	if n > len(eligible) {
		n = len(eligible)
	}
	targets := make([]string, 0, n)
	for _, c := range eligible[:n] {
		targets = append(targets, c.ID)
	}
	return targets
}
