package engine

import (
	"context"
	"sync"
	"time"

	"github.com/ssd-technologies/nocturne-fleet/internal/decisionmaker"
	"github.com/ssd-technologies/nocturne-fleet/internal/mesh"
	"github.com/ssd-technologies/nocturne-fleet/internal/recovery"
)

// DefaultTickPeriod is the control loop's default cadence (§2 "Control flow
// per tick (default 30 s)").
const DefaultTickPeriod = 30 * time.Second

// Engine runs the per-tick control flow: sample the shared state, ask the
// Decision Maker for one Decision, dispatch it, and feed the outcome back
// as Feedback (§2 steps 1-6).
type Engine struct {
	ctx EngineContext

	mu                  sync.Mutex
	consecutiveRecovers int
	shutdown            bool
}

// New builds an Engine from an already-wired EngineContext.
func New(ectx EngineContext) *Engine {
	return &Engine{ctx: ectx}
}

// Run drives the control loop on a fixed-period ticker until ctx is
// cancelled or an InvariantViolation forces a shutdown.
func (e *Engine) Run(ctx context.Context, period time.Duration) error {
	if period <= 0 {
		period = DefaultTickPeriod
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	if err := e.Tick(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := e.Tick(ctx); err != nil {
				return err
			}
		}
	}
}

// Tick runs one full control-flow pass (§2). It returns a non-nil error
// only for a Kind that the taxonomy marks Fatal (§7 "Propagation") — every
// other failure is absorbed locally and reported as Feedback.
func (e *Engine) Tick(ctx context.Context) error {
	e.mu.Lock()
	if e.shutdown {
		e.mu.Unlock()
		return NewError(KindInvariantViolation, nil)
	}
	e.mu.Unlock()

	snapshot := e.ctx.Health.Current()
	replicaStats := e.ctx.Replicas.Stats()
	candidates := e.ctx.Replicas.Candidates()
	taskStats := e.ctx.Tasks.Stats()

	dctx := decisionmaker.Context{
		Health:     snapshot,
		Replicas:   replicaStats,
		Tasks:      taskStats,
		Candidates: candidates,
		Now:        time.Now(),
	}

	decision := e.ctx.Decisions.Evaluate(dctx)
	outcome, err := e.dispatch(ctx, decision)

	e.ctx.Decisions.Thresholds.Adjust(decisionmaker.Feedback{Kind: decision.Kind, Outcome: outcome})
	e.recordEvent(decision, outcome, err)

	if err != nil && KindOf(err).Fatal() {
		e.mu.Lock()
		e.shutdown = true
		e.mu.Unlock()
		return err
	}
	return nil
}

// dispatch routes a Decision to its executor and returns the Feedback
// Outcome threshold learning should apply (§2 step 5-6).
func (e *Engine) dispatch(ctx context.Context, decision decisionmaker.Decision) (decisionmaker.Outcome, error) {
	switch decision.Kind {
	case decisionmaker.KindMonitor:
		return decisionmaker.Success, nil

	case decisionmaker.KindScale, decisionmaker.KindDeploy:
		// TriggerDeploy dispatches asynchronously under the replicator's own
		// concurrency cap; the outcome of this tick's request isn't known
		// yet, so it's fed back as Partial rather than a false Success.
		// decision.Targets carries the Decision Maker's own tie-broken
		// selection (empty for Scale, which names no specific target).
		e.ctx.Replicas.TriggerDeploy(ctx, decision.Targets)
		return decisionmaker.Partial, nil

	case decisionmaker.KindRecover:
		return e.dispatchRecover(ctx, decision)

	default:
		return decisionmaker.Failure, NewError(KindInvariantViolation, nil)
	}
}

func (e *Engine) dispatchRecover(ctx context.Context, decision decisionmaker.Decision) (decisionmaker.Outcome, error) {
	snapshot := e.ctx.Health.Current()

	e.mu.Lock()
	streak := e.consecutiveRecovers
	e.mu.Unlock()

	cause := recovery.DeriveCause(snapshot.MemoryPercent, snapshot.DiskPercent, streak)
	result, _, err := e.ctx.Recovery.Handle(ctx, cause)

	e.mu.Lock()
	e.consecutiveRecovers++
	e.mu.Unlock()

	switch result {
	case recovery.OutcomeSuccess:
		e.mu.Lock()
		e.consecutiveRecovers = 0
		e.mu.Unlock()
		return decisionmaker.Success, nil
	case recovery.OutcomePartial:
		return decisionmaker.Partial, err
	default:
		if err == recovery.ErrQuarantined {
			return decisionmaker.Failure, NewError(KindInvariantViolation, err)
		}
		return decisionmaker.Failure, err
	}
}

func (e *Engine) recordEvent(decision decisionmaker.Decision, outcome decisionmaker.Outcome, err error) {
	if e.ctx.Events == nil {
		return
	}
	detail := decision.Reason
	if err != nil {
		detail = decision.Reason + ": " + err.Error()
	}
	e.ctx.Events.Record(decision.Kind.String()+"/"+outcome.String(), detail)
}

// Snapshot assembles the current ClusterStatus (§6.3), satisfying
// mesh.Snapshotter so the HTTP surface can poll the engine directly.
func (e *Engine) Snapshot() mesh.ClusterStatus {
	return mesh.Build(e.ctx.NodeID, e.ctx.Health.Current(), e.ctx.Replicas.Records(), e.ctx.Events)
}
