package replicator

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/ssd-technologies/nocturne-fleet/internal/registry"
)

// Deployer performs the Remote Deployer's full_deploy composite (§4.6).
// Manager depends on this narrow interface instead of internal/deploy
// directly so it can be exercised with a fake in tests; internal/deploy's
// concrete type implements it structurally.
type Deployer interface {
	FullDeploy(ctx context.Context, server registry.ServerEntry, binaryPath string, auxFiles []string) (bytesUploaded int64, verified bool, err error)
}

// DefaultCooldown is how long a Failed record is kept before pruning.
const DefaultCooldown = 30 * time.Minute

// Manager runs the Self-Replicator's auto-manage loop (§4.4).
type Manager struct {
	tracker *Tracker
	records *records
	deploy  Deployer

	binaryPath string
	auxFiles   []string

	minReplicas, maxReplicas int
	concurrency              chan struct{}
	cooldown                 time.Duration

	logger *log.Logger
}

// Config configures a Manager. Zero values fall back to spec defaults.
type Config struct {
	MinReplicas int
	MaxReplicas int
	Concurrency int
	Cooldown    time.Duration
	BinaryPath  string
	AuxFiles    []string
	Logger      *log.Logger
}

// NewManager builds a Manager over tracker with the given deployer and
// config.
func NewManager(tracker *Tracker, deploy Deployer, cfg Config) *Manager {
	if cfg.MinReplicas <= 0 {
		cfg.MinReplicas = 2
	}
	if cfg.MaxReplicas <= 0 {
		cfg.MaxReplicas = 5
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	return &Manager{
		tracker:     tracker,
		records:     newRecords(),
		deploy:      deploy,
		binaryPath:  cfg.BinaryPath,
		auxFiles:    cfg.AuxFiles,
		minReplicas: cfg.MinReplicas,
		maxReplicas: cfg.MaxReplicas,
		concurrency: make(chan struct{}, cfg.Concurrency),
		cooldown:    cfg.Cooldown,
		logger:      cfg.Logger,
	}
}

// Records exposes a read-only snapshot of every replica record.
func (m *Manager) Records() []Record {
	return m.records.all()
}

// RunOnce executes one pass of the auto-manage loop (§4.4 steps 1-3):
// verify running replicas, replicate one target if under min, prune stale
// failures. Replication on request goes through TriggerDeploy.
func (m *Manager) RunOnce(ctx context.Context) {
	m.verifyRunning(ctx)

	stats := m.Stats()
	if stats.Active < m.minReplicas {
		m.replicateOne(ctx, "")
	}

	if pruned := m.records.prune(m.cooldown); len(pruned) > 0 {
		m.logf("pruned %d stale failed replica record(s): %v", len(pruned), pruned)
	}
}

// TriggerDeploy replicates outside the min-replicas check, in response to a
// pending Deploy or Scale decision. targets carries the Decision Maker's own
// selection (Decision.Targets, §4.1 tie-break order already applied); a Scale
// decision names no specific target, so an empty slice falls back to the
// tracker's own priority selection instead.
func (m *Manager) TriggerDeploy(ctx context.Context, targets []string) {
	if len(targets) == 0 {
		m.replicateOne(ctx, "")
		return
	}
	for _, id := range targets {
		m.replicateOne(ctx, id)
	}
}

// Run drives RunOnce on a fixed interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	m.RunOnce(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunOnce(ctx)
		}
	}
}

// verifyRunning probes every Running replica with a TCP liveness check,
// marking it Failed after enough consecutive failures.
func (m *Manager) verifyRunning(ctx context.Context) {
	for _, rec := range m.records.all() {
		if rec.State != StateRunning {
			continue
		}
		server, ok := m.tracker.Get(rec.ServerID)
		if !ok {
			continue
		}
		if err := probe(ctx, server); err != nil {
			maxRetries := 3
			if server.MaxRetries != nil {
				maxRetries = *server.MaxRetries
			}
			if terminal := m.records.fail(rec.ServerID, err.Error(), maxRetries); terminal {
				m.logf("replica %s marked failed after liveness probe errors: %v", rec.ServerID, err)
			}
			continue
		}
		m.records.markVerified(rec.ServerID)
	}
}

// probe is the lightweight liveness check: TCP connect to the target's
// SSH port. The "one command round-trip" half of §4.4's check happens
// inside Deployer.FullDeploy's own verification step; a full SSH exec on
// every tick for every replica would defeat the point of a lightweight
// probe.
func probe(ctx context.Context, server registry.ServerEntry) error {
	addr := net.JoinHostPort(server.IP, fmt.Sprintf("%d", server.Port))
	d := net.Dialer{Timeout: 3 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return conn.Close()
}

// resolveTarget looks up preferredID against the tracker's eligibility
// rules (enabled, no non-Failed record), falling back to the tracker's own
// priority selection only when preferredID is empty; a preferredID that is
// no longer eligible yields no target.
func (m *Manager) resolveTarget(preferredID string) (registry.ServerEntry, bool) {
	if preferredID == "" {
		return m.tracker.selectTarget(m.records)
	}
	server, ok := m.tracker.Get(preferredID)
	if !ok || server.Enabled == nil || !*server.Enabled {
		return registry.ServerEntry{}, false
	}
	if rec, ok := m.records.get(preferredID); ok && rec.State != StateFailed {
		return registry.ServerEntry{}, false
	}
	return server, true
}

// replicateOne runs the replication procedure (§4.4) against one target,
// bounded by the concurrency semaphore. An empty preferredID falls back to
// the tracker's own priority selection; a non-empty one is honored only if
// that server is still enabled and not already running or mid-deploy.
func (m *Manager) replicateOne(ctx context.Context, preferredID string) {
	target, ok := m.resolveTarget(preferredID)
	if !ok {
		return
	}

	select {
	case m.concurrency <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-m.concurrency }()

	m.records.start(target.ID)
	m.records.transition(target.ID, StateDeploying)

	_, verified, err := m.deploy.FullDeploy(ctx, target, m.binaryPath, m.auxFiles)
	if err != nil || !verified {
		detail := "not verified"
		if err != nil {
			detail = err.Error()
		}
		maxRetries := 3
		if target.MaxRetries != nil {
			maxRetries = *target.MaxRetries
		}
		terminal := m.records.fail(target.ID, detail, maxRetries)
		if terminal {
			m.logf("replication to %s failed permanently: %s", target.ID, detail)
		}
		return
	}

	m.records.transition(target.ID, StateRunning)
}

func (m *Manager) logf(format string, args ...any) {
	if m.logger == nil {
		return
	}
	m.logger.Printf(format, args...)
}
