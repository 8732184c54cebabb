package health

import (
	"context"
	"log"
	"time"
)

// Alert is emitted once per transition to a worse status (§4.2), suppressed
// until the status improves again.
type Alert struct {
	From      Status
	To        Status
	Snapshot  Snapshot
	Timestamp time.Time
}

// Monitor runs its own periodic timer (default 10s), independent of the
// decision tick, so the tick always reads a fresh snapshot (§4.2
// "Scheduling").
type Monitor struct {
	Store      *Store
	Sampler    Sampler
	ProbeAddr  string
	WorkingDir string
	Interval   time.Duration
	Logger     *log.Logger

	alerts  chan Alert
	started time.Time
}

// NewMonitor creates a Monitor. alertBuffer bounds the alert channel so no
// component ever blocks on an unbounded one (§9).
func NewMonitor(store *Store, sampler Sampler, probeAddr, workingDir string, interval time.Duration, logger *log.Logger, alertBuffer int) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if alertBuffer <= 0 {
		alertBuffer = 16
	}
	return &Monitor{
		Store:      store,
		Sampler:    sampler,
		ProbeAddr:  probeAddr,
		WorkingDir: workingDir,
		Interval:   interval,
		Logger:     logger,
		alerts:     make(chan Alert, alertBuffer),
		started:    time.Now(),
	}
}

// Alerts returns the channel alerts are published on.
func (m *Monitor) Alerts() <-chan Alert {
	return m.alerts
}

// Run samples on a ticker until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()

	m.sampleOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sampleOnce(ctx)
		}
	}
}

func (m *Monitor) sampleOnce(ctx context.Context) {
	cpu, mem, disk, err := m.Sampler.Sample(m.WorkingDir)
	if err != nil {
		m.logf("[health] sample failed: %v", err)
		return
	}

	latency := 0.0
	if m.ProbeAddr != "" {
		l, err := Probe(m.ProbeAddr, 2*time.Second)
		if err != nil {
			latency = latencyCritical // unreachable probes count as critical latency
		} else {
			latency = l
		}
	}

	raw := Snapshot{
		CPUPercent:       cpu,
		MemoryPercent:    mem,
		DiskPercent:      disk,
		NetworkLatencyMs: latency,
		UptimeSeconds:    int64(time.Since(m.started).Seconds()),
	}

	previous := m.Store.Update(raw)
	current := m.Store.Current()

	if current.Status.Worse(Healthy) && current.Status != previous {
		m.publishAlert(previous, current)
	}
	_ = ctx
}

// publishAlert emits an alert for a transition to a worse status, dropping
// it (with a log line) rather than blocking if the channel is full — alerts
// are best-effort telemetry, not a control input.
func (m *Monitor) publishAlert(previous Status, current Snapshot) {
	alert := Alert{From: previous, To: current.Status, Snapshot: current, Timestamp: time.Now()}
	select {
	case m.alerts <- alert:
	default:
		m.logf("[health] alert channel full, dropping %s -> %s", previous, current.Status)
	}
	m.logf("[health] %s -> %s", previous, current.Status)
}

func (m *Monitor) logf(format string, args ...any) {
	if m.Logger != nil {
		m.Logger.Printf(format, args...)
	}
}
