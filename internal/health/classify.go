package health

// Status is the health classification bucket (§3, §4.2). Classify assigns
// it from per-metric warn/critical thresholds, independently of Score: a
// snapshot with a lower Score can still land in a healthier bucket than one
// with a higher Score.
type Status int

const (
	Healthy Status = iota
	Degraded
	Unhealthy
	Critical
)

func (s Status) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Unhealthy:
		return "unhealthy"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

// Worse reports whether s is a worse status than other.
func (s Status) Worse(other Status) bool {
	return s > other
}

// Warn/critical thresholds from §4.2's classification table.
const (
	cpuWarn, cpuCritical         = 70.0, 90.0
	memWarn, memCritical         = 75.0, 90.0
	diskWarn, diskCritical       = 80.0, 95.0
	latencyWarn, latencyCritical = 50.0, 100.0
	errorWarn, errorCritical     = 0.05, 0.10
)

// Classify buckets a snapshot per the §4.2 table: Healthy requires every
// metric under its warn threshold; Degraded is any single warn threshold
// exceeded; Unhealthy is any single critical threshold exceeded; Critical is
// two or more critical thresholds simultaneously.
func Classify(s Snapshot) Status {
	criticalCount := 0
	anyWarn := false
	anyCritical := false

	check := func(value, warn, critical float64) {
		if value >= critical {
			anyCritical = true
			criticalCount++
		} else if value >= warn {
			anyWarn = true
		}
	}

	check(s.CPUPercent, cpuWarn, cpuCritical)
	check(s.MemoryPercent, memWarn, memCritical)
	check(s.DiskPercent, diskWarn, diskCritical)
	check(s.NetworkLatencyMs, latencyWarn, latencyCritical)
	check(s.ErrorRate*100, errorWarn*100, errorCritical*100)

	switch {
	case criticalCount >= 2:
		return Critical
	case anyCritical:
		return Unhealthy
	case anyWarn:
		return Degraded
	default:
		return Healthy
	}
}

// Score computes a weighted composite health score in [0,1]. Weights
// penalize saturation (CPU/memory/disk), latency, and error rate; the exact
// weights are an implementation detail (§4.1). Score decreases as any input
// grows, until that input reaches its normalizing ceiling (100% for
// CPU/memory/disk, 200 ms latency, 20% error rate), past which it adds no
// further penalty. Score is computed separately from Classify, so Status
// buckets are not ordered by Score.
func Score(s Snapshot) float64 {
	penalty := 0.0
	penalty += 0.25 * clamp01(s.CPUPercent/100)
	penalty += 0.20 * clamp01(s.MemoryPercent/100)
	penalty += 0.15 * clamp01(s.DiskPercent/100)
	penalty += 0.15 * clamp01(s.NetworkLatencyMs/200)
	penalty += 0.25 * clamp01(s.ErrorRate/0.20)

	score := 1 - penalty
	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
