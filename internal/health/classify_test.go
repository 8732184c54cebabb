package health

import "testing"

func TestClassify_Healthy(t *testing.T) {
	s := Snapshot{CPUPercent: 50, MemoryPercent: 50, DiskPercent: 50, NetworkLatencyMs: 10, ErrorRate: 0.01}
	if got := Classify(s); got != Healthy {
		t.Fatalf("expected Healthy, got %s", got)
	}
}

func TestClassify_DegradedOnSingleWarn(t *testing.T) {
	s := Snapshot{CPUPercent: 75, MemoryPercent: 50, DiskPercent: 50, NetworkLatencyMs: 10, ErrorRate: 0.01}
	if got := Classify(s); got != Degraded {
		t.Fatalf("expected Degraded, got %s", got)
	}
}

func TestClassify_UnhealthyOnSingleCritical(t *testing.T) {
	s := Snapshot{CPUPercent: 95, MemoryPercent: 50, DiskPercent: 50, NetworkLatencyMs: 10, ErrorRate: 0.01}
	if got := Classify(s); got != Unhealthy {
		t.Fatalf("expected Unhealthy, got %s", got)
	}
}

func TestClassify_CriticalOnTwoCritical(t *testing.T) {
	s := Snapshot{CPUPercent: 95, MemoryPercent: 95, DiskPercent: 50, NetworkLatencyMs: 10, ErrorRate: 0.01}
	if got := Classify(s); got != Critical {
		t.Fatalf("expected Critical, got %s", got)
	}
}

func TestClassify_BoundaryAtWarnThreshold(t *testing.T) {
	s := Snapshot{CPUPercent: 70, MemoryPercent: 50, DiskPercent: 50, NetworkLatencyMs: 10, ErrorRate: 0.01}
	if got := Classify(s); got != Degraded {
		t.Fatalf("exactly at cpu warn threshold expected Degraded, got %s", got)
	}
}

func TestClassify_BoundaryJustBelowWarnThreshold(t *testing.T) {
	s := Snapshot{CPUPercent: 69.9, MemoryPercent: 50, DiskPercent: 50, NetworkLatencyMs: 10, ErrorRate: 0.01}
	if got := Classify(s); got != Healthy {
		t.Fatalf("just below cpu warn threshold expected Healthy, got %s", got)
	}
}

func TestScore_MonotonicWithStatus(t *testing.T) {
	healthy := Snapshot{CPUPercent: 10, MemoryPercent: 10, DiskPercent: 10, NetworkLatencyMs: 5, ErrorRate: 0}
	critical := Snapshot{CPUPercent: 95, MemoryPercent: 95, DiskPercent: 95, NetworkLatencyMs: 150, ErrorRate: 0.15}

	if Score(healthy) <= Score(critical) {
		t.Fatalf("expected healthy score (%f) > critical score (%f)", Score(healthy), Score(critical))
	}
}

func TestStatus_Worse(t *testing.T) {
	if !Critical.Worse(Healthy) {
		t.Fatal("Critical should be worse than Healthy")
	}
	if Healthy.Worse(Critical) {
		t.Fatal("Healthy should not be worse than Critical")
	}
}
