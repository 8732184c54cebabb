package health

import "testing"

func TestStore_UpdateTracksPreviousStatus(t *testing.T) {
	s := NewStore(5)

	prev := s.Update(Snapshot{CPUPercent: 10, MemoryPercent: 10, DiskPercent: 10})
	if prev != Healthy {
		t.Fatalf("expected zero-value previous status Healthy, got %s", prev)
	}

	prev = s.Update(Snapshot{CPUPercent: 95, MemoryPercent: 95, DiskPercent: 10})
	if prev != Healthy {
		t.Fatalf("expected previous Healthy, got %s", prev)
	}
	if s.Current().Status != Critical {
		t.Fatalf("expected current Critical, got %s", s.Current().Status)
	}
}

func TestStore_RecordOutcomeFeedsRates(t *testing.T) {
	s := NewStore(4)
	s.RecordOutcome(true)
	s.RecordOutcome(true)
	s.RecordOutcome(false)
	s.RecordOutcome(false)

	s.Update(Snapshot{})
	cur := s.Current()
	if cur.SuccessRate != 0.5 || cur.ErrorRate != 0.5 {
		t.Fatalf("expected 50/50 rates, got success=%f error=%f", cur.SuccessRate, cur.ErrorRate)
	}
}

func TestStore_RollingWindowBounded(t *testing.T) {
	s := NewStore(2)
	s.RecordOutcome(false)
	s.RecordOutcome(false)
	s.RecordOutcome(true)
	s.RecordOutcome(true)

	s.Update(Snapshot{})
	cur := s.Current()
	if cur.SuccessRate != 1.0 {
		t.Fatalf("expected window to have dropped old failures, got success=%f", cur.SuccessRate)
	}
}
