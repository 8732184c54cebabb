package recovery

import "testing"

func TestSelectAction_CauseTable(t *testing.T) {
	cases := []struct {
		cause Cause
		want  Action
	}{
		{CauseOOM, ActionRestartProcess},
		{CauseDiskPressure, actionCleanup},
		{CauseStartFailure, ActionRedeployComponent},
		{CauseUnknown, ActionRestartProcess},
	}
	for _, c := range cases {
		got := selectAction(c.cause, nil)
		if got != c.want {
			t.Fatalf("cause %s: expected %s, got %s", c.cause, c.want, got)
		}
	}
}

func TestSelectAction_EscalatesAfterTwoRedeployFailures(t *testing.T) {
	history := []AttemptRecord{
		{Action: ActionRedeployComponent, Outcome: OutcomeFailure},
		{Action: ActionRedeployComponent, Outcome: OutcomeFailure},
	}
	got := selectAction(CauseStartFailure, history)
	if got != ActionFailoverToBackup {
		t.Fatalf("expected escalation to FailoverToBackup, got %s", got)
	}
}

func TestSelectAction_EscalatesAfterThreeFailoverFailures(t *testing.T) {
	history := []AttemptRecord{
		{Action: ActionFailoverToBackup, Outcome: OutcomeFailure},
		{Action: ActionFailoverToBackup, Outcome: OutcomeFailure},
		{Action: ActionFailoverToBackup, Outcome: OutcomeFailure},
	}
	got := selectAction(CauseStartFailure, history)
	if got != ActionEmergencyShutdown {
		t.Fatalf("expected escalation to EmergencyShutdown, got %s", got)
	}
}

func TestSelectAction_StaysAtFailoverAfterFirstFailoverFailure(t *testing.T) {
	history := []AttemptRecord{
		{Action: ActionRedeployComponent, Outcome: OutcomeFailure},
		{Action: ActionRedeployComponent, Outcome: OutcomeFailure},
		{Action: ActionFailoverToBackup, Outcome: OutcomeFailure},
	}
	got := selectAction(CauseStartFailure, history)
	if got != ActionFailoverToBackup {
		t.Fatalf("expected escalation to stay at FailoverToBackup after its first failure, got %s", got)
	}
}

func TestSelectAction_StreakBreaksOnSuccess(t *testing.T) {
	history := []AttemptRecord{
		{Action: ActionRedeployComponent, Outcome: OutcomeFailure},
		{Action: ActionRedeployComponent, Outcome: OutcomeSuccess},
	}
	got := selectAction(CauseStartFailure, history)
	if got != ActionRedeployComponent {
		t.Fatalf("expected no escalation after a success breaks the streak, got %s", got)
	}
}

func TestDeriveCause_MemoryTakesPrecedenceOverDisk(t *testing.T) {
	if got := DeriveCause(95, 99, 0); got != CauseOOM {
		t.Fatalf("expected CauseOOM, got %s", got)
	}
}

func TestDeriveCause_StartFailureOnlyWhenNoResourcePressure(t *testing.T) {
	if got := DeriveCause(10, 10, 3); got != CauseStartFailure {
		t.Fatalf("expected CauseStartFailure, got %s", got)
	}
}
