// Package recovery implements the Recovery Manager (§4.3): given a Recover
// decision it selects one concrete action from the failure cause and recent
// history, executes it, and escalates when an action keeps failing.
package recovery

// Action is the tagged set of things a Recover decision can execute.
type Action int

const (
	ActionRestartProcess Action = iota
	ActionRedeployComponent
	ActionFailoverToBackup
	ActionScaleUp
	ActionRollbackConfiguration
	ActionEmergencyShutdown
	// actionCleanup is an internal step folded into disk-pressure recovery,
	// not a top-level action a decision ever names directly.
	actionCleanup
)

func (a Action) String() string {
	switch a {
	case ActionRestartProcess:
		return "restart_process"
	case ActionRedeployComponent:
		return "redeploy_component"
	case ActionFailoverToBackup:
		return "failover_to_backup"
	case ActionScaleUp:
		return "scale_up"
	case ActionRollbackConfiguration:
		return "rollback_configuration"
	case ActionEmergencyShutdown:
		return "emergency_shutdown"
	case actionCleanup:
		return "cleanup"
	default:
		return "unknown"
	}
}

// Cause is the classified reason a Recover decision fired, derived from the
// health snapshot that triggered it (§4.3 "keyed by the health-snapshot
// cause").
type Cause int

const (
	CauseUnknown Cause = iota
	CauseOOM
	CauseDiskPressure
	CauseStartFailure
)

// DeriveCause classifies a health snapshot into the cause vocabulary the
// selection table keys on. Memory pressure is checked before disk pressure
// because an OOM condition is the more urgent of the two (§4.2 memory
// critical threshold, 90%, sits below disk's, 95%).
func DeriveCause(memPercent, diskPercent float64, consecutiveStartFailures int) Cause {
	switch {
	case memPercent >= 90:
		return CauseOOM
	case diskPercent >= 95:
		return CauseDiskPressure
	case consecutiveStartFailures > 0:
		return CauseStartFailure
	default:
		return CauseUnknown
	}
}

func (c Cause) String() string {
	switch c {
	case CauseOOM:
		return "oom"
	case CauseDiskPressure:
		return "disk_pressure"
	case CauseStartFailure:
		return "start_failure"
	default:
		return "unknown"
	}
}

// selectAction applies the §4.3 selection table: cause picks the baseline
// action, then recent history escalates it. history is ordered oldest to
// newest and covers at most the configured window (default 5).
func selectAction(cause Cause, history []AttemptRecord) Action {
	if escalated, ok := escalateFromHistory(history); ok {
		return escalated
	}
	switch cause {
	case CauseOOM:
		return ActionRestartProcess
	case CauseDiskPressure:
		return actionCleanup
	case CauseStartFailure:
		return ActionRedeployComponent
	default:
		return ActionRestartProcess
	}
}

// ladderTier ranks the redeploy/failover/shutdown escalation chain; actions
// outside that chain (restart, cleanup, scale-up, rollback) don't
// participate and rank 0.
func ladderTier(a Action) int {
	switch a {
	case ActionRedeployComponent:
		return 1
	case ActionFailoverToBackup:
		return 2
	case ActionEmergencyShutdown:
		return 3
	default:
		return 0
	}
}

// escalateFromHistory walks backward through the trailing run of
// consecutive failures and ratchets to the highest ladder tier reached in
// that run, rather than requiring the tail to be one single repeated
// action. Without the ratchet, the very first failure at a newly-escalated
// tier (e.g. the first FailoverToBackup failure) would look like a
// one-attempt streak and fall back to the cause's baseline action instead
// of staying escalated. Once a run reaches tier 2 (failover), it stays at
// failover until either a success occurs or a third consecutive
// tier-2-or-higher failure escalates it to shutdown.
func escalateFromHistory(history []AttemptRecord) (Action, bool) {
	highestTier := 0
	tierCount := 0
	for i := len(history) - 1; i >= 0; i-- {
		a := history[i]
		if a.Outcome != OutcomeFailure {
			break
		}
		tier := ladderTier(a.Action)
		if tier == 0 || tier < highestTier {
			break
		}
		if tier > highestTier {
			highestTier = tier
			tierCount = 1
		} else {
			tierCount++
		}
	}

	switch {
	case highestTier >= 2 && tierCount >= 3:
		return ActionEmergencyShutdown, true
	case highestTier >= 2:
		return ActionFailoverToBackup, true
	case highestTier >= 1 && tierCount >= 2:
		return ActionFailoverToBackup, true
	default:
		return ActionRestartProcess, false
	}
}
