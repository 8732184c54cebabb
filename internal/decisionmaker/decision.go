// Package decisionmaker implements the Decision Maker (§4.1): a pure,
// deterministic mapping from a Context snapshot to exactly one Decision per
// tick, plus threshold learning from Feedback.
package decisionmaker

import "time"

// Kind is the Decision tagged variant discriminator (§9 "Variants over
// inheritance" — every switch on Kind must be exhaustive).
type Kind int

const (
	KindMonitor Kind = iota
	KindDeploy
	KindScale
	KindRecover
)

func (k Kind) String() string {
	switch k {
	case KindMonitor:
		return "monitor"
	case KindDeploy:
		return "deploy"
	case KindScale:
		return "scale"
	case KindRecover:
		return "recover"
	default:
		return "unknown"
	}
}

// Decision is the tagged output of one tick (§3). Only the fields relevant
// to Kind are meaningful; callers switch on Kind before reading them.
type Decision struct {
	ID     string
	Kind   Kind
	Reason string

	// KindDeploy
	Targets  []string
	Priority string

	// KindScale
	Factor float64

	// KindRecover
	FailedNode string
	Action     string

	// KindMonitor
	Interval time.Duration
}
