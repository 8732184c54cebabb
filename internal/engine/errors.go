package engine

import (
	"errors"
	"fmt"

	"github.com/ssd-technologies/nocturne-fleet/internal/deploy"
)

// Kind is the full §7 error taxonomy. The deploy-facing subset matches
// internal/deploy.Kind one for one (KindOf below maps between them); the
// remaining values belong to layers deploy never sees.
type Kind int

const (
	KindConfigInvalid Kind = iota
	KindNetworkUnreachable
	KindAuthFailed
	KindProtocolError
	KindTimeout
	KindIoError
	KindPermissionDenied
	KindHandlerFailure
	KindInvariantViolation
)

func (k Kind) String() string {
	switch k {
	case KindConfigInvalid:
		return "config_invalid"
	case KindNetworkUnreachable:
		return "network_unreachable"
	case KindAuthFailed:
		return "auth_failed"
	case KindProtocolError:
		return "protocol_error"
	case KindTimeout:
		return "timeout"
	case KindIoError:
		return "io_error"
	case KindPermissionDenied:
		return "permission_denied"
	case KindHandlerFailure:
		return "handler_failure"
	case KindInvariantViolation:
		return "invariant_violation"
	default:
		return "unknown"
	}
}

// Fatal reports whether a Kind escapes the engine to a process exit (§7
// "Propagation": only ConfigInvalid at startup and InvariantViolation at
// runtime do).
func (k Kind) Fatal() bool {
	return k == KindConfigInvalid || k == KindInvariantViolation
}

// Error tags a failure with its Kind.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("engine: %s", e.Kind)
	}
	return fmt.Sprintf("engine: %s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError wraps cause with a Kind.
func NewError(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// deployKindToEngine maps the deploy-facing subset of the taxonomy onto the
// engine's superset, preserving ordinal meaning rather than enum value.
var deployKindToEngine = map[deploy.Kind]Kind{
	deploy.KindNetworkUnreachable: KindNetworkUnreachable,
	deploy.KindAuthFailed:         KindAuthFailed,
	deploy.KindProtocolError:      KindProtocolError,
	deploy.KindTimeout:            KindTimeout,
	deploy.KindIoError:            KindIoError,
	deploy.KindPermissionDenied:   KindPermissionDenied,
}

// KindOf extracts a Kind from err: a *deploy.Error maps onto its matching
// engine Kind, a *engine.Error reports its own, anything else is
// HandlerFailure (an opaque failure from a task or decision executor).
func KindOf(err error) Kind {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind
	}
	var de *deploy.Error
	if errors.As(err, &de) {
		if k, ok := deployKindToEngine[de.Kind]; ok {
			return k
		}
	}
	return KindHandlerFailure
}
