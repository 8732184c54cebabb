// Package deploy implements the Remote Deployer (§4.6): stateless,
// per-call SSH operations against one TargetServer, culminating in the
// full_deploy composite that installs and starts a supervised service.
package deploy

import (
	"errors"
	"fmt"
)

// Kind is the deploy-facing subset of the §7 error taxonomy.
type Kind int

const (
	KindNetworkUnreachable Kind = iota
	KindAuthFailed
	KindProtocolError
	KindTimeout
	KindIoError
	KindPermissionDenied
)

func (k Kind) String() string {
	switch k {
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
	default:
		return "unknown"
	}
}

// Error tags a deploy failure with its §7 Kind. The replicator does not
// read the Kind: every failed attempt, AuthFailed included, counts the same
// toward the target's max_retries.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("deploy: %s", e.Kind)
	}
	return fmt.Sprintf("deploy: %s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError wraps cause with a Kind.
func NewError(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// KindOf extracts the Kind from err if it (or something it wraps) is a
// *Error, defaulting to ProtocolError for anything unclassified.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindProtocolError
}
