// Package apierr defines the error taxonomy of the inference control
// plane (spec §7) on top of github.com/cockroachdb/errors, the way
// teranos-QNTX/errors re-exports the same package for stack traces and
// Is/As-friendly wrapping.
package apierr

import (
	crdb "github.com/cockroachdb/errors"
)

// Re-exported constructors/inspectors so callers don't need a second
// errors import alongside this package.
var (
	New   = crdb.New
	Newf  = crdb.Newf
	Wrap  = crdb.Wrap
	Wrapf = crdb.Wrapf
	Is    = crdb.Is
	As    = crdb.As
)

// Kind identifies one of the error taxonomy buckets from spec §7.
type Kind int

const (
	KindUnknown Kind = iota
	KindModelNotFound
	KindSpawnFailed
	KindModelFileMissing
	KindArgMergeFailed
	KindUpstreamAuth
	KindUpstreamUnreachable
	KindUpstreamStatus
	KindTransport
	KindCancelled
	KindInternal
)

// Sentinel errors. Wrap these with apierr.Wrap/Wrapf to add context while
// keeping errors.Is(err, apierr.ErrModelNotFound) working.
var (
	ErrModelNotFound       = crdb.New("model not found")
	ErrSpawnFailed         = crdb.New("child process spawn failed")
	ErrModelFileMissing    = crdb.New("model file not found in catalogue")
	ErrArgMergeFailed      = crdb.New("server argument merge failed")
	ErrUpstreamAuth        = crdb.New("upstream authentication failed")
	ErrUpstreamUnreachable = crdb.New("upstream unreachable")
	ErrUpstreamStatus      = crdb.New("upstream returned an error status")
	ErrTransport           = crdb.New("transport error reading response stream")
	ErrCancelled           = crdb.New("request cancelled")
	ErrInternal            = crdb.New("internal invariant violation")
)

var kindBySentinel = map[error]Kind{
	ErrModelNotFound:       KindModelNotFound,
	ErrSpawnFailed:         KindSpawnFailed,
	ErrModelFileMissing:    KindModelFileMissing,
	ErrArgMergeFailed:      KindArgMergeFailed,
	ErrUpstreamAuth:        KindUpstreamAuth,
	ErrUpstreamUnreachable: KindUpstreamUnreachable,
	ErrUpstreamStatus:      KindUpstreamStatus,
	ErrTransport:           KindTransport,
	ErrCancelled:           KindCancelled,
	ErrInternal:            KindInternal,
}

// Classify maps an error (possibly wrapped) to its taxonomy Kind.
// Returns KindUnknown if err doesn't wrap one of the sentinels above.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for sentinel, kind := range kindBySentinel {
		if Is(err, sentinel) {
			return kind
		}
	}
	return KindUnknown
}

// StatusCode maps a Kind to the HTTP status the framework collaborator
// should use for a pre-stream error response (spec §7 propagation policy).
func StatusCode(kind Kind) int {
	switch kind {
	case KindModelNotFound:
		return 404
	case KindUpstreamAuth:
		return 401
	case KindUpstreamUnreachable, KindSpawnFailed, KindModelFileMissing:
		return 502
	case KindArgMergeFailed, KindUpstreamStatus:
		return 400
	case KindCancelled:
		return 499
	case KindTransport, KindInternal, KindUnknown:
		return 500
	default:
		return 500
	}
}
