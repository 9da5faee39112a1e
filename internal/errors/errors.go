// Copyright (C) 2026 Oryx Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package errors implements the four-kind error taxonomy from the Oryx
// error handling design: Setup errors are fatal at startup, Runtime errors
// are non-fatal and counted, User errors are returned to the command
// originator, and Protocol errors are benign and never surfaced.
package errors

import (
	"errors"
	"fmt"
)

// Kind categorizes an error by how the rest of the system must react to it.
type Kind int

const (
	KindUnknown Kind = iota
	KindSetup
	KindRuntime
	KindUser
	KindProtocol
)

func (k Kind) String() string {
	switch k {
	case KindSetup:
		return "setup"
	case KindRuntime:
		return "runtime"
	case KindUser:
		return "user"
	case KindProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// Error is a structured error carrying its Kind and optional attributes.
type Error struct {
	Kind       Kind
	Message    string
	Underlying error
	Attributes map[string]any
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Underlying)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// New creates a new Error of the given kind.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

// Errorf creates a new Error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err as a new Error of the given kind.
func Wrap(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: msg, Underlying: err}
}

// Wrapf wraps err as a new Error of the given kind with a formatted message.
func Wrapf(err error, kind Kind, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Underlying: err}
}

// Attr attaches an attribute to err, wrapping non-Error values as KindRuntime.
func Attr(err error, key string, val any) error {
	if err == nil {
		return nil
	}

	var e *Error
	if !errors.As(err, &e) {
		e = &Error{Kind: KindRuntime, Message: err.Error(), Underlying: err}
	}

	if e.Attributes == nil {
		e.Attributes = make(map[string]any)
	}
	e.Attributes[key] = val
	return e
}

// GetKind returns the Kind of err, or KindUnknown if err is not an *Error.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain matching target's type.
func As(err error, target any) bool { return errors.As(err, target) }

// Sentinel errors named directly after the Oryx error handling design (§7).
var (
	// Setup — fatal at startup.
	ErrInterfaceNotFound = errors.New("interface not found")
	ErrNoCapabilities    = errors.New("missing CAP_NET_ADMIN or CAP_BPF")
	ErrProgramLoad       = errors.New("kernel classifier program failed to load")
	ErrMapCreate         = errors.New("shared map creation failed")
	ErrQdiscAttach       = errors.New("traffic-control qdisc attach failed")
	ErrUnsupportedKernel = errors.New("kernel does not support TCX attachment")

	// Runtime — non-fatal, counted in the diagnostics meter.
	ErrRingReserveExhausted = errors.New("ring buffer reservation exhausted")
	ErrBusLagged            = errors.New("packet bus subscriber lagged")
	ErrDnsTimeout           = errors.New("reverse DNS lookup timed out")
	ErrFilesystemIO         = errors.New("filesystem I/O error")

	// User — returned to the command originator, no state changed.
	ErrAlreadyExists = errors.New("rule already exists")
	ErrInvalidRule   = errors.New("invalid rule")
	ErrFileParse     = errors.New("failed to parse file")

	// Protocol — benign, never surfaced; packet passes without capture.
	ErrTruncatedPacket   = errors.New("truncated packet")
	ErrUnknownNextHeader = errors.New("unknown next header")

	// Reconciliation.
	ErrReconcileFailed = errors.New("block map reconciliation failed")
)

// Setup wraps err as a KindSetup error.
func Setup(err error) error { return Wrap(err, KindSetup, err.Error()) }

// Runtime wraps err as a KindRuntime error.
func Runtime(err error) error { return Wrap(err, KindRuntime, err.Error()) }

// User wraps err as a KindUser error.
func User(err error) error { return Wrap(err, KindUser, err.Error()) }

// Protocol wraps err as a KindProtocol error. Protocol errors are never
// surfaced to the operator; callers use GetKind to decide whether to log.
func Protocol(err error) error { return Wrap(err, KindProtocol, err.Error()) }
