package wirehttp

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is a closed taxonomy of the ways a connection turn can end badly,
// per spec.md §7. The worker's outer loop switches on Kind, never on error
// string content or concrete type, to choose a close path.
type Kind int

const (
	// KindNone is the zero value; never attached to a real *Error.
	KindNone Kind = iota

	// KindClientClosed: socket EOF during an expected read. Always
	// expected; closeSocketOnly.
	KindClientClosed

	// KindParseError: a preamble byte violated its state's character
	// class. Carries the parser state name. Status 400.
	KindParseError

	// KindPreambleRejected: structurally valid but semantically invalid
	// (bad version, missing/duplicate Host, bad Content-Length,
	// oversize headers). Status varies — see Error.Status.
	KindPreambleRejected

	// KindTimeout: SO_TIMEOUT fired during a read or write. Expected iff
	// the worker was in WorkerState Read (initial) or KeepAlive.
	KindTimeout

	// KindSlowPeer: the throughput monitor forced the socket closed.
	// No status — the socket is already failing.
	KindSlowPeer

	// KindTooManyBytesToDrain: the keep-alive drain discipline gave up.
	// Treated as expected; closeSocketOnly.
	KindTooManyBytesToDrain

	// KindHandlerException: the application handler panicked or
	// returned control abnormally. 500 if uncommitted, socket-only if
	// committed.
	KindHandlerException

	// KindSocketError: any other I/O failure. 500 if uncommitted,
	// socket-only if committed.
	KindSocketError

	// KindShutdownInterrupt: the worker observed server shutdown mid
	// blocking call. Expected; closeSocketOnly.
	KindShutdownInterrupt
)

func (k Kind) String() string {
	switch k {
	case KindClientClosed:
		return "client_closed"
	case KindParseError:
		return "parse_error"
	case KindPreambleRejected:
		return "preamble_rejected"
	case KindTimeout:
		return "timeout"
	case KindSlowPeer:
		return "slow_peer"
	case KindTooManyBytesToDrain:
		return "too_many_bytes_to_drain"
	case KindHandlerException:
		return "handler_exception"
	case KindSocketError:
		return "socket_error"
	case KindShutdownInterrupt:
		return "shutdown_interrupt"
	default:
		return "none"
	}
}

// Expected reports whether the error kind represents a routine,
// non-noteworthy connection termination (spec.md §7's "expected" column).
// Expected errors never produce an error body; they fall straight to
// closeSocketOnly.
func (k Kind) Expected() bool {
	switch k {
	case KindClientClosed, KindTooManyBytesToDrain, KindShutdownInterrupt:
		return true
	case KindTimeout:
		// Caller must additionally check WorkerState; a Read-state
		// timeout on the very first byte of a new connection is
		// still "expected" in the sense that it produces no error
		// body, but it is surfaced distinctly so logs differ from a
		// keep-alive idle timeout. Both cases are closeSocketOnly.
		return true
	case KindSlowPeer:
		return true
	default:
		return false
	}
}

// Error is the concrete error value threaded through the worker's turn.
// It always carries a Kind and, for kinds that produce a response, a
// Status and a ParserState (only meaningful for KindParseError).
type Error struct {
	Kind        Kind
	Status      int    // HTTP status to emit, or 0 if no response is produced
	ParserState string // non-empty only for KindParseError
	OffendingByte byte // non-zero-info only for KindParseError
	cause       error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("wirehttp: %s (status %d): %v", e.Kind, e.Status, e.cause)
	}
	return fmt.Sprintf("wirehttp: %s (status %d)", e.Kind, e.Status)
}

// Unwrap exposes the wrapped cause for errors.Is/As interop.
func (e *Error) Unwrap() error { return e.cause }

// Cause exists for pkg/errors-style callers.
func (e *Error) Cause() error { return e.cause }

func newError(kind Kind, status int, cause error) *Error {
	return &Error{Kind: kind, Status: status, cause: cause}
}

// wrap attaches a Kind/status to an arbitrary cause, preserving the
// original error via pkg/errors so %+v still prints a stack from the
// original failure site.
func wrap(kind Kind, status int, cause error, msg string) *Error {
	return newError(kind, status, errors.Wrap(cause, msg))
}

func clientClosedErr(cause error) *Error {
	return newError(KindClientClosed, 0, cause)
}

func parseErr(state string, offending byte, cause error) *Error {
	e := newError(KindParseError, 400, cause)
	e.ParserState = state
	e.OffendingByte = offending
	return e
}

func preambleRejected(status int, msg string) *Error {
	return newError(KindPreambleRejected, status, errors.New(msg))
}

func timeoutErr(cause error) *Error {
	return newError(KindTimeout, 0, cause)
}

func slowPeerErr() *Error {
	return newError(KindSlowPeer, 0, errors.New("throughput below configured floor"))
}

func tooManyBytesToDrainErr() *Error {
	return newError(KindTooManyBytesToDrain, 0, errors.New("keep-alive drain limit exceeded"))
}

func handlerExceptionErr(cause interface{}) *Error {
	if err, ok := cause.(error); ok {
		return wrap(KindHandlerException, 500, err, "handler panic")
	}
	return newError(KindHandlerException, 500, fmt.Errorf("handler panic: %v", cause))
}

func socketErr(cause error) *Error {
	return newError(KindSocketError, 500, cause)
}

func shutdownInterruptErr() *Error {
	return newError(KindShutdownInterrupt, 0, errors.New("server shutdown"))
}

// AsError unwraps err into a *Error if possible, synthesizing a
// KindSocketError wrapper for anything else so callers always have a Kind
// to branch on.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return socketErr(err)
}
