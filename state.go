package wirehttp

// WorkerState is the per-connection state machine spec.md §3 defines:
//
//	initial Read → (Write for 100-continue) → Read → Process (handler
//	entry) → Write (first byte written) → KeepAlive (after response
//	close, before next preamble byte) → Read
//
// The monitor (§4.6) reads this value to decide whether a connection is
// pathologically slow; it never writes it.
type WorkerState int32

const (
	// StateRead: the worker is blocked reading a preamble (or the
	// initial bytes of one).
	StateRead WorkerState = iota

	// StateProcess: the handler has been invoked and has not yet
	// returned. Governed exclusively by the monitor's processing_timeout,
	// since no socket read is outstanding to carry a read deadline.
	StateProcess

	// StateWrite: the response writer has emitted its first byte (or,
	// transiently, the bare 100-continue status line).
	StateWrite

	// StateKeepAlive: the response has been closed and the worker is
	// waiting for the next request's first preamble byte.
	StateKeepAlive
)

func (s WorkerState) String() string {
	switch s {
	case StateRead:
		return "read"
	case StateProcess:
		return "process"
	case StateWrite:
		return "write"
	case StateKeepAlive:
		return "keep_alive"
	default:
		return "unknown"
	}
}
