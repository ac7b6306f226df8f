package wirehttp

import (
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/arl/wirehttp/hdr"
	"github.com/arl/wirehttp/internal/ringbuf"
)

// worker owns one accepted connection end to end: the preamble FSM, body
// reading, handler dispatch, response writing, and the keep-alive loop
// between requests (spec.md §4.2). Exactly one goroutine ever touches a
// worker's mutable fields; the monitor only reads state/throughput
// through the atomics and counters it was handed at registration.
type worker struct {
	conn    net.Conn
	connID  string
	cfg     *ServerConfig
	handler Handler
	mon     *monitor
	bufPool *bufferPool

	px *ringbuf.Pushback
	wb *workerBuffers

	state      int32 // atomic WorkerState
	stateSince int64 // atomic UnixNano; when the current state was entered

	readCounter  throughputCounter
	writeCounter throughputCounter

	// halfCloseOnExit is set whenever the worker is abandoning a
	// connection with request body bytes still unread (an on-error close,
	// or a keep-alive drain that exceeded its cap). closeConn uses it to
	// half-close the write side first (spec.md §9's closeWriteAndWait
	// technique) so a client still mid-upload sees a clean FIN on its
	// read side instead of a RST racing its own pending writes.
	halfCloseOnExit bool
}

// closeWriter is satisfied by *net.TCPConn and *tls.Conn. Not every
// net.Conn implements it (e.g. a plain net.Pipe in tests), so it's
// probed with a type assertion rather than required.
type closeWriter interface {
	CloseWrite() error
}

// closeConn is the worker's single connection-teardown path. When
// halfCloseOnExit was set, it shuts down the write side first and gives
// the peer a short window to notice before the final Close, matching
// closeSocketOnError's reduced-RST behavior (spec.md §4.2.3, §9).
func (w *worker) closeConn() {
	if w.halfCloseOnExit {
		if cw, ok := w.conn.(closeWriter); ok {
			cw.CloseWrite()
			w.conn.SetReadDeadline(time.Now().Add(250 * time.Millisecond))
			var scratch [512]byte
			for {
				if _, err := w.conn.Read(scratch[:]); err != nil {
					break
				}
			}
		}
	}
	w.conn.Close()
}

func newWorker(conn net.Conn, cfg *ServerConfig, handler Handler, mon *monitor, bufPool *bufferPool) *worker {
	return &worker{
		conn:       conn,
		connID:     uuid.NewString(),
		cfg:        cfg,
		handler:    handler,
		mon:        mon,
		bufPool:    bufPool,
		px:         ringbuf.New(conn),
		stateSince: nowNano(),
	}
}

func (w *worker) setState(s WorkerState) {
	atomic.StoreInt32(&w.state, int32(s))
	atomic.StoreInt64(&w.stateSince, nowNano())
	switch s {
	case StateRead:
		w.readCounter.reset()
	case StateWrite:
		w.writeCounter.reset()
	}
}
func (w *worker) getState() WorkerState { return WorkerState(atomic.LoadInt32(&w.state)) }
func (w *worker) getStateSince() time.Time {
	return time.Unix(0, atomic.LoadInt64(&w.stateSince))
}

// run drives the connection until it closes, the server shuts down, or an
// unrecoverable error occurs. It never returns an error: every failure
// path is resolved internally per spec.md §7's closeSocketOnly /
// writeErrorThenClose / tryWriteErrorThenClose table.
func (w *worker) run(shutdown <-chan struct{}) {
	defer w.closeConn()

	w.wb = w.bufPool.get()
	defer w.bufPool.put(w.wb)

	mc := &monitoredConn{
		state: w.getState,
		since: w.getStateSince,
		read:  &w.readCounter,
		write: &w.writeCounter,
		evict: func(string) { w.conn.Close() },
	}
	w.mon.register(mc)
	defer w.mon.unregister(mc)

	first := true
	for {
		select {
		case <-shutdown:
			return
		default:
		}

		readTimeout := w.cfg.KeepAliveTimeout
		if first {
			readTimeout = w.cfg.InitialReadTimeout
			w.setState(StateRead)
		} else {
			// The wait for the next request's first byte is the idle
			// keep-alive window, not a read in progress: spec.md §4.6
			// leaves it to SO_TIMEOUT, not the throughput monitor.
			// readPreamble's parser observer flips this to StateRead the
			// moment that byte actually arrives.
			w.setState(StateKeepAlive)
		}
		if readTimeout > 0 {
			w.conn.SetReadDeadline(time.Now().Add(readTimeout))
		}

		req, err := w.readPreamble()
		if err != nil {
			e := AsError(err)
			if !first && e.Kind == KindTimeout {
				// idle keep-alive timeout: ordinary, no response.
				return
			}
			w.rejectPreamble(req, e)
			return
		}
		first = false
		w.conn.SetReadDeadline(time.Time{})

		req.RemoteIP, req.RemotePort = splitHostPort(w.conn.RemoteAddr().String())
		req.ConnID = w.connID
		req.RequestID = uuid.NewString()
		req.Scheme = "http"

		if cont := w.handleExpectContinue(req); cont != nil {
			if !*cont {
				return
			}
		}

		req.Body = w.selectBodyReader(req)

		resp := NewResponse()
		resp.Header.Set(hdr.Connection, defaultConnectionValue(req))

		keepGoing := w.dispatch(req, resp)
		if !keepGoing {
			return
		}
	}
}

// readPreamble performs the raw chunked read + byte-at-a-time FSM feed +
// pushback-of-leftover sequence spec.md §4.3/§9 describe, returning a
// fully parsed Request positioned exactly at the start of its body.
func (w *worker) readPreamble() (*Request, error) {
	req := NewRequest()
	parser := newPreambleParser(req, w.cfg.MaxRequestHeaderSize)
	// spec.md §4.3's parser observer: fires once, on the first byte of
	// this preamble, so a connection idling in StateKeepAlive between
	// requests only transitions to StateRead once there's actually
	// something to read. readCounter.add below runs after Feed on
	// purpose, so the reset setState triggers here doesn't discard the
	// very bytes that triggered it.
	parser.onFirstByte = func() { w.setState(StateRead) }

	buf := w.wb.rawBuf
	for {
		n, err := w.px.Read(buf)
		if n == 0 && err != nil {
			if isTimeout(err) {
				return nil, timeoutErr(err)
			}
			if err == io.EOF {
				return nil, clientClosedErr(err)
			}
			return nil, socketErr(err)
		}

		for i := 0; i < n; i++ {
			done, ferr := parser.Feed(buf[i])
			if ferr != nil {
				w.readCounter.add(n)
				return req, ferr
			}
			if done {
				w.readCounter.add(n)
				if i+1 < n {
					if puErr := w.px.Unread(append([]byte(nil), buf[i+1:n]...)); puErr != nil {
						return nil, socketErr(puErr)
					}
				}
				if ferr := finalizePreamble(req); ferr != nil {
					// req is structurally complete (request-line and
					// headers fully parsed) even though finalizePreamble
					// rejected it semantically, so the caller can still
					// use its Protocol/Header to write a proper error
					// response instead of just closing the socket.
					return req, ferr
				}
				return req, nil
			}
		}
		w.readCounter.add(n)

		if err != nil {
			if isTimeout(err) {
				return nil, timeoutErr(err)
			}
			if err == io.EOF {
				return nil, clientClosedErr(err)
			}
			return nil, socketErr(err)
		}
	}
}

// handleExpectContinue implements spec.md §6's Expect: 100-continue flow.
// Returns nil if there was nothing to do; otherwise *cont reports whether
// the caller should keep serving this connection.
func (w *worker) handleExpectContinue(req *Request) *bool {
	if !req.ExpectsContinue() {
		return nil
	}
	validator := w.cfg.ExpectContinue
	if validator == nil {
		validator = DefaultExpectContinueValidator{}
	}
	status, ok := validator.ValidateExpectContinue(req)
	if ok && status == 100 {
		w.setState(StateWrite)
		w.conn.SetWriteDeadline(time.Now().Add(w.cfg.ProcessingTimeout))
		cw := w.countedWriter()
		_, err := io.WriteString(cw, req.Protocol+" 100 Continue\r\n\r\n")
		if err == nil {
			err = w.flushWrite()
		}
		keepGoing := err == nil
		return &keepGoing
	}
	resp := NewResponse()
	resp.Status = status
	resp.Header.Set(hdr.Connection, "close")
	resp.DisableCompression()
	rw := newResponseWriter(w.countedWriter(), req, resp, w.cfg.MaxChunkSize)
	rw.onCommit = func() { w.setState(StateWrite) }
	rw.WriteHeaderOnly()
	rw.Close()
	w.flushWrite()
	closeConn := false
	return &closeConn
}

func (w *worker) selectBodyReader(req *Request) BodyReader {
	mediaType, _ := req.ContentType()
	maxBody := w.cfg.maxBodyFor(mediaType)
	switch {
	case req.Chunked:
		return newChunkedBodyReader(w.px, maxBody)
	case req.ContentLength > 0:
		return newFixedBodyReader(w.px, req.ContentLength, maxBody)
	default:
		return NoBody
	}
}

// dispatch invokes the handler, writes the response, drains any
// unread body, and decides whether the connection survives for another
// iteration. It is the single place spec.md §7's error-kind table is
// consulted.
func (w *worker) dispatch(req *Request, resp *Response) (keepGoing bool) {
	rw := newResponseWriter(w.countedWriter(), req, resp, w.cfg.MaxChunkSize)
	rw.onCommit = func() {
		w.setState(StateWrite)
		if w.cfg.ProcessingTimeout > 0 {
			w.conn.SetWriteDeadline(time.Now().Add(w.cfg.ProcessingTimeout))
		}
	}

	handlerErr := w.invokeHandler(rw, resp, req)
	if handlerErr != nil {
		w.handleTurnError(handlerErr, rw, resp)
		return false
	}

	if err := rw.Close(); err != nil {
		w.handleTurnError(socketErr(err), rw, resp)
		return false
	}
	if err := w.flushWrite(); err != nil {
		w.handleTurnError(socketErr(err), rw, resp)
		return false
	}
	w.conn.SetWriteDeadline(time.Time{})

	if w.cfg.Metrics != nil {
		w.cfg.Metrics.RequestCompleted(resp.Status)
	}

	w.setState(StateKeepAlive)

	// A response with neither Content-Length nor chunked framing (an
	// HTTP/1.0 response without a fixed length) ends only when the socket
	// closes.
	if !rw.chunked && resp.contentLength < 0 {
		return false
	}
	if !responseWantsKeepAlive(req, resp) {
		return false
	}

	if err := req.Body.Drain(int64(w.cfg.MaxBytesToDrain)); err != nil {
		// The remainder exceeded max_bytes_to_drain: per spec.md §4.4 the
		// connection cannot be safely reused, and there may still be
		// unread client bytes in flight.
		w.halfCloseOnExit = true
		return false
	}
	return true
}

// defaultConnectionValue seeds the Connection header a handler sees on
// entry, matching spec.md §4.2.2's per-protocol default before any handler
// mutation: HTTP/1.1 defaults to keep-alive (close only if the client
// asked for it), HTTP/1.0 defaults to close (keep-alive only if the
// client opted in).
func defaultConnectionValue(req *Request) string {
	if req.ProtoAtLeast(1, 1) {
		if req.WantsClose() {
			return "close"
		}
		return "keep-alive"
	}
	if req.Wants10KeepAlive() {
		return "keep-alive"
	}
	return "close"
}

// responseWantsKeepAlive implements spec.md §4.2.2's keep-alive decision:
// "the final response header value is authoritative," not the request's.
// A handler that clears the Connection header entirely (e.g. via
// Response.reset()) falls back to the protocol's own default.
func responseWantsKeepAlive(req *Request, resp *Response) bool {
	v := resp.Header.Get(hdr.Connection)
	switch {
	case hasToken(v, "close"):
		return false
	case hasToken(v, "keep-alive"):
		return true
	default:
		return req.ProtoAtLeast(1, 1)
	}
}

func (w *worker) invokeHandler(rw *ResponseWriter, resp *Response, req *Request) (err *Error) {
	defer func() {
		if r := recover(); r != nil {
			err = handlerExceptionErr(r)
		}
	}()
	w.setState(StateProcess)
	if w.cfg.ProcessingTimeout > 0 {
		// no read/write deadline is meaningful mid-handler, and none is
		// set here. A stuck handler is bounded by the monitor instead,
		// which evicts a connection that stays in StateProcess past
		// ProcessingTimeout.
		_ = w.cfg.ProcessingTimeout
	}
	w.handler.ServeHTTP(rw, resp, req)
	return nil
}

// rejectPreamble writes the error response for a preamble that failed
// before a Request could be fully handed to the handler (malformed bytes,
// missing Host, duplicate headers, and so on). req may be nil (reading
// from the socket failed) or partially populated (the parser or
// finalizePreamble rejected it); its Protocol is still empty when the
// failure came before the protocol token was accepted. Either way the
// worker still owes the client a status
// line, not a bare socket close, whenever the error carries one.
func (w *worker) rejectPreamble(req *Request, e *Error) {
	if req == nil {
		req = NewRequest()
	}
	if req.Protocol == "" {
		req.Protocol = "HTTP/1.1"
	}
	resp := NewResponse()
	resp.reset()
	resp.Header.Set(hdr.Connection, "close")
	rw := newResponseWriter(w.countedWriter(), req, resp, w.cfg.MaxChunkSize)
	rw.onCommit = func() { w.setState(StateWrite) }
	w.handleTurnError(e, rw, resp)
}

// handleTurnError implements spec.md §7's outcome table: expected kinds
// close silently; unexpected kinds try to write an error response if the
// connection hasn't committed one yet.
func (w *worker) handleTurnError(err *Error, rw *ResponseWriter, resp *Response) {
	if err == nil {
		return
	}
	if w.cfg.Logger != nil && !err.Kind.Expected() {
		w.cfg.Logger.Warnf("wirehttp: connection %s: %v", w.connID, err)
	}
	if err.Kind.Expected() || err.Status == 0 {
		return
	}
	// The turn is being abandoned before the request body (if any) was
	// drained; half-close on the way out rather than risk a bare RST.
	w.halfCloseOnExit = true
	if resp != nil && resp.Committed() {
		return
	}
	if rw == nil {
		return
	}
	// Wipe anything the handler set on the response before it failed
	// (headers, cookies, a partial Content-Length) — spec.md §7 promises
	// an error response is Connection: close and Content-Length: 0 and
	// nothing else.
	resp.reset()
	resp.Status = err.Status
	resp.Header.Set(hdr.Connection, "close")
	resp.contentLength = 0
	resp.DisableCompression()
	w.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	rw.WriteHeaderOnly()
	rw.Close()
	w.flushWrite()
}

// countedWriter returns the io.Writer a ResponseWriter should serialize
// into: a throughput-counting wrapper around the socket, optionally
// staged through a pooled bufio.Writer when ResponseBufferSize > 0 to
// batch outgoing bytes into fewer syscalls (spec.md §6's
// response_buffer_size knob).
func (w *worker) countedWriter() io.Writer {
	cw := countingWriter{w: w.conn, c: &w.writeCounter}
	if w.wb.writeBuf != nil {
		w.wb.writeBuf.Reset(cw)
		return w.wb.writeBuf
	}
	return cw
}

// flushWrite flushes the pooled bufio.Writer, if one is in use, after a
// response (or bare status line) has been fully written.
func (w *worker) flushWrite() error {
	if w.wb.writeBuf != nil {
		return w.wb.writeBuf.Flush()
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	c *throughputCounter
}

func (cw countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	if n > 0 {
		cw.c.add(n)
	}
	return n, err
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

func splitHostPort(addr string) (host, port string) {
	h, p, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, ""
	}
	return h, p
}
