package wirehttp

import (
	"fmt"
	"io"
	"strconv"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"

	"github.com/arl/wirehttp/hdr"
)

// ResponseWriter is the connection-side half of the Response model
// (spec.md §4.5): it decides framing (Content-Length vs chunked) and
// content-encoding, serializes the status line and header block exactly
// once, and then streams body bytes through whatever encoder that
// decision selected.
//
// Framing is undecided on the first Write unless the handler already
// fixed a Content-Length (which selects Content-Length framing) or
// compression is active (which selects chunked framing, per spec.md
// §4.5). In either case the first Write commits. Otherwise bytes are held in buf
// until either maxChunkSize is reached — at which point the response
// commits as chunked and the buffered bytes become its first chunk — or
// Close arrives first, in which case the buffered length becomes a fixed
// Content-Length (spec.md §8's "Framing choice" property).
type ResponseWriter struct {
	w            io.Writer
	req          *Request
	resp         *Response
	maxChunkSize int

	negotiated bool
	buf        []byte

	chunked  bool
	encoder  io.WriteCloser // nil if no compression
	coding   string
	finished bool

	// onCommit, if set, is called once commit() writes the status line and
	// header block — the instant the response's first socket byte goes
	// out. The worker uses this to flip its WorkerState to Write at that
	// exact moment (spec.md §3), rather than only after the handler
	// returns. Assigned directly on the struct after construction; left
	// nil it's simply never called.
	onCommit func()
}

func newResponseWriter(w io.Writer, req *Request, resp *Response, maxChunkSize int) *ResponseWriter {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}
	return &ResponseWriter{w: w, req: req, resp: resp, maxChunkSize: maxChunkSize}
}

// Write implements io.Writer. Until the framing decision is made, bytes
// are buffered rather than committed (see the ResponseWriter doc comment).
func (rw *ResponseWriter) Write(p []byte) (int, error) {
	if rw.resp.Committed() {
		return rw.writeBody(p)
	}

	rw.ensureNegotiated()
	if rw.resp.contentLength < 0 && rw.coding == "" {
		rw.buf = append(rw.buf, p...)
		if len(rw.buf) < rw.maxChunkSize {
			return len(p), nil
		}
		// Threshold crossed: the response is now known to need chunked
		// framing, and everything buffered so far becomes its first
		// chunk.
	}

	if err := rw.commit(); err != nil {
		return 0, err
	}
	if len(rw.buf) > 0 {
		buffered := rw.buf
		rw.buf = nil
		if _, err := rw.writeBody(buffered); err != nil {
			return 0, err
		}
		return len(p), nil
	}
	return rw.writeBody(p)
}

// WriteHeaderOnly commits the response with no further body expected,
// used for responses like 204/304 and for the worker's error and
// expect-continue rejection responses. Any bytes already buffered by a
// prior Write are flushed first.
func (rw *ResponseWriter) WriteHeaderOnly() error {
	return rw.finalizeCommit()
}

// ensureNegotiated runs the compression decision exactly once; it must
// happen before the buffering-vs-fixed-length choice above, since an
// active coding forces chunked framing regardless of payload size.
func (rw *ResponseWriter) ensureNegotiated() {
	if rw.negotiated {
		return
	}
	rw.negotiated = true
	rw.negotiateEncoding()
}

// finalizeCommit resolves the framing decision using whatever has been
// buffered so far as the final body (the caller has no more bytes to
// contribute — either because it never wrote any, or because it's
// closing), then commits and flushes the buffer.
func (rw *ResponseWriter) finalizeCommit() error {
	if rw.resp.Committed() {
		return nil
	}
	rw.ensureNegotiated()
	if rw.resp.contentLength < 0 && rw.coding == "" {
		rw.resp.contentLength = int64(len(rw.buf))
	}
	if err := rw.commit(); err != nil {
		return err
	}
	if len(rw.buf) > 0 {
		buffered := rw.buf
		rw.buf = nil
		if _, err := rw.writeBody(buffered); err != nil {
			return err
		}
	}
	return nil
}

func (rw *ResponseWriter) writeBody(p []byte) (int, error) {
	if rw.encoder != nil {
		return rw.encoder.Write(p)
	}
	if rw.chunked {
		return rw.writeChunk(p)
	}
	return rw.w.Write(p)
}

func (rw *ResponseWriter) commit() error {
	rw.negotiateFraming()

	if rw.onCommit != nil {
		rw.onCommit()
	}

	if err := rw.writeStatusLine(); err != nil {
		return err
	}
	if err := rw.writeHeaders(); err != nil {
		return err
	}
	rw.resp.markCommitted()

	var dst io.Writer = rw.w
	if rw.chunked {
		dst = chunkWriter{rw}
	}
	switch {
	case rw.coding == "gzip":
		rw.encoder, _ = gzip.NewWriterLevel(dst, gzip.DefaultCompression)
	case rw.coding == "deflate":
		rw.encoder, _ = flate.NewWriter(dst, flate.DefaultCompression)
	}
	return nil
}

// chunkWriter frames every write from the compressor as one chunk.
type chunkWriter struct{ rw *ResponseWriter }

func (c chunkWriter) Write(p []byte) (int, error) { return c.rw.writeChunk(p) }

// negotiateEncoding applies spec.md §4.5's tri-state compression decision:
// forbidden never compresses; forced uses the pinned coding provided the
// client advertised it; auto picks the client's first supported coding
// among gzip/deflate.
func (rw *ResponseWriter) negotiateEncoding() {
	switch rw.resp.compressPref {
	case compressionForbidden:
		return
	case compressionForced:
		if clientAccepts(rw.req, rw.resp.forcedCoding) {
			rw.coding = rw.resp.forcedCoding
		}
	default:
		for _, coding := range rw.req.AcceptEncoding {
			if coding == "gzip" || coding == "deflate" {
				rw.coding = coding
				break
			}
		}
	}
	if rw.coding != "" {
		rw.resp.Header.Set(hdr.ContentEncoding, rw.coding)
		// A compressed body's length isn't known up front even if the
		// handler fixed one for the uncompressed payload.
		rw.resp.contentLength = -1
	}
}

func clientAccepts(req *Request, coding string) bool {
	for _, c := range req.AcceptEncoding {
		if c == coding {
			return true
		}
	}
	return false
}

// negotiateFraming picks Content-Length framing when the response fixed a
// length (and isn't compressed), chunked otherwise — but only for
// HTTP/1.1 peers; HTTP/1.0 has no chunked encoding, so a 1.0 response
// without a fixed length closes the connection on completion instead.
func (rw *ResponseWriter) negotiateFraming() {
	if rw.resp.contentLength >= 0 {
		rw.resp.Header.Set(hdr.ContentLength, strconv.FormatInt(rw.resp.contentLength, 10))
		return
	}
	if rw.req.ProtoAtLeast(1, 1) {
		rw.chunked = true
		rw.resp.Header.Set(hdr.TransferEncoding, "chunked")
	}
	// else: neither header is set; the worker closes the socket after
	// this response per spec.md §4.5's HTTP/1.0 fallback.
}

func (rw *ResponseWriter) writeStatusLine() error {
	_, err := fmt.Fprintf(rw.w, "%s %d %s\r\n", rw.req.Protocol, rw.resp.Status, rw.resp.Reason)
	return err
}

func (rw *ResponseWriter) writeHeaders() error {
	for _, c := range rw.resp.cookies {
		rw.resp.Header.Add(hdr.SetCookie, c.String())
	}
	if _, err := rw.resp.Header.WriteTo(rw.w); err != nil {
		return err
	}
	_, err := io.WriteString(rw.w, "\r\n")
	return err
}

func (rw *ResponseWriter) writeChunk(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if _, err := fmt.Fprintf(rw.w, "%x\r\n", len(p)); err != nil {
		return 0, err
	}
	n, err := rw.w.Write(p)
	if err != nil {
		return n, err
	}
	if _, err := io.WriteString(rw.w, "\r\n"); err != nil {
		return n, err
	}
	return n, nil
}

// Close finalizes the response: flushes and closes any compressor, then
// (for chunked framing) writes the terminal zero-size chunk. Calling
// Close before any Write commits a zero-length response.
func (rw *ResponseWriter) Close() error {
	if rw.finished {
		return nil
	}
	rw.finished = true
	if err := rw.finalizeCommit(); err != nil {
		return err
	}
	if rw.encoder != nil {
		if err := rw.encoder.Close(); err != nil {
			return err
		}
	}
	if rw.chunked {
		_, err := io.WriteString(rw.w, "0\r\n\r\n")
		return err
	}
	return nil
}

// StatusText returns the standard RFC 9110 reason phrase for code, or ""
// if code is not recognized. Handlers may use it to populate Response.Reason
// explicitly; the writer never fills it in automatically (spec.md §3 makes
// the reason phrase optional, and the reference leaves it blank by
// default).
func StatusText(code int) string {
	return statusTexts[code]
}

var statusTexts = map[int]string{
	100: "Continue",
	200: "OK",
	204: "No Content",
	206: "Partial Content",
	301: "Moved Permanently",
	302: "Found",
	304: "Not Modified",
	400: "Bad Request",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	408: "Request Timeout",
	413: "Payload Too Large",
	417: "Expectation Failed",
	431: "Request Header Fields Too Large",
	500: "Internal Server Error",
	503: "Service Unavailable",
	505: "HTTP Version Not Supported",
}
