package wirehttp

import (
	"github.com/arl/wirehttp/cookie"
	"github.com/arl/wirehttp/hdr"
)

// compressionPreference is the tri-state flag spec.md §4.5 describes for
// a handler's influence over content-encoding negotiation: a handler may
// allow the writer to pick an encoding, forbid compression outright (e.g.
// because it already wrote a compressed body), or force a specific one.
type compressionPreference int

const (
	compressionAuto compressionPreference = iota
	compressionForbidden
	compressionForced
)

// Response is the per-request OutputStream view (spec.md §3/§4.5). It is
// mutable until Commit; afterward its setter methods are no-ops, and
// changes to Status or Header no longer reach the wire, since the status
// line and header block have already been written.
type Response struct {
	Status int
	// Reason is the optional reason phrase (spec.md §3). Left empty by
	// default: the writer does not synthesize one from a lookup table, it
	// emits exactly what the handler set (matching the reference's literal
	// "HTTP/1.1 200 \r\n" wire output when no reason phrase is supplied).
	Reason string
	Header *hdr.Header

	cookies []*cookie.Cookie

	// contentLength, when >= 0, fixes the framing to Content-Length
	// rather than chunked (spec.md §4.5: "known total length" case).
	contentLength int64

	compressPref compressionPreference
	forcedCoding string

	committed bool
	closed    bool
}

// NewResponse returns a Response pre-populated with status 200 and empty
// headers, mirroring the default a handler that writes nothing would send.
func NewResponse() *Response {
	return &Response{
		Status:        200,
		Header:        hdr.New(),
		contentLength: -1,
	}
}

func (r *Response) reset() {
	r.Status = 200
	r.Reason = ""
	r.Header = hdr.New()
	r.cookies = nil
	r.contentLength = -1
	r.compressPref = compressionAuto
	r.forcedCoding = ""
	r.committed = false
	r.closed = false
}

// Committed reports whether the first body byte (or headers-only send)
// has already gone out. Per spec.md §4.5, once true the status line and
// header block are frozen.
func (r *Response) Committed() bool { return r.committed }

// SetContentLength fixes the response's framing to a known length. Calling
// this after Commit is a no-op.
func (r *Response) SetContentLength(n int64) {
	if r.committed {
		return
	}
	r.contentLength = n
}

// ContentLength reports the fixed length, or -1 if none is fixed yet.
// With -1 the writer computes a length from the buffered body if it is
// closed before max_chunk_size bytes are written, and otherwise uses
// chunked framing (HTTP/1.1) or a close-delimited body (HTTP/1.0).
func (r *Response) ContentLength() int64 { return r.contentLength }

// DisableCompression forbids the writer from applying content-encoding,
// e.g. because the handler already wrote pre-compressed bytes.
func (r *Response) DisableCompression() {
	if r.committed {
		return
	}
	r.compressPref = compressionForbidden
}

// ForceCompression pins the writer to a specific coding ("gzip" or
// "deflate") regardless of Accept-Encoding negotiation, provided the
// client advertised support for it (spec.md §4.5 requires the writer to
// still honor client capability even when a coding is forced).
func (r *Response) ForceCompression(coding string) {
	if r.committed {
		return
	}
	r.compressPref = compressionForced
	r.forcedCoding = coding
}

// SetCookie appends c to the Set-Cookie headers emitted on commit.
func (r *Response) SetCookie(c *cookie.Cookie) {
	if r.committed {
		return
	}
	r.cookies = append(r.cookies, c)
}

// markCommitted is called by the response writer the instant the status
// line is serialized.
func (r *Response) markCommitted() { r.committed = true }
