package wirehttp

import (
	"strconv"
	"strings"

	"github.com/arl/wirehttp/cookie"
	"github.com/arl/wirehttp/hdr"
)

// Request is built incrementally by the preamble parser (spec.md §3). It
// is created fresh per request iteration and discarded once the handler
// returns and its body has been drained.
type Request struct {
	Method   string
	Path     string // raw, includes query
	Protocol string // "HTTP/1.0" | "HTTP/1.1"

	Header *hdr.Header

	// ContentLength is the derived signed 64-bit content length, or -1
	// if none was declared. Invariant (spec.md §3): exactly one of
	// {ContentLength >= 0, chunked, no body} describes the framing; if
	// both Content-Length and Transfer-Encoding: chunked are present,
	// chunked wins and ContentLength is erased to -1.
	ContentLength int64
	Chunked       bool

	Host           string
	AcceptEncoding []string // in client preference order, as sent
	Expect         string

	RemoteIP   string
	RemotePort string
	Scheme     string
	ConnID     string
	RequestID  string

	// Body is the request's InputStream view: a body reader already
	// selected (fixed-length, chunked, or NoBody) and positioned at the
	// start of the body by the preamble parser's pushback boundary.
	Body BodyReader
}

// NewRequest returns an empty Request ready for the preamble parser to
// populate.
func NewRequest() *Request {
	return &Request{
		Header:        hdr.New(),
		ContentLength: -1,
	}
}

// reset clears r for reuse across keep-alive iterations. The Header map
// itself is reallocated rather than cleared-in-place: handlers may have
// retained a reference to it (spec.md invariant only bars mutation after
// commit, not retention), so reuse would be unsafe.
func (r *Request) reset() {
	r.Method = ""
	r.Path = ""
	r.Protocol = ""
	r.Header = hdr.New()
	r.ContentLength = -1
	r.Chunked = false
	r.Host = ""
	r.AcceptEncoding = nil
	r.Expect = ""
	r.Body = nil
}

// ProtoAtLeast reports whether the request's protocol is HTTP/1.x with x
// >= minor, for the given major (only major==1 is meaningful here since
// HTTP/2+ is a Non-goal).
func (r *Request) ProtoAtLeast(major, minor int) bool {
	if major != 1 {
		return false
	}
	switch r.Protocol {
	case "HTTP/1.1":
		return minor <= 1
	case "HTTP/1.0":
		return minor <= 0
	default:
		return false
	}
}

// ExpectsContinue reports whether the client sent Expect: 100-continue.
func (r *Request) ExpectsContinue() bool {
	return strings.EqualFold(strings.TrimSpace(r.Expect), "100-continue")
}

// WantsClose reports whether the request itself signaled Connection:
// close (used to seed the response's default before the handler runs).
func (r *Request) WantsClose() bool {
	return hasToken(r.Header.Get(hdr.Connection), "close")
}

// Wants10KeepAlive reports an HTTP/1.0 client's opt-in to keep-alive.
func (r *Request) Wants10KeepAlive() bool {
	return !r.ProtoAtLeast(1, 1) && hasToken(r.Header.Get(hdr.Connection), "keep-alive")
}

// Cookies parses and returns the cookies sent in the request's Cookie
// header(s).
func (r *Request) Cookies() []*cookie.Cookie {
	return cookie.ParseRequestCookies(r.Header.Values(hdr.Cookie), "")
}

// Cookie returns the first cookie named name, or nil.
func (r *Request) Cookie(name string) *cookie.Cookie {
	cs := cookie.ParseRequestCookies(r.Header.Values(hdr.Cookie), name)
	if len(cs) == 0 {
		return nil
	}
	return cs[0]
}

// ForwardedHost is the raw X-Forwarded-Host header value, exposed as a
// read-only convenience view. It is never consulted to satisfy the Host
// requirement (spec.md §4.2.1: "X-Forwarded-Host does NOT satisfy this").
func (r *Request) ForwardedHost() string {
	return r.Header.Get(hdr.XForwardedHost)
}

// ContentType splits the request's Content-Type header into its bare
// media type and parameter map (spec.md §4.7's parameterized-header
// parsing), e.g. "multipart/form-data; boundary=xyz" yields
// ("multipart/form-data", {"boundary": "xyz"}).
func (r *Request) ContentType() (mediaType string, params map[string]string) {
	return hdr.ParseParameterizedValue(r.Header.Get(hdr.ContentType))
}

// hasToken reports whether v contains token as one of its comma-separated,
// case-insensitively compared elements — the same check spec.md §4.2.2's
// keep-alive decision and §4.5's Connection-header handling both need.
func hasToken(v, token string) bool {
	if v == "" {
		return false
	}
	for _, part := range strings.Split(v, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}

// parseAcceptEncoding splits an Accept-Encoding header value into codings
// in client preference order (spec.md §4.5: "the writer picks the first
// supported encoding from the client's preference list"). A q=0 coding is
// dropped; everything else keeps its original relative order (q-values
// beyond excluding zero are not otherwise used to reorder, since spec.md's
// compression negotiation only distinguishes "offered" from "not offered"
// within the deflate/gzip pair, preferring whichever the client listed
// first).
func parseAcceptEncoding(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		coding := part
		q := 1.0
		if i := strings.IndexByte(part, ';'); i >= 0 {
			coding = strings.TrimSpace(part[:i])
			params := part[i+1:]
			for _, p := range strings.Split(params, ";") {
				p = strings.TrimSpace(p)
				if strings.HasPrefix(strings.ToLower(p), "q=") {
					if f, err := strconv.ParseFloat(strings.TrimSpace(p[2:]), 64); err == nil {
						q = f
					}
				}
			}
		}
		if q == 0 {
			continue
		}
		out = append(out, strings.ToLower(coding))
	}
	return out
}
