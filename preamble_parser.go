package wirehttp

import (
	"strconv"
	"strings"

	"github.com/arl/wirehttp/hdr"
)

// preambleState enumerates the byte-at-a-time FSM states spec.md §4.3
// names explicitly. The parser consumes exactly one input byte per step
// and keeps all of its progress in its state and accumulators, which is
// what lets it resume correctly no matter where a TCP segment boundary
// falls.
type preambleState int

const (
	stRequestMethod preambleState = iota
	stRequestMethodSP
	stRequestPath
	stRequestPathSP
	stRequestProtocol
	stRequestCR
	stRequestLF
	stHeaderName
	stHeaderColon
	stHeaderValue
	stHeaderCR
	stHeaderLF
	stPreambleCR
	stComplete
)

func (s preambleState) String() string {
	switch s {
	case stRequestMethod:
		return "RequestMethod"
	case stRequestMethodSP:
		return "RequestMethodSP"
	case stRequestPath:
		return "RequestPath"
	case stRequestPathSP:
		return "RequestPathSP"
	case stRequestProtocol:
		return "RequestProtocol"
	case stRequestCR:
		return "RequestCR"
	case stRequestLF:
		return "RequestLF"
	case stHeaderName:
		return "HeaderName"
	case stHeaderColon:
		return "HeaderColon"
	case stHeaderValue:
		return "HeaderValue"
	case stHeaderCR:
		return "HeaderCR"
	case stHeaderLF:
		return "HeaderLF"
	case stPreambleCR:
		return "PreambleCR"
	case stComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// preambleParser consumes one byte at a time and builds a *Request in
// place. It never holds more than one incomplete header name/value pair
// in memory beyond what's already been appended to req.Header.
type preambleParser struct {
	state preambleState
	req   *Request

	method, path, protocol strings.Builder
	headerName, headerValue strings.Builder

	maxHeaderSize int
	consumed      int

	// onFirstByte, if set, is invoked exactly once, before the byte that
	// triggers it is otherwise processed (spec.md §4.3's parser observer:
	// "invoked once after the first byte is read; this is the signal to
	// transition WorkerState from KeepAlive to Read"). Assigned directly
	// by the worker after construction rather than threaded through
	// newPreambleParser, so existing callers that don't care are unaffected.
	onFirstByte func()
	firedFirstByte bool
}

func newPreambleParser(req *Request, maxHeaderSize int) *preambleParser {
	return &preambleParser{state: stRequestMethod, req: req, maxHeaderSize: maxHeaderSize}
}

// Feed advances the FSM by exactly one byte. done is true once the blank
// line terminating the preamble has been consumed; err is a *Error with
// KindParseError (character-class violation) or KindPreambleRejected
// (oversize header block 431, a protocol token not starting with "HTTP/"
// 400, an HTTP version other than 1.0/1.1 505).
func (p *preambleParser) Feed(b byte) (done bool, err error) {
	if !p.firedFirstByte {
		p.firedFirstByte = true
		if p.onFirstByte != nil {
			p.onFirstByte()
		}
	}
	if p.maxHeaderSize > 0 {
		p.consumed++
		if p.consumed > p.maxHeaderSize {
			return false, preambleRejected(431, "request header block exceeds max_request_header_size")
		}
	}

	switch p.state {
	case stRequestMethod:
		switch {
		case b == ' ':
			if p.method.Len() == 0 {
				return false, parseErr(p.state.String(), b, errMethodEmpty)
			}
			p.req.Method = p.method.String()
			p.state = stRequestMethodSP
		case hdr.IsTokenByte(b):
			p.method.WriteByte(b)
		default:
			return false, parseErr(p.state.String(), b, errBadMethodByte)
		}

	case stRequestMethodSP:
		switch {
		case b == ' ':
			// tolerate (but don't require) repeated spaces between fields
		case hdr.IsURIByte(b):
			p.path.WriteByte(b)
			p.state = stRequestPath
		default:
			return false, parseErr(p.state.String(), b, errBadPathByte)
		}

	case stRequestPath:
		switch {
		case b == ' ':
			p.req.Path = p.path.String()
			p.state = stRequestPathSP
		case hdr.IsURIByte(b):
			p.path.WriteByte(b)
		default:
			return false, parseErr(p.state.String(), b, errBadPathByte)
		}

	case stRequestPathSP:
		switch {
		case b == ' ':
		case isProtocolByte(b):
			p.protocol.WriteByte(b)
			p.state = stRequestProtocol
		default:
			return false, parseErr(p.state.String(), b, errBadProtocolByte)
		}

	case stRequestProtocol:
		switch {
		case b == '\r':
			proto := p.protocol.String()
			if !strings.HasPrefix(proto, "HTTP/") {
				return false, preambleRejected(400, "malformed protocol token "+proto)
			}
			if proto != "HTTP/1.0" && proto != "HTTP/1.1" {
				return false, preambleRejected(505, "unsupported HTTP version "+proto)
			}
			p.req.Protocol = proto
			p.state = stRequestCR
		case isProtocolByte(b):
			p.protocol.WriteByte(b)
		default:
			return false, parseErr(p.state.String(), b, errBadProtocolByte)
		}

	case stRequestCR:
		if b != '\n' {
			return false, parseErr(p.state.String(), b, errExpectedLF)
		}
		p.state = stRequestLF

	case stRequestLF:
		return p.headerNameOrBlank(b)

	case stHeaderName:
		switch {
		case b == ':':
			p.state = stHeaderColon
		case hdr.IsTokenByte(b):
			p.headerName.WriteByte(b)
		default:
			return false, parseErr(p.state.String(), b, errBadHeaderNameByte)
		}

	case stHeaderColon:
		switch {
		case b == ' ' || b == '\t':
			// OWS before the value is skipped
		case b == '\r':
			p.commitHeader()
			p.state = stHeaderCR
		case hdr.IsHeaderValueByte(b):
			p.headerValue.WriteByte(b)
			p.state = stHeaderValue
		default:
			return false, parseErr(p.state.String(), b, errBadHeaderValueByte)
		}

	case stHeaderValue:
		switch {
		case b == '\r':
			p.commitHeader()
			p.state = stHeaderCR
		case hdr.IsHeaderValueByte(b):
			p.headerValue.WriteByte(b)
		default:
			return false, parseErr(p.state.String(), b, errBadHeaderValueByte)
		}

	case stHeaderCR:
		if b != '\n' {
			return false, parseErr(p.state.String(), b, errExpectedLF)
		}
		p.state = stHeaderLF

	case stHeaderLF:
		return p.headerNameOrBlank(b)

	case stPreambleCR:
		if b != '\n' {
			return false, parseErr(p.state.String(), b, errExpectedLF)
		}
		p.state = stComplete
		return true, nil

	default:
		return false, parseErr(p.state.String(), b, errParserAlreadyDone)
	}

	return false, nil
}

// headerNameOrBlank is the shared branch both RequestLF and HeaderLF take:
// a CR here means the blank line that ends the preamble; anything else
// starts the next header field name.
func (p *preambleParser) headerNameOrBlank(b byte) (bool, error) {
	switch {
	case b == '\r':
		p.state = stPreambleCR
		return false, nil
	case hdr.IsTokenByte(b):
		p.headerName.Reset()
		p.headerValue.Reset()
		p.headerName.WriteByte(b)
		p.state = stHeaderName
		return false, nil
	default:
		return false, parseErr(p.state.String(), b, errBadHeaderNameByte)
	}
}

func (p *preambleParser) commitHeader() {
	name := p.headerName.String()
	value := strings.TrimRight(p.headerValue.String(), " \t")
	if name != "" {
		p.req.Header.Add(name, value)
	}
	p.headerName.Reset()
	p.headerValue.Reset()
}

func isProtocolByte(b byte) bool {
	return b == '/' || b == '.' || (b >= '0' && b <= '9') || (b >= 'A' && b <= 'Z')
}

var (
	errMethodEmpty       = newStdErr("empty method token")
	errBadMethodByte     = newStdErr("invalid method byte")
	errBadPathByte       = newStdErr("invalid request-target byte")
	errBadProtocolByte   = newStdErr("invalid protocol byte")
	errExpectedLF        = newStdErr("expected LF after CR")
	errBadHeaderNameByte = newStdErr("invalid header field-name byte")
	errBadHeaderValueByte = newStdErr("invalid header field-value byte")
	errParserAlreadyDone = newStdErr("parser fed a byte past Complete")
)

type stdErr string

func newStdErr(s string) stdErr { return stdErr(s) }
func (e stdErr) Error() string  { return string(e) }

// finalizePreamble derives ContentLength/Chunked/Host/AcceptEncoding/Expect
// from the now-fully-populated req.Header, and enforces the structural
// rules spec.md §4.3/§9 attach to the preamble as a whole (Host required,
// at most one framing mechanism). The version policy is enforced earlier,
// by Feed, when the protocol token ends.
func finalizePreamble(req *Request) error {
	hostValues := req.Header.Values(hdr.Host)
	switch len(hostValues) {
	case 0:
		return preambleRejected(400, "missing required Host header")
	case 1:
		req.Host = hostValues[0]
	default:
		return preambleRejected(400, "duplicate Host header")
	}

	te := req.Header.Get(hdr.TransferEncoding)
	clValues := req.Header.Values(hdr.ContentLength)

	if te != "" {
		if !strings.EqualFold(strings.TrimSpace(te), "chunked") {
			// spec.md §9 Open Question resolution: any Transfer-Encoding
			// other than exactly "chunked" is rejected outright rather
			// than guessed at.
			return preambleRejected(400, "unsupported Transfer-Encoding "+te)
		}
		req.Chunked = true
		req.ContentLength = -1
	} else if len(clValues) > 1 {
		return preambleRejected(400, "duplicate Content-Length header")
	} else if len(clValues) == 1 {
		n, err := strconv.ParseInt(strings.TrimSpace(clValues[0]), 10, 64)
		switch {
		case err != nil:
			// Overflow of int64 (too many digits for ParseInt) is the one
			// case spec.md §9's Open Question resolves as "no body" rather
			// than a 400; anything else that failed to parse as an integer
			// at all is a malformed Content-Length and must be rejected.
			if numErr, ok := err.(*strconv.NumError); ok && numErr.Err == strconv.ErrRange {
				req.ContentLength = -1
			} else {
				return preambleRejected(400, "malformed Content-Length "+clValues[0])
			}
		case n < 0:
			return preambleRejected(400, "negative Content-Length")
		default:
			req.ContentLength = n
		}
	}

	req.Expect = req.Header.Get(hdr.Expect)
	req.AcceptEncoding = parseAcceptEncoding(req.Header.Get(hdr.AcceptEncoding))
	return nil
}
