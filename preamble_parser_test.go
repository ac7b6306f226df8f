package wirehttp

import (
	"testing"

	"github.com/arl/wirehttp/hdr"
)

// feedPreamble drives parser byte by byte, simulating one contiguous read.
// Returns the completed request, or the error the parser raised.
func feedPreamble(t *testing.T, raw string) (*Request, error) {
	t.Helper()
	req := NewRequest()
	parser := newPreambleParser(req, 0)
	for i := 0; i < len(raw); i++ {
		done, err := parser.Feed(raw[i])
		if err != nil {
			return nil, err
		}
		if done {
			if err := finalizePreamble(req); err != nil {
				return nil, err
			}
			return req, nil
		}
	}
	t.Fatalf("preamble never completed: %q", raw)
	return nil, nil
}

func TestPreambleParserBasicGET(t *testing.T) {
	req, err := feedPreamble(t, "GET /foo?x=1 HTTP/1.1\r\nHost: example.com\r\nAccept: */*\r\n\r\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Method != "GET" || req.Path != "/foo?x=1" || req.Protocol != "HTTP/1.1" {
		t.Fatalf("got %+v", req)
	}
	if req.Host != "example.com" {
		t.Fatalf("Host = %q", req.Host)
	}
}

// TestPreambleParserArbitrarySplits verifies the FSM is insensitive to
// where the input is chunked, by feeding the same bytes through every
// possible single split point and confirming identical results.
func TestPreambleParserArbitrarySplits(t *testing.T) {
	raw := "POST /submit HTTP/1.1\r\nHost: a.example\r\nContent-Length: 5\r\n\r\n"
	for split := 1; split < len(raw); split++ {
		req := NewRequest()
		parser := newPreambleParser(req, 0)
		var gotDone bool
		feed := func(chunk string) {
			for i := 0; i < len(chunk); i++ {
				done, err := parser.Feed(chunk[i])
				if err != nil {
					t.Fatalf("split %d: unexpected error: %v", split, err)
				}
				if done {
					gotDone = true
				}
			}
		}
		feed(raw[:split])
		feed(raw[split:])
		if !gotDone {
			t.Fatalf("split %d: parser never completed", split)
		}
		if err := finalizePreamble(req); err != nil {
			t.Fatalf("split %d: finalize error: %v", split, err)
		}
		if req.Method != "POST" || req.Path != "/submit" || req.Host != "a.example" || req.ContentLength != 5 {
			t.Fatalf("split %d: got %+v", split, req)
		}
	}
}

func TestPreambleParserRejectsBadMethodByte(t *testing.T) {
	_, err := feedPreamble(t, "G\x01T / HTTP/1.1\r\nHost: a\r\n\r\n")
	e := AsError(err)
	if e == nil || e.Kind != KindParseError {
		t.Fatalf("err = %v, want KindParseError", err)
	}
}

func TestPreambleParserRejectsBadVersion(t *testing.T) {
	_, err := feedPreamble(t, "GET / HTTP/2.0\r\nHost: a\r\n\r\n")
	e := AsError(err)
	if e == nil || e.Kind != KindPreambleRejected || e.Status != 505 {
		t.Fatalf("err = %v, want KindPreambleRejected/505", err)
	}
}

func TestPreambleParserRejectsNonHTTPProtocolAs400(t *testing.T) {
	_, err := feedPreamble(t, "GET / FTP/1.0\r\nHost: a\r\n\r\n")
	e := AsError(err)
	if e == nil || e.Kind != KindPreambleRejected || e.Status != 400 {
		t.Fatalf("err = %v, want KindPreambleRejected/400 for non-HTTP/ protocol token", err)
	}
}

func TestPreambleParserRequiresHostOn11(t *testing.T) {
	_, err := feedPreamble(t, "GET / HTTP/1.1\r\nAccept: */*\r\n\r\n")
	e := AsError(err)
	if e == nil || e.Kind != KindPreambleRejected || e.Status != 400 {
		t.Fatalf("err = %v, want KindPreambleRejected/400 for missing Host", err)
	}
}

func TestPreambleParserRequiresHostOn10(t *testing.T) {
	// spec.md §4.2.1 requires Host unconditionally, not only for HTTP/1.1.
	_, err := feedPreamble(t, "GET / HTTP/1.0\r\nAccept: */*\r\n\r\n")
	e := AsError(err)
	if e == nil || e.Kind != KindPreambleRejected || e.Status != 400 {
		t.Fatalf("err = %v, want KindPreambleRejected/400 for missing Host on HTTP/1.0", err)
	}
}

func TestPreambleParserDuplicateHostRejected(t *testing.T) {
	_, err := feedPreamble(t, "GET / HTTP/1.1\r\nHost: a\r\nHost: b\r\n\r\n")
	e := AsError(err)
	if e == nil || e.Kind != KindPreambleRejected {
		t.Fatalf("err = %v, want KindPreambleRejected for duplicate Host", err)
	}
}

func TestPreambleParserContentLengthOverflowTreatedAsNoBody(t *testing.T) {
	req, err := feedPreamble(t, "POST / HTTP/1.1\r\nHost: a\r\nContent-Length: 99999999999999999999\r\n\r\n")
	if err != nil {
		t.Fatalf("unexpected error (overflowing Content-Length should not be rejected): %v", err)
	}
	if req.ContentLength != -1 {
		t.Fatalf("ContentLength = %d, want -1", req.ContentLength)
	}
}

func TestPreambleParserDuplicateContentLengthRejected(t *testing.T) {
	_, err := feedPreamble(t, "POST / HTTP/1.1\r\nHost: a\r\nContent-Length: 5\r\nContent-Length: 5\r\n\r\n")
	e := AsError(err)
	if e == nil || e.Kind != KindPreambleRejected || e.Status != 400 {
		t.Fatalf("err = %v, want KindPreambleRejected/400 for duplicate Content-Length", err)
	}
}

func TestPreambleParserNegativeContentLengthRejected(t *testing.T) {
	_, err := feedPreamble(t, "POST / HTTP/1.1\r\nHost: a\r\nContent-Length: -1\r\n\r\n")
	e := AsError(err)
	if e == nil || e.Kind != KindPreambleRejected || e.Status != 400 {
		t.Fatalf("err = %v, want KindPreambleRejected/400 for negative Content-Length", err)
	}
}

func TestPreambleParserUnsupportedTransferEncodingRejected(t *testing.T) {
	_, err := feedPreamble(t, "POST / HTTP/1.1\r\nHost: a\r\nTransfer-Encoding: gzip\r\n\r\n")
	e := AsError(err)
	if e == nil || e.Kind != KindPreambleRejected || e.Status != 400 {
		t.Fatalf("err = %v, want KindPreambleRejected/400", err)
	}
}

func TestPreambleParserChunkedWinsOverContentLength(t *testing.T) {
	req, err := feedPreamble(t, "POST / HTTP/1.1\r\nHost: a\r\nContent-Length: 10\r\nTransfer-Encoding: chunked\r\n\r\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !req.Chunked || req.ContentLength != -1 {
		t.Fatalf("got Chunked=%v ContentLength=%d, want chunked framing to win", req.Chunked, req.ContentLength)
	}
}

func TestPreambleParserAcceptEncodingOrderAndQZero(t *testing.T) {
	req, err := feedPreamble(t, "GET / HTTP/1.1\r\nHost: a\r\nAccept-Encoding: gzip;q=0, deflate, br\r\n\r\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"deflate", "br"}
	if len(req.AcceptEncoding) != len(want) {
		t.Fatalf("AcceptEncoding = %v, want %v", req.AcceptEncoding, want)
	}
	for i := range want {
		if req.AcceptEncoding[i] != want[i] {
			t.Fatalf("AcceptEncoding = %v, want %v", req.AcceptEncoding, want)
		}
	}
}

func TestPreambleParserMultipleHeaderValuesPreserved(t *testing.T) {
	req, err := feedPreamble(t, "GET / HTTP/1.1\r\nHost: a\r\nCookie: x=1\r\nCookie: y=2\r\n\r\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := req.Header.Values(hdr.Cookie); len(got) != 2 {
		t.Fatalf("Cookie values = %v, want 2 entries", got)
	}
}
