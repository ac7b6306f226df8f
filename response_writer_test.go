package wirehttp

import (
	"bytes"
	"compress/gzip"
	"strings"
	"testing"

	"github.com/arl/wirehttp/hdr"
)

func newTestRequest(protocol string, acceptEncoding ...string) *Request {
	req := NewRequest()
	req.Method = "GET"
	req.Path = "/"
	req.Protocol = protocol
	req.AcceptEncoding = acceptEncoding
	return req
}

func TestResponseWriterFixedContentLengthFraming(t *testing.T) {
	var buf bytes.Buffer
	req := newTestRequest("HTTP/1.1")
	resp := NewResponse()
	resp.SetContentLength(5)
	rw := newResponseWriter(&buf, req, resp, DefaultMaxChunkSize)

	if _, err := rw.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := rw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "content-length: 5\r\n") {
		t.Fatalf("output missing Content-Length header: %q", out)
	}
	if strings.Contains(out, "transfer-encoding") {
		t.Fatalf("output should not be chunked: %q", out)
	}
	if !strings.HasSuffix(out, "hello") {
		t.Fatalf("output should end with the body: %q", out)
	}
}

// TestResponseWriterFixedFramingUnderChunkThreshold covers spec.md §8's
// "Framing choice" property: a handler that writes less than max_chunk_size
// and then closes gets a computed Content-Length, never chunked framing,
// even though it never set one explicitly.
func TestResponseWriterFixedFramingUnderChunkThreshold(t *testing.T) {
	var buf bytes.Buffer
	req := newTestRequest("HTTP/1.1")
	resp := NewResponse()
	rw := newResponseWriter(&buf, req, resp, 64)

	rw.Write([]byte("hi"))
	rw.Close()

	out := buf.String()
	if !strings.Contains(out, "content-length: 2\r\n") {
		t.Fatalf("expected a computed Content-Length: %q", out)
	}
	if strings.Contains(out, "transfer-encoding") {
		t.Fatalf("a short write that closes should not switch to chunked: %q", out)
	}
	if !strings.HasSuffix(out, "hi") {
		t.Fatalf("output should end with the body: %q", out)
	}
}

// TestResponseWriterChunkedFramingOverThreshold covers the other half of
// the same property: once buffered bytes reach max_chunk_size before
// Close, the response commits as chunked.
func TestResponseWriterChunkedFramingOverThreshold(t *testing.T) {
	var buf bytes.Buffer
	req := newTestRequest("HTTP/1.1")
	resp := NewResponse()
	rw := newResponseWriter(&buf, req, resp, 4)

	rw.Write([]byte("hello"))
	rw.Close()

	out := buf.String()
	if !strings.Contains(out, "transfer-encoding: chunked\r\n") {
		t.Fatalf("expected chunked framing once max_chunk_size is exceeded: %q", out)
	}
	if !strings.Contains(out, "5\r\nhello\r\n") {
		t.Fatalf("expected chunk-encoded body: %q", out)
	}
	if !strings.HasSuffix(out, "0\r\n\r\n") {
		t.Fatalf("expected terminal chunk: %q", out)
	}
}

func TestResponseWriterNoChunkedOn10(t *testing.T) {
	var buf bytes.Buffer
	req := newTestRequest("HTTP/1.0")
	resp := NewResponse()
	rw := newResponseWriter(&buf, req, resp, 4)

	rw.Write([]byte("hello")) // exceeds the 4-byte threshold
	rw.Close()

	out := buf.String()
	if strings.Contains(out, "transfer-encoding") {
		t.Fatalf("HTTP/1.0 response must not use chunked framing: %q", out)
	}
	if !strings.HasSuffix(out, "hello") {
		t.Fatalf("body should still be written verbatim, close-terminated: %q", out)
	}
}

func TestResponseWriterCompressionNegotiation(t *testing.T) {
	var buf bytes.Buffer
	req := newTestRequest("HTTP/1.1", "gzip", "deflate")
	resp := NewResponse()
	rw := newResponseWriter(&buf, req, resp, DefaultMaxChunkSize)

	payload := []byte("hello, compressible world")
	rw.Write(payload)
	rw.Close()

	if resp.Header.Get(hdr.ContentEncoding) != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", resp.Header.Get(hdr.ContentEncoding))
	}
	if !strings.Contains(buf.String(), "transfer-encoding: chunked\r\n") {
		t.Fatalf("a compressed body must always use chunked framing: %q", buf.String())
	}

	headerEnd := strings.Index(buf.String(), "\r\n\r\n")
	if headerEnd < 0 {
		t.Fatal("no header/body separator found")
	}
	gz, err := gzip.NewReader(newChunkedBodyReader(bytes.NewReader(buf.Bytes()[headerEnd+4:]), -1))
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	var out bytes.Buffer
	if _, err := out.ReadFrom(gz); err != nil {
		t.Fatalf("reading gzip stream: %v", err)
	}
	if out.String() != string(payload) {
		t.Fatalf("decompressed = %q, want %q", out.String(), payload)
	}
}

func TestResponseWriterCompressionForbidden(t *testing.T) {
	var buf bytes.Buffer
	req := newTestRequest("HTTP/1.1", "gzip")
	resp := NewResponse()
	resp.DisableCompression()
	rw := newResponseWriter(&buf, req, resp, DefaultMaxChunkSize)

	rw.Write([]byte("plain"))
	rw.Close()

	if resp.Header.Has(hdr.ContentEncoding) {
		t.Fatalf("Content-Encoding should be absent, got %q", resp.Header.Get(hdr.ContentEncoding))
	}
	if !strings.Contains(buf.String(), "content-length: 5\r\n") {
		t.Fatalf("an uncompressed short write should still get a fixed Content-Length: %q", buf.String())
	}
}

func TestResponseWriterCommitFreezesStatus(t *testing.T) {
	var buf bytes.Buffer
	req := newTestRequest("HTTP/1.1")
	resp := NewResponse()
	resp.SetContentLength(1) // forces an immediate commit on the first Write
	rw := newResponseWriter(&buf, req, resp, DefaultMaxChunkSize)

	rw.Write([]byte("x"))
	resp.Status = 404 // too late, already committed
	rw.Close()

	if !strings.HasPrefix(buf.String(), "HTTP/1.1 200 ") {
		t.Fatalf("status line should have committed at 200: %q", buf.String())
	}
}

func TestResponseWriterWriteHeaderOnlyIsZeroLength(t *testing.T) {
	var buf bytes.Buffer
	req := newTestRequest("HTTP/1.1")
	resp := NewResponse()
	resp.Status = 204
	rw := newResponseWriter(&buf, req, resp, DefaultMaxChunkSize)

	if err := rw.WriteHeaderOnly(); err != nil {
		t.Fatalf("WriteHeaderOnly: %v", err)
	}
	rw.Close()

	out := buf.String()
	if !strings.Contains(out, "content-length: 0\r\n") {
		t.Fatalf("a response with no writes should get Content-Length: 0: %q", out)
	}
	if strings.Contains(out, "transfer-encoding") {
		t.Fatalf("a zero-length response should never be chunked: %q", out)
	}
}
