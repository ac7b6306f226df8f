package wirehttp

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestFixedBodyReaderReadsExactly(t *testing.T) {
	r := newFixedBodyReader(strings.NewReader("hello worldXXXXX"), 11, -1)
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("got %q, want %q", got, "hello world")
	}
}

func TestFixedBodyReaderEnforcesMaxBody(t *testing.T) {
	r := newFixedBodyReader(strings.NewReader("hello world"), 11, 5)
	_, err := io.ReadAll(r)
	e := AsError(err)
	if e == nil || e.Status != 413 {
		t.Fatalf("err = %v, want 413", err)
	}
}

func TestFixedBodyReaderDrain(t *testing.T) {
	r := newFixedBodyReader(strings.NewReader("0123456789"), 10, -1)
	if err := r.Drain(20); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if r.Remains() {
		t.Fatal("Remains should be false after drain")
	}
}

func TestFixedBodyReaderDrainTooMany(t *testing.T) {
	r := newFixedBodyReader(strings.NewReader("0123456789"), 10, -1)
	err := r.Drain(5)
	e := AsError(err)
	if e == nil || e.Kind != KindTooManyBytesToDrain {
		t.Fatalf("err = %v, want KindTooManyBytesToDrain", err)
	}
}

func chunkedBody(chunks ...string) string {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(itoaHex(len(c)))
		b.WriteString("\r\n")
		b.WriteString(c)
		b.WriteString("\r\n")
	}
	b.WriteString("0\r\n\r\n")
	return b.String()
}

func itoaHex(n int) string {
	if n == 0 {
		return "0"
	}
	const digits = "0123456789abcdef"
	var buf []byte
	for n > 0 {
		buf = append([]byte{digits[n%16]}, buf...)
		n /= 16
	}
	return string(buf)
}

func TestChunkedBodyReaderRoundTrip(t *testing.T) {
	raw := chunkedBody("hello ", "world")
	r := newChunkedBodyReader(strings.NewReader(raw), -1)
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("got %q, want %q", got, "hello world")
	}
	if r.Remains() {
		t.Fatal("Remains should be false once terminal chunk is consumed")
	}
}

func TestChunkedBodyReaderTrailerParsedAndDropped(t *testing.T) {
	raw := "5\r\nhello\r\n0\r\nX-Checksum: abc123\r\n\r\n"
	r := newChunkedBodyReader(strings.NewReader(raw), -1)
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}
	if v := r.Trailer().Get("X-Checksum"); v != "abc123" {
		t.Fatalf("trailer = %q, want abc123", v)
	}
}

func TestChunkedBodyReaderDoesNotOverreadIntoNextRequest(t *testing.T) {
	raw := chunkedBody("abc") + "GET / HTTP/1.1\r\n\r\n"
	src := strings.NewReader(raw)
	r := newChunkedBodyReader(src, -1)
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "abc" {
		t.Fatalf("got %q, want %q", got, "abc")
	}
	rest, _ := io.ReadAll(src)
	if string(rest) != "GET / HTTP/1.1\r\n\r\n" {
		t.Fatalf("next request bytes were consumed by the body reader: %q", rest)
	}
}

func TestChunkedBodyReaderRejectsBadChunkSize(t *testing.T) {
	r := newChunkedBodyReader(strings.NewReader("zz\r\nhello\r\n"), -1)
	_, err := io.ReadAll(r)
	e := AsError(err)
	if e == nil || e.Kind != KindParseError {
		t.Fatalf("err = %v, want KindParseError", err)
	}
}

func TestChunkedBodyReaderEnforcesMaxBody(t *testing.T) {
	raw := chunkedBody("0123456789")
	r := newChunkedBodyReader(strings.NewReader(raw), 5)
	_, err := io.ReadAll(r)
	e := AsError(err)
	if e == nil || e.Status != 413 {
		t.Fatalf("err = %v, want 413", err)
	}
}

func TestNoBody(t *testing.T) {
	var buf bytes.Buffer
	n, err := NoBody.Read(buf.Bytes())
	if n != 0 || err != io.EOF {
		t.Fatalf("NoBody.Read = %d, %v, want 0, EOF", n, err)
	}
	if NoBody.Remains() {
		t.Fatal("NoBody.Remains should be false")
	}
	if err := NoBody.Drain(0); err != nil {
		t.Fatalf("NoBody.Drain = %v, want nil", err)
	}
}
