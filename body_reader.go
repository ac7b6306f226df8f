package wirehttp

import (
	"fmt"
	"io"

	"github.com/arl/wirehttp/hdr"
)

// BodyReader is the Request body's InputStream view (spec.md §4.4). Two
// variants are selected by the preamble: fixed length and chunked; NoBody
// covers the "no body" case.
type BodyReader interface {
	io.Reader

	// Drain reads and discards whatever remains of the body, enforcing
	// maxBytesToDrain as a total cap on bytes consumed by this call. It
	// returns a *Error with KindTooManyBytesToDrain if the remainder
	// would exceed that cap — the connection must then be closed rather
	// than reused (spec.md §4.4).
	Drain(maxBytesToDrain int64) error

	// Remains reports whether a future Read might still yield data —
	// i.e., EOF has not yet been observed.
	Remains() bool
}

// NoBody is the BodyReader used when neither Content-Length nor
// Transfer-Encoding: chunked was present.
var NoBody BodyReader = noBody{}

type noBody struct{}

func (noBody) Read([]byte) (int, error)   { return 0, io.EOF }
func (noBody) Drain(int64) error          { return nil }
func (noBody) Remains() bool              { return false }

// fixedBodyReader reads exactly N declared bytes from src, enforcing a
// separate, possibly larger or smaller, maxBody cap for 413 purposes
// (spec.md §4.4: "A global per-content-type max_request_body_size limits
// total bytes read; exceeding it yields 413").
type fixedBodyReader struct {
	src       io.Reader
	remaining int64
	maxBody   int64 // -1 disables
	totalRead int64
	limitHit  bool
}

func newFixedBodyReader(src io.Reader, contentLength, maxBody int64) *fixedBodyReader {
	return &fixedBodyReader{src: src, remaining: contentLength, maxBody: maxBody}
}

func (b *fixedBodyReader) Read(p []byte) (int, error) {
	if b.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.src.Read(p)
	b.remaining -= int64(n)
	b.totalRead += int64(n)
	if b.maxBody >= 0 && b.totalRead > b.maxBody {
		b.limitHit = true
		return n, preambleRejected(413, "request body exceeds max_request_body_size")
	}
	if err == nil && b.remaining == 0 {
		err = io.EOF
	}
	return n, err
}

func (b *fixedBodyReader) Remains() bool { return b.remaining > 0 && !b.limitHit }

func (b *fixedBodyReader) Drain(maxBytesToDrain int64) error {
	if b.remaining > maxBytesToDrain {
		return tooManyBytesToDrainErr()
	}
	n, err := io.CopyN(io.Discard, io.LimitReader(b.src, b.remaining), b.remaining)
	b.remaining -= n
	if err != nil && err != io.EOF {
		return socketErr(err)
	}
	return nil
}

// chunkedBodyReader implements RFC 7230 §4.1 chunked transfer decoding.
// It reads byte-precisely at each boundary (chunk-size line, chunk data,
// trailing CRLF, trailer block), pulling from src in slices sized to
// exactly what it expects next — so it never over-reads into whatever the
// client sends after the body. That property is what lets the worker's
// single pushback ring (spec.md §9) stay the only place bytes are ever
// put back; this reader never needs one of its own.
type chunkedBodyReader struct {
	src       io.Reader
	maxBody   int64
	totalRead int64
	limitHit  bool

	chunkRemaining int64
	sawFinalChunk  bool
	done           bool

	trailer *hdr.Header
}

func newChunkedBodyReader(src io.Reader, maxBody int64) *chunkedBodyReader {
	return &chunkedBodyReader{src: src, maxBody: maxBody, trailer: hdr.New()}
}

// Trailer exposes whatever trailer fields were present — parsed but
// otherwise dropped per spec.md §6 ("trailers are parsed then dropped").
func (b *chunkedBodyReader) Trailer() *hdr.Header { return b.trailer }

func (b *chunkedBodyReader) Remains() bool { return !b.done }

func (b *chunkedBodyReader) Read(p []byte) (int, error) {
	if b.done {
		return 0, io.EOF
	}
	if b.chunkRemaining == 0 {
		if err := b.nextChunkHeader(); err != nil {
			return 0, err
		}
		if b.sawFinalChunk {
			if err := b.readTrailer(); err != nil {
				return 0, err
			}
			b.done = true
			return 0, io.EOF
		}
	}
	if int64(len(p)) > b.chunkRemaining {
		p = p[:b.chunkRemaining]
	}
	n, err := io.ReadFull(b.src, p)
	b.chunkRemaining -= int64(n)
	b.totalRead += int64(n)
	if b.maxBody >= 0 && b.totalRead > b.maxBody {
		b.limitHit = true
		return n, preambleRejected(413, "request body exceeds max_request_body_size")
	}
	if err != nil {
		return n, wrap(KindClientClosed, 0, err, "reading chunk data")
	}
	if b.chunkRemaining == 0 {
		if err := b.expectCRLF(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// nextChunkHeader reads "<hex-size>[;ext...]\r\n" and, for the terminal
// zero-size chunk, sets sawFinalChunk.
func (b *chunkedBodyReader) nextChunkHeader() error {
	line, err := readCRLFLine(b.src, 64)
	if err != nil {
		return err
	}
	size, err := parseChunkSizeLine(line)
	if err != nil {
		return parseErr("ChunkSize", 0, err)
	}
	if size == 0 {
		b.sawFinalChunk = true
		return nil
	}
	b.chunkRemaining = size
	return nil
}

func (b *chunkedBodyReader) expectCRLF() error {
	var buf [2]byte
	if _, err := io.ReadFull(b.src, buf[:]); err != nil {
		return wrap(KindClientClosed, 0, err, "reading chunk terminator")
	}
	if buf[0] != '\r' || buf[1] != '\n' {
		return parseErr("ChunkCRLF", buf[1], fmt.Errorf("expected CRLF after chunk data"))
	}
	return nil
}

// readTrailer parses trailer header fields (if any) up to the final blank
// line, discarding them into b.trailer per spec.md §6.
func (b *chunkedBodyReader) readTrailer() error {
	for {
		line, err := readCRLFLine(b.src, 8192)
		if err != nil {
			return err
		}
		if len(line) == 0 {
			return nil
		}
		i := indexByte(line, ':')
		if i < 0 {
			return parseErr("TrailerField", 0, fmt.Errorf("malformed trailer field"))
		}
		name := string(line[:i])
		value := string(trimLeadingSpaces(line[i+1:]))
		b.trailer.Add(name, value)
	}
}

func (b *chunkedBodyReader) Drain(maxBytesToDrain int64) error {
	var drained int64
	buf := make([]byte, 4096)
	for !b.done {
		n, err := b.Read(buf)
		drained += int64(n)
		if drained > maxBytesToDrain {
			return tooManyBytesToDrainErr()
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return AsError(err)
		}
	}
	return nil
}

func parseChunkSizeLine(line []byte) (int64, error) {
	if i := indexByte(line, ';'); i >= 0 {
		line = line[:i] // chunk-extensions are permitted but ignored
	}
	if len(line) == 0 {
		return 0, fmt.Errorf("empty chunk size line")
	}
	var size int64
	for _, c := range line {
		var d int64
		switch {
		case c >= '0' && c <= '9':
			d = int64(c - '0')
		case c >= 'a' && c <= 'f':
			d = int64(c-'a') + 10
		case c >= 'A' && c <= 'F':
			d = int64(c-'A') + 10
		default:
			return 0, fmt.Errorf("invalid chunk size digit %q", c)
		}
		size = size*16 + d
		if size < 0 {
			return 0, fmt.Errorf("chunk size overflow")
		}
	}
	return size, nil
}

// readCRLFLine reads bytes up to (and excluding) the next CRLF, one byte
// at a time so it never consumes a byte belonging to whatever follows the
// line, and enforces a maximum line length to bound a malicious
// chunk-extension or trailer field from consuming unbounded memory.
func readCRLFLine(r io.Reader, maxLen int) ([]byte, error) {
	var line []byte
	for {
		b, err := readByte(r)
		if err != nil {
			return nil, wrap(KindClientClosed, 0, err, "reading line")
		}
		if b == '\r' {
			nxt, err := readByte(r)
			if err != nil {
				return nil, wrap(KindClientClosed, 0, err, "reading line terminator")
			}
			if nxt != '\n' {
				return nil, parseErr("Line", nxt, fmt.Errorf("expected LF after CR"))
			}
			return line, nil
		}
		line = append(line, b)
		if len(line) > maxLen {
			return nil, preambleRejected(431, "line exceeds maximum length")
		}
	}
}

func readByte(r io.Reader) (byte, error) {
	var buf [1]byte
	_, err := io.ReadFull(r, buf[:])
	return buf[0], err
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

func trimLeadingSpaces(b []byte) []byte {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t') {
		i++
	}
	return b[i:]
}
