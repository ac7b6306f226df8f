// Package ringbuf implements the bounded one-slot pushback buffer spec.md
// §9 calls for: "Pushback as a bounded one-slot ring rather than a general
// deque: the parser only ever needs to put back the tail of its own read."
package ringbuf

import (
	"errors"
	"io"
)

// ErrPushbackFull is returned by Unread when a region is already pending.
var ErrPushbackFull = errors.New("ringbuf: pushback slot already occupied")

// Pushback wraps an io.Reader, delivering at most one previously-unread
// region ahead of the wrapped reader's bytes on the next Read. This is the
// "pushback input stream" of spec.md §4.3/§4.4: bytes read past a logical
// boundary (end of preamble, end of a chunked body) flow transparently to
// the next reader in line.
type Pushback struct {
	src     io.Reader
	pending []byte
	off     int
}

// New wraps src for pushback-capable reading.
func New(src io.Reader) *Pushback {
	return &Pushback{src: src}
}

// Reset discards any pending pushback region and rebinds the source. Used
// when a worker buffer is recycled across keep-alive iterations.
func (p *Pushback) Reset(src io.Reader) {
	p.src = src
	p.pending = nil
	p.off = 0
}

// Unread pushes back, so that the next Read calls return them before any
// further bytes are read from the underlying source. It is the caller's
// responsibility to pass a slice it will not mutate afterward; New copies
// are made here to make that safe regardless.
func (p *Pushback) Unread(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if p.off < len(p.pending) {
		return ErrPushbackFull
	}
	p.pending = append([]byte(nil), b...)
	p.off = 0
	return nil
}

// Buffered reports how many pushed-back bytes remain unread.
func (p *Pushback) Buffered() int {
	return len(p.pending) - p.off
}

func (p *Pushback) Read(b []byte) (int, error) {
	if p.off < len(p.pending) {
		n := copy(b, p.pending[p.off:])
		p.off += n
		if p.off >= len(p.pending) {
			p.pending = nil
			p.off = 0
		}
		return n, nil
	}
	return p.src.Read(b)
}
