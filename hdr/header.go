// Package hdr implements the request/response header multimap.
//
// Unlike net/http's Header, keys are not canonicalized on write: the
// original casing supplied by the wire (or by the handler) is preserved
// for write-back, while all lookups are case-insensitive. This mirrors
// spec.md's Request/Response data model: "headers (case-insensitive
// multimap preserving original casing for write-back)".
package hdr

import (
	"io"
	"strings"
)

// field is one name/value pair as it arrived (or as a handler set it).
type field struct {
	name  string
	value string
}

// Header is an ordered, case-insensitive multimap of header fields.
// The zero value is not usable; use New.
type Header struct {
	fields []field
	index  map[string][]int // lower(name) -> indices into fields, in order
}

// New returns an empty Header ready for use.
func New() *Header {
	return &Header{index: make(map[string][]int)}
}

func lower(s string) string {
	return strings.ToLower(s)
}

func (h *Header) ensure() {
	if h.index == nil {
		h.index = make(map[string][]int)
	}
}

// Add appends a value under name, preserving name's original casing.
func (h *Header) Add(name, value string) {
	h.ensure()
	k := lower(name)
	h.index[k] = append(h.index[k], len(h.fields))
	h.fields = append(h.fields, field{name: name, value: value})
}

// Set replaces all values under name with a single value, using name's
// casing for the stored field. Any previously stored entries for the
// same case-insensitive name are removed (not just masked).
func (h *Header) Set(name, value string) {
	h.Del(name)
	h.Add(name, value)
}

// Get returns the first value stored under name, or "" if absent.
func (h *Header) Get(name string) string {
	if h == nil {
		return ""
	}
	idx, ok := h.index[lower(name)]
	if !ok || len(idx) == 0 {
		return ""
	}
	return h.fields[idx[0]].value
}

// Has reports whether any value is stored under name.
func (h *Header) Has(name string) bool {
	if h == nil {
		return false
	}
	idx, ok := h.index[lower(name)]
	return ok && len(idx) > 0
}

// Values returns all values stored under name, in insertion order.
func (h *Header) Values(name string) []string {
	if h == nil {
		return nil
	}
	idx, ok := h.index[lower(name)]
	if !ok || len(idx) == 0 {
		return nil
	}
	out := make([]string, len(idx))
	for i, fi := range idx {
		out[i] = h.fields[fi].value
	}
	return out
}

// Count returns the number of values stored under name.
func (h *Header) Count(name string) int {
	return len(h.index[lower(name)])
}

// Del removes all values stored under name.
func (h *Header) Del(name string) {
	if h == nil || h.index == nil {
		return
	}
	k := lower(name)
	idx, ok := h.index[k]
	if !ok {
		return
	}
	remove := make(map[int]bool, len(idx))
	for _, i := range idx {
		remove[i] = true
	}
	newFields := h.fields[:0]
	newIndex := make(map[string][]int, len(h.index))
	for i, f := range h.fields {
		if remove[i] {
			continue
		}
		fk := lower(f.name)
		newIndex[fk] = append(newIndex[fk], len(newFields))
		newFields = append(newFields, f)
	}
	h.fields = newFields
	h.index = newIndex
}

// Names returns the distinct header names in first-seen order, each with
// the casing of its first occurrence.
func (h *Header) Names() []string {
	if h == nil {
		return nil
	}
	seen := make(map[string]bool, len(h.fields))
	out := make([]string, 0, len(h.fields))
	for _, f := range h.fields {
		k := lower(f.name)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, f.name)
	}
	return out
}

// Len returns the total number of stored field entries.
func (h *Header) Len() int {
	if h == nil {
		return 0
	}
	return len(h.fields)
}

// Clone returns a deep copy of h.
func (h *Header) Clone() *Header {
	c := New()
	if h == nil {
		return c
	}
	c.fields = make([]field, len(h.fields))
	copy(c.fields, h.fields)
	for k, v := range h.index {
		idx := make([]int, len(v))
		copy(idx, v)
		c.index[k] = idx
	}
	return c
}

// Range calls fn for every stored field in insertion order. Iteration
// stops if fn returns false.
func (h *Header) Range(fn func(name, value string) bool) {
	if h == nil {
		return
	}
	for _, f := range h.fields {
		if !fn(f.name, f.value) {
			return
		}
	}
}

// WriteTo serializes every field as "Name: Value\r\n" preserving stored
// casing, one line per value (spec.md §4.5 header emission rules).
func (h *Header) WriteTo(w io.Writer) (int64, error) {
	if h == nil {
		return 0, nil
	}
	var n int64
	for _, f := range h.fields {
		wn, err := io.WriteString(w, f.name+": "+stripCRLF(f.value)+"\r\n")
		n += int64(wn)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func stripCRLF(s string) string {
	if strings.IndexByte(s, '\r') < 0 && strings.IndexByte(s, '\n') < 0 {
		return s
	}
	r := strings.NewReplacer("\r", " ", "\n", " ")
	return r.Replace(s)
}
