package cookie

import (
	"net"
	"strconv"
	"strings"
	"time"
)

// String serializes c for use in a Set-Cookie response header (or, if only
// Name/Value are set, a Cookie request header). Returns "" if c is nil or
// its name is invalid.
func (c *Cookie) String() string {
	if c == nil || !isCookieNameValid(c.Name) {
		return ""
	}
	var b strings.Builder
	b.WriteString(sanitizeCookieName(c.Name))
	b.WriteByte('=')
	b.WriteString(sanitizeCookieValue(c.Value))

	if len(c.Path) > 0 {
		b.WriteString("; Path=")
		b.WriteString(sanitizeCookiePath(c.Path))
	}
	if len(c.Domain) > 0 {
		if validCookieDomain(c.Domain) {
			d := c.Domain
			if d[0] == '.' {
				d = d[1:]
			}
			b.WriteString("; Domain=")
			b.WriteString(d)
		}
		// An invalid Domain is dropped silently, turning the cookie
		// host-only, rather than sent malformed.
	}
	if validCookieExpires(c.Expires) {
		b.WriteString("; Expires=")
		b.WriteString(c.Expires.UTC().Format(TimeFormat))
	}
	if c.MaxAge > 0 {
		b.WriteString("; Max-Age=")
		b.WriteString(strconv.Itoa(c.MaxAge))
	} else if c.MaxAge < 0 {
		b.WriteString("; Max-Age=0")
	}
	if c.HttpOnly {
		b.WriteString("; HttpOnly")
	}
	if c.Secure {
		b.WriteString("; Secure")
	}
	if c.SameSite != "" {
		b.WriteString("; SameSite=")
		b.WriteString(c.SameSite)
	}
	return b.String()
}

func isTokenRune(r rune) bool {
	return r < 0x80 && tokenTable[byte(r)]
}

var tokenTable = func() [128]bool {
	var t [128]bool
	const separators = "()<>@,;:\\\"/[]?={} \t"
	for c := byte(0x21); c < 0x7f; c++ {
		t[c] = true
	}
	for i := 0; i < len(separators); i++ {
		t[separators[i]] = false
	}
	return t
}()

func sanitizeCookieName(n string) string {
	return strings.NewReplacer("\n", "-", "\r", "-", ";", "-").Replace(n)
}

// sanitizeCookieValue drops any byte that parseCookieValue would reject,
// rather than erroring — serialization is best-effort the way the teacher's
// String() method is: a caller-constructed Cookie is never allowed to
// corrupt the header line it's appended to.
func sanitizeCookieValue(v string) string {
	v = sanitizeOrWarn(v, validCookieValueByte)
	if len(v) == 0 {
		return v
	}
	if strings.ContainsAny(v, " ,") {
		return `"` + v + `"`
	}
	return v
}

func sanitizeOrWarn(v string, valid func(byte) bool) string {
	ok := true
	for i := 0; i < len(v); i++ {
		if valid(v[i]) {
			continue
		}
		ok = false
		break
	}
	if ok {
		return v
	}
	buf := make([]byte, 0, len(v))
	for i := 0; i < len(v); i++ {
		if b := v[i]; valid(b) {
			buf = append(buf, b)
		}
	}
	return string(buf)
}

func sanitizeCookiePath(v string) string {
	return sanitizeOrWarn(v, validCookiePathByte)
}

func validCookiePathByte(b byte) bool {
	return 0x20 <= b && b < 0x7f && b != ';'
}

func validCookieDomain(v string) bool {
	if isCookieDomainName(v) {
		return true
	}
	if net.ParseIP(v) != nil && !strings.Contains(v, ":") {
		return true
	}
	return false
}

func isCookieDomainName(s string) bool {
	if len(s) == 0 {
		return false
	}
	if len(s) > 255 {
		return false
	}

	if s[0] == '.' {
		s = s[1:]
	}
	last := byte('.')
	ok := false
	partlen := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z':
			ok = true
			partlen++
		case '0' <= c && c <= '9':
			partlen++
		case c == '-':
			if last == '.' {
				return false
			}
			partlen++
		case c == '.':
			if last == '.' || last == '-' {
				return false
			}
			if partlen > 63 || partlen == 0 {
				return false
			}
			partlen = 0
		}
		last = c
	}
	if last == '-' || partlen > 63 {
		return false
	}
	return ok
}

func validCookieExpires(t time.Time) bool {
	return !t.IsZero()
}
