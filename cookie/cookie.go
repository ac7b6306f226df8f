// Package cookie implements RFC 6265 Cookie/Set-Cookie wire syntax: parsing
// request "Cookie" headers and response "Set-Cookie" headers, and
// serializing a Cookie back to wire form. Jar/policy concerns (domain
// matching, persistence, eviction) are out of scope per spec.md §1 — this
// package only implements the "ancillary" parsing/serialization spec.md
// §4.7 calls for.
package cookie

import (
	"strconv"
	"strings"
	"time"
)

// TimeFormat is the wire format for the Expires attribute.
const TimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// Cookie represents one cookie, as parsed from Cookie/Set-Cookie or as
// built by a handler for serialization into Set-Cookie.
type Cookie struct {
	Name  string
	Value string

	Path       string
	Domain     string
	Expires    time.Time
	RawExpires string

	// MaxAge == 0 means no Max-Age attribute. MaxAge < 0 means "delete
	// now" (serialized as Max-Age=0). MaxAge > 0 is seconds from now.
	MaxAge   int
	Secure   bool
	HttpOnly bool
	SameSite string // "", "Strict", "Lax", "None" — generic, not validated

	Raw      string
	Unparsed []string
}

// ParseRequestCookies parses every "Cookie" header value in lines,
// returning every name=value pair found. If filter is non-empty, only
// cookies with that name are returned.
func ParseRequestCookies(lines []string, filter string) []*Cookie {
	var result []*Cookie
	for _, line := range lines {
		parts := strings.Split(strings.TrimSpace(line), ";")
		if len(parts) == 1 && parts[0] == "" {
			continue
		}
		for i := range parts {
			part := strings.TrimSpace(parts[i])
			if part == "" {
				continue
			}
			name, val := part, ""
			if j := strings.IndexByte(part, '='); j >= 0 {
				name, val = part[:j], part[j+1:]
			}
			if !isCookieNameValid(name) {
				continue
			}
			if filter != "" && filter != name {
				continue
			}
			val, ok := parseCookieValue(val, true)
			if !ok {
				continue
			}
			result = append(result, &Cookie{Name: name, Value: val})
		}
	}
	return result
}

// ParseSetCookies parses every "Set-Cookie" header value in lines.
func ParseSetCookies(lines []string) []*Cookie {
	cookies := make([]*Cookie, 0, len(lines))
	for _, line := range lines {
		parts := strings.Split(strings.TrimSpace(line), ";")
		if len(parts) == 1 && parts[0] == "" {
			continue
		}
		parts[0] = strings.TrimSpace(parts[0])
		j := strings.IndexByte(parts[0], '=')
		if j < 0 {
			continue
		}
		name, value := parts[0][:j], parts[0][j+1:]
		if !isCookieNameValid(name) {
			continue
		}
		value, ok := parseCookieValue(value, true)
		if !ok {
			continue
		}
		c := &Cookie{Name: name, Value: value, Raw: line}
		for i := 1; i < len(parts); i++ {
			part := strings.TrimSpace(parts[i])
			if part == "" {
				continue
			}
			attr, val := part, ""
			if j := strings.IndexByte(part, '='); j >= 0 {
				attr, val = part[:j], part[j+1:]
			}
			lowerAttr := strings.ToLower(attr)
			val, ok = parseCookieValue(val, false)
			if !ok {
				c.Unparsed = append(c.Unparsed, part)
				continue
			}
			switch lowerAttr {
			case "secure":
				c.Secure = true
				continue
			case "httponly":
				c.HttpOnly = true
				continue
			case "domain":
				c.Domain = val
				continue
			case "samesite":
				c.SameSite = val
				continue
			case "max-age":
				secs, err := strconv.Atoi(val)
				if err != nil || (secs != 0 && len(val) > 0 && val[0] == '0') {
					break
				}
				if secs <= 0 {
					secs = -1
				}
				c.MaxAge = secs
				continue
			case "expires":
				c.RawExpires = val
				exptime, err := time.Parse(time.RFC1123, val)
				if err != nil {
					exptime, err = time.Parse("Mon, 02-Jan-2006 15:04:05 MST", val)
					if err != nil {
						c.Expires = time.Time{}
						break
					}
				}
				c.Expires = exptime.UTC()
				continue
			case "path":
				c.Path = val
				continue
			}
			c.Unparsed = append(c.Unparsed, part)
		}
		cookies = append(cookies, c)
	}
	return cookies
}

// parseCookieValue strips a matched pair of surrounding double quotes (if
// allowDoubleQuote) and validates every remaining byte, tolerating
// unmatched quotes (a lone leading or trailing quote is dropped) and
// preserving base64 padding by design — it never strips a lone trailing
// '='.
func parseCookieValue(raw string, allowDoubleQuote bool) (string, bool) {
	if allowDoubleQuote {
		if len(raw) > 1 && raw[0] == '"' && raw[len(raw)-1] == '"' {
			raw = raw[1 : len(raw)-1]
		} else {
			raw = strings.TrimPrefix(strings.TrimSuffix(raw, `"`), `"`)
		}
	}
	for i := 0; i < len(raw); i++ {
		if !validCookieValueByte(raw[i]) {
			return "", false
		}
	}
	return raw, true
}

func validCookieValueByte(b byte) bool {
	return 0x20 <= b && b < 0x7f && b != '"' && b != ';' && b != '\\'
}

func isCookieNameValid(raw string) bool {
	if raw == "" {
		return false
	}
	for _, r := range raw {
		if !isTokenRune(r) {
			return false
		}
	}
	return true
}
