package hdr

import "testing"

func TestParseParameterizedValueContentType(t *testing.T) {
	value, params := ParseParameterizedValue(`multipart/form-data; boundary=----WebKitBoundary`)
	if value != "multipart/form-data" {
		t.Fatalf("value = %q", value)
	}
	if params["boundary"] != "----WebKitBoundary" {
		t.Fatalf("boundary = %q", params["boundary"])
	}
}

func TestParseParameterizedValueQuotedSemicolonNotSplit(t *testing.T) {
	value, params := ParseParameterizedValue(`attachment; filename="a; b.txt"`)
	if value != "attachment" {
		t.Fatalf("value = %q", value)
	}
	if params["filename"] != "a; b.txt" {
		t.Fatalf("filename = %q, want the quoted semicolon preserved", params["filename"])
	}
}

func TestParseParameterizedValueExtendedParamPreferred(t *testing.T) {
	value, params := ParseParameterizedValue(`attachment; filename="fallback.txt"; filename*=UTF-8''%e2%82%ac%20rates.txt`)
	if value != "attachment" {
		t.Fatalf("value = %q", value)
	}
	if want := "€ rates.txt"; params["filename"] != want {
		t.Fatalf("filename = %q, want %q (RFC 5987 form preferred)", params["filename"], want)
	}
}

func TestParseParameterizedValueNoParams(t *testing.T) {
	value, params := ParseParameterizedValue("text/plain")
	if value != "text/plain" {
		t.Fatalf("value = %q", value)
	}
	if params != nil {
		t.Fatalf("params = %v, want nil", params)
	}
}

func TestParseParameterizedValueCaseInsensitiveParamNames(t *testing.T) {
	_, params := ParseParameterizedValue(`text/html; Charset=UTF-8`)
	if params["charset"] != "UTF-8" {
		t.Fatalf("charset = %q", params["charset"])
	}
}
