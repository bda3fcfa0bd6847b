package relay

import "testing"

func TestIsHTTPSuccess(t *testing.T) {
	cases := map[string]bool{
		"HTTP/1.1 200 Connection established": true,
		"HTTP/1.0 200 OK":                     true,
		"HTTP/1.1 407 Proxy Authentication Required": false,
		"HTTP/1.1 502 Bad Gateway":                   false,
		"garbage":                                    false,
	}
	for line, want := range cases {
		if got := isHTTPSuccess(line); got != want {
			t.Errorf("isHTTPSuccess(%q) = %v, want %v", line, got, want)
		}
	}
}

func TestBasicAuth(t *testing.T) {
	got := basicAuth("alice", "secret")
	if got != "YWxpY2U6c2VjcmV0" {
		t.Fatalf("basicAuth = %q", got)
	}
}
