package domain

import (
	"errors"
	"testing"
)

func TestSplitHostPair_WithScheme(t *testing.T) {
	n, err := SplitHostPair("https://Example.COM.:8443/path?q=1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Hostname != "example.com" {
		t.Errorf("hostname = %q, want %q", n.Hostname, "example.com")
	}
	if n.Host != "example.com.:8443" {
		t.Errorf("host = %q, want %q", n.Host, "example.com.:8443")
	}
	if n.Port != "8443" {
		t.Errorf("port = %q, want %q", n.Port, "8443")
	}
	if n.Scheme != "https" {
		t.Errorf("scheme = %q, want %q", n.Scheme, "https")
	}
}

func TestSplitHostPair_DefaultScheme(t *testing.T) {
	n, err := SplitHostPair("example.com:8080")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Hostname != "example.com" || n.Host != "example.com:8080" {
		t.Errorf("unexpected pair: %+v", n)
	}
	if n.Scheme != "http" {
		t.Errorf("default scheme = %q, want http", n.Scheme)
	}
}

func TestSplitHostPair_TrailingDot(t *testing.T) {
	n, err := SplitHostPair("http://localhost./")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Hostname != "localhost" {
		t.Errorf("hostname = %q, want localhost", n.Hostname)
	}

	plain, err := SplitHostPair("http://localhost/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Hostname != plain.Hostname {
		t.Errorf("%q should compare equal to %q after FQDN normalization", n.Hostname, plain.Hostname)
	}
}

func TestSplitHostPair_Idempotent(t *testing.T) {
	n, err := SplitHostPair("HTTPS://Sub.Example.Com.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	again, err := SplitHostPair(n.Scheme + "://" + n.Host)
	if err != nil {
		t.Fatalf("unexpected error on reparse: %v", err)
	}
	if again.Hostname != n.Hostname {
		t.Errorf("normalization not idempotent: %q != %q", again.Hostname, n.Hostname)
	}
}

func TestSplitHostPair_Invalid(t *testing.T) {
	cases := []string{"", "   ", "http://", "://nope", "http://%zz"}
	for _, raw := range cases {
		_, err := SplitHostPair(raw)
		if err == nil {
			t.Errorf("SplitHostPair(%q): expected error", raw)
			continue
		}
		if !errors.Is(err, ErrInvalidURL) {
			t.Errorf("SplitHostPair(%q): error %v is not ErrInvalidURL", raw, err)
		}
	}
}

func TestNormalizedHost_EffectivePort(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"http://192.168.1.1:8080/", "8080"},
		{"http://192.168.1.1/", "80"},
		{"https://192.168.1.1/", "443"},
		{"wss://192.168.1.1/", "443"},
		{"ftp://192.168.1.1/", "21"},
		{"ftps://192.168.1.1/", "990"},
	}
	for _, c := range cases {
		n, err := SplitHostPair(c.raw)
		if err != nil {
			t.Fatalf("SplitHostPair(%q): %v", c.raw, err)
		}
		if got := n.EffectivePort(); got != c.want {
			t.Errorf("EffectivePort(%q) = %q, want %q", c.raw, got, c.want)
		}
	}
}
