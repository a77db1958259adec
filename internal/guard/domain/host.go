package domain

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/probegate/probegate/internal/guard/common/utils"
)

// NormalizedHost is the comparable (hostname, host) pair derived from a
// URL-like string.
//
// Hostname never includes a port and has FQDN trailing-dot normalization
// applied. Host includes the port when one is explicitly present and is
// otherwise left untouched apart from lowercasing, so allowlist entries
// remain port-sensitive.
type NormalizedHost struct {
	Hostname string
	Host     string
	Port     string // explicit port component, empty when absent
	Scheme   string
}

// schemePrefix detects whether a raw string already carries a scheme.
var schemePrefix = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)

// SplitHostPair canonicalizes a URL-like string into a NormalizedHost.
//
// Strings without a scheme get "http://" prepended before parsing; the
// result depends only on host/hostname, never on the scheme, so the default
// is comparison-purposes-only. Returns ErrInvalidURL when the string cannot
// be parsed or yields an empty hostname. Callers must treat that as
// "cannot evaluate, allow and log" rather than propagating a failure.
func SplitHostPair(raw string) (NormalizedHost, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return NormalizedHost{}, fmt.Errorf("%w: empty input", ErrInvalidURL)
	}
	if !schemePrefix.MatchString(s) {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return NormalizedHost{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	hostname := utils.CanonicalHostName(u.Hostname())
	if hostname == "" {
		return NormalizedHost{}, fmt.Errorf("%w: no hostname in %q", ErrInvalidURL, raw)
	}
	return NormalizedHost{
		Hostname: hostname,
		Host:     strings.ToLower(u.Host),
		Port:     u.Port(),
		Scheme:   strings.ToLower(u.Scheme),
	}, nil
}

// EffectivePort returns the explicit port when present, otherwise the
// well-known default for the scheme. Used when recording blocked ports so a
// portless probe like "http://192.168.1.1/" still lands in the ledger.
func (n NormalizedHost) EffectivePort() string {
	if n.Port != "" {
		return n.Port
	}
	switch n.Scheme {
	case "https", "wss":
		return "443"
	case "ftp":
		return "21"
	case "ftps":
		return "990"
	default:
		return "80"
	}
}
