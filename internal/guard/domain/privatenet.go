package domain

import "regexp"

// privateTarget matches a raw request string whose destination is a
// loopback, RFC1918, link-local, or localhost target over a scannable
// scheme. The match is anchored at the start only, mirroring the behavior
// this classifier was observed with: the optional port group constrains
// nothing past the digits it consumes.
//
// The port fragment ([789]|1?[0-9]{2}) is deliberately narrow (single digit
// 7-9, or a 2-3 digit run) and must not be widened to "any port"; it keeps
// false positives down on ordinary local dev servers.
//
// The 172.16.0.0/12 second octet is range-checked (16-31), never
// prefix-matched, so 172.99.x.x does not classify as private.
var privateTarget = regexp.MustCompile(`(?i)^(?:https?|wss?|ftps?)://` +
	`(?:` +
	`127\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}` +
	`|0\.0\.0\.0` +
	`|10\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}` +
	`|172\.(?:1[6-9]|2[0-9]|3[01])\.[0-9]{1,3}\.[0-9]{1,3}` +
	`|192\.168\.[0-9]{1,3}\.[0-9]{1,3}` +
	`|169\.254\.[0-9]{1,3}\.[0-9]{1,3}` +
	`|localhost` +
	`)` +
	`(?::(?:[789]|1?[0-9]{2}))?`)

// IsPrivateNetworkTarget reports whether the raw request string targets the
// private network. Pure predicate over the original string, scheme included;
// it never parses the URL and never fails.
func IsPrivateNetworkTarget(raw string) bool {
	return privateTarget.MatchString(raw)
}
