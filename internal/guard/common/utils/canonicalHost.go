package utils

import "strings"

// CanonicalHostName returns a hostname in canonical form:
// - Lowercased
// - Trimmed of surrounding whitespace
// - At most one trailing dot removed (FQDN normalization), so
//   "localhost." compares equal to "localhost".
func CanonicalHostName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ToLower(name)
	name = strings.TrimSuffix(name, ".")
	return name
}
