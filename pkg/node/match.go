package node

import (
	"regexp"
	"strings"
)

// KeyMatchMode selects how a property-name pattern is interpreted.
type KeyMatchMode string

const (
	KeyMatchExact    KeyMatchMode = "exact"
	KeyMatchWildcard KeyMatchMode = "wildcard"
	KeyMatchRegex    KeyMatchMode = "regex"
	KeyMatchPrefix   KeyMatchMode = "prefix"
	KeyMatchSuffix   KeyMatchMode = "suffix"
)

// MatchKeys returns the property names of n that match pattern under the
// given mode, in insertion order. An invalid regex matches nothing.
func (n *Node) MatchKeys(pattern string, mode KeyMatchMode) []string {
	if n == nil {
		return nil
	}
	var out []string
	for _, k := range n.keys {
		if MatchName(k, pattern, mode) {
			out = append(out, k)
		}
	}
	return out
}

// MatchName reports whether name matches pattern under the given mode.
func MatchName(name, pattern string, mode KeyMatchMode) bool {
	switch mode {
	case KeyMatchExact, "":
		return name == pattern
	case KeyMatchWildcard:
		return WildcardMatch(pattern, name)
	case KeyMatchRegex:
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(name)
	case KeyMatchPrefix:
		return strings.HasPrefix(name, pattern)
	case KeyMatchSuffix:
		return strings.HasSuffix(name, pattern)
	}
	return false
}

// WildcardMatch matches s against a glob-style pattern where '*' matches any
// run of characters and '?' matches a single character.
func WildcardMatch(pattern, s string) bool {
	if pattern == "*" {
		return true
	}
	re, err := regexp.Compile(wildcardToRegexp(pattern))
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

func wildcardToRegexp(pattern string) string {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return b.String()
}
