// Package security implements the pattern matching used to decide whether a
// request's Origin or Host header is allowed, backing CORS and trusted-host
// enforcement.
package security

import (
	"fmt"
	"regexp"
	"strings"
)

// Policy is a compiled set of patterns. Patterns come in three forms:
//   - "*"              matches anything
//   - "re:<expr>"      matches via regexp.MatchString
//   - literal / "*.foo.com" wildcard-prefixed literal; the wildcard form
//     matches any value ending in ".foo.com", at any subdomain depth, and
//     does not match the bare "foo.com"
type Policy struct {
	allowAll bool
	exact    map[string]struct{}
	wildcard []string // suffixes, e.g. ".example.com" for "*.example.com"
	regexes  []*regexp.Regexp
}

// Compile builds a Policy from raw pattern strings.
func Compile(patterns []string) (*Policy, error) {
	p := &Policy{exact: map[string]struct{}{}}

	for _, raw := range patterns {
		pat := strings.TrimSpace(raw)
		if pat == "" {
			continue
		}
		switch {
		case pat == "*":
			p.allowAll = true
		case strings.HasPrefix(pat, "re:"):
			expr := strings.TrimPrefix(pat, "re:")
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("compiling pattern %q: %w", raw, err)
			}
			p.regexes = append(p.regexes, re)
		case strings.HasPrefix(pat, "*."):
			p.wildcard = append(p.wildcard, strings.TrimPrefix(pat, "*"))
		default:
			p.exact[pat] = struct{}{}
		}
	}

	return p, nil
}

// Allows reports whether value matches the policy.
func (p *Policy) Allows(value string) bool {
	if p == nil {
		return false
	}
	if p.allowAll {
		return true
	}
	if _, ok := p.exact[value]; ok {
		return true
	}
	for _, suffix := range p.wildcard {
		if strings.HasSuffix(value, suffix) {
			return true
		}
	}
	for _, re := range p.regexes {
		if re.MatchString(value) {
			return true
		}
	}
	return false
}
