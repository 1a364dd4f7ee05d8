package servicebus

import (
	"regexp"
	"strings"
)

// MatchAll is the pattern that selects every destination queue.
// It is also the pattern used when a send does not name one.
const MatchAll = "*"

// Pattern is a compiled queue-name glob.
//
// Syntax:
//   - `*` matches any run of characters, including none
//   - `?` matches exactly one character
//   - every other character matches itself
//
// Matching is anchored and case-insensitive, so `orders*` matches `Orders.EU`
// but not `eu.orders`. A Pattern is immutable and safe for concurrent use.
type Pattern struct {
	source string
	re     *regexp.Regexp
}

// CompilePattern compiles a glob into a reusable Pattern.
func CompilePattern(pattern string) (*Pattern, error) {
	var b strings.Builder
	b.WriteString("(?is)^")
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

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeValidation, "invalid pattern: "+pattern, err)
	}

	return &Pattern{source: pattern, re: re}, nil
}

// Match reports whether name matches the whole pattern.
func (p *Pattern) Match(name string) bool {
	if p.source == MatchAll {
		return true
	}
	return p.re.MatchString(name)
}

// String returns the glob the pattern was compiled from.
func (p *Pattern) String() string {
	return p.source
}

// Match reports whether name matches pattern.
// The MatchAll pattern short-circuits without compiling anything.
func Match(name, pattern string) bool {
	if pattern == MatchAll {
		return true
	}

	p, err := CompilePattern(pattern)
	if err != nil {
		return false
	}
	return p.Match(name)
}

// normalizePattern maps a blank pattern to MatchAll.
func normalizePattern(pattern string) string {
	if strings.TrimSpace(pattern) == "" {
		return MatchAll
	}
	return pattern
}
