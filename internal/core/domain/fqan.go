package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// FQANs is an ordered list of fully qualified attribute names, e.g.
// "/atlas/higgs/Role=production". The list is sourced from the host
// framework and never mutated, only matched and forwarded.
type FQANs []string

// Match reports whether any entry matches pattern under glob semantics:
// '*' and '?' wildcards plus bracket classes, case sensitive. '*' matches
// across '/' and backslash is an ordinary character, as with fnmatch and
// no FNM_PATHNAME/escape flags, so "/vo/*" covers subgroup FQANs too.
// An empty list never matches. A malformed pattern is an error.
func (f FQANs) Match(pattern string) (bool, error) {
	re, err := compileGlob(pattern)
	if err != nil {
		return false, err
	}
	for _, fqan := range f {
		if re.MatchString(fqan) {
			return true, nil
		}
	}
	return false, nil
}

// compileGlob translates a glob pattern into an anchored regular expression.
func compileGlob(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString(`\A`)
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '*':
			b.WriteString(`.*`)
		case '?':
			b.WriteString(`.`)
		case '[':
			end := classEnd(pattern, i)
			if end < 0 {
				// Unterminated class: '[' is a literal, as fnmatch does.
				b.WriteString(regexp.QuoteMeta("["))
				continue
			}
			class := pattern[i+1 : end]
			negated := false
			if len(class) > 0 && (class[0] == '!' || class[0] == '^') {
				negated = true
				class = class[1:]
			}
			b.WriteByte('[')
			if negated {
				b.WriteByte('^')
			}
			for k := 0; k < len(class); k++ {
				switch cc := class[k]; cc {
				case '\\', ']', '^':
					b.WriteByte('\\')
					b.WriteByte(cc)
				default:
					b.WriteByte(cc)
				}
			}
			b.WriteByte(']')
			i = end
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString(`\z`)
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("malformed glob pattern %q: %w", pattern, err)
	}
	return re, nil
}

// classEnd returns the index of the ']' closing the bracket class opened at
// start, or -1. A ']' in first position (after optional negation) is a class
// member, not the terminator.
func classEnd(pattern string, start int) int {
	j := start + 1
	if j < len(pattern) && (pattern[j] == '!' || pattern[j] == '^') {
		j++
	}
	if j < len(pattern) && pattern[j] == ']' {
		j++
	}
	for j < len(pattern) {
		if pattern[j] == ']' {
			return j
		}
		j++
	}
	return -1
}
