package pathkey

import (
	"unicode"
)

// Match reports whether name matches the find pattern.
//
// `*` matches any run of characters and `?` exactly one.
// The DOS wildcards sent by the driver are treated the same
// way: `<` as `*`, `>` as `?` and `"` as a literal dot. An
// empty pattern matches everything.
func Match(pattern, name string, ignoreCase bool) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	p := []rune(pattern)
	for i, c := range p {
		switch c {
		case '<':
			p[i] = '*'
		case '>':
			p[i] = '?'
		case '"':
			p[i] = '.'
		}
	}
	n := []rune(name)
	if ignoreCase {
		for i := range p {
			p[i] = unicode.ToUpper(p[i])
		}
		for i := range n {
			n[i] = unicode.ToUpper(n[i])
		}
	}
	return matchRunes(p, n)
}

// matchRunes is the usual greedy star matcher with a single
// backtrack point, which is linear in practice.
func matchRunes(p, n []rune) bool {
	pi, ni := 0, 0
	star, mark := -1, 0
	for ni < len(n) {
		switch {
		case pi < len(p) && (p[pi] == '?' || p[pi] == n[ni]):
			pi++
			ni++
		case pi < len(p) && p[pi] == '*':
			star, mark = pi, ni
			pi++
		case star >= 0:
			pi = star + 1
			mark++
			ni = mark
		default:
			return false
		}
	}
	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}
