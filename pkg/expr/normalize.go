package expr

import (
	"regexp"
	"sort"
	"strings"
)

var returnWord = regexp.MustCompile(`\breturn\b`)

// HasReturn reports whether src already contains a return statement.
func HasReturn(src string) bool {
	return returnWord.MatchString(src)
}

// AddExplicitReturn turns a binding snippet into a chunk that returns the
// value of its final statement.
//
// Sources that already mention return are left untouched. Otherwise runs of
// ';' outside protected parenthesis groups become line breaks, newlines inside
// protected groups are dropped, one leading and one trailing newline are
// trimmed and "return " is placed after the last newline. A snippet with no
// newline at all is prefixed with "return ".
func AddExplicitReturn(src string) string {
	if HasReturn(src) {
		return src
	}

	groups := parenGroups(src)
	protected := func(i int) bool {
		for _, g := range groups {
			if i > g[0] && i < g[1] {
				return true
			}
		}
		return false
	}

	var b strings.Builder
	b.Grow(len(src) + 8)
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '\n' && protected(i):
			continue
		case c == ';' && !protected(i):
			for i+1 < len(src) && src[i+1] == ';' && !protected(i+1) {
				i++
			}
			b.WriteString(";\n")
		default:
			b.WriteByte(c)
		}
	}

	out := strings.TrimPrefix(b.String(), "\n")
	out = strings.TrimSuffix(out, "\n")

	last := strings.LastIndexByte(out, '\n')
	if last < 0 {
		return "return " + out
	}
	return out[:last+1] + "return " + out[last+1:]
}

type paren struct {
	open  bool
	index int
}

// parenGroups pairs parentheses by repeatedly removing the first open paren
// that is immediately followed by a close paren in the remaining sequence.
// Each removed pair is returned as [open, close] byte offsets. Unmatched
// parens are ignored.
func parenGroups(src string) [][2]int {
	var opens, closes []int
	for i := 0; i < len(src); i++ {
		switch src[i] {
		case '(':
			opens = append(opens, i)
		case ')':
			closes = append(closes, i)
		}
	}
	if len(opens) == 0 {
		return nil
	}
	if len(closes) > len(opens) {
		closes = closes[:len(opens)]
	}

	parens := make([]paren, 0, len(opens)+len(closes))
	for _, o := range opens {
		parens = append(parens, paren{open: true, index: o})
	}
	for _, c := range closes {
		parens = append(parens, paren{index: c})
	}
	sort.Slice(parens, func(i, j int) bool { return parens[i].index < parens[j].index })

	var groups [][2]int
	for {
		found := false
		for j := 0; j+1 < len(parens); j++ {
			if parens[j].open && !parens[j+1].open {
				groups = append(groups, [2]int{parens[j].index, parens[j+1].index})
				parens = append(parens[:j], parens[j+2:]...)
				found = true
				break
			}
		}
		if !found {
			return groups
		}
	}
}
