package util

import (
	"cmp"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var tokenizer = regexp.MustCompile(`(\d+|\D+)`)

type naturalToken struct {
	str   string
	num   int
	isNum bool
}

func tokenize(s string) []naturalToken {
	parts := tokenizer.FindAllString(s, -1)
	tokens := make([]naturalToken, len(parts))
	for i, p := range parts {
		if num, err := strconv.Atoi(p); err == nil {
			tokens[i] = naturalToken{num: num, isNum: true}
		} else {
			tokens[i] = naturalToken{str: strings.ToLower(p)}
		}
	}
	return tokens
}

// NaturalCompare orders strings so that embedded numbers compare by value:
// "page2" sorts before "page10".
func NaturalCompare(a, b string) int {
	ta, tb := tokenize(a), tokenize(b)
	for i := 0; i < min(len(ta), len(tb)); i++ {
		x, y := ta[i], tb[i]
		switch {
		case x.isNum && !y.isNum:
			return -1
		case !x.isNum && y.isNum:
			return 1
		case x.isNum:
			if c := cmp.Compare(x.num, y.num); c != 0 {
				return c
			}
		default:
			if c := strings.Compare(x.str, y.str); c != 0 {
				return c
			}
		}
	}
	return cmp.Compare(len(ta), len(tb))
}

// SortPageNames sorts archive entry names into reading order. Entries are
// compared by directory first, then by file name.
func SortPageNames(names []string) {
	slices.SortStableFunc(names, func(a, b string) int {
		if c := NaturalCompare(path.Dir(a), path.Dir(b)); c != 0 {
			return c
		}
		return NaturalCompare(path.Base(a), path.Base(b))
	})
}
