package callnumber

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// padWidth is the width the first numeric run is zero-padded to.
const padWidth = 9

var (
	separators   = regexp.MustCompile(`[^\p{L}\p{N}.]+`)
	letterDigit  = regexp.MustCompile(`(\p{L})(\p{N})`)
	digitLetter  = regexp.MustCompile(`(\p{N})(\p{L})`)
	firstNumeric = regexp.MustCompile(`\p{N}+`)
)

// DefaultPrefixes are call number prefixes that do not take part in shelf order.
var DefaultPrefixes = []string{
	"++", "+", "oversize", "folio", "thesis", "archives", "rare", "ref", "reference",
	"new & noteworthy", "new and noteworthy", "micro", "microfilm", "microfiche",
}

// SortForm returns the canonical sortable form of a raw call number.
// The result is case and diacritic insensitive; the first numeric run is padded to
// nine digits so lexicographic order approximates numeric order of that run.
func SortForm(call string, prefixes []string) string {
	s := fold(call)
	if s == "" {
		return ""
	}

	s = dropPeriods(s)
	s = stripPrefixes(s, prefixes)

	s = separators.ReplaceAllString(s, " ")
	s = letterDigit.ReplaceAllString(s, "$1 $2")
	s = digitLetter.ReplaceAllString(s, "$1 $2")
	s = strings.Join(strings.Fields(s), " ")

	if loc := firstNumeric.FindStringIndex(s); loc != nil {
		run := s[loc[0]:loc[1]]
		if len(run) < padWidth {
			run = strings.Repeat("0", padWidth-len(run)) + run
		}
		s = s[:loc[0]] + run + s[loc[1]:]
	}
	return s
}

// fold normalizes, strips diacritics and lowercases.
func fold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// dropPeriods removes every period that is not followed by a digit.
func dropPeriods(s string) string {
	rs := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range rs {
		if r == '.' && (i+1 >= len(rs) || !unicode.IsDigit(rs[i+1])) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// stripPrefixes repeatedly removes the longest matching prefix and the separator
// punctuation that follows it, until no prefix matches.
func stripPrefixes(s string, prefixes []string) string {
	if len(prefixes) == 0 {
		return s
	}
	ordered := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if p = fold(p); p != "" {
			ordered = append(ordered, p)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return len(ordered[i]) > len(ordered[j]) })

	for {
		stripped := false
		for _, p := range ordered {
			if !hasTokenPrefix(s, p) {
				continue
			}
			s = strings.TrimLeftFunc(s[len(p):], func(r rune) bool {
				return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
			})
			stripped = true
			break
		}
		if !stripped || s == "" {
			return s
		}
	}
}

// hasTokenPrefix reports whether s starts with p as a whole token.
func hasTokenPrefix(s, p string) bool {
	if !strings.HasPrefix(s, p) {
		return false
	}
	if len(s) == len(p) {
		return true
	}
	last := []rune(p)
	if !isWordRune(last[len(last)-1]) {
		return true
	}
	next := []rune(s[len(p):])[0]
	return !isWordRune(next)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Browse returns the display-ordered browse entry for a call number: the sort form
// followed by the original call number, separated by a tab.
func Browse(call string, prefixes []string) string {
	return fmt.Sprintf("%s\t%s", SortForm(call, prefixes), strings.TrimSpace(call))
}
