package callnumber

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var classPattern = regexp.MustCompile(`^([a-z]{1,3}) ?([0-9]+)(\.[0-9]+)?`)

// Parts are the classification components of a canonical call number.
type Parts struct {
	// Letters is the 1-3 letter class code, lowercase.
	Letters string
	// Whole is the integer part of the class number.
	Whole int
	// Decimal is the decimal suffix without the period, or empty.
	Decimal string
	// Number is Whole and Decimal combined.
	Number float64
}

// HasDecimal reports whether the class number carries a decimal suffix.
func (p Parts) HasDecimal() bool {
	return p.Decimal != ""
}

// Parse extracts class letters and number from a key produced by SortForm.
func Parse(sortKey string) (Parts, bool) {
	m := classPattern.FindStringSubmatch(sortKey)
	if m == nil {
		return Parts{}, false
	}
	whole, err := strconv.Atoi(m[2])
	if err != nil {
		return Parts{}, false
	}
	p := Parts{Letters: m[1], Whole: whole, Number: float64(whole)}
	if m[3] != "" {
		p.Decimal = m[3][1:]
		if n, err := strconv.ParseFloat(strings.TrimLeft(m[2], "0")+m[3], 64); err == nil {
			p.Number = n
		}
	}
	return p, true
}

// Range is one row of the classification label table.
type Range struct {
	LowLetters  string  `json:"low_letters"`
	HighLetters string  `json:"high_letters"`
	LowNumber   float64 `json:"low_number"`
	HighNumber  float64 `json:"high_number"`
	Label       string  `json:"label"`
}

func (r Range) bounds() (lo, hi int) {
	return letterValue(r.LowLetters), letterValue(r.HighLetters)
}

func (r Range) width() float64 {
	lo, hi := r.bounds()
	return float64(hi-lo)*1e6 + (r.HighNumber - r.LowNumber)
}

func (r Range) contains(p Parts) bool {
	lo, hi := r.bounds()
	v := letterValue(p.Letters)
	if v < lo || v > hi {
		return false
	}
	if v == lo && p.Number < r.LowNumber {
		return false
	}
	if v == hi && p.Number > r.HighNumber {
		return false
	}
	return true
}

// letterValue maps up to three class letters to an ordinal that sorts like the letters.
func letterValue(letters string) int {
	letters = strings.ToLower(letters)
	v := 0
	for i := 0; i < 3; i++ {
		v *= 27
		if i < len(letters) && letters[i] >= 'a' && letters[i] <= 'z' {
			v += int(letters[i]-'a') + 1
		}
	}
	return v
}

// Classifier assigns classification labels to canonical call numbers.
// It is immutable after construction.
type Classifier struct {
	ranges []Range
}

// NewClassifier builds a classifier. Ranges are ordered widest to narrowest,
// ties broken by their lower bound.
func NewClassifier(ranges []Range) *Classifier {
	sorted := make([]Range, len(ranges))
	copy(sorted, ranges)
	sort.SliceStable(sorted, func(i, j int) bool {
		wi, wj := sorted[i].width(), sorted[j].width()
		if wi != wj {
			return wi > wj
		}
		li, _ := sorted[i].bounds()
		lj, _ := sorted[j].bounds()
		if li != lj {
			return li < lj
		}
		return sorted[i].LowNumber < sorted[j].LowNumber
	})
	return &Classifier{ranges: sorted}
}

// Labels returns every matching label from widest to narrowest.
func (c *Classifier) Labels(sortKey string) []string {
	p, ok := Parse(sortKey)
	if !ok || c == nil {
		return nil
	}
	var labels []string
	for _, r := range c.ranges {
		if r.contains(p) {
			labels = append(labels, r.Label)
		}
	}
	return labels
}

// Label returns the most specific matching label, or empty.
func (c *Classifier) Label(sortKey string) string {
	labels := c.Labels(sortKey)
	if len(labels) == 0 {
		return ""
	}
	return labels[len(labels)-1]
}

// DefaultRanges is the top level of the Library of Congress classification
// with a second level for the sciences.
func DefaultRanges() []Range {
	top := []struct{ lo, hi, label string }{
		{"a", "azz", "A - General Works"},
		{"b", "bzz", "B - Philosophy, Psychology, Religion"},
		{"c", "czz", "C - Auxiliary Sciences of History"},
		{"d", "dzz", "D - World History"},
		{"e", "ezz", "E - History of the Americas"},
		{"f", "fzz", "F - History of the Americas"},
		{"g", "gzz", "G - Geography, Anthropology, Recreation"},
		{"h", "hzz", "H - Social Sciences"},
		{"j", "jzz", "J - Political Science"},
		{"k", "kzz", "K - Law"},
		{"l", "lzz", "L - Education"},
		{"m", "mzz", "M - Music"},
		{"n", "nzz", "N - Fine Arts"},
		{"p", "pzz", "P - Language and Literature"},
		{"q", "qzz", "Q - Science"},
		{"r", "rzz", "R - Medicine"},
		{"s", "szz", "S - Agriculture"},
		{"t", "tzz", "T - Technology"},
		{"u", "uzz", "U - Military Science"},
		{"v", "vzz", "V - Naval Science"},
		{"z", "zzz", "Z - Bibliography, Library Science"},
	}
	ranges := make([]Range, 0, len(top)+8)
	for _, t := range top {
		ranges = append(ranges, Range{LowLetters: t.lo, HighLetters: t.hi, LowNumber: 0, HighNumber: 99999, Label: t.label})
	}
	ranges = append(ranges,
		Range{LowLetters: "q", HighLetters: "q", LowNumber: 0, HighNumber: 99999, Label: "Q - Science (General)"},
		Range{LowLetters: "qa", HighLetters: "qa", LowNumber: 0, HighNumber: 99999, Label: "QA - Mathematics"},
		Range{LowLetters: "qa", HighLetters: "qa", LowNumber: 75, HighNumber: 76.95, Label: "QA75-76.95 - Calculating Machines"},
		Range{LowLetters: "qa", HighLetters: "qa", LowNumber: 273, HighNumber: 280, Label: "QA273-280 - Probabilities. Mathematical Statistics"},
		Range{LowLetters: "qb", HighLetters: "qb", LowNumber: 0, HighNumber: 99999, Label: "QB - Astronomy"},
		Range{LowLetters: "qc", HighLetters: "qc", LowNumber: 0, HighNumber: 99999, Label: "QC - Physics"},
		Range{LowLetters: "qd", HighLetters: "qd", LowNumber: 0, HighNumber: 99999, Label: "QD - Chemistry"},
		Range{LowLetters: "qh", HighLetters: "qh", LowNumber: 0, HighNumber: 99999, Label: "QH - Natural History - Biology"},
	)
	return ranges
}
