package callnumber

// Exclusion removes a numeric band from a category.
// With Decimals unset only the literal whole numbers of the band are excluded;
// with Decimals set their decimal subdivisions are excluded as well.
type Exclusion struct {
	Letters  string `json:"letters,omitempty"`
	Low      int    `json:"low"`
	High     int    `json:"high"`
	Decimals bool   `json:"decimals,omitempty"`
}

func (e Exclusion) matches(p Parts) bool {
	if e.Letters != "" && e.Letters != p.Letters {
		return false
	}
	if p.Whole < e.Low || p.Whole > e.High {
		return false
	}
	return e.Decimals || !p.HasDecimal()
}

// Category is a named group of class letters with numeric exclusions,
// e.g. a collection facet derived from call numbers.
type Category struct {
	Name     string      `json:"name"`
	Classes  []string    `json:"classes"`
	Excluded []Exclusion `json:"excluded,omitempty"`
}

// Contains reports whether the canonical call number falls into the category.
func (c Category) Contains(sortKey string) bool {
	p, ok := Parse(sortKey)
	if !ok {
		return false
	}
	matched := false
	for _, cls := range c.Classes {
		if cls == p.Letters {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	for _, e := range c.Excluded {
		if e.matches(p) {
			return false
		}
	}
	return true
}

// DefaultCategories are the call number categories faceted on by default.
func DefaultCategories() []Category {
	return []Category{
		{
			// PZ1-4 are general collections; a bare PZ7 is an obsolete catch-all
			// while its subdivisions are current juvenile fiction.
			Name:    "Juvenile Literature",
			Classes: []string{"pz"},
			Excluded: []Exclusion{
				{Low: 1, High: 4, Decimals: true},
				{Low: 7, High: 7, Decimals: false},
			},
		},
		{
			Name:    "Law",
			Classes: []string{"k", "kd", "ke", "kf", "kz"},
		},
		{
			// Only PN1993-1999 is motion pictures.
			Name:    "Film Studies",
			Classes: []string{"pn"},
			Excluded: []Exclusion{
				{Low: 0, High: 1992, Decimals: true},
				{Low: 2000, High: 99999, Decimals: true},
			},
		},
	}
}

// Categories returns the names of the categories containing the call number.
func Categories(sortKey string, cats []Category) []string {
	var names []string
	for _, c := range cats {
		if c.Contains(sortKey) {
			names = append(names, c.Name)
		}
	}
	return names
}
