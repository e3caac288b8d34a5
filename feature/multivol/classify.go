// Package multivol decides whether a record describes a multivolume set from
// the enumeration of its items.
package multivol

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"holdings-sync/feature/catalog/models"
)

var (
	copyNoise      = regexp.MustCompile(`(?i)\b(?:c|cop|copy|copies)\.?\s*\d+\b`)
	boundWithNoise = regexp.MustCompile(`(?i)\bbound\s+with\b.*$`)
	volumeCount    = regexp.MustCompile(`(?i)\b(\d+)\s*v(?:\.|ols?\b\.?|olumes?\b)`)
)

// Result is the outcome of Classify.
type Result struct {
	Flags Flags `json:"flags"`
}

// Multivol reports whether the record was concluded to be multivolume.
func (r Result) Multivol() bool {
	return r.Flags.Has(MultiVol)
}

type locationEnums struct {
	blank  bool
	values []string
}

func (l *locationEnums) add(v string) {
	if v == "" {
		l.blank = true
		return
	}
	for _, seen := range l.values {
		if seen == v {
			return
		}
	}
	l.values = append(l.values, v)
}

func (l *locationEnums) diverse() bool {
	return len(l.values) > 1
}

// Classify inspects item enumeration by location and falls back on the physical
// description when the enumeration is inconclusive. When the record is multivolume,
// items with blank enumeration get the first description line of their holding,
// or its call number, as enumeration.
func Classify(format, physDesc string, hasSupplement bool, holdings []*models.Holding, items []*models.Item) Result {
	holdingByID := make(map[string]*models.Holding, len(holdings))
	for _, h := range holdings {
		if h != nil {
			holdingByID[h.ID] = h
		}
	}

	var (
		order      []string
		byLocation = make(map[string]*locationEnums)
		blanks     []*models.Item
		anyBlank   bool
		anyValue   bool
		flags      Flags
	)

	for _, item := range items {
		if item == nil || !item.Active {
			continue
		}
		loc := item.Location
		if loc == nil {
			if h := holdingByID[item.HoldingID]; h != nil {
				loc = h.Location
			}
		}
		name := loc.DisplayName()
		le, ok := byLocation[name]
		if !ok {
			le = &locationEnums{}
			byLocation[name] = le
			order = append(order, name)
		}

		v := Normalize(item)
		le.add(v)
		if v == "" {
			anyBlank = true
			blanks = append(blanks, item)
		} else {
			anyValue = true
		}
	}

	if anyBlank {
		flags |= BlankEnum
	}
	if anyValue {
		flags |= NonBlankEnum
	}

	multi := false
	for _, name := range order {
		le := byLocation[name]
		if le.diverse() {
			multi = true
			if le.blank {
				flags |= MainItem
			}
		}
	}

	switch {
	case multi:
		flags |= MultiVol
	case len(order) > 1 && acrossLocationsDiffer(order, byLocation):
		flags |= MultiVol
	case anyBlank && anyValue:
		flags |= fromDescription(format, physDesc, hasSupplement)
	}

	if flags.Has(MultiVol | BlankEnum) {
		for _, item := range blanks {
			value, fallback := backfillValue(holdingByID[item.HoldingID])
			if value == "" {
				continue
			}
			item.Enumeration = value
			if fallback {
				flags |= MissingHoldingsDesc
			}
		}
	}

	return Result{Flags: flags}
}

// acrossLocationsDiffer compares the representative value of each location, ignoring blanks.
func acrossLocationsDiffer(order []string, byLocation map[string]*locationEnums) bool {
	rep := ""
	for _, name := range order {
		le := byLocation[name]
		if len(le.values) == 0 {
			continue
		}
		if rep == "" {
			rep = le.values[0]
			continue
		}
		if le.values[0] != rep {
			return true
		}
	}
	return false
}

func fromDescription(format, physDesc string, hasSupplement bool) Flags {
	if hasSupplement {
		if !DescribesVolumes(physDesc) {
			return MultiVol | MainItem
		}
		return MultiVol | SuspiciousEnum
	}
	if IsSerial(format) {
		return MultiVol | SuspiciousEnum
	}
	return MainItem | SuspiciousEnum
}

func backfillValue(h *models.Holding) (string, bool) {
	if h == nil {
		return "", false
	}
	for _, d := range h.Descriptions {
		if d = strings.TrimSpace(d); d != "" {
			return d, false
		}
	}
	return strings.TrimSpace(h.Call), true
}

// Normalize returns the combined enumeration, chronology and year of an item with
// copy numbers and bound-with notes removed.
func Normalize(item *models.Item) string {
	parts := make([]string, 0, 3)
	for _, s := range []string{item.Enumeration, item.Chronology, item.Year} {
		s = boundWithNoise.ReplaceAllString(s, "")
		s = copyNoise.ReplaceAllString(s, "")
		s = strings.TrimFunc(s, func(r rune) bool {
			return unicode.IsSpace(r) || unicode.IsPunct(r)
		})
		if s != "" {
			parts = append(parts, strings.Join(strings.Fields(s), " "))
		}
	}
	return strings.Join(parts, " ")
}

// DescribesVolumes reports whether a physical description reads as "N volumes" with N > 1.
func DescribesVolumes(physDesc string) bool {
	for _, m := range volumeCount.FindAllStringSubmatch(physDesc, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 1 {
			return true
		}
	}
	return false
}

// IsSerial reports whether a format names a serial publication.
func IsSerial(format string) bool {
	f := strings.ToLower(format)
	for _, s := range []string{"journal", "periodical", "serial", "newspaper"} {
		if strings.Contains(f, s) {
			return true
		}
	}
	return false
}
