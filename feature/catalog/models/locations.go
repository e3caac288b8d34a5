package models

import "sort"

// Locations is an immutable lookup of shelving locations.
// It is built once at startup and shared by reference; it must not be modified afterwards.
type Locations struct {
	byID   map[string]*Location
	byCode map[string]*Location
}

// NewLocations builds a lookup from the given locations.
// Later entries win on duplicate ids or codes.
func NewLocations(locs []Location) *Locations {
	l := &Locations{
		byID:   make(map[string]*Location, len(locs)),
		byCode: make(map[string]*Location, len(locs)),
	}
	for i := range locs {
		loc := locs[i]
		if loc.ID != "" {
			l.byID[loc.ID] = &loc
		}
		if loc.Code != "" {
			l.byCode[loc.Code] = &loc
		}
	}
	return l
}

// ByID returns the location with the given id, or nil.
func (l *Locations) ByID(id string) *Location {
	if l == nil {
		return nil
	}
	return l.byID[id]
}

// ByCode returns the location with the given code, or nil.
func (l *Locations) ByCode(code string) *Location {
	if l == nil {
		return nil
	}
	return l.byCode[code]
}

// Len returns the number of distinct location codes.
func (l *Locations) Len() int {
	if l == nil {
		return 0
	}
	return len(l.byCode)
}

// Codes returns all location codes in sorted order.
func (l *Locations) Codes() []string {
	if l == nil {
		return nil
	}
	codes := make([]string, 0, len(l.byCode))
	for code := range l.byCode {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
