package multivol

import (
	"encoding/json"
	"strings"
)

// Flags is a set of multivolume diagnostics.
type Flags uint8

const (
	// MultiVol marks a record concluded to be multivolume.
	MultiVol Flags = 1 << iota
	// MainItem marks a blank-enumeration item alongside enumerated ones.
	MainItem
	// SuspiciousEnum marks a conclusion reached by default rather than evidence.
	SuspiciousEnum
	// BlankEnum marks at least one item without enumeration.
	BlankEnum
	// NonBlankEnum marks at least one item with enumeration.
	NonBlankEnum
	// MissingHoldingsDesc marks a backfill that fell back to the call number.
	MissingHoldingsDesc
)

var flagOrder = []Flags{MultiVol, MainItem, SuspiciousEnum, BlankEnum, NonBlankEnum, MissingHoldingsDesc}

// Name returns the display name of a single flag.
func Name(f Flags) string {
	switch f {
	case MultiVol:
		return "MULTIVOL"
	case MainItem:
		return "MAINITEM"
	case SuspiciousEnum:
		return "SUSPICIOUSENUM"
	case BlankEnum:
		return "BLANKENUM"
	case NonBlankEnum:
		return "NONBLANKENUM"
	case MissingHoldingsDesc:
		return "MISSINGHOLDINGSDESC"
	}
	return ""
}

// Has reports whether every flag in o is set.
func (f Flags) Has(o Flags) bool {
	return f&o == o
}

// NeedsReview reports whether the conclusion should be checked by a person.
func (f Flags) NeedsReview() bool {
	return f&(SuspiciousEnum|MissingHoldingsDesc) != 0
}

// Names returns the names of the set flags in declaration order.
func (f Flags) Names() []string {
	var names []string
	for _, flag := range flagOrder {
		if f.Has(flag) {
			names = append(names, Name(flag))
		}
	}
	return names
}

func (f Flags) String() string {
	return strings.Join(f.Names(), ",")
}

// MarshalJSON encodes the flags as a list of names.
func (f Flags) MarshalJSON() ([]byte, error) {
	names := f.Names()
	if names == nil {
		names = []string{}
	}
	return json.Marshal(names)
}
