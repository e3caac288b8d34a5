package boundwith

import (
	"encoding/json"
	"strings"
)

// Flags is a set of bound-with diagnostics.
type Flags uint8

const (
	// HoldingRefs marks bound-with references on a holding.
	HoldingRefs Flags = 1 << iota
	// EmptyItems marks barcode-less placeholder items on a holding.
	EmptyItems
	// NotDeduped marks placeholder and reference counts that disagree.
	NotDeduped
	// Deduped marks a placeholder matched to its single reference.
	Deduped
	// RefStatus marks a placeholder that took its status from the reference.
	RefStatus
	// MultiBW marks several references that cannot be told apart.
	MultiBW
)

var flagOrder = []Flags{HoldingRefs, EmptyItems, NotDeduped, Deduped, RefStatus, MultiBW}

// Name returns the display name of a single flag.
func Name(f Flags) string {
	switch f {
	case HoldingRefs:
		return "HOLDING_REFS"
	case EmptyItems:
		return "EMPTY_ITEMS"
	case NotDeduped:
		return "NOT_DEDUPED"
	case Deduped:
		return "DEDUPED"
	case RefStatus:
		return "REF_STATUS"
	case MultiBW:
		return "MULTI_BW"
	}
	return ""
}

// Has reports whether every flag in o is set.
func (f Flags) Has(o Flags) bool {
	return f&o == o
}

// NeedsReview reports whether the set contains an unresolved outcome.
func (f Flags) NeedsReview() bool {
	return f&(NotDeduped|MultiBW) != 0
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
