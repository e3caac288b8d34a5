package changes

import (
	"fmt"
	"strings"
	"time"
)

// Type classifies an observed mutation.
type Type string

const (
	Circ      Type = "CIRC"
	Reserve   Type = "RESERVE"
	Item      Type = "ITEM"
	Holding   Type = "HOLDING"
	Order     Type = "ORDER"
	Bib       Type = "BIB"
	ItemBatch Type = "ITEM_BATCH"
	Age       Type = "AGE"
	Other     Type = "OTHER"
)

// Types lists every change type from most to least urgent.
var Types = []Type{Circ, Reserve, Item, Holding, Order, Bib, ItemBatch, Age, Other}

var priorities = map[Type]int{
	Circ:      1,
	Reserve:   2,
	Item:      3,
	Holding:   4,
	Order:     5,
	Bib:       6,
	ItemBatch: 7,
	Age:       8,
	Other:     9,
}

// Priority returns the queue priority of the type; lower is more urgent.
func (t Type) Priority() int {
	if p, ok := priorities[t]; ok {
		return p
	}
	return priorities[Other]
}

// ParseType parses a change type name, case-insensitively.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := priorities[t]; !ok {
		return "", fmt.Errorf("unknown change type %q", s)
	}
	return t, nil
}

// Change is an observed mutation of a record.
type Change struct {
	Type      Type      `json:"type"`
	SubjectID string    `json:"subject_id"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Location  string    `json:"location,omitempty"`
}

// Key is the comparable identity of a change. Two changes with equal keys
// describe the same upstream mutation.
type Key struct {
	Type      Type
	Timestamp int64
	Detail    string
	Location  string
}

// Key returns the structural identity of the change.
func (c Change) Key() Key {
	return Key{Type: c.Type, Timestamp: c.Timestamp.UnixNano(), Detail: c.Detail, Location: c.Location}
}

func (c Change) String() string {
	s := fmt.Sprintf("%s %s %s", c.Type, c.SubjectID, c.Timestamp.Format(time.RFC3339))
	if c.Detail != "" {
		s += " " + c.Detail
	}
	if c.Location != "" {
		s += " @" + c.Location
	}
	return s
}

// Priority returns the most urgent priority among the changes, or the priority of
// Other for an empty set.
func Priority(cs []Change) int {
	p := Other.Priority()
	for _, c := range cs {
		if cp := c.Type.Priority(); cp < p {
			p = cp
		}
	}
	return p
}

// Union merges change sets, dropping structural duplicates and keeping first-seen order.
func Union(sets ...[]Change) []Change {
	seen := make(map[Key]struct{})
	var out []Change
	for _, set := range sets {
		for _, c := range set {
			k := c.Key()
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// BySubject groups changes by subject id, preserving order within each group.
func BySubject(cs []Change) map[string][]Change {
	out := make(map[string][]Change)
	for _, c := range cs {
		out[c.SubjectID] = append(out[c.SubjectID], c)
	}
	return out
}
