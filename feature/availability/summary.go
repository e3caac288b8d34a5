package availability

import (
	"encoding/json"

	"holdings-sync/feature/catalog/models"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const (
	// NoCallNumber is the value recorded for a location whose holding has no call number.
	NoCallNumber = "No call number"
	// UnknownLocation keys a physical holding that has no location.
	UnknownLocation = "Unknown location"
)

// LocationMap maps location display names to a call number or order note,
// in the order the locations were first seen.
type LocationMap = orderedmap.OrderedMap[string, string]

// Summary is the availability projection of one record.
//
// AvailAt and UnavailAt never share a key; MultiLoc is true exactly when AvailAt
// has more than one entry. Available is nil for an online-only record without
// physical locations.
type Summary struct {
	Available *bool
	Online    bool
	MultiLoc  bool
	AvailAt   *LocationMap
	UnavailAt *LocationMap
}

// NewSummary returns an empty summary.
func NewSummary() *Summary {
	return &Summary{
		AvailAt:   orderedmap.New[string, string](),
		UnavailAt: orderedmap.New[string, string](),
	}
}

// markAvailable records an available location. The first value for a location wins,
// and the location is removed from the unavailable side.
func (s *Summary) markAvailable(name, value string) {
	s.UnavailAt.Delete(name)
	if _, ok := s.AvailAt.Get(name); !ok {
		s.AvailAt.Set(name, value)
	}
}

// markUnavailable records an unavailable location unless it is already known to be available.
func (s *Summary) markUnavailable(name, value string) {
	if _, ok := s.AvailAt.Get(name); ok {
		return
	}
	if _, ok := s.UnavailAt.Get(name); !ok {
		s.UnavailAt.Set(name, value)
	}
}

// Locations returns every location name in the summary, available ones first.
func (s *Summary) Locations() []string {
	names := make([]string, 0, s.AvailAt.Len()+s.UnavailAt.Len())
	for pair := s.AvailAt.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	for pair := s.UnavailAt.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

type summaryJSON struct {
	Available *bool        `json:"available,omitempty"`
	Online    bool         `json:"online,omitempty"`
	MultiLoc  bool         `json:"multiLoc,omitempty"`
	AvailAt   *LocationMap `json:"availAt,omitempty"`
	UnavailAt *LocationMap `json:"unavailAt,omitempty"`
}

// MarshalJSON encodes the summary compactly. Online and MultiLoc are omitted when
// false, the location maps when empty and Available when nil.
func (s *Summary) MarshalJSON() ([]byte, error) {
	out := summaryJSON{
		Available: s.Available,
		Online:    s.Online,
		MultiLoc:  s.MultiLoc,
	}
	if s.AvailAt != nil && s.AvailAt.Len() > 0 {
		out.AvailAt = s.AvailAt
	}
	if s.UnavailAt != nil && s.UnavailAt.Len() > 0 {
		out.UnavailAt = s.UnavailAt
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a summary produced by MarshalJSON.
func (s *Summary) UnmarshalJSON(data []byte) error {
	var in summaryJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*s = *NewSummary()
	s.Available = in.Available
	s.Online = in.Online
	s.MultiLoc = in.MultiLoc
	if in.AvailAt != nil {
		s.AvailAt = in.AvailAt
	}
	if in.UnavailAt != nil {
		s.UnavailAt = in.UnavailAt
	}
	return nil
}

// Summarize folds the holdings of one record into an availability summary.
// Item summaries must already be attached, see SummarizeItems.
func Summarize(holdings []*models.Holding) *Summary {
	s := NewSummary()

	for _, h := range holdings {
		if h == nil || !h.Active {
			continue
		}
		if h.IsOnline() {
			s.Online = true
			continue
		}

		name := h.Location.DisplayName()
		if name == "" {
			name = UnknownLocation
		}
		if holdingAvailable(h) {
			s.markAvailable(name, availValue(h))
		} else {
			s.markUnavailable(name, unavailValue(h))
		}

		if h.ItemSummary == nil {
			continue
		}
		for _, tl := range h.ItemSummary.TempLocs {
			tname := tl.Name
			if tname == "" {
				tname = tl.Location.DisplayName()
			}
			if tname == "" || tname == name {
				continue
			}
			if tl.Available {
				s.markAvailable(tname, availValue(h))
			} else {
				s.markUnavailable(tname, unavailValue(h))
			}
		}
	}

	s.MultiLoc = s.AvailAt.Len() > 1
	switch {
	case s.AvailAt.Len() > 0:
		s.Available = models.Bool(true)
	case s.UnavailAt.Len() == 0 && s.Online:
		s.Available = nil
	default:
		s.Available = models.Bool(false)
	}
	return s
}

// holdingAvailable reports whether the holding is directly marked available or has an available item.
func holdingAvailable(h *models.Holding) bool {
	if h.Avail != nil && *h.Avail {
		return true
	}
	return h.ItemSummary != nil && h.ItemSummary.AvailCount > 0
}

func availValue(h *models.Holding) string {
	if h.Call != "" {
		return h.Call
	}
	return NoCallNumber
}

func unavailValue(h *models.Holding) string {
	if h.OrderNote != "" {
		return h.OrderNote
	}
	return availValue(h)
}
