package availability

import (
	"strings"

	"holdings-sync/feature/catalog/models"
)

// SummarizeItems digests the items of a holding into h.ItemSummary.
//
// Items sharing a single location move the holding to that location, since it
// may have been relocated after cataloguing. Items spread over several locations
// are each listed under their own location instead. The result reports whether any item
// was recently discharged.
func SummarizeItems(h *models.Holding, items []*models.Item) bool {
	if h == nil {
		return false
	}

	sum := &models.ItemSummary{}
	discharged := false

	var (
		locs    []*models.Location
		seenLoc = make(map[string]struct{})
	)

	for _, item := range items {
		if item == nil || !item.Active {
			continue
		}
		sum.Count++

		ref := models.ItemRef{ID: item.ID, Enum: enumOf(item), Status: statusOf(item.Status)}
		if item.Status.IsAvailable() {
			sum.AvailCount++
			if item.Status.Returned != nil {
				discharged = true
				sum.Returned = append(sum.Returned, ref)
			}
		} else {
			sum.Unavail = append(sum.Unavail, ref)
		}

		loc := item.Location
		if loc == nil {
			loc = h.Location
		}
		name := loc.DisplayName()
		if _, ok := seenLoc[name]; !ok {
			seenLoc[name] = struct{}{}
			locs = append(locs, loc)
		}
	}

	if sum.Count == 0 {
		h.ItemSummary = nil
		return false
	}

	switch {
	case len(locs) == 1:
		if locs[0] != nil {
			h.Location = locs[0]
		}
	case len(locs) > 1:
		for _, item := range items {
			if item == nil || !item.Active {
				continue
			}
			loc := item.Location
			if loc == nil {
				loc = h.Location
			}
			sum.TempLocs = append(sum.TempLocs, models.TempLoc{
				ItemID:    item.ID,
				Location:  loc,
				Name:      loc.DisplayName(),
				Available: item.Status.IsAvailable(),
			})
		}
	}

	h.ItemSummary = sum
	return discharged
}

func enumOf(item *models.Item) string {
	parts := make([]string, 0, 3)
	for _, s := range []string{item.Enumeration, item.Chronology, item.Year} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

func statusOf(s models.ItemStatus) string {
	if s.Detail != "" {
		return s.Detail
	}
	return string(s.Code)
}
