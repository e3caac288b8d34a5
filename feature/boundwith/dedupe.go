// Package boundwith reconciles barcode-less placeholder items against the
// bound-with references recorded on their holding.
package boundwith

import (
	"sort"

	"holdings-sync/feature/catalog/models"
)

// Outcome is the result of deduplicating a single holding.
type Outcome struct {
	HoldingID string `json:"holding_id"`
	Flags     Flags  `json:"flags"`
}

// Dedupe matches placeholder items to bound-with references, holding by holding.
// The reference map of every holding is cleared afterwards. The union of all
// holding flags is returned.
func Dedupe(holdings []*models.Holding, items []*models.Item) Flags {
	var all Flags
	for _, o := range DedupeHoldings(holdings, items) {
		all |= o.Flags
	}
	return all
}

// DedupeHoldings is Dedupe with the outcome of each holding reported separately.
func DedupeHoldings(holdings []*models.Holding, items []*models.Item) []Outcome {
	byHolding := models.ItemsByHolding(items)
	outcomes := make([]Outcome, 0, len(holdings))
	for _, h := range holdings {
		if h == nil {
			continue
		}
		outcomes = append(outcomes, Outcome{HoldingID: h.ID, Flags: dedupeHolding(h, byHolding[h.ID])})
	}
	return outcomes
}

func dedupeHolding(h *models.Holding, items []*models.Item) Flags {
	defer func() { h.BoundWiths = nil }()

	var empty []*models.Item
	for _, item := range items {
		if item.Active && item.IsPlaceholder() {
			empty = append(empty, item)
		}
	}
	refs := len(h.BoundWiths)

	switch {
	case len(empty) == 0:
		if refs > 0 {
			return HoldingRefs
		}
		return 0
	case refs == 0:
		return EmptyItems
	case len(empty) != refs:
		return EmptyItems | HoldingRefs | NotDeduped
	case refs > 1:
		return MultiBW
	}

	var ref models.BoundWithRef
	for _, r := range h.BoundWiths {
		ref = r
	}
	placeholder := empty[0]
	for _, item := range empty {
		if item.ID == ref.PlaceholderItemID {
			placeholder = item
			break
		}
	}

	flags := Deduped
	if !ref.Status.IsAvailable() && placeholder.Status.IsAvailable() {
		placeholder.Status = ref.Status
		flags |= RefStatus
	}
	return flags
}

// Masters returns the distinct record ids the holdings' references point at, sorted.
// It must be called before Dedupe clears the references.
func Masters(holdings []*models.Holding) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, h := range holdings {
		if h == nil {
			continue
		}
		for _, ref := range h.BoundWiths {
			if ref.MasterRecordID == "" {
				continue
			}
			if _, ok := seen[ref.MasterRecordID]; ok {
				continue
			}
			seen[ref.MasterRecordID] = struct{}{}
			ids = append(ids, ref.MasterRecordID)
		}
	}
	sort.Strings(ids)
	return ids
}
