package boundwith

import (
	"testing"

	"holdings-sync/feature/catalog/models"

	"github.com/stretchr/testify/assert"
)

func charged() models.ItemStatus {
	return models.ItemStatus{Code: models.StatusUnavailable, Detail: "Checked out"}
}

func TestDedupe_Cases(t *testing.T) {
	tests := []struct {
		name  string
		refs  map[string]models.BoundWithRef
		items []*models.Item
		want  Flags
	}{
		{
			name: "Nothing to do",
			items: []*models.Item{
				{ID: "i1", HoldingID: "h1", Barcode: "31924", Active: true},
			},
			want: 0,
		},
		{
			name: "Orphan references",
			refs: map[string]models.BoundWithRef{"x": {PlaceholderItemID: "x"}},
			items: []*models.Item{
				{ID: "i1", HoldingID: "h1", Barcode: "31924", Active: true},
			},
			want: HoldingRefs,
		},
		{
			name: "Empty items without references",
			items: []*models.Item{
				{ID: "i1", HoldingID: "h1", Active: true},
			},
			want: EmptyItems,
		},
		{
			name: "Unequal counts",
			refs: map[string]models.BoundWithRef{"i1": {PlaceholderItemID: "i1"}},
			items: []*models.Item{
				{ID: "i1", HoldingID: "h1", Active: true},
				{ID: "i2", HoldingID: "h1", Active: true},
			},
			want: EmptyItems | HoldingRefs | NotDeduped,
		},
		{
			name: "Several references",
			refs: map[string]models.BoundWithRef{
				"i1": {PlaceholderItemID: "i1"},
				"i2": {PlaceholderItemID: "i2"},
			},
			items: []*models.Item{
				{ID: "i1", HoldingID: "h1", Active: true},
				{ID: "i2", HoldingID: "h1", Active: true},
			},
			want: MultiBW,
		},
		{
			name: "Single reference available",
			refs: map[string]models.BoundWithRef{"i1": {PlaceholderItemID: "i1"}},
			items: []*models.Item{
				{ID: "i1", HoldingID: "h1", Active: true},
			},
			want: Deduped,
		},
		{
			name: "Inactive placeholder ignored",
			items: []*models.Item{
				{ID: "i1", HoldingID: "h1", Active: false},
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &models.Holding{ID: "h1", BoundWiths: tt.refs}
			got := Dedupe([]*models.Holding{h}, tt.items)
			assert.Equal(t, tt.want, got, "got %s", got)
			assert.Empty(t, h.BoundWiths)
		})
	}
}

func TestDedupe_CopiesReferenceStatus(t *testing.T) {
	h := &models.Holding{ID: "h1", BoundWiths: map[string]models.BoundWithRef{
		"bw1": {PlaceholderItemID: "i1", MasterRecordID: "r9", MasterBarcode: "31924", Status: charged()},
	}}
	item := &models.Item{ID: "i1", HoldingID: "h1", Active: true}

	flags := Dedupe([]*models.Holding{h}, []*models.Item{item})

	assert.Equal(t, Deduped|RefStatus, flags)
	assert.Equal(t, charged(), item.Status)
	assert.Empty(t, h.BoundWiths)

	again := Dedupe([]*models.Holding{h}, []*models.Item{item})
	assert.False(t, again.Has(Deduped))
	assert.Equal(t, charged(), item.Status)
	assert.Empty(t, h.BoundWiths)
}

func TestDedupe_KeepsUnavailablePlaceholder(t *testing.T) {
	h := &models.Holding{ID: "h1", BoundWiths: map[string]models.BoundWithRef{
		"bw1": {PlaceholderItemID: "i1", Status: charged()},
	}}
	missing := models.ItemStatus{Code: models.StatusUnavailable, Detail: "Missing"}
	item := &models.Item{ID: "i1", HoldingID: "h1", Active: true, Status: missing}

	assert.Equal(t, Deduped, Dedupe([]*models.Holding{h}, []*models.Item{item}))
	assert.Equal(t, missing, item.Status)
}

func TestDedupeHoldings_PerHolding(t *testing.T) {
	h1 := &models.Holding{ID: "h1"}
	h2 := &models.Holding{ID: "h2", BoundWiths: map[string]models.BoundWithRef{"x": {}}}
	items := []*models.Item{{ID: "i1", HoldingID: "h1", Active: true}}

	outcomes := DedupeHoldings([]*models.Holding{h1, h2}, items)
	assert.Equal(t, []Outcome{{HoldingID: "h1", Flags: EmptyItems}, {HoldingID: "h2", Flags: HoldingRefs}}, outcomes)
}

func TestMasters(t *testing.T) {
	holdings := []*models.Holding{
		{ID: "h1", BoundWiths: map[string]models.BoundWithRef{
			"a": {MasterRecordID: "r2"},
			"b": {MasterRecordID: "r1"},
		}},
		{ID: "h2", BoundWiths: map[string]models.BoundWithRef{
			"c": {MasterRecordID: "r2"},
			"d": {},
		}},
	}
	assert.Equal(t, []string{"r1", "r2"}, Masters(holdings))
}

func TestFlags_Names(t *testing.T) {
	f := EmptyItems | HoldingRefs | NotDeduped
	assert.Equal(t, []string{"HOLDING_REFS", "EMPTY_ITEMS", "NOT_DEDUPED"}, f.Names())
	assert.Equal(t, "HOLDING_REFS,EMPTY_ITEMS,NOT_DEDUPED", f.String())
	assert.True(t, f.NeedsReview())
	assert.False(t, (Deduped | RefStatus).NeedsReview())
	assert.Empty(t, Flags(0).Names())
}
