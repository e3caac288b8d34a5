package models

import "time"

// StatusCode is the coarse circulation state of an item.
type StatusCode string

const (
	// StatusAvailable marks an item that can be requested or found on the shelf.
	StatusAvailable StatusCode = "available"
	// StatusUnavailable marks an item that is charged, missing, in process, etc.
	StatusUnavailable StatusCode = "unavailable"
)

// ItemStatus describes the circulation state of an item.
// A zero value is treated as available, which is what a status-less placeholder item reports.
type ItemStatus struct {
	Code     StatusCode `json:"code,omitempty"`
	Detail   string     `json:"detail,omitempty"`
	Due      *time.Time `json:"due,omitempty"`
	Returned *time.Time `json:"returned,omitempty"`
}

// IsAvailable reports whether the status counts as available.
func (s ItemStatus) IsAvailable() bool {
	return s.Code == "" || s.Code == StatusAvailable
}

// Location is a shelving location as known to the upstream catalog.
type Location struct {
	ID      string `json:"id,omitempty"`
	Code    string `json:"code"`
	Name    string `json:"name"`
	Library string `json:"library,omitempty"`
	Online  bool   `json:"-"`
}

// DisplayName returns the name used as a key in availability maps.
func (l *Location) DisplayName() string {
	if l == nil {
		return ""
	}
	if l.Name != "" {
		return l.Name
	}
	return l.Code
}

// BibFields holds the bibliographic data consumed by the reconciliation pipeline.
type BibFields struct {
	Title               string `json:"title,omitempty"`
	Format              string `json:"format,omitempty"`
	PhysicalDescription string `json:"physical_description,omitempty"`
	HasSupplement       bool   `json:"has_supplement,omitempty"`
}

// BoundWithRef describes the real item that a placeholder item stands in for.
type BoundWithRef struct {
	PlaceholderItemID string     `json:"placeholder_item_id"`
	MasterRecordID    string     `json:"master_record_id,omitempty"`
	MasterBarcode     string     `json:"master_barcode,omitempty"`
	MasterTitle       string     `json:"master_title,omitempty"`
	Status            ItemStatus `json:"status"`
}

// ItemRef identifies an item inside an item summary.
type ItemRef struct {
	ID     string `json:"id"`
	Enum   string `json:"enum,omitempty"`
	Status string `json:"status,omitempty"`
}

// TempLoc is an item shelved somewhere other than its holding's location.
type TempLoc struct {
	ItemID    string    `json:"id"`
	Location  *Location `json:"-"`
	Name      string    `json:"location"`
	Available bool      `json:"avail"`
}

// ItemSummary is the per-holding digest of its items.
type ItemSummary struct {
	Count      int       `json:"count"`
	AvailCount int       `json:"avail,omitempty"`
	Unavail    []ItemRef `json:"unavail,omitempty"`
	Returned   []ItemRef `json:"returned,omitempty"`
	TempLocs   []TempLoc `json:"tempLocs,omitempty"`
}

// Holding is one shelving/access unit of a record.
type Holding struct {
	ID           string                  `json:"id"`
	RecordID     string                  `json:"-"`
	Location     *Location               `json:"-"`
	Call         string                  `json:"call,omitempty"`
	Active       bool                    `json:"-"`
	Online       *bool                   `json:"online,omitempty"`
	OrderNote    string                  `json:"order,omitempty"`
	Avail        *bool                   `json:"-"`
	ItemSummary  *ItemSummary            `json:"items,omitempty"`
	BoundWiths   map[string]BoundWithRef `json:"-"`
	Descriptions []string                `json:"holdings,omitempty"`
}

// IsOnline reports whether the holding is an online access point.
func (h *Holding) IsOnline() bool {
	return h.Online != nil && *h.Online
}

// Item is a physical unit under a holding.
type Item struct {
	ID          string     `json:"id"`
	HoldingID   string     `json:"holding_id"`
	Barcode     string     `json:"barcode,omitempty"`
	Enumeration string     `json:"enum,omitempty"`
	Chronology  string     `json:"chron,omitempty"`
	Year        string     `json:"year,omitempty"`
	Location    *Location  `json:"-"`
	LoanType    string     `json:"loan_type,omitempty"`
	Status      ItemStatus `json:"status"`
	Active      bool       `json:"-"`
}

// IsPlaceholder reports whether the item has no barcode.
func (i *Item) IsPlaceholder() bool {
	return i.Barcode == ""
}

// Record is a bibliographic unit together with its current inventory.
type Record struct {
	ID       string     `json:"id"`
	Active   bool       `json:"active"`
	Bib      BibFields  `json:"bib"`
	Holdings []*Holding `json:"holdings"`
	Items    []*Item    `json:"items"`
}

// ItemsByHolding groups items by holding id, preserving input order.
func ItemsByHolding(items []*Item) map[string][]*Item {
	out := make(map[string][]*Item)
	for _, item := range items {
		out[item.HoldingID] = append(out[item.HoldingID], item)
	}
	return out
}

// Bool returns a pointer to b.
func Bool(b bool) *bool {
	return &b
}
