package rest

import (
	"encoding/json"
	"time"
)

type metadata struct {
	UpdatedDate time.Time `json:"updatedDate"`
}

type instance struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	DiscoverySuppress bool     `json:"discoverySuppress"`
	StaffSuppress     bool     `json:"staffSuppress"`
	Metadata          metadata `json:"metadata"`
}

type holdingsStatement struct {
	Statement string `json:"statement"`
	Note      string `json:"note"`
}

type holdingsRecord struct {
	ID                  string              `json:"id"`
	InstanceID          string              `json:"instanceId"`
	PermanentLocationID string              `json:"permanentLocationId"`
	EffectiveLocationID string              `json:"effectiveLocationId"`
	CallNumber          string              `json:"callNumber"`
	DiscoverySuppress   bool                `json:"discoverySuppress"`
	Online              *bool               `json:"online,omitempty"`
	OrderNote           string              `json:"receiptStatus"`
	HoldingsStatements  []holdingsStatement `json:"holdingsStatements"`
	Metadata            metadata            `json:"metadata"`
}

type itemStatus struct {
	Name string    `json:"name"`
	Date time.Time `json:"date"`
}

type lastCheckIn struct {
	DateTime time.Time `json:"dateTime"`
}

type item struct {
	ID                  string       `json:"id"`
	HoldingsRecordID    string       `json:"holdingsRecordId"`
	Barcode             string       `json:"barcode"`
	Enumeration         string       `json:"enumeration"`
	Chronology          string       `json:"chronology"`
	YearCaption         []string     `json:"yearCaption"`
	EffectiveLocationID string       `json:"effectiveLocationId"`
	PermanentLoanTypeID string       `json:"permanentLoanTypeId"`
	Status              itemStatus   `json:"status"`
	LastCheckIn         *lastCheckIn `json:"lastCheckIn,omitempty"`
	DueDate             *time.Time   `json:"dueDate,omitempty"`
	DiscoverySuppress   bool         `json:"discoverySuppress"`
	Metadata            metadata     `json:"metadata"`
}

type loan struct {
	ID       string   `json:"id"`
	ItemID   string   `json:"itemId"`
	Action   string   `json:"action"`
	Metadata metadata `json:"metadata"`
}

type poLine struct {
	ID            string   `json:"id"`
	InstanceID    string   `json:"instanceId"`
	ReceiptStatus string   `json:"receiptStatus"`
	Metadata      metadata `json:"metadata"`
}

type boundWithPart struct {
	ID               string `json:"id"`
	HoldingsRecordID string `json:"holdingsRecordId"`
	ItemID           string `json:"itemId"`
}

type location struct {
	ID                   string `json:"id"`
	Code                 string `json:"code"`
	Name                 string `json:"name"`
	DiscoveryDisplayName string `json:"discoveryDisplayName"`
	LibraryID            string `json:"libraryId"`
}

type sourceRecord struct {
	ParsedRecord struct {
		Content json.RawMessage `json:"content"`
	} `json:"parsedRecord"`
}
