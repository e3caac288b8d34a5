package legacy

import "time"

// Schema names the legacy catalog tables. Sites that renamed tables override the defaults.
type Schema struct {
	Bibs       string `mapstructure:"bibs" default:"bib_record"`
	Holdings   string `mapstructure:"holdings" default:"holding"`
	Items      string `mapstructure:"items" default:"item"`
	BoundWiths string `mapstructure:"bound_withs" default:"bound_with"`
	Circ       string `mapstructure:"circ" default:"circ_transaction"`
	Orders     string `mapstructure:"orders" default:"purchase_order"`
	Reserves   string `mapstructure:"reserves" default:"reserve_item"`
	Locations  string `mapstructure:"locations" default:"location"`
}

// DefaultSchema returns the stock table names.
func DefaultSchema() Schema {
	return Schema{
		Bibs:       BibRow{}.TableName(),
		Holdings:   HoldingRow{}.TableName(),
		Items:      ItemRow{}.TableName(),
		BoundWiths: BoundWithRow{}.TableName(),
		Circ:       CircRow{}.TableName(),
		Orders:     OrderRow{}.TableName(),
		Reserves:   ReserveRow{}.TableName(),
		Locations:  LocationRow{}.TableName(),
	}
}

// withDefaults fills empty table names from DefaultSchema.
func (s Schema) withDefaults() Schema {
	d := DefaultSchema()
	for _, p := range []struct{ dst *string; def string }{
		{&s.Bibs, d.Bibs}, {&s.Holdings, d.Holdings}, {&s.Items, d.Items},
		{&s.BoundWiths, d.BoundWiths}, {&s.Circ, d.Circ}, {&s.Orders, d.Orders},
		{&s.Reserves, d.Reserves}, {&s.Locations, d.Locations},
	} {
		if *p.dst == "" {
			*p.dst = p.def
		}
	}
	return s
}

type BibRow struct {
	ID         string    `gorm:"primaryKey;column:id;type:varchar(64)"`
	Suppressed bool      `gorm:"column:suppressed;default:0"`
	Marc       string    `gorm:"column:marc;type:longtext"`
	UpdatedAt  time.Time `gorm:"column:updated_at;index"`
}

func (BibRow) TableName() string {
	return "bib_record"
}

type HoldingRow struct {
	ID           string    `gorm:"primaryKey;column:id;type:varchar(64)"`
	BibID        string    `gorm:"column:bib_id;type:varchar(64);index"`
	LocationCode string    `gorm:"column:location_code;type:varchar(32)"`
	CallNumber   string    `gorm:"column:call_number;type:varchar(255)"`
	Suppressed   bool      `gorm:"column:suppressed;default:0"`
	Online       *bool     `gorm:"column:online"`
	OrderNote    string    `gorm:"column:order_note;type:varchar(255)"`
	Avail        *bool     `gorm:"column:avail"`
	Descriptions string    `gorm:"column:descriptions;type:text"` // newline separated
	UpdatedAt    time.Time `gorm:"column:updated_at;index"`
}

func (HoldingRow) TableName() string {
	return "holding"
}

type ItemRow struct {
	ID           string     `gorm:"primaryKey;column:id;type:varchar(64)"`
	HoldingID    string     `gorm:"column:holding_id;type:varchar(64);index"`
	Barcode      *string    `gorm:"column:barcode;type:varchar(64);index"` // Nullable
	Enumeration  string     `gorm:"column:enumeration;type:varchar(255)"`
	Chronology   string     `gorm:"column:chronology;type:varchar(255)"`
	Year         string     `gorm:"column:year;type:varchar(32)"`
	LocationCode string     `gorm:"column:location_code;type:varchar(32)"`
	LoanType     string     `gorm:"column:loan_type;type:varchar(64)"`
	StatusCode   string     `gorm:"column:status_code;type:varchar(32)"`
	StatusDetail string     `gorm:"column:status_detail;type:varchar(255)"`
	DueDate      *time.Time `gorm:"column:due_date"`
	ReturnedAt   *time.Time `gorm:"column:returned_at"`
	Suppressed   bool       `gorm:"column:suppressed;default:0"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;index"`
}

func (ItemRow) TableName() string {
	return "item"
}

type BoundWithRow struct {
	ID                uint   `gorm:"primaryKey;column:id"`
	HoldingID         string `gorm:"column:holding_id;type:varchar(64);index"`
	PlaceholderItemID string `gorm:"column:placeholder_item_id;type:varchar(64)"`
	MasterBibID       string `gorm:"column:master_bib_id;type:varchar(64)"`
	MasterBarcode     string `gorm:"column:master_barcode;type:varchar(64)"`
	MasterTitle       string `gorm:"column:master_title;type:varchar(255)"`
}

func (BoundWithRow) TableName() string {
	return "bound_with"
}

type CircRow struct {
	ID           uint64    `gorm:"primaryKey;column:id"`
	ItemID       string    `gorm:"column:item_id;type:varchar(64)"`
	Action       string    `gorm:"column:action;type:varchar(32)"`
	LocationCode string    `gorm:"column:location_code;type:varchar(32)"`
	CreatedAt    time.Time `gorm:"column:created_at;index"`
}

func (CircRow) TableName() string {
	return "circ_transaction"
}

type OrderRow struct {
	ID        string    `gorm:"primaryKey;column:id;type:varchar(64)"`
	BibID     string    `gorm:"column:bib_id;type:varchar(64)"`
	Status    string    `gorm:"column:status;type:varchar(64)"`
	UpdatedAt time.Time `gorm:"column:updated_at;index"`
}

func (OrderRow) TableName() string {
	return "purchase_order"
}

type ReserveRow struct {
	ID        uint64    `gorm:"primaryKey;column:id"`
	ItemID    string    `gorm:"column:item_id;type:varchar(64)"`
	Course    string    `gorm:"column:course;type:varchar(255)"`
	UpdatedAt time.Time `gorm:"column:updated_at;index"`
}

func (ReserveRow) TableName() string {
	return "reserve_item"
}

type LocationRow struct {
	ID      string `gorm:"primaryKey;column:id;type:varchar(64)"`
	Code    string `gorm:"column:code;type:varchar(32);uniqueIndex"`
	Name    string `gorm:"column:name;type:varchar(255)"`
	Library string `gorm:"column:library;type:varchar(255)"`
	Online  bool   `gorm:"column:online;default:0"`
}

func (LocationRow) TableName() string {
	return "location"
}
