package legacy

import (
	"fmt"
	"sort"

	"holdings-sync/core/database"

	"gorm.io/gorm"
)

// requiredColumns lists, per schema table, the columns the source reads.
func requiredColumns(s Schema) map[string][]string {
	return map[string][]string{
		s.Bibs:       {"id", "suppressed", "marc", "updated_at"},
		s.Holdings:   {"id", "bib_id", "location_code", "call_number", "suppressed", "online", "order_note", "avail", "descriptions", "updated_at"},
		s.Items:      {"id", "holding_id", "barcode", "enumeration", "chronology", "year", "location_code", "loan_type", "status_code", "status_detail", "due_date", "returned_at", "suppressed", "updated_at"},
		s.BoundWiths: {"id", "holding_id", "placeholder_item_id", "master_bib_id", "master_barcode", "master_title"},
		s.Circ:       {"id", "item_id", "action", "location_code", "created_at"},
		s.Orders:     {"id", "bib_id", "status", "updated_at"},
		s.Reserves:   {"id", "item_id", "course", "updated_at"},
		s.Locations:  {"id", "code", "name", "library", "online"},
	}
}

// Verify checks that every table and column the source reads exists.
// It returns one message per missing column.
func Verify(db *gorm.DB, schema Schema) ([]string, error) {
	schema = schema.withDefaults()
	required := requiredColumns(schema)

	tables := make([]string, 0, len(required))
	for table := range required {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	var problems []string
	for _, table := range tables {
		present, err := database.ColumnSet(db, table)
		if err != nil {
			return nil, err
		}
		if len(present) == 0 {
			problems = append(problems, fmt.Sprintf("table %s: missing", table))
			continue
		}
		for _, col := range required[table] {
			if !present[col] {
				problems = append(problems, fmt.Sprintf("table %s: missing column %s", table, col))
			}
		}
	}
	return problems, nil
}
