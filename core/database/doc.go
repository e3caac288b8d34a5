// Package database opens GORM connections and inspects table schemas.
//
// Connect supports MySQL, used for the sync database and the legacy catalog, and
// SQLite, used in tests and single-node deployments. The connection is pinged before
// it is returned.
//
// # Schema Inspection
//
// GetTableColumns and ColumnSet read the live columns of a table. The legacy catalog
// source uses them at startup to check that every configured column exists.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    return err
//	}
//
//	cols, err := database.ColumnSet(db, "item_record")
package database
