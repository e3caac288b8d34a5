package legacy

import "holdings-sync/core/database"

// Config holds configuration for the legacy catalog connection.
type Config struct {
	// Database is the connection to the legacy catalog.
	Database database.Config `mapstructure:"database"`
	// Schema overrides table names of the legacy catalog.
	Schema Schema `mapstructure:"schema"`
	// Verify checks the schema at startup.
	Verify bool `mapstructure:"verify" default:"true"`
}
