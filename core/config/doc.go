// Package config provides configuration management for holdings-sync.
//
// Settings come from environment variables, optionally seeded from a .env file.
// Every field declares its key with a mapstructure tag and its default with a
// default tag; nested sections map to underscored prefixes, so queue.batch_size
// is read from QUEUE_BATCH_SIZE and legacy.database.host from LEGACY_DATABASE_HOST.
//
// # Sections
//
//   - server: status API listen address and API key
//   - log: level and encoding
//   - database: queue, cursor and record state store
//   - legacy: legacy catalog connection and table names
//   - catalog: source selection and REST client limits
//   - queue: processor batch size, sleeps and flush policy
//   - detector: lane interval, clock skew and lane selection
//   - index: search engine host, key and index name
//   - storage: review archive bucket
//   - tracing: OTLP endpoint and sampling
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config
