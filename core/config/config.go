package config

import (
	"fmt"
	"reflect"
	"strings"

	"holdings-sync/core/database"
	"holdings-sync/core/logger"
	"holdings-sync/core/server"
	"holdings-sync/core/storage"
	"holdings-sync/core/tracing"
	"holdings-sync/feature/catalog"
	"holdings-sync/feature/catalog/legacy"
	"holdings-sync/feature/changes"
	"holdings-sync/feature/index"
	"holdings-sync/feature/pipeline"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// It is divided into partial configurations for better modularity.
type Config struct {
	// Server holds configuration for the status HTTP server.
	Server server.Config `mapstructure:"server"`
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
	// Database is the store of the work queue, cursors and record state.
	Database database.Config `mapstructure:"database"`
	// Legacy is the relational legacy catalog.
	Legacy legacy.Config `mapstructure:"legacy"`
	// Catalog selects the upstream catalog and configures the REST client.
	Catalog catalog.Config `mapstructure:"catalog"`
	// Queue configures the queue processor.
	Queue pipeline.Config `mapstructure:"queue"`
	// Detector configures the change detector lanes.
	Detector changes.Config `mapstructure:"detector"`
	// Index configures the search index.
	Index index.Config `mapstructure:"index"`
	// Storage holds configuration for the review archive bucket.
	Storage storage.Config `mapstructure:"storage"`
	// Tracing configures span export.
	Tracing tracing.Config `mapstructure:"tracing"`
}

// Validate reports settings that make startup impossible.
func (c *Config) Validate() error {
	if !c.Catalog.IsValidSource() {
		return fmt.Errorf("catalog.source must be %q or %q, got %q", catalog.SourceLegacy, catalog.SourceREST, c.Catalog.Source)
	}
	if c.Catalog.Source == catalog.SourceREST && c.Catalog.Tenant == "" {
		return fmt.Errorf("catalog.tenant is required for the %s catalog", catalog.SourceREST)
	}
	if c.Queue.BatchSize <= 0 {
		return fmt.Errorf("queue.batch_size must be positive, got %d", c.Queue.BatchSize)
	}
	if c.Index.Host == "" {
		return fmt.Errorf("index.host is required")
	}
	return nil
}

// LoadConfig loads configuration from environment variables and an optional .env file in path.
func LoadConfig(path string) (*Config, error) {
	envPath := path + "/.env"
	if path == "." {
		envPath = ".env"
	}

	// A missing .env is normal in production.
	_ = godotenv.Overload(envPath)

	v := viper.New()

	// Register every key with its default so AutomaticEnv can resolve it.
	bindValues(v, Config{}, "")

	// Map environment variables to nested keys (e.g. QUEUE_BATCH_SIZE -> queue.batch_size)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// bindValues uses reflection to iterate over the struct and set default values in Viper
// based on the 'default' and 'mapstructure' tags.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		// time.Duration is an int64, so only real structs are walked.
		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		// Always set the default, even if empty, to register the key for AutomaticEnv.
		v.SetDefault(key, field.Tag.Get("default"))
	}
}
