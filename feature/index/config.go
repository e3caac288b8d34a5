package index

import (
	"time"

	"holdings-sync/core/reconcile"
)

// Config holds configuration for the search index.
type Config struct {
	// Host is the URL of the Meilisearch server.
	Host string `mapstructure:"host" default:"http://localhost:7700"`
	// APIKey authenticates index requests.
	APIKey string `mapstructure:"api_key" default:""`
	// Name is the index uid.
	Name string `mapstructure:"name" default:"availability"`
	// BatchSize is the number of documents per write request.
	BatchSize int `mapstructure:"batch_size" default:"100"`
	// Workers bounds concurrent write requests.
	Workers int `mapstructure:"workers" default:"4"`
	// WaitInterval is the polling interval while waiting on index tasks.
	WaitInterval time.Duration `mapstructure:"wait_interval" default:"250ms"`
	// FlushTimeout bounds a single flush.
	FlushTimeout time.Duration `mapstructure:"flush_timeout" default:"2m"`
}

// WriteOptions returns the write limits for reconcile.ApplyPlan.
func (c Config) WriteOptions() reconcile.Options {
	return reconcile.Options{BatchSize: c.BatchSize, Workers: c.Workers}
}
