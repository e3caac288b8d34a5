package pipeline

import (
	"time"

	"holdings-sync/core/reconcile"
)

// Config holds configuration for the queue processor.
type Config struct {
	// BatchSize is the maximum number of records claimed per batch.
	BatchSize int `mapstructure:"batch_size" default:"4"`
	// EmptySleep is the pause after claiming an empty batch.
	EmptySleep time.Duration `mapstructure:"empty_sleep" default:"3s"`
	// UrgentThreshold is the highest priority treated as urgent.
	UrgentThreshold int `mapstructure:"urgent_threshold" default:"5"`
	// FlushUrgent blocks on an index flush after urgent batches.
	FlushUrgent bool `mapstructure:"flush_urgent" default:"true"`
	// FlushEvery flushes the index after this many batches. Zero flushes only when idle.
	FlushEvery int `mapstructure:"flush_every" default:"25"`
	// MaxBackoff caps the sleep between retries of a failed batch.
	MaxBackoff time.Duration `mapstructure:"max_backoff" default:"1m"`
	// Writes bounds index write requests. It is set from the index section.
	Writes reconcile.Options
}

// IsUrgent reports whether a batch at priority must be flushed before the next claim.
func (c Config) IsUrgent(priority int) bool {
	return c.FlushUrgent && priority <= c.UrgentThreshold
}
