package storage

import "time"

// Config holds configuration for the object store backing the review archive.
type Config struct {
	// Enabled turns the review archive on.
	Enabled bool `mapstructure:"enabled" default:"false"`
	// Endpoint is the host of the S3 compatible service. A scheme prefix is ignored.
	Endpoint  string `mapstructure:"endpoint" default:"localhost:9000"`
	AccessKey string `mapstructure:"access_key" default:"minioadmin"`
	SecretKey string `mapstructure:"secret_key" default:"minioadmin"`
	UseSSL    bool   `mapstructure:"use_ssl" default:"false"`
	// Bucket holds one review object per record.
	Bucket string `mapstructure:"bucket" default:"holdings-sync"`
	Region string `mapstructure:"region" default:""`
	// TimeoutSeconds bounds connection setup and the first response byte.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"30"`
}

// Timeout returns the configured timeout, defaulting to 30 seconds.
func (c Config) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}
