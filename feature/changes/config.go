package changes

import (
	"strings"
	"time"
)

// Config holds configuration for the change detector lanes.
type Config struct {
	// Interval is the pause between ticks of a lane.
	Interval time.Duration `mapstructure:"interval" default:"30s"`
	// Skew is how far behind the clock the watermark trails.
	Skew time.Duration `mapstructure:"skew" default:"2m"`
	// Lanes is a comma separated subset of lanes to run. Empty runs every lane of the source.
	Lanes string `mapstructure:"lanes" default:""`
}

// Options converts the configuration into detector options.
func (c Config) Options() Options {
	return Options{Interval: c.Interval, Skew: c.Skew}
}

// Select filters available lanes by the configured subset, keeping their order.
func (c Config) Select(available []string) []string {
	if strings.TrimSpace(c.Lanes) == "" {
		return available
	}
	want := make(map[string]bool)
	for _, l := range strings.Split(c.Lanes, ",") {
		if l = strings.TrimSpace(l); l != "" {
			want[l] = true
		}
	}
	var out []string
	for _, l := range available {
		if want[l] {
			out = append(out, l)
		}
	}
	return out
}
