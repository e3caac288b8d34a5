// Package changes detects upstream mutations by polling each catalog lane
// against a persisted watermark.
package changes

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Poller lists the changes of a lane at or after a point in time.
// The bound is inclusive so that a change sharing the watermark's timestamp is never lost.
type Poller interface {
	ChangedSince(ctx context.Context, lane string, since time.Time) ([]Change, error)
}

// Sink persists enqueued changes together with the lane watermark.
type Sink interface {
	// Watermark returns the lane's watermark, or the zero time if none was stored.
	Watermark(ctx context.Context, lane string) (time.Time, error)
	// Commit enqueues the changes and stores the watermark in one transaction.
	Commit(ctx context.Context, lane string, changes []Change, watermark time.Time) error
}

// Options tune a detector lane.
type Options struct {
	// Interval is the pause between ticks.
	Interval time.Duration
	// Skew is subtracted from the clock before it becomes the next watermark,
	// leaving room for upstream transactions that are still committing.
	Skew time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

type carryKey struct {
	subject string
	key     Key
}

// Detector polls one lane. It is not safe for concurrent use; run one per lane.
type Detector struct {
	lane   string
	poller Poller
	sink   Sink
	opts   Options
	logger *zap.Logger

	// previous holds the changes seen by the last successful tick.
	previous map[carryKey]struct{}
}

// NewDetector creates a detector for the lane.
func NewDetector(lane string, poller Poller, sink Sink, opts Options, logger *zap.Logger) *Detector {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		lane:   lane,
		poller: poller,
		sink:   sink,
		opts:   opts,
		logger: logger.With(zap.String("lane", lane)),
	}
}

// Lane returns the lane name.
func (d *Detector) Lane() string {
	return d.lane
}

// Tick polls once and commits what it found. It returns the number of changes enqueued.
// The watermark only moves forward and only together with the enqueued changes.
func (d *Detector) Tick(ctx context.Context) (int, error) {
	cutoff := d.opts.Now().Add(-d.opts.Skew)

	since, err := d.sink.Watermark(ctx, d.lane)
	if err != nil {
		return 0, fmt.Errorf("failed to read watermark: %w", err)
	}

	found, err := d.poller.ChangedSince(ctx, d.lane, since)
	if err != nil {
		return 0, fmt.Errorf("failed to poll changes since %s: %w", since.Format(time.RFC3339), err)
	}

	seen := make(map[carryKey]struct{}, len(found))
	fresh := make([]Change, 0, len(found))
	for _, c := range found {
		k := carryKey{subject: c.SubjectID, key: c.Key()}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if _, carried := d.previous[k]; carried {
			continue
		}
		fresh = append(fresh, c)
	}

	next := since
	if cutoff.After(next) {
		next = cutoff
	}

	if err := d.sink.Commit(ctx, d.lane, fresh, next); err != nil {
		return 0, fmt.Errorf("failed to commit %d changes: %w", len(fresh), err)
	}
	d.previous = seen

	if len(fresh) > 0 {
		d.logger.Debug("Changes enqueued",
			zap.Int("count", len(fresh)),
			zap.Int("carried", len(found)-len(fresh)),
			zap.Time("watermark", next),
		)
	}
	return len(fresh), nil
}

// Run ticks until the context is cancelled. Failed ticks are logged and retried on the next interval.
func (d *Detector) Run(ctx context.Context) error {
	interval := d.opts.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.logger.Info("Change detector started", zap.Duration("interval", interval), zap.Duration("skew", d.opts.Skew))
	for {
		if _, err := d.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.logger.Error("Change detection failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
