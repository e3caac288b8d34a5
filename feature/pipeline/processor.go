package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"holdings-sync/core/reconcile"
	"holdings-sync/feature/catalog"
	"holdings-sync/feature/catalog/models"
	"holdings-sync/feature/changes"
	"holdings-sync/feature/index"
	"holdings-sync/feature/queue"
	"holdings-sync/feature/review"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "holdings-sync/pipeline"

// Queue is the part of the work queue the processor consumes.
type Queue interface {
	Claim(ctx context.Context, batchSize int, checker queue.ActiveChecker) (*queue.Batch, error)
	Complete(ctx context.Context, ids []uint64) error
	Enqueue(ctx context.Context, subjectID string, cs []changes.Change) error
	ReleaseClaimed(ctx context.Context) (int, error)
}

// RecordSource loads records from the upstream catalog.
type RecordSource interface {
	FetchRecord(ctx context.Context, id string) (*models.Record, error)
	IsActive(ctx context.Context, id string) (bool, error)
}

// ReviewStore archives ambiguous outcomes.
type ReviewStore interface {
	Put(ctx context.Context, e review.Entry) error
	Remove(ctx context.Context, recordID string) error
}

// Processor is the single consumer of the work queue.
type Processor struct {
	queue   Queue
	source  RecordSource
	indexer reconcile.Indexer
	state   *StateStore
	reviews ReviewStore
	builder *Builder
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time

	tracer  trace.Tracer
	records metric.Int64Counter
	retries metric.Int64Counter

	batches int
}

// NewProcessor creates a processor. reviews may be nil to disable the review archive.
func NewProcessor(q Queue, source RecordSource, indexer reconcile.Indexer, state *StateStore,
	reviews ReviewStore, builder *Builder, cfg Config, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if builder == nil {
		builder = NewBuilder(nil, nil, nil)
	}
	p := &Processor{
		queue:   q,
		source:  source,
		indexer: indexer,
		state:   state,
		reviews: reviews,
		builder: builder,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "processor")),
		now:     time.Now,
		tracer:  otel.Tracer(instrumentationName),
	}

	meter := otel.Meter(instrumentationName)
	var err error
	if p.records, err = meter.Int64Counter("pipeline.records",
		metric.WithDescription("Records processed, by index action")); err != nil {
		p.logger.Warn("Failed to create records counter", zap.Error(err))
		p.records = noop.Int64Counter{}
	}
	if p.retries, err = meter.Int64Counter("pipeline.batch_retries",
		metric.WithDescription("Failed batch attempts")); err != nil {
		p.logger.Warn("Failed to create retries counter", zap.Error(err))
		p.retries = noop.Int64Counter{}
	}
	return p
}

// Run consumes the queue until the context is cancelled.
//
// Rows left claimed by a previous consumer are released first. A failed batch keeps
// its rows claimed and is retried with exponential backoff until it succeeds.
func (p *Processor) Run(ctx context.Context) error {
	released, err := p.queue.ReleaseClaimed(ctx)
	if err != nil {
		return fmt.Errorf("failed to release claimed work: %w", err)
	}
	if released > 0 {
		p.logger.Info("Released work left claimed by a previous run", zap.Int("rows", released))
	}

	bo := backoff.NewExponentialBackOff()
	if p.cfg.MaxBackoff > 0 {
		bo.MaxInterval = p.cfg.MaxBackoff
	}

	p.logger.Info("Processor started",
		zap.Int("batch_size", p.cfg.BatchSize),
		zap.Int("urgent_threshold", p.cfg.UrgentThreshold),
	)

	var held *queue.Batch
	for ctx.Err() == nil {
		if held == nil {
			batch, err := p.queue.Claim(ctx, p.cfg.BatchSize, p.source)
			if err != nil {
				if ctx.Err() != nil {
					break
				}
				wait := bo.NextBackOff()
				p.logger.Error("Failed to claim work", zap.Duration("retry_in", wait), zap.Error(err))
				sleep(ctx, wait)
				continue
			}
			if batch.Empty() {
				if len(batch.Dropped) > 0 {
					// Only inactive work was claimed; more may be waiting behind it.
					continue
				}
				p.flush(ctx)
				sleep(ctx, p.cfg.EmptySleep)
				continue
			}
			held = batch
		}

		if err := p.Process(ctx, held); err != nil {
			if ctx.Err() != nil {
				break
			}
			wait := bo.NextBackOff()
			p.retries.Add(ctx, 1)
			p.logger.Warn("Batch failed, retrying",
				zap.Strings("record_ids", subjectIDs(held)),
				zap.Int("priority", held.Priority),
				zap.Duration("retry_in", wait),
				zap.Error(err),
			)
			sleep(ctx, wait)
			continue
		}

		held = nil
		bo.Reset()
		p.batches++
		if p.cfg.FlushEvery > 0 && p.batches%p.cfg.FlushEvery == 0 {
			p.flush(ctx)
		}
	}

	p.logger.Info("Processor stopped")
	return nil
}

// RunOnce claims and processes a single batch. It reports false when the queue was empty.
// A claim that only dropped inactive work reports true, as more may be queued behind it.
func (p *Processor) RunOnce(ctx context.Context) (bool, error) {
	batch, err := p.queue.Claim(ctx, p.cfg.BatchSize, p.source)
	if err != nil {
		return false, fmt.Errorf("failed to claim work: %w", err)
	}
	if batch.Empty() {
		return len(batch.Dropped) > 0, nil
	}
	return true, p.Process(ctx, batch)
}

// Process reconciles every claimed record of the batch and writes the changed documents.
// The batch's queue rows are deleted only after the index accepted every write.
func (p *Processor) Process(ctx context.Context, batch *queue.Batch) error {
	ctx, span := p.tracer.Start(ctx, "pipeline.process", trace.WithAttributes(
		attribute.Int("batch.priority", batch.Priority),
		attribute.Int("batch.records", len(batch.Claims)),
	))
	defer span.End()

	if err := p.process(ctx, batch); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (p *Processor) process(ctx context.Context, batch *queue.Batch) error {
	ids := subjectIDs(batch)
	previous, err := p.state.Get(ctx, ids)
	if err != nil {
		return err
	}

	outcomes := make(map[string]*Outcome, len(ids))
	entries := make([]reconcile.Entry, 0, len(ids))
	for _, claim := range batch.Claims {
		prev, stored := previous[claim.SubjectID]
		o, err := p.build(ctx, claim.SubjectID, prev, stored)
		if err != nil {
			return err
		}
		if o.Discrepancy {
			p.logger.Warn("Multivolume conclusion changed",
				zap.String("record_id", o.RecordID),
				zap.Bool("previous", prev.Multivol),
				zap.Bool("current", o.Multivol.Multivol()),
			)
		}
		outcomes[o.RecordID] = o

		entry := reconcile.Entry{ID: o.RecordID, Hash: o.Hash, PreviousHash: prev.Hash}
		if o.Doc != nil {
			entry.Doc = o.Doc
		}
		entries = append(entries, entry)
	}

	plan := reconcile.PlanSync(entries)
	opts := p.cfg.Writes
	opts.Confirmed, opts.DryRun, opts.Flush = true, false, false
	if _, err := reconcile.ApplyPlan(ctx, p.indexer, plan, opts); err != nil {
		return err
	}

	now := p.now()
	var (
		saved   []RecordState
		deleted []string
	)
	for _, action := range plan.Actions {
		o := outcomes[action.Key]
		prev := previous[action.Key]
		switch action.Type {
		case reconcile.ActionUpsert:
			if err := p.fanOut(ctx, o, now); err != nil {
				return err
			}
			p.archive(ctx, o, prev, now)
			saved = append(saved, RecordState{
				RecordID:    o.RecordID,
				Hash:        o.Hash,
				Multivol:    o.Doc.Multivol,
				NeedsReview: o.NeedsReview(),
				Flags:       strings.Join(o.Doc.Flags, ","),
				UpdatedAt:   now,
			})
		case reconcile.ActionDelete:
			p.archive(ctx, o, prev, now)
			deleted = append(deleted, action.Key)
		}
		p.records.Add(ctx, 1, metric.WithAttributes(attribute.String("action", string(action.Type))))
	}
	if plan.Summary.Unchanged > 0 {
		p.records.Add(ctx, int64(plan.Summary.Unchanged), metric.WithAttributes(attribute.String("action", "unchanged")))
	}

	if err := p.state.Save(ctx, saved); err != nil {
		return err
	}
	if err := p.state.Delete(ctx, deleted); err != nil {
		return err
	}

	if p.cfg.IsUrgent(batch.Priority) && len(plan.Actions) > 0 {
		if f, ok := p.indexer.(reconcile.Flusher); ok {
			if err := p.resolveFlush(ctx, f.Flush(ctx)); err != nil {
				return fmt.Errorf("failed to flush urgent batch: %w", err)
			}
		}
	}

	if err := p.queue.Complete(ctx, batch.EntryIDs()); err != nil {
		return err
	}

	p.logger.Debug("Batch processed",
		zap.Int("priority", batch.Priority),
		zap.Int("records", plan.Summary.Total),
		zap.Int("upserts", plan.Summary.Upserts),
		zap.Int("deletes", plan.Summary.Deletes),
		zap.Int("unchanged", plan.Summary.Unchanged),
	)
	return nil
}

// build fetches and reconciles one record. A record missing upstream yields an outcome without a document.
func (p *Processor) build(ctx context.Context, id string, prev RecordState, stored bool) (*Outcome, error) {
	rec, err := p.source.FetchRecord(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		p.logger.Info("Record no longer exists upstream", zap.String("record_id", id))
		return &Outcome{RecordID: id}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", id, err)
	}

	var previousMultivol *bool
	if stored && prev.Hash != "" {
		previousMultivol = &prev.Multivol
	}
	o, err := p.builder.Build(rec, previousMultivol)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s: %w", id, err)
	}
	return o, nil
}

// fanOut enqueues the bound-with masters of a changed record.
func (p *Processor) fanOut(ctx context.Context, o *Outcome, now time.Time) error {
	for _, master := range o.Masters {
		if master == o.RecordID {
			continue
		}
		c := changes.Change{Type: changes.Other, SubjectID: master, Detail: "bound-with " + o.RecordID, Timestamp: now}
		if err := p.queue.Enqueue(ctx, master, []changes.Change{c}); err != nil {
			return fmt.Errorf("failed to enqueue bound-with master %s of %s: %w", master, o.RecordID, err)
		}
	}
	return nil
}

// archive writes or clears the review of a record. Failures are logged only.
func (p *Processor) archive(ctx context.Context, o *Outcome, prev RecordState, now time.Time) {
	if p.reviews == nil {
		return
	}
	switch {
	case o.NeedsReview():
		var previous *bool
		if o.Discrepancy {
			previous = &prev.Multivol
		}
		if err := p.reviews.Put(ctx, o.Review(previous, now)); err != nil {
			p.logger.Warn("Failed to archive review", zap.String("record_id", o.RecordID), zap.Error(err))
		}
	case prev.NeedsReview:
		if err := p.reviews.Remove(ctx, o.RecordID); err != nil {
			p.logger.Warn("Failed to remove review", zap.String("record_id", o.RecordID), zap.Error(err))
		}
	}
}

// flush waits for outstanding index tasks between batches.
func (p *Processor) flush(ctx context.Context) {
	f, ok := p.indexer.(reconcile.Flusher)
	if !ok {
		return
	}
	if err := p.resolveFlush(ctx, f.Flush(ctx)); err != nil && ctx.Err() == nil {
		p.logger.Error("Index flush failed", zap.Error(err))
	}
}

// resolveFlush turns failed index tasks back into queued work. Records named by a
// *index.FlushError lose their stored hash and are enqueued again.
func (p *Processor) resolveFlush(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	ids := index.FailedIDs(err)
	if len(ids) == 0 {
		return err
	}
	if err := p.state.Invalidate(ctx, ids); err != nil {
		return err
	}
	now := p.now()
	for _, id := range ids {
		c := changes.Change{Type: changes.Other, SubjectID: id, Detail: "index write failed", Timestamp: now}
		if err := p.queue.Enqueue(ctx, id, []changes.Change{c}); err != nil {
			return fmt.Errorf("failed to requeue %s: %w", id, err)
		}
	}
	p.logger.Warn("Requeued records whose index writes failed", zap.Strings("record_ids", ids))
	return nil
}

// Preview is a dry-run reconciliation of one record.
type Preview struct {
	*Outcome
	Stored  *RecordState `json:"stored,omitempty"`
	Changed bool         `json:"changed"`
}

// Preview reconciles a record without writing anything.
// It returns catalog.ErrNotFound if the record does not exist upstream.
func (p *Processor) Preview(ctx context.Context, id string) (*Preview, error) {
	states, err := p.state.Get(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	prev, stored := states[id]

	rec, err := p.source.FetchRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	var previousMultivol *bool
	if stored && prev.Hash != "" {
		previousMultivol = &prev.Multivol
	}
	o, err := p.builder.Build(rec, previousMultivol)
	if err != nil {
		return nil, err
	}

	out := &Preview{Outcome: o, Changed: !stored || prev.Hash != o.Hash}
	if stored {
		out.Stored = &prev
	}
	return out, nil
}

func subjectIDs(b *queue.Batch) []string {
	ids := make([]string, len(b.Claims))
	for n, c := range b.Claims {
		ids[n] = c.SubjectID
	}
	return ids
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
