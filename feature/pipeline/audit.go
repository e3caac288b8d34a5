package pipeline

import (
	"context"
	"fmt"
	"time"

	"holdings-sync/core/reconcile"
	"holdings-sync/feature/changes"

	"go.uber.org/zap"
)

// ReviewPruner is implemented by review stores that can list entries and delete them in bulk.
type ReviewPruner interface {
	List(ctx context.Context) ([]string, error)
	Prune(ctx context.Context, recordIDs []string) error
}

// AuditIndexer applies audit plans. Deleted documents also lose their record state and
// review entry; missing records go back through the queue instead of being written directly.
type AuditIndexer struct {
	indexer reconcile.Indexer
	state   *StateStore
	queue   Queue
	reviews ReviewStore
	logger  *zap.Logger
	now     func() time.Time
}

var (
	_ reconcile.Indexer  = (*AuditIndexer)(nil)
	_ reconcile.Enqueuer = (*AuditIndexer)(nil)
	_ reconcile.Flusher  = (*AuditIndexer)(nil)
)

// NewAuditIndexer wraps indexer. reviews may be nil.
func NewAuditIndexer(indexer reconcile.Indexer, state *StateStore, q Queue, reviews ReviewStore, logger *zap.Logger) *AuditIndexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditIndexer{
		indexer: indexer,
		state:   state,
		queue:   q,
		reviews: reviews,
		logger:  logger,
		now:     time.Now,
	}
}

func (a *AuditIndexer) Name() string {
	return a.indexer.Name()
}

func (a *AuditIndexer) Upsert(ctx context.Context, docs []reconcile.Document) error {
	return a.indexer.Upsert(ctx, docs)
}

// Delete removes orphans from the index, then forgets their state.
func (a *AuditIndexer) Delete(ctx context.Context, ids []string) error {
	if err := a.indexer.Delete(ctx, ids); err != nil {
		return err
	}
	if err := a.state.Delete(ctx, ids); err != nil {
		return err
	}
	if a.reviews == nil {
		return nil
	}
	if p, ok := a.reviews.(ReviewPruner); ok {
		if err := p.Prune(ctx, ids); err != nil {
			a.logger.Warn("Failed to prune review entries", zap.Int("records", len(ids)), zap.Error(err))
		}
		return nil
	}
	for _, id := range ids {
		if err := a.reviews.Remove(ctx, id); err != nil {
			a.logger.Warn("Failed to remove review entry", zap.String("record_id", id), zap.Error(err))
		}
	}
	return nil
}

// EnqueueMissing schedules records absent from the index with an OTHER cause.
func (a *AuditIndexer) EnqueueMissing(ctx context.Context, ids []string) error {
	now := a.now()
	for _, id := range ids {
		c := changes.Change{Type: changes.Other, SubjectID: id, Detail: "audit", Timestamp: now}
		if err := a.queue.Enqueue(ctx, id, []changes.Change{c}); err != nil {
			return fmt.Errorf("failed to enqueue %s: %w", id, err)
		}
	}
	return nil
}

// Flush waits for the wrapped indexer, if it buffers writes.
func (a *AuditIndexer) Flush(ctx context.Context) error {
	if f, ok := a.indexer.(reconcile.Flusher); ok {
		return f.Flush(ctx)
	}
	return nil
}

// PruneReviews deletes review entries of records that have no indexed state.
// It returns the number of pruned entries.
func (a *AuditIndexer) PruneReviews(ctx context.Context) (int, error) {
	p, ok := a.reviews.(ReviewPruner)
	if !ok {
		return 0, nil
	}
	ids, err := p.List(ctx)
	if err != nil {
		return 0, err
	}
	states, err := a.state.Get(ctx, ids)
	if err != nil {
		return 0, err
	}
	var stale []string
	for _, id := range ids {
		if _, ok := states[id]; !ok {
			stale = append(stale, id)
		}
	}
	if err := p.Prune(ctx, stale); err != nil {
		return 0, err
	}
	return len(stale), nil
}
