package pipeline

import (
	"context"
	"testing"
	"time"

	"holdings-sync/core/reconcile"
	"holdings-sync/feature/changes"
	"holdings-sync/feature/review"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditIndexer_ApplyAudit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	require.NoError(t, f.state.Save(ctx, []RecordState{
		{RecordID: "1", Hash: "a", UpdatedAt: t0},
		{RecordID: "3", Hash: "c", NeedsReview: true, UpdatedAt: t0},
	}))

	results := []reconcile.Result{
		{ID: "1", UpstreamPresent: true, IndexPresent: true},
		{ID: "2", UpstreamPresent: true},
		{ID: "3", IndexPresent: true},
	}
	plan := reconcile.PlanAudit(results, reconcile.Options{DoPurge: true, DoEnqueue: true})
	require.Len(t, plan.Actions, 2)

	a := NewAuditIndexer(f.indexer, f.state, f.queue, f.reviews, nil)
	a.now = func() time.Time { return t0 }
	executed, err := reconcile.ApplyPlan(ctx, a, plan, reconcile.Options{Confirmed: true, Flush: true})
	require.NoError(t, err)
	assert.Equal(t, 2, executed)

	assert.Equal(t, []string{"3"}, f.indexer.deleted)
	assert.Equal(t, []string{"3"}, f.reviews.removed)
	assert.Equal(t, 1, f.indexer.flushes)
	_, ok := f.stored(t, "3")
	assert.False(t, ok)
	_, ok = f.stored(t, "1")
	assert.True(t, ok)

	rows := f.pending(t)
	require.Len(t, rows, 1)
	assert.Equal(t, "2", rows[0].SubjectID)
	causes, err := rows[0].Causes()
	require.NoError(t, err)
	require.Len(t, causes, 1)
	assert.Equal(t, changes.Other, causes[0].Type)
	assert.Equal(t, "audit", causes[0].Detail)
}

type prunableReviews struct {
	fakeReviews
	listed []string
	pruned []string
}

func (p *prunableReviews) List(context.Context) ([]string, error) {
	return p.listed, nil
}

func (p *prunableReviews) Prune(_ context.Context, ids []string) error {
	p.pruned = append(p.pruned, ids...)
	return nil
}

func TestAuditIndexer_Prune(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	require.NoError(t, f.state.Save(ctx, []RecordState{
		{RecordID: "1", Hash: "a", NeedsReview: true, UpdatedAt: t0},
		{RecordID: "4", Hash: "d", NeedsReview: true, UpdatedAt: t0},
	}))
	reviews := &prunableReviews{fakeReviews: fakeReviews{put: make(map[string]review.Entry)}, listed: []string{"1", "2", "4"}}
	a := NewAuditIndexer(f.indexer, f.state, f.queue, reviews, nil)

	t.Run("DeleteUsesBatch", func(t *testing.T) {
		require.NoError(t, a.Delete(ctx, []string{"4"}))
		assert.Equal(t, []string{"4"}, reviews.pruned)
		assert.Empty(t, reviews.removed)
	})

	t.Run("StaleReviews", func(t *testing.T) {
		reviews.pruned = nil
		n, err := a.PruneReviews(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, []string{"2", "4"}, reviews.pruned)
	})
}
