package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testDoc struct{ id string }

func (d testDoc) DocumentID() string { return d.id }

// mockIndexer records writes and can be told to fail.
type mockIndexer struct {
	mock.Mock
	mu       sync.Mutex
	upserted []string
	deleted  []string
}

func (m *mockIndexer) Name() string { return "test" }

func (m *mockIndexer) Upsert(ctx context.Context, docs []Document) error {
	args := m.Called(ctx, len(docs))
	if err := args.Error(0); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range docs {
		m.upserted = append(m.upserted, d.DocumentID())
	}
	return nil
}

func (m *mockIndexer) Delete(ctx context.Context, ids []string) error {
	args := m.Called(ctx, ids)
	if err := args.Error(0); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, ids...)
	return nil
}

type flushingIndexer struct {
	*mockIndexer
	flushed int
	queued  []string
}

func (f *flushingIndexer) Flush(ctx context.Context) error {
	f.flushed++
	return nil
}

func (f *flushingIndexer) EnqueueMissing(ctx context.Context, ids []string) error {
	f.queued = append(f.queued, ids...)
	return nil
}

func TestPlanSync(t *testing.T) {
	plan := PlanSync([]Entry{
		{ID: "1", Doc: testDoc{"1"}, Hash: "a"},
		{ID: "2", Doc: testDoc{"2"}, Hash: "b", PreviousHash: "b"},
		{ID: "3", Doc: testDoc{"3"}, Hash: "c", PreviousHash: "x"},
		{ID: "4", PreviousHash: "d"},
	})

	assert.Equal(t, PlanSummary{Total: 4, Unchanged: 1, Upserts: 2, Deletes: 1}, plan.Summary)
	require.Len(t, plan.Actions, 3)
	assert.Equal(t, Action{Type: ActionUpsert, Key: "1", Reason: "new", Doc: testDoc{"1"}}, plan.Actions[0])
	assert.Equal(t, "changed", plan.Actions[1].Reason)
	assert.Equal(t, ActionDelete, plan.Actions[2].Type)
}

func TestPlanAudit(t *testing.T) {
	results := []Result{
		{ID: "1", UpstreamPresent: true, IndexPresent: true},
		{ID: "2", UpstreamPresent: true},
		{ID: "3", IndexPresent: true},
	}

	plan := PlanAudit(results, Options{})
	assert.Empty(t, plan.Actions, "report only without flags")
	assert.Equal(t, 1, plan.Summary.MissingIndex)
	assert.Equal(t, 1, plan.Summary.Orphans)

	plan = PlanAudit(results, Options{DoPurge: true, DoEnqueue: true})
	require.Len(t, plan.Actions, 2)
	assert.Equal(t, ActionEnqueue, plan.Actions[0].Type)
	assert.Equal(t, "2", plan.Actions[0].Key)
	assert.Equal(t, ActionDelete, plan.Actions[1].Type)
	assert.Equal(t, "3", plan.Actions[1].Key)
}

func TestApplyPlan_ConfirmationGating(t *testing.T) {
	idx := new(mockIndexer)
	plan := PlanSync([]Entry{{ID: "1", Doc: testDoc{"1"}}})

	n, err := ApplyPlan(context.Background(), idx, plan, Options{Confirmed: false})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = ApplyPlan(context.Background(), idx, plan, Options{Confirmed: true, DryRun: true})
	require.NoError(t, err)
	assert.Zero(t, n)

	idx.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestApplyPlan_Batches(t *testing.T) {
	idx := new(mockIndexer)
	idx.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	idx.On("Delete", mock.Anything, mock.Anything).Return(nil)

	var entries []Entry
	for i := 0; i < 250; i++ {
		id := fmt.Sprint(i)
		entries = append(entries, Entry{ID: id, Doc: testDoc{id}})
	}
	entries = append(entries, Entry{ID: "gone"})

	n, err := ApplyPlan(context.Background(), idx, PlanSync(entries), Options{Confirmed: true, BatchSize: 100, Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, 251, n)
	assert.Len(t, idx.upserted, 250)
	assert.Equal(t, []string{"gone"}, idx.deleted)
	idx.AssertNumberOfCalls(t, "Upsert", 3)
	idx.AssertCalled(t, "Upsert", mock.Anything, 50)
}

func TestApplyPlan_Error(t *testing.T) {
	idx := new(mockIndexer)
	idx.On("Upsert", mock.Anything, mock.Anything).Return(errors.New("index unavailable"))

	n, err := ApplyPlan(context.Background(), idx, PlanSync([]Entry{{ID: "1", Doc: testDoc{"1"}}}), Options{Confirmed: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index unavailable")
	assert.Zero(t, n)
}

func TestApplyPlan_EnqueueRequiresEnqueuer(t *testing.T) {
	plan := &Plan{Actions: []Action{{Type: ActionEnqueue, Key: "1"}}}

	_, err := ApplyPlan(context.Background(), new(mockIndexer), plan, Options{Confirmed: true})
	assert.ErrorContains(t, err, "does not implement Enqueuer")

	idx := &flushingIndexer{mockIndexer: new(mockIndexer)}
	n, err := ApplyPlan(context.Background(), idx, plan, Options{Confirmed: true, Flush: true})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"1"}, idx.queued)
	assert.Equal(t, 1, idx.flushed)
}
