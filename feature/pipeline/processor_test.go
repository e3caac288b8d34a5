package pipeline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"holdings-sync/core/reconcile"
	"holdings-sync/feature/catalog"
	"holdings-sync/feature/catalog/models"
	"holdings-sync/feature/changes"
	"holdings-sync/feature/index"
	"holdings-sync/feature/queue"
	"holdings-sync/feature/review"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu      sync.Mutex
	records map[string]func() *models.Record
	active  map[string]bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{records: make(map[string]func() *models.Record), active: make(map[string]bool)}
}

func (f *fakeSource) FetchRecord(_ context.Context, id string) (*models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if build, ok := f.records[id]; ok {
		return build(), nil
	}
	return nil, catalog.ErrNotFound
}

func (f *fakeSource) IsActive(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.active[id]; ok {
		return v, nil
	}
	_, ok := f.records[id]
	return ok, nil
}

type fakeIndexer struct {
	mu       sync.Mutex
	docs     map[string]reconcile.Document
	upserts  int
	deleted  []string
	writeErr error
	failOn   string
	flushErr error
	flushes  int
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{docs: make(map[string]reconcile.Document)}
}

func (f *fakeIndexer) Name() string { return "fake" }

func (f *fakeIndexer) Upsert(_ context.Context, docs []reconcile.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	for _, d := range docs {
		if f.failOn != "" && d.DocumentID() == f.failOn {
			return fmt.Errorf("chunk with %s rejected", f.failOn)
		}
	}
	for _, d := range docs {
		f.docs[d.DocumentID()] = d
		f.upserts++
	}
	return nil
}

func (f *fakeIndexer) Delete(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	for _, id := range ids {
		delete(f.docs, id)
	}
	f.deleted = append(f.deleted, ids...)
	return nil
}

func (f *fakeIndexer) Flush(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	err := f.flushErr
	f.flushErr = nil
	return err
}

func (f *fakeIndexer) has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.docs[id]
	return ok
}

type fakeReviews struct {
	mu      sync.Mutex
	put     map[string]review.Entry
	removed []string
}

func (f *fakeReviews) Put(_ context.Context, e review.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.put[e.RecordID] = e
	return nil
}

func (f *fakeReviews) Remove(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	return nil
}

type fixture struct {
	db      *gorm.DB
	queue   *queue.Store
	state   *StateStore
	source  *fakeSource
	indexer *fakeIndexer
	reviews *fakeReviews
	proc    *Processor
}

func setup(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", regexp.MustCompile(`\W`).ReplaceAllString(t.Name(), "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	ctx := context.Background()
	f := &fixture{
		db:      db,
		queue:   queue.NewStore(db, nil),
		state:   NewStateStore(db),
		source:  newFakeSource(),
		indexer: newFakeIndexer(),
		reviews: &fakeReviews{put: make(map[string]review.Entry)},
	}
	require.NoError(t, f.queue.Migrate(ctx))
	require.NoError(t, f.state.Migrate(ctx))

	cfg := Config{BatchSize: 4, EmptySleep: 10 * time.Millisecond, UrgentThreshold: 5, FlushUrgent: true,
		Writes: reconcile.Options{BatchSize: 2, Workers: 2}}
	f.proc = NewProcessor(f.queue, f.source, f.indexer, f.state, f.reviews, nil, cfg, nil)
	f.proc.now = func() time.Time { return t0 }
	return f
}

func (f *fixture) enqueue(t *testing.T, typ changes.Type, id string) {
	t.Helper()
	require.NoError(t, f.queue.Enqueue(context.Background(), id, []changes.Change{{Type: typ, SubjectID: id, Timestamp: t0}}))
}

func (f *fixture) pending(t *testing.T) []queue.Entry {
	t.Helper()
	var rows []queue.Entry
	require.NoError(t, f.db.Order("id").Find(&rows).Error)
	return rows
}

func (f *fixture) stored(t *testing.T, id string) (RecordState, bool) {
	t.Helper()
	states, err := f.state.Get(context.Background(), []string{id})
	require.NoError(t, err)
	s, ok := states[id]
	return s, ok
}

func TestProcessor_FailedWriteKeepsWork(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.source.records["1"] = func() *models.Record { return book("1") }
	f.enqueue(t, changes.Bib, "1")

	batch, err := f.queue.Claim(ctx, 4, f.source)
	require.NoError(t, err)
	require.Len(t, batch.Claims, 1)

	f.indexer.writeErr = errors.New("index unavailable")
	require.ErrorContains(t, f.proc.Process(ctx, batch), "index unavailable")

	rows := f.pending(t)
	require.Len(t, rows, 1)
	assert.Equal(t, queue.ClaimedPriority, rows[0].Priority)
	_, ok := f.stored(t, "1")
	assert.False(t, ok)

	f.indexer.writeErr = nil
	require.NoError(t, f.proc.Process(ctx, batch))

	assert.Empty(t, f.pending(t))
	assert.True(t, f.indexer.has("1"))
	s, ok := f.stored(t, "1")
	require.True(t, ok)
	assert.Len(t, s.Hash, 64)
	assert.Equal(t, "BLANKENUM", s.Flags)
}

func TestProcessor_PartialWriteFailureKeepsWholeBatch(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	ids := []string{"1", "2", "3", "4"}
	for _, id := range ids {
		id := id
		f.source.records[id] = func() *models.Record { return book(id) }
		f.enqueue(t, changes.Bib, id)
	}

	batch, err := f.queue.Claim(ctx, 4, f.source)
	require.NoError(t, err)
	require.Len(t, batch.Claims, 4)

	f.indexer.failOn = "4"
	require.ErrorContains(t, f.proc.Process(ctx, batch), "chunk with 4 rejected")

	assert.False(t, f.indexer.has("4"))
	rows := f.pending(t)
	require.Len(t, rows, 4)
	for _, r := range rows {
		assert.Equal(t, queue.ClaimedPriority, r.Priority, "row for %s stays claimed", r.SubjectID)
	}
	for _, id := range ids {
		_, ok := f.stored(t, id)
		assert.False(t, ok, "no state for %s before the batch is fully written", id)
	}

	f.indexer.failOn = ""
	require.NoError(t, f.proc.Process(ctx, batch))

	assert.Empty(t, f.pending(t))
	for _, id := range ids {
		assert.True(t, f.indexer.has(id))
		_, ok := f.stored(t, id)
		assert.True(t, ok)
	}
	assert.GreaterOrEqual(t, f.indexer.upserts, 4)
}

func TestProcessor_DroppedOnlyClaimDoesNotStall(t *testing.T) {
	t.Run("RunOnce", func(t *testing.T) {
		f := setup(t)
		ctx := context.Background()
		f.source.active["9"] = false
		f.enqueue(t, changes.Circ, "9")
		f.source.records["1"] = func() *models.Record { return book("1") }
		f.enqueue(t, changes.Bib, "1")

		ok, err := f.proc.RunOnce(ctx)
		require.NoError(t, err)
		assert.True(t, ok, "a claim of only inactive work is not an empty queue")
		assert.False(t, f.indexer.has("1"))

		ok, err = f.proc.RunOnce(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, f.indexer.has("1"))

		ok, err = f.proc.RunOnce(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Run", func(t *testing.T) {
		f := setup(t)
		f.proc.cfg.EmptySleep = time.Hour
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		f.source.active["9"] = false
		f.enqueue(t, changes.Circ, "9")
		f.source.records["1"] = func() *models.Record { return book("1") }
		f.enqueue(t, changes.Bib, "1")

		done := make(chan error, 1)
		go func() { done <- f.proc.Run(ctx) }()

		require.Eventually(t, func() bool { return f.indexer.has("1") }, 5*time.Second, 10*time.Millisecond)
		cancel()
		require.NoError(t, <-done)
	})
}

func TestProcessor_UnchangedIsNotRewritten(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.source.records["1"] = func() *models.Record { return book("1") }

	f.enqueue(t, changes.Bib, "1")
	ok, err := f.proc.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	f.enqueue(t, changes.Item, "1")
	ok, err = f.proc.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, 1, f.indexer.upserts)
	assert.Empty(t, f.pending(t))

	ok, err = f.proc.RunOnce(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProcessor_MissingUpstreamDeletes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	require.NoError(t, f.state.Save(ctx, []RecordState{{RecordID: "2", Hash: "old", NeedsReview: true, UpdatedAt: t0}}))
	f.source.active["2"] = true
	f.enqueue(t, changes.Bib, "2")

	_, err := f.proc.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"2"}, f.indexer.deleted)
	_, ok := f.stored(t, "2")
	assert.False(t, ok)
	assert.Equal(t, []string{"2"}, f.reviews.removed)
	assert.Empty(t, f.pending(t))
}

func TestProcessor_FansOutToBoundWithMasters(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.source.records["1"] = func() *models.Record {
		rec := book("1")
		rec.Holdings[0].BoundWiths = map[string]models.BoundWithRef{
			"p1": {PlaceholderItemID: "p1", MasterRecordID: "9"},
		}
		rec.Items = append(rec.Items, &models.Item{ID: "p1", HoldingID: "h1", Location: olin, Active: true})
		return rec
	}
	f.enqueue(t, changes.Holding, "1")

	_, err := f.proc.RunOnce(ctx)
	require.NoError(t, err)

	rows := f.pending(t)
	require.Len(t, rows, 1)
	assert.Equal(t, "9", rows[0].SubjectID)
	assert.Equal(t, changes.Other.Priority(), rows[0].Priority)
	causes, err := rows[0].Causes()
	require.NoError(t, err)
	require.Len(t, causes, 1)
	assert.Equal(t, "bound-with 1", causes[0].Detail)
}

func TestProcessor_UrgentFlush(t *testing.T) {
	t.Run("NotUrgent", func(t *testing.T) {
		f := setup(t)
		f.source.records["1"] = func() *models.Record { return book("1") }
		f.enqueue(t, changes.Bib, "1")

		_, err := f.proc.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Zero(t, f.indexer.flushes)
	})

	t.Run("FailedTaskIsRequeued", func(t *testing.T) {
		f := setup(t)
		f.source.records["1"] = func() *models.Record { return book("1") }
		f.enqueue(t, changes.Circ, "1")
		f.indexer.flushErr = &index.FlushError{IDs: []string{"1"}, Errs: []error{errors.New("invalid document")}}

		_, err := f.proc.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, f.indexer.flushes)

		s, ok := f.stored(t, "1")
		require.True(t, ok)
		assert.Empty(t, s.Hash)

		rows := f.pending(t)
		require.Len(t, rows, 1)
		assert.Equal(t, "1", rows[0].SubjectID)
		assert.Equal(t, changes.Other.Priority(), rows[0].Priority)
	})

	t.Run("FlushErrorHoldsBatch", func(t *testing.T) {
		f := setup(t)
		f.source.records["1"] = func() *models.Record { return book("1") }
		f.enqueue(t, changes.Circ, "1")
		f.indexer.flushErr = errors.New("timeout")

		_, err := f.proc.RunOnce(context.Background())
		require.ErrorContains(t, err, "timeout")

		rows := f.pending(t)
		require.Len(t, rows, 1)
		assert.Equal(t, queue.ClaimedPriority, rows[0].Priority)
	})
}

func TestProcessor_Reviews(t *testing.T) {
	t.Run("Discrepancy", func(t *testing.T) {
		f := setup(t)
		ctx := context.Background()
		require.NoError(t, f.state.Save(ctx, []RecordState{{RecordID: "1", Hash: "old", Multivol: true, UpdatedAt: t0}}))
		f.source.records["1"] = func() *models.Record { return book("1") }
		f.enqueue(t, changes.Bib, "1")

		_, err := f.proc.RunOnce(ctx)
		require.NoError(t, err)

		e, ok := f.reviews.put["1"]
		require.True(t, ok)
		assert.Contains(t, e.Flags, DiscrepancyFlag)
		require.NotNil(t, e.Previous)
		assert.True(t, *e.Previous)

		s, _ := f.stored(t, "1")
		assert.True(t, s.NeedsReview)
		assert.False(t, s.Multivol)
	})

	t.Run("ClearedWhenClean", func(t *testing.T) {
		f := setup(t)
		ctx := context.Background()
		require.NoError(t, f.state.Save(ctx, []RecordState{{RecordID: "1", Hash: "old", NeedsReview: true, UpdatedAt: t0}}))
		f.source.records["1"] = func() *models.Record { return book("1") }
		f.enqueue(t, changes.Bib, "1")

		_, err := f.proc.RunOnce(ctx)
		require.NoError(t, err)

		assert.Empty(t, f.reviews.put)
		assert.Equal(t, []string{"1"}, f.reviews.removed)
		s, _ := f.stored(t, "1")
		assert.False(t, s.NeedsReview)
	})
}

func TestProcessor_Preview(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.source.records["1"] = func() *models.Record { return book("1") }

	p, err := f.proc.Preview(ctx, "1")
	require.NoError(t, err)
	assert.True(t, p.Changed)
	assert.Nil(t, p.Stored)
	require.NotNil(t, p.Doc)

	f.enqueue(t, changes.Bib, "1")
	_, err = f.proc.RunOnce(ctx)
	require.NoError(t, err)

	p, err = f.proc.Preview(ctx, "1")
	require.NoError(t, err)
	assert.False(t, p.Changed)
	require.NotNil(t, p.Stored)
	assert.Equal(t, p.Hash, p.Stored.Hash)
	assert.Equal(t, 1, f.indexer.upserts)

	_, err = f.proc.Preview(ctx, "404")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestProcessor_RunReleasesAndDrains(t *testing.T) {
	f := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.source.records["1"] = func() *models.Record { return book("1") }
	f.source.records["2"] = func() *models.Record { return book("2") }
	f.enqueue(t, changes.Bib, "1")
	f.enqueue(t, changes.Bib, "2")

	// Leave the rows claimed, as a crashed consumer would.
	batch, err := f.queue.Claim(ctx, 4, f.source)
	require.NoError(t, err)
	require.Len(t, batch.Claims, 2)

	done := make(chan error, 1)
	go func() { done <- f.proc.Run(ctx) }()

	require.Eventually(t, func() bool {
		return f.indexer.has("1") && f.indexer.has("2")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("processor did not stop")
	}
	assert.Empty(t, f.pending(t))
}

func TestStateStore_IndexedIDs(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	require.NoError(t, f.state.Save(ctx, []RecordState{
		{RecordID: "1", Hash: "a", UpdatedAt: t0},
		{RecordID: "2", Hash: "b", UpdatedAt: t0},
	}))
	require.NoError(t, f.state.Save(ctx, []RecordState{{RecordID: "2", Hash: "c", UpdatedAt: t0}}))
	require.NoError(t, f.state.Invalidate(ctx, []string{"1"}))

	ids, err := f.state.IndexedIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"1": {}, "2": {}}, ids)

	s, _ := f.stored(t, "2")
	assert.Equal(t, "c", s.Hash)
	s, _ = f.stored(t, "1")
	assert.Empty(t, s.Hash)

	require.NoError(t, f.state.Delete(ctx, []string{"1"}))
	ids, err = f.state.IndexedIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}
