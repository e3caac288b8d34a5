// Package index writes availability documents to the search engine.
package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"holdings-sync/core/reconcile"

	"go.uber.org/zap"
)

// FlushError lists the records whose writes were accepted but then failed in the index.
type FlushError struct {
	IDs  []string
	Errs []error
}

func (e *FlushError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d records failed to index: %s", len(e.IDs), strings.Join(msgs, "; "))
}

// Indexer implements reconcile.Indexer and reconcile.Flusher.
// Accepted tasks are tracked until Flush resolves them.
type Indexer struct {
	backend Backend
	name    string
	logger  *zap.Logger

	flushTimeout time.Duration

	mu      sync.Mutex
	pending map[int64][]string
}

var (
	_ reconcile.Indexer = (*Indexer)(nil)
	_ reconcile.Flusher = (*Indexer)(nil)
)

// New creates an indexer over backend.
func New(backend Backend, name string, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{
		backend: backend,
		name:    name,
		logger:  logger.With(zap.String("index", name)),
		pending: make(map[int64][]string),
	}
}

// SetFlushTimeout bounds every Flush. Zero waits as long as the context allows.
func (i *Indexer) SetFlushTimeout(d time.Duration) {
	i.flushTimeout = d
}

func (i *Indexer) Name() string {
	return i.name
}

// Upsert submits documents and returns once the backend accepted the task.
func (i *Indexer) Upsert(ctx context.Context, docs []reconcile.Document) error {
	if len(docs) == 0 {
		return nil
	}
	uid, err := i.backend.AddDocuments(ctx, docs)
	if err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	ids := make([]string, len(docs))
	for n, d := range docs {
		ids[n] = d.DocumentID()
	}
	i.track(uid, ids)
	return nil
}

// Delete submits deletion of documents by id.
func (i *Indexer) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	uid, err := i.backend.DeleteDocuments(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	i.track(uid, append([]string(nil), ids...))
	return nil
}

func (i *Indexer) track(uid int64, ids []string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.pending[uid] = ids
}

// Pending returns the number of tasks not yet flushed.
func (i *Indexer) Pending() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.pending)
}

// Flush waits for every accepted task. Failed tasks are reported as a *FlushError
// naming the affected records. Tasks that could not be awaited stay pending.
func (i *Indexer) Flush(ctx context.Context) error {
	if i.flushTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.flushTimeout)
		defer cancel()
	}

	i.mu.Lock()
	uids := make([]int64, 0, len(i.pending))
	for uid := range i.pending {
		uids = append(uids, uid)
	}
	i.mu.Unlock()
	sort.Slice(uids, func(a, b int) bool { return uids[a] < uids[b] })

	var failed *FlushError
	for _, uid := range uids {
		err := i.backend.WaitForTask(ctx, uid)
		if err != nil && ctx.Err() != nil {
			return err
		}

		i.mu.Lock()
		ids := i.pending[uid]
		delete(i.pending, uid)
		i.mu.Unlock()

		if err != nil {
			i.logger.Error("Index task failed", zap.Int64("task_uid", uid), zap.Strings("record_ids", ids), zap.Error(err))
			if failed == nil {
				failed = &FlushError{}
			}
			failed.IDs = append(failed.IDs, ids...)
			failed.Errs = append(failed.Errs, err)
		}
	}
	if failed != nil {
		return failed
	}
	return nil
}

// FailedIDs extracts the record ids of a flush failure, or nil.
func FailedIDs(err error) []string {
	var fe *FlushError
	if errors.As(err, &fe) {
		return fe.IDs
	}
	return nil
}

// EnsureIndex creates the index and its settings.
func (i *Indexer) EnsureIndex(ctx context.Context) error {
	return i.backend.EnsureIndex(ctx)
}
