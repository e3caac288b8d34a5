package reconcile

import "context"

// Indexer writes documents to a search index.
type Indexer interface {
	// Name returns the index name used in logs.
	Name() string

	// Upsert adds or replaces documents. It returns once the index has durably accepted the write.
	Upsert(ctx context.Context, docs []Document) error

	// Delete removes documents by id. Unknown ids are ignored.
	Delete(ctx context.Context, ids []string) error
}

// IndexedLister returns the ids of every record with a confirmed index write.
type IndexedLister interface {
	IndexedIDs(ctx context.Context) (map[string]struct{}, error)
}

// Flusher is implemented by indexers that buffer writes.
// Flush blocks until every accepted write is searchable.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Enqueuer schedules records for reprocessing. It is required to apply audit plans
// that contain ActionEnqueue.
type Enqueuer interface {
	EnqueueMissing(ctx context.Context, ids []string) error
}
