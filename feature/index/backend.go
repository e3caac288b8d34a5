package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meilisearch/meilisearch-go"
)

// Backend is the subset of the search engine API used by the indexer.
// Writes are asynchronous: they return a task uid that WaitForTask resolves.
type Backend interface {
	// EnsureIndex creates the index and its settings if needed.
	EnsureIndex(ctx context.Context) error
	// AddDocuments submits documents for upsert.
	AddDocuments(ctx context.Context, docs any) (int64, error)
	// DeleteDocuments submits deletion of documents by id.
	DeleteDocuments(ctx context.Context, ids []string) (int64, error)
	// WaitForTask blocks until the task is processed. It returns an error if the task failed.
	WaitForTask(ctx context.Context, taskUID int64) error
}

// Filterable and sortable document attributes.
var (
	filterableAttributes = []interface{}{"location", "online", "available", "classification", "categories", "multivol", "flags", "format"}
	sortableAttributes   = []string{"callnumber_sort"}
)

const primaryKey = "id"

type meiliBackend struct {
	client   meilisearch.ServiceManager
	index    meilisearch.IndexManager
	uid      string
	interval time.Duration
}

// NewBackend creates a Meilisearch backend from the configuration.
func NewBackend(cfg Config) Backend {
	client := meilisearch.New(cfg.Host, meilisearch.WithAPIKey(cfg.APIKey))
	interval := cfg.WaitInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &meiliBackend{
		client:   client,
		index:    client.Index(cfg.Name),
		uid:      cfg.Name,
		interval: interval,
	}
}

func (b *meiliBackend) EnsureIndex(ctx context.Context) error {
	info, err := b.client.CreateIndexWithContext(ctx, &meilisearch.IndexConfig{Uid: b.uid, PrimaryKey: primaryKey})
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", b.uid, err)
	}
	if err := b.WaitForTask(ctx, info.TaskUID); err != nil && !errors.Is(err, errIndexExists) {
		return err
	}

	filterable := filterableAttributes
	info, err = b.index.UpdateFilterableAttributesWithContext(ctx, &filterable)
	if err != nil {
		return fmt.Errorf("failed to update filterable attributes: %w", err)
	}
	if err := b.WaitForTask(ctx, info.TaskUID); err != nil {
		return err
	}

	sortable := sortableAttributes
	info, err = b.index.UpdateSortableAttributesWithContext(ctx, &sortable)
	if err != nil {
		return fmt.Errorf("failed to update sortable attributes: %w", err)
	}
	return b.WaitForTask(ctx, info.TaskUID)
}

func (b *meiliBackend) AddDocuments(ctx context.Context, docs any) (int64, error) {
	info, err := b.index.AddDocumentsWithContext(ctx, docs, nil)
	if err != nil {
		return 0, err
	}
	return info.TaskUID, nil
}

func (b *meiliBackend) DeleteDocuments(ctx context.Context, ids []string) (int64, error) {
	info, err := b.index.DeleteDocumentsWithContext(ctx, ids)
	if err != nil {
		return 0, err
	}
	return info.TaskUID, nil
}

var errIndexExists = errors.New("index already exists")

func (b *meiliBackend) WaitForTask(ctx context.Context, taskUID int64) error {
	task, err := b.client.WaitForTaskWithContext(ctx, taskUID, b.interval)
	if err != nil {
		return fmt.Errorf("failed to wait for task %d: %w", taskUID, err)
	}
	if task.Status == meilisearch.TaskStatusFailed {
		if task.Error.Code == "index_already_exists" {
			return errIndexExists
		}
		return fmt.Errorf("task %d failed: %s (%s)", taskUID, task.Error.Message, task.Error.Code)
	}
	return nil
}
