// Package catalog defines the upstream record store shared by the legacy and
// REST catalog adapters.
package catalog

import (
	"context"
	"errors"

	"holdings-sync/feature/catalog/models"
	"holdings-sync/feature/changes"
)

// ErrNotFound is returned when a record does not exist upstream.
var ErrNotFound = errors.New("record not found")

// Source is an upstream catalog.
type Source interface {
	changes.Poller

	// Name identifies the source in logs.
	Name() string

	// Lanes lists the change detection lanes the source can poll.
	Lanes() []string

	// FetchRecord loads a record with its current holdings and items.
	// It returns ErrNotFound if the record does not exist.
	FetchRecord(ctx context.Context, id string) (*models.Record, error)

	// IsActive reports whether the record exists and is not suppressed.
	IsActive(ctx context.Context, id string) (bool, error)

	// ListActive returns the ids of every active record.
	ListActive(ctx context.Context) ([]string, error)
}
