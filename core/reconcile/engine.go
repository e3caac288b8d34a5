package reconcile

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
)

// UpstreamLister lists the ids of every active upstream record.
type UpstreamLister interface {
	ListActive(ctx context.Context) ([]string, error)
}

// Diff builds the union of record ids known upstream and in the index,
// loading both sets concurrently. Results are sorted by id.
func Diff(ctx context.Context, upstream UpstreamLister, indexed IndexedLister) ([]Result, error) {
	var (
		active []string
		inIdx  map[string]struct{}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ids, err := upstream.ListActive(gctx)
		if err != nil {
			return fmt.Errorf("failed to list upstream records: %w", err)
		}
		active = ids
		return nil
	})
	g.Go(func() error {
		ids, err := indexed.IndexedIDs(gctx)
		if err != nil {
			return fmt.Errorf("failed to list indexed records: %w", err)
		}
		inIdx = ids
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return buildResults(active, inIdx), nil
}

func buildResults(active []string, indexed map[string]struct{}) []Result {
	union := make(map[string]*Result, len(active)+len(indexed))
	for _, id := range active {
		union[id] = &Result{ID: id, UpstreamPresent: true}
	}
	for id := range indexed {
		r, ok := union[id]
		if !ok {
			r = &Result{ID: id}
			union[id] = r
		}
		r.IndexPresent = true
	}

	results := make([]Result, 0, len(union))
	for _, r := range union {
		results = append(results, *r)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].ID < results[j].ID
	})
	return results
}
