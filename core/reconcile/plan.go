package reconcile

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

const (
	defaultBatchSize = 100
	defaultWorkers   = 4
)

// PlanSync turns freshly built documents into index actions.
// Entries whose hash matches the last confirmed write are counted as unchanged.
func PlanSync(entries []Entry) *Plan {
	plan := &Plan{}
	plan.Summary.Total = len(entries)

	for _, e := range entries {
		switch {
		case e.Doc == nil:
			plan.Actions = append(plan.Actions, Action{Type: ActionDelete, Key: e.ID, Reason: "inactive upstream"})
			plan.Summary.Deletes++
		case e.Hash != "" && e.Hash == e.PreviousHash:
			plan.Summary.Unchanged++
		default:
			reason := "changed"
			if e.PreviousHash == "" {
				reason = "new"
			}
			plan.Actions = append(plan.Actions, Action{Type: ActionUpsert, Key: e.ID, Reason: reason, Doc: e.Doc})
			plan.Summary.Upserts++
		}
	}
	return plan
}

// PlanAudit generates actions from Diff results.
func PlanAudit(results []Result, opts Options) *Plan {
	plan := &Plan{Results: results}
	plan.Summary.Total = len(results)

	for _, r := range results {
		switch {
		case r.UpstreamPresent && !r.IndexPresent:
			plan.Summary.MissingIndex++
			if opts.DoEnqueue {
				plan.Actions = append(plan.Actions, Action{Type: ActionEnqueue, Key: r.ID, Reason: "missing in index"})
				plan.Summary.Enqueues++
			}
		case !r.UpstreamPresent && r.IndexPresent:
			plan.Summary.Orphans++
			if opts.DoPurge {
				plan.Actions = append(plan.Actions, Action{Type: ActionDelete, Key: r.ID, Reason: "inactive upstream"})
				plan.Summary.Deletes++
			}
		default:
			plan.Summary.Unchanged++
		}
	}
	return plan
}

// ApplyPlan executes the actions in a plan.
// Returns the number of actions executed and the first error encountered.
// Requires opts.Confirmed=true and opts.DryRun=false to actually execute.
func ApplyPlan(ctx context.Context, idx Indexer, plan *Plan, opts Options) (executed int, err error) {
	if !opts.Confirmed || opts.DryRun {
		return 0, nil
	}

	var (
		docs      []Document
		deleteIDs []string
		enqueue   []string
	)
	for _, action := range plan.Actions {
		switch action.Type {
		case ActionUpsert:
			docs = append(docs, action.Doc)
		case ActionDelete:
			deleteIDs = append(deleteIDs, action.Key)
		case ActionEnqueue:
			enqueue = append(enqueue, action.Key)
		}
	}

	var enqueuer Enqueuer
	if len(enqueue) > 0 {
		var ok bool
		if enqueuer, ok = idx.(Enqueuer); !ok {
			return 0, fmt.Errorf("indexer %s does not implement Enqueuer interface", idx.Name())
		}
	}

	size := opts.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, chunk := range chunks(docs, size) {
		g.Go(func() error {
			if err := idx.Upsert(gctx, chunk); err != nil {
				return fmt.Errorf("failed to upsert %d documents: %w", len(chunk), err)
			}
			return nil
		})
	}
	for _, chunk := range chunks(deleteIDs, size) {
		g.Go(func() error {
			if err := idx.Delete(gctx, chunk); err != nil {
				return fmt.Errorf("failed to delete %d documents: %w", len(chunk), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	executed = len(docs) + len(deleteIDs)

	if len(enqueue) > 0 {
		if err := enqueuer.EnqueueMissing(ctx, enqueue); err != nil {
			return executed, fmt.Errorf("failed to enqueue missing records: %w", err)
		}
		executed += len(enqueue)
	}

	if opts.Flush {
		if f, ok := idx.(Flusher); ok {
			if err := f.Flush(ctx); err != nil {
				return executed, fmt.Errorf("failed to flush index %s: %w", idx.Name(), err)
			}
		}
	}
	return executed, nil
}

func chunks[T any](items []T, size int) [][]T {
	var out [][]T
	for len(items) > 0 {
		n := min(size, len(items))
		out = append(out, items[:n])
		items = items[n:]
	}
	return out
}
