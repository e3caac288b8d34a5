// Package reconcile plans and applies writes of derived documents to a search index.
//
// Two kinds of plans exist:
//
//   - Sync plans come from the queue processor. Each entry pairs a freshly built document
//     with the hash stored after the last confirmed write; unchanged documents are skipped and
//     records that disappeared upstream become deletions.
//   - Audit plans come from Diff, which builds the union of record ids known upstream and
//     ids present in the index. Missing records are re-enqueued and orphans deleted.
//
// # Architecture
//
// The Indexer interface is the only dependency on the search engine. Optional
// capabilities (Flusher, Enqueuer) are discovered by type assertion, in the same way
// batch deleters are discovered for storage backends.
//
// ApplyPlan splits actions into batches and writes them with bounded concurrency.
// A plan is only applied when it is confirmed and not a dry run.
//
// # Usage Example
//
//	plan := reconcile.PlanSync(entries)
//	executed, err := reconcile.ApplyPlan(ctx, indexer, plan, reconcile.Options{
//	    Confirmed: true,
//	    BatchSize: 100,
//	    Workers:   4,
//	})
package reconcile
