package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"holdings-sync/core/reconcile"
	"holdings-sync/feature/pipeline"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	auditPurge   bool
	auditEnqueue bool
	auditApply   bool
	auditBatch   int
	auditWorkers int
	yesConfirm   bool
)

// auditCmd compares the active upstream records with the indexed ones.
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Compare active catalog records with the index (report + optionally repair)",
	Long: `Builds the union of active upstream record ids and ids with a confirmed index
write, then reports records missing from the index and orphans that should no
longer be indexed.

Repairs are planned with --enqueue (queue missing records) and --purge (delete
orphans from the index) and only applied with --apply after confirmation.

Examples:
  # Report only
  audit

  # Queue missing records and delete orphans, non-interactively
  audit --enqueue --purge --apply --yes`,
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().BoolVar(&auditPurge, "purge", false, "Plan deletion of orphaned index documents")
	auditCmd.Flags().BoolVar(&auditEnqueue, "enqueue", false, "Plan reprocessing of records missing from the index")
	auditCmd.Flags().BoolVar(&auditApply, "apply", false, "Apply the planned actions (otherwise dry-run)")
	auditCmd.Flags().IntVar(&auditBatch, "batch-size", 0, "Documents per index request (default from index.batch_size)")
	auditCmd.Flags().IntVar(&auditWorkers, "workers", 0, "Concurrent index requests (default from index.workers)")
	auditCmd.Flags().BoolVar(&yesConfirm, "yes", false, "Auto-confirm destructive actions (non-interactive)")
	RootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp()
	if err != nil {
		return err
	}
	l := a.logger

	source, err := a.source(ctx)
	if err != nil {
		return err
	}

	opts := a.cfg.Index.WriteOptions()
	opts.DoPurge = auditPurge
	opts.DoEnqueue = auditEnqueue
	opts.DryRun = !auditApply
	opts.Flush = true
	if auditBatch > 0 {
		opts.BatchSize = auditBatch
	}
	if auditWorkers > 0 {
		opts.Workers = auditWorkers
	}

	l.Info("Planning audit...", zap.String("source", source.Name()))
	results, err := reconcile.Diff(ctx, source, a.state)
	if err != nil {
		return fmt.Errorf("failed to diff records: %w", err)
	}
	plan := reconcile.PlanAudit(results, opts)
	printAuditReport(l, plan)

	if !auditPurge && !auditEnqueue {
		l.Info("No actions requested. Use --enqueue to queue missing records or --purge to delete orphans.")
		return nil
	}
	if len(plan.Actions) == 0 {
		l.Info("No actions required based on current flags.")
		return nil
	}
	if opts.DryRun {
		l.Info("Dry-run mode: No changes were made. Use --apply to execute.")
		return nil
	}
	if !confirmDestructiveAction() {
		l.Warn("Operation cancelled by user. No changes were made.")
		return nil
	}
	opts.Confirmed = true

	idx, err := a.indexer(ctx)
	if err != nil {
		return err
	}
	reviews, err := a.reviews(ctx)
	if err != nil {
		return err
	}

	l.Info("Applying actions...")
	target := pipeline.NewAuditIndexer(idx, a.state, a.queue, reviews, l)
	executed, err := reconcile.ApplyPlan(ctx, target, plan, opts)
	if err != nil {
		return fmt.Errorf("failed to apply plan: %w", err)
	}
	l.Info("Successfully executed actions", zap.Int("count", executed))

	if auditPurge {
		pruned, err := target.PruneReviews(ctx)
		if err != nil {
			return fmt.Errorf("failed to prune reviews: %w", err)
		}
		l.Info("Pruned stale review entries", zap.Int("count", pruned))
	}
	return nil
}

// printAuditReport logs the plan summary and a sample of its actions.
func printAuditReport(l *zap.Logger, plan *reconcile.Plan) {
	s := plan.Summary
	l.Info("Audit report",
		zap.Int("total_records", s.Total),
		zap.Int("in_sync", s.Unchanged),
		zap.Int("missing_index", s.MissingIndex),
		zap.Int("orphans", s.Orphans),
	)
	if len(plan.Actions) == 0 {
		return
	}

	l.Info("Planned actions",
		zap.Int("enqueue_actions", s.Enqueues),
		zap.Int("delete_actions", s.Deletes),
		zap.Int("total_actions", len(plan.Actions)),
	)
	shown := min(5, len(plan.Actions))
	for _, action := range plan.Actions[:shown] {
		l.Info("Sample action",
			zap.String("type", string(action.Type)),
			zap.String("record_id", action.Key),
			zap.String("reason", action.Reason),
		)
	}
	if len(plan.Actions) > shown {
		l.Info("Additional actions not shown", zap.Int("count", len(plan.Actions)-shown))
	}
}

// confirmDestructiveAction prompts the user for confirmation or uses --yes flag.
func confirmDestructiveAction() bool {
	if yesConfirm {
		fmt.Println("\nAuto-confirmed via --yes flag")
		return true
	}

	fmt.Print("\nType 'yes' to confirm destructive actions: ")
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(response) == "yes"
}
