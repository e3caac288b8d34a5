package cmd

import (
	"context"
	"fmt"
	"time"

	"holdings-sync/feature/changes"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var enqueueType string

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <record-id>...",
	Short: "Queue records for reprocessing",
	Long: `Adds a manual change for every record id. The change type decides the queue
priority, from CIRC (most urgent) to OTHER.

Examples:
  enqueue 12345 67890
  enqueue --type CIRC 12345`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEnqueue,
}

func init() {
	enqueueCmd.Flags().StringVar(&enqueueType, "type", string(changes.Other), "Change type deciding the priority")
	RootCmd.AddCommand(enqueueCmd)
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	typ, err := changes.ParseType(enqueueType)
	if err != nil {
		return err
	}
	a, err := newApp()
	if err != nil {
		return err
	}

	now := time.Now()
	for _, id := range args {
		c := changes.Change{Type: typ, SubjectID: id, Detail: "manual", Timestamp: now}
		if err := a.queue.Enqueue(ctx, id, []changes.Change{c}); err != nil {
			return fmt.Errorf("failed to enqueue %s: %w", id, err)
		}
	}
	a.logger.Info("Records enqueued",
		zap.Strings("record_ids", args),
		zap.String("type", string(typ)),
		zap.Int("priority", typ.Priority()),
	)
	return nil
}
