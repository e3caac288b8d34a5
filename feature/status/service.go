package status

import (
	"context"
	"time"

	"holdings-sync/feature/changes"
	"holdings-sync/feature/pipeline"
	"holdings-sync/feature/queue"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// QueueStore is the part of the queue the status API reads and feeds.
type QueueStore interface {
	Stats(ctx context.Context) ([]queue.PriorityStat, error)
	Cursors(ctx context.Context) ([]queue.Cursor, error)
	Enqueue(ctx context.Context, subjectID string, cs []changes.Change) error
}

// Previewer reconciles a record without writing it.
type Previewer interface {
	Preview(ctx context.Context, id string) (*pipeline.Preview, error)
}

// QueueReport summarizes the queue.
type QueueReport struct {
	Priorities []queue.PriorityStat `json:"priorities"`
	Pending    int                  `json:"pending"`
	Claimed    int                  `json:"claimed"`
}

// Service implements the status operations.
type Service struct {
	queue     QueueStore
	previewer Previewer
	logger    *zap.Logger
	now       func() time.Time

	previews singleflight.Group
}

// NewService creates a status service.
func NewService(q QueueStore, previewer Previewer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{queue: q, previewer: previewer, logger: logger, now: time.Now}
}

// Queue returns row counts per priority.
func (s *Service) Queue(ctx context.Context) (*QueueReport, error) {
	stats, err := s.queue.Stats(ctx)
	if err != nil {
		return nil, err
	}
	report := &QueueReport{Priorities: stats}
	if report.Priorities == nil {
		report.Priorities = []queue.PriorityStat{}
	}
	for _, st := range stats {
		if st.Priority == queue.ClaimedPriority {
			report.Claimed += st.Rows
		} else {
			report.Pending += st.Rows
		}
	}
	return report, nil
}

// Cursors returns the lane watermarks.
func (s *Service) Cursors(ctx context.Context) ([]queue.Cursor, error) {
	cursors, err := s.queue.Cursors(ctx)
	if err != nil {
		return nil, err
	}
	if cursors == nil {
		cursors = []queue.Cursor{}
	}
	return cursors, nil
}

// Enqueue queues a record for reprocessing with a manual cause.
func (s *Service) Enqueue(ctx context.Context, id string, typ changes.Type) error {
	c := changes.Change{Type: typ, SubjectID: id, Detail: "manual", Timestamp: s.now()}
	return s.queue.Enqueue(ctx, id, []changes.Change{c})
}

// Preview reconciles a record without writing anything.
func (s *Service) Preview(ctx context.Context, id string) (*pipeline.Preview, error) {
	v, err, shared := s.previews.Do(id, func() (any, error) {
		return s.previewer.Preview(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug("Preview shared", zap.String("record_id", id))
	}
	return v.(*pipeline.Preview), nil
}
