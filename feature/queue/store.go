// Package queue persists pending reconciliation work and detector watermarks.
//
// A single consumer claims work at the lowest pending priority. Claiming rewrites
// the priority of the rows to ClaimedPriority instead of removing them, so a crash
// between claim and index write loses nothing; rows are deleted by Complete once
// the write is confirmed.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"holdings-sync/feature/changes"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ActiveChecker reports whether a subject still exists upstream.
type ActiveChecker interface {
	IsActive(ctx context.Context, id string) (bool, error)
}

// Store is the gorm-backed queue.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time

	// claimMu serializes claims within the process; the row locks taken
	// in Claim cover other processes.
	claimMu sync.Mutex
}

// NewStore creates a queue store on db.
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger, now: time.Now}
}

// Migrate creates or updates the queue and cursor tables.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&Entry{}, &Cursor{})
}

func newEntry(subjectID string, cs []changes.Change, now time.Time) (Entry, error) {
	cause, err := json.Marshal(cs)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to encode cause for %s: %w", subjectID, err)
	}
	return Entry{
		SubjectID:  subjectID,
		Priority:   changes.Priority(cs),
		Cause:      string(cause),
		EnqueuedAt: now,
	}, nil
}

// entriesFor builds one entry per subject, in the order subjects first appear.
func entriesFor(cs []changes.Change, now time.Time) ([]Entry, error) {
	grouped := changes.BySubject(cs)
	entries := make([]Entry, 0, len(grouped))
	for _, c := range cs {
		group, ok := grouped[c.SubjectID]
		if !ok {
			continue
		}
		delete(grouped, c.SubjectID)
		e, err := newEntry(c.SubjectID, group, now)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Enqueue inserts pending work for a subject.
func (s *Store) Enqueue(ctx context.Context, subjectID string, cs []changes.Change) error {
	if subjectID == "" {
		return errors.New("subject id is required")
	}
	e, err := newEntry(subjectID, cs, s.now())
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(&e).Error; err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", subjectID, err)
	}
	return nil
}

// EnqueueChanges inserts pending work for every subject named by the changes.
func (s *Store) EnqueueChanges(ctx context.Context, cs []changes.Change) error {
	entries, err := entriesFor(cs, s.now())
	if err != nil || len(entries) == 0 {
		return err
	}
	if err := s.db.WithContext(ctx).CreateInBatches(entries, 100).Error; err != nil {
		return fmt.Errorf("failed to enqueue %d subjects: %w", len(entries), err)
	}
	return nil
}

// Watermark returns the stored watermark of a lane, or the zero time.
func (s *Store) Watermark(ctx context.Context, lane string) (time.Time, error) {
	var cur Cursor
	err := s.db.WithContext(ctx).Where("lane = ?", lane).Take(&cur).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read cursor %s: %w", lane, err)
	}
	return cur.Watermark, nil
}

// Commit enqueues the changes and advances the lane watermark in one transaction.
// A watermark earlier than the stored one is ignored.
func (s *Store) Commit(ctx context.Context, lane string, cs []changes.Change, watermark time.Time) error {
	entries, err := entriesFor(cs, s.now())
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(entries) > 0 {
			if err := tx.CreateInBatches(entries, 100).Error; err != nil {
				return fmt.Errorf("failed to enqueue %d subjects: %w", len(entries), err)
			}
		}

		var cur Cursor
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("lane = ?", lane).Take(&cur).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return fmt.Errorf("failed to read cursor %s: %w", lane, err)
		case !watermark.After(cur.Watermark):
			return nil
		}

		next := Cursor{Lane: lane, Watermark: watermark}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "lane"}},
			DoUpdates: clause.AssignmentColumns([]string{"watermark"}),
		}).Create(&next).Error; err != nil {
			return fmt.Errorf("failed to store cursor %s: %w", lane, err)
		}
		return nil
	})
}

// Claim marks the next batch of work as in flight.
//
// Only rows at the lowest pending priority are selected, up to batchSize subjects.
// All other pending rows of those subjects are claimed with them. Subjects that are
// no longer active are deleted from the queue and reported in Batch.Dropped.
func (s *Store) Claim(ctx context.Context, batchSize int, checker ActiveChecker) (*Batch, error) {
	if batchSize <= 0 {
		batchSize = 1
	}

	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	batch := &Batch{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var head []Entry
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("priority < ?", ClaimedPriority).
			Order("priority").Order("id").
			Limit(batchSize * 8).
			Find(&head).Error; err != nil {
			return fmt.Errorf("failed to select pending work: %w", err)
		}
		if len(head) == 0 {
			return nil
		}

		batch.Priority = head[0].Priority
		var subjects []string
		seen := make(map[string]struct{})
		for _, e := range head {
			if e.Priority != batch.Priority || len(subjects) == batchSize {
				break
			}
			if _, ok := seen[e.SubjectID]; ok {
				continue
			}
			seen[e.SubjectID] = struct{}{}
			subjects = append(subjects, e.SubjectID)
		}

		var rows []Entry
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("subject_id IN ? AND priority < ?", subjects, ClaimedPriority).
			Order("id").
			Find(&rows).Error; err != nil {
			return fmt.Errorf("failed to select work for %d subjects: %w", len(subjects), err)
		}
		bySubject := make(map[string][]Entry, len(subjects))
		for _, r := range rows {
			bySubject[r.SubjectID] = append(bySubject[r.SubjectID], r)
		}

		now := s.now()
		for _, subject := range subjects {
			entries := bySubject[subject]
			ids := make([]uint64, 0, len(entries))
			var causes []changes.Change
			for _, e := range entries {
				ids = append(ids, e.ID)
				cs, err := e.Causes()
				if err != nil {
					s.logger.Warn("Dropping undecodable cause", zap.String("record_id", subject), zap.Error(err))
					continue
				}
				causes = changes.Union(causes, cs)
			}

			active, err := checker.IsActive(ctx, subject)
			if err != nil {
				return fmt.Errorf("failed to check %s: %w", subject, err)
			}
			if !active {
				if err := tx.Where("id IN ?", ids).Delete(&Entry{}).Error; err != nil {
					return fmt.Errorf("failed to drop inactive %s: %w", subject, err)
				}
				s.logger.Info("Dropped queued work for inactive record",
					zap.String("record_id", subject),
					zap.Int("rows", len(ids)),
				)
				batch.Dropped = append(batch.Dropped, subject)
				continue
			}

			if err := tx.Model(&Entry{}).Where("id IN ?", ids).Updates(map[string]any{
				"priority":   ClaimedPriority,
				"claimed_at": now,
			}).Error; err != nil {
				return fmt.Errorf("failed to claim %s: %w", subject, err)
			}
			batch.Claims = append(batch.Claims, Claim{SubjectID: subject, EntryIDs: ids, Causes: causes})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// Complete deletes claimed rows after their index write was confirmed.
func (s *Store) Complete(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&Entry{}).Error; err != nil {
		return fmt.Errorf("failed to complete %d queue rows: %w", len(ids), err)
	}
	return nil
}

// ReleaseClaimed returns rows left in flight by a previous consumer to the queue,
// with their priority recomputed from their causes.
func (s *Store) ReleaseClaimed(ctx context.Context) (int, error) {
	released := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []Entry
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("priority = ?", ClaimedPriority).
			Find(&rows).Error; err != nil {
			return fmt.Errorf("failed to select claimed rows: %w", err)
		}
		for _, r := range rows {
			priority := changes.Other.Priority()
			if cs, err := r.Causes(); err == nil {
				priority = changes.Priority(cs)
			}
			if err := tx.Model(&Entry{}).Where("id = ?", r.ID).Updates(map[string]any{
				"priority":   priority,
				"claimed_at": nil,
			}).Error; err != nil {
				return fmt.Errorf("failed to release queue row %d: %w", r.ID, err)
			}
			released++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return released, nil
}

// Stats counts rows per priority, claimed rows included.
func (s *Store) Stats(ctx context.Context) ([]PriorityStat, error) {
	var stats []PriorityStat
	if err := s.db.WithContext(ctx).Model(&Entry{}).
		Select("priority, COUNT(*) AS `rows`, COUNT(DISTINCT subject_id) AS subjects").
		Group("priority").
		Order("priority").
		Scan(&stats).Error; err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}
	return stats, nil
}

// Cursors returns every stored watermark ordered by lane.
func (s *Store) Cursors(ctx context.Context) ([]Cursor, error) {
	var cursors []Cursor
	if err := s.db.WithContext(ctx).Order("lane").Find(&cursors).Error; err != nil {
		return nil, fmt.Errorf("failed to read cursors: %w", err)
	}
	return cursors, nil
}
