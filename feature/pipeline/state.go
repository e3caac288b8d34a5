package pipeline

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecordState is what the last confirmed index write of a record looked like.
type RecordState struct {
	RecordID    string    `gorm:"column:record_id;primaryKey;size:64" json:"record_id"`
	Hash        string    `gorm:"column:hash;size:64" json:"hash"`
	Multivol    bool      `gorm:"column:multivol" json:"multivol"`
	NeedsReview bool      `gorm:"column:needs_review" json:"needs_review"`
	Flags       string    `gorm:"column:flags;size:255" json:"flags,omitempty"`
	UpdatedAt   time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName returns the state table name.
func (RecordState) TableName() string {
	return "availability_state"
}

// StateStore persists record states.
type StateStore struct {
	db *gorm.DB
}

// NewStateStore creates a state store on db.
func NewStateStore(db *gorm.DB) *StateStore {
	return &StateStore{db: db}
}

// Migrate creates or updates the state table.
func (s *StateStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&RecordState{})
}

// Get returns the stored states of the given records keyed by record id.
func (s *StateStore) Get(ctx context.Context, ids []string) (map[string]RecordState, error) {
	out := make(map[string]RecordState, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []RecordState
	if err := s.db.WithContext(ctx).Where("record_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load record state: %w", err)
	}
	for _, r := range rows {
		out[r.RecordID] = r
	}
	return out, nil
}

// Save upserts states.
func (s *StateStore) Save(ctx context.Context, states []RecordState) error {
	if len(states) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "record_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"hash", "multivol", "needs_review", "flags", "updated_at"}),
	}).Create(&states).Error
	if err != nil {
		return fmt.Errorf("failed to save %d record states: %w", len(states), err)
	}
	return nil
}

// Delete removes the states of records no longer in the index.
func (s *StateStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Where("record_id IN ?", ids).Delete(&RecordState{}).Error; err != nil {
		return fmt.Errorf("failed to delete record states: %w", err)
	}
	return nil
}

// Invalidate clears the stored hash so the next run rewrites the records.
func (s *StateStore) Invalidate(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Model(&RecordState{}).Where("record_id IN ?", ids).Update("hash", "").Error; err != nil {
		return fmt.Errorf("failed to invalidate record states: %w", err)
	}
	return nil
}

// IndexedIDs implements reconcile.IndexedLister.
func (s *StateStore) IndexedIDs(ctx context.Context) (map[string]struct{}, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&RecordState{}).Pluck("record_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list indexed records: %w", err)
	}
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}
