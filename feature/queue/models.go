package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"holdings-sync/feature/changes"
)

// ClaimedPriority marks a row as in flight. Claimed rows stay in the table until
// the index write for their subject is confirmed.
const ClaimedPriority = 999

// Entry is one persisted unit of work.
type Entry struct {
	ID         uint64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	SubjectID  string     `gorm:"column:subject_id;size:64;not null;index" json:"subject_id"`
	Priority   int        `gorm:"column:priority;not null;index" json:"priority"`
	Cause      string     `gorm:"column:cause;type:text" json:"cause"`
	EnqueuedAt time.Time  `gorm:"column:enqueued_at;not null" json:"enqueued_at"`
	ClaimedAt  *time.Time `gorm:"column:claimed_at" json:"claimed_at,omitempty"`
}

// TableName overrides the table name used by Entry.
func (Entry) TableName() string {
	return "availability_queue"
}

// Causes decodes the changes stored with the entry.
func (e Entry) Causes() ([]changes.Change, error) {
	if e.Cause == "" {
		return nil, nil
	}
	var cs []changes.Change
	if err := json.Unmarshal([]byte(e.Cause), &cs); err != nil {
		return nil, fmt.Errorf("failed to decode cause of queue entry %d: %w", e.ID, err)
	}
	return cs, nil
}

// Cursor is the persisted watermark of a detector lane.
type Cursor struct {
	Lane      string    `gorm:"column:lane;primaryKey;size:64" json:"lane"`
	Watermark time.Time `gorm:"column:watermark;not null" json:"watermark"`
}

// TableName overrides the table name used by Cursor.
func (Cursor) TableName() string {
	return "update_cursor"
}

// Claim is the work claimed for one subject: every pending row of the subject
// with their causes unioned.
type Claim struct {
	SubjectID string           `json:"subject_id"`
	EntryIDs  []uint64         `json:"entry_ids"`
	Causes    []changes.Change `json:"causes"`
}

// Batch is the result of one claim step. All claims share the batch priority.
type Batch struct {
	Priority int     `json:"priority"`
	Claims   []Claim `json:"claims"`
	// Dropped lists subjects removed from the queue because they are no longer active.
	Dropped []string `json:"dropped,omitempty"`
}

// Empty reports whether the batch has nothing to process.
func (b *Batch) Empty() bool {
	return b == nil || len(b.Claims) == 0
}

// EntryIDs returns the ids of every claimed row in the batch.
func (b *Batch) EntryIDs() []uint64 {
	var ids []uint64
	for _, c := range b.Claims {
		ids = append(ids, c.EntryIDs...)
	}
	return ids
}

// PriorityStat counts pending rows at one priority.
type PriorityStat struct {
	Priority int `json:"priority"`
	Rows     int `json:"rows"`
	Subjects int `json:"subjects"`
}
