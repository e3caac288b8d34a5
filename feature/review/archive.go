// Package review archives reconciliation outcomes that need a human look.
//
// Each record with ambiguous holdings is stored as one JSON object under
// reviews/<record id>.json and removed again once the record reconciles cleanly.
package review

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"holdings-sync/core/storage"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

const prefix = "reviews"

// HoldingNote lists the diagnostic flags raised for one holding.
type HoldingNote struct {
	HoldingID string   `json:"holding_id"`
	Flags     []string `json:"flags"`
}

// Entry is an archived review.
type Entry struct {
	RecordID   string        `json:"record_id"`
	Title      string        `json:"title,omitempty"`
	Flags      []string      `json:"flags"`
	Holdings   []HoldingNote `json:"holdings,omitempty"`
	Previous   *bool         `json:"previous_multivol,omitempty"`
	Multivol   bool          `json:"multivol"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// Archive stores review entries in object storage.
type Archive struct {
	client storage.Client
	bucket string
	logger *zap.Logger
}

// NewArchive creates an archive in bucket.
func NewArchive(client storage.Client, bucket string, logger *zap.Logger) *Archive {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archive{client: client, bucket: bucket, logger: logger}
}

// ObjectKey returns the object name of a record's review.
func ObjectKey(recordID string) string {
	return path.Join(prefix, recordID+".json")
}

// EnsureBucket creates the bucket if it does not exist.
func (a *Archive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", a.bucket, err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", a.bucket, err)
	}
	a.logger.Info("Created review bucket", zap.String("bucket", a.bucket))
	return nil
}

// Put writes or replaces the review of e.RecordID.
func (a *Archive) Put(ctx context.Context, e Entry) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = a.client.PutObject(ctx, a.bucket, ObjectKey(e.RecordID), bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("failed to archive review of %s: %w", e.RecordID, err)
	}
	return nil
}

// Get reads the review of a record.
func (a *Archive) Get(ctx context.Context, recordID string) (*Entry, error) {
	obj, err := a.client.GetObject(ctx, a.bucket, ObjectKey(recordID), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read review of %s: %w", recordID, err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode review of %s: %w", recordID, err)
	}
	return &e, nil
}

// Remove deletes the review of a record. Removing a missing review is not an error.
func (a *Archive) Remove(ctx context.Context, recordID string) error {
	if err := a.client.RemoveObject(ctx, a.bucket, ObjectKey(recordID), minio.RemoveObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil
		}
		return fmt.Errorf("failed to remove review of %s: %w", recordID, err)
	}
	return nil
}

// List returns the record ids with an archived review, sorted.
func (a *Archive) List(ctx context.Context) ([]string, error) {
	var ids []string
	for obj := range a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{Prefix: prefix + "/", Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list reviews: %w", obj.Err)
		}
		name := strings.TrimPrefix(obj.Key, prefix+"/")
		if id, ok := strings.CutSuffix(name, ".json"); ok && id != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Prune removes the reviews of the given records in one batch.
func (a *Archive) Prune(ctx context.Context, recordIDs []string) error {
	if len(recordIDs) == 0 {
		return nil
	}
	objectsCh := make(chan minio.ObjectInfo, len(recordIDs))
	for _, id := range recordIDs {
		objectsCh <- minio.ObjectInfo{Key: ObjectKey(id)}
	}
	close(objectsCh)

	var errs []string
	for err := range a.client.RemoveObjects(ctx, a.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if err.Err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", err.ObjectName, err.Err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("prune had %d errors: %v", len(errs), errs)
	}
	return nil
}
