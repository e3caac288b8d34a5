package mocks

import (
	"bytes"
	"context"
	"io"
	"sync"

	"holdings-sync/core/storage"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/mock"
)

// Client mocks storage.Client. Keys handed to RemoveObjects are drained into Removed.
type Client struct {
	mock.Mock

	mu      sync.Mutex
	removed []string
}

var _ storage.Client = (*Client)(nil)

func (m *Client) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	args := m.Called(ctx, bucketName)
	return args.Bool(0), args.Error(1)
}

func (m *Client) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	return m.Called(ctx, bucketName, opts).Error(0)
}

func (m *Client) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	args := m.Called(ctx, bucketName, objectName, reader, objectSize, opts)
	info, _ := args.Get(0).(minio.UploadInfo)
	return info, args.Error(1)
}

func (m *Client) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	switch body := args.Get(0).(type) {
	case io.ReadCloser:
		return body, args.Error(1)
	case []byte:
		return Body(body), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Client) ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	ch, _ := m.Called(ctx, bucketName, opts).Get(0).(<-chan minio.ObjectInfo)
	if ch == nil {
		return Objects()
	}
	return ch
}

func (m *Client) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	return m.Called(ctx, bucketName, objectName, opts).Error(0)
}

func (m *Client) RemoveObjects(ctx context.Context, bucketName string, objectsCh <-chan minio.ObjectInfo, opts minio.RemoveObjectsOptions) <-chan minio.RemoveObjectError {
	ch, _ := m.Called(ctx, bucketName, objectsCh, opts).Get(0).(<-chan minio.RemoveObjectError)

	m.mu.Lock()
	for obj := range objectsCh {
		m.removed = append(m.removed, obj.Key)
	}
	m.mu.Unlock()

	if ch == nil {
		return RemoveErrors()
	}
	return ch
}

// Removed returns the object keys received by RemoveObjects.
func (m *Client) Removed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.removed...)
}

// Objects returns a closed listing of the given keys.
func Objects(keys ...string) <-chan minio.ObjectInfo {
	infos := make([]minio.ObjectInfo, len(keys))
	for i, k := range keys {
		infos[i] = minio.ObjectInfo{Key: k}
	}
	return closed(infos...)
}

// RemoveErrors returns a closed channel of removal failures.
func RemoveErrors(errs ...minio.RemoveObjectError) <-chan minio.RemoveObjectError {
	return closed(errs...)
}

// Body wraps data as an object body.
func Body(data []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(data))
}

func closed[T any](items ...T) <-chan T {
	ch := make(chan T, len(items))
	for _, it := range items {
		ch <- it
	}
	close(ch)
	return ch
}
