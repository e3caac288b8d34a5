package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// Backend is a mock implementation of index.Backend
type Backend struct {
	mock.Mock
}

func (m *Backend) EnsureIndex(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *Backend) AddDocuments(ctx context.Context, docs any) (int64, error) {
	args := m.Called(ctx, docs)
	return args.Get(0).(int64), args.Error(1)
}

func (m *Backend) DeleteDocuments(ctx context.Context, ids []string) (int64, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(int64), args.Error(1)
}

func (m *Backend) WaitForTask(ctx context.Context, taskUID int64) error {
	args := m.Called(ctx, taskUID)
	return args.Error(0)
}
