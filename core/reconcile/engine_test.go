package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type staticLister struct {
	ids []string
	err error
}

func (s staticLister) ListActive(ctx context.Context) ([]string, error) {
	return s.ids, s.err
}

type mockIndexed struct{ mock.Mock }

func (m *mockIndexed) IndexedIDs(ctx context.Context) (map[string]struct{}, error) {
	args := m.Called(ctx)
	ids, _ := args.Get(0).(map[string]struct{})
	return ids, args.Error(1)
}

func TestDiff_UnionKeys(t *testing.T) {
	idx := new(mockIndexed)
	idx.On("IndexedIDs", mock.Anything).Return(map[string]struct{}{"b": {}, "c": {}}, nil)

	results, err := Diff(context.Background(), staticLister{ids: []string{"a", "b"}}, idx)
	require.NoError(t, err)

	assert.Equal(t, []Result{
		{ID: "a", UpstreamPresent: true},
		{ID: "b", UpstreamPresent: true, IndexPresent: true},
		{ID: "c", IndexPresent: true},
	}, results)
}

func TestDiff_ErrorHandling(t *testing.T) {
	idx := new(mockIndexed)
	idx.On("IndexedIDs", mock.Anything).Return(nil, nil)

	_, err := Diff(context.Background(), staticLister{err: errors.New("catalog down")}, idx)
	assert.ErrorContains(t, err, "catalog down")

	idx = new(mockIndexed)
	idx.On("IndexedIDs", mock.Anything).Return(nil, errors.New("index down"))
	_, err = Diff(context.Background(), staticLister{}, idx)
	assert.ErrorContains(t, err, "index down")
}
