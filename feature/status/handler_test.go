package status_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"holdings-sync/feature/catalog"
	"holdings-sync/feature/changes"
	"holdings-sync/feature/pipeline"
	"holdings-sync/feature/queue"
	"holdings-sync/feature/status"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockQueue struct {
	mock.Mock
}

func (m *mockQueue) Stats(ctx context.Context) ([]queue.PriorityStat, error) {
	args := m.Called(ctx)
	stats, _ := args.Get(0).([]queue.PriorityStat)
	return stats, args.Error(1)
}

func (m *mockQueue) Cursors(ctx context.Context) ([]queue.Cursor, error) {
	args := m.Called(ctx)
	cursors, _ := args.Get(0).([]queue.Cursor)
	return cursors, args.Error(1)
}

func (m *mockQueue) Enqueue(ctx context.Context, subjectID string, cs []changes.Change) error {
	return m.Called(ctx, subjectID, cs).Error(0)
}

type mockPreviewer struct {
	mock.Mock
}

func (m *mockPreviewer) Preview(ctx context.Context, id string) (*pipeline.Preview, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*pipeline.Preview)
	return p, args.Error(1)
}

func newApp(q *mockQueue, p status.Previewer) *fiber.App {
	app := fiber.New()
	if err := status.NewFeature(q, p, nil).Load(app); err != nil {
		panic(err)
	}
	return app
}

func decode(t *testing.T, body io.Reader, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(body).Decode(v))
}

func TestHandleQueue(t *testing.T) {
	q := new(mockQueue)
	q.On("Stats", mock.Anything).Return([]queue.PriorityStat{
		{Priority: 1, Rows: 3, Subjects: 2},
		{Priority: 6, Rows: 5, Subjects: 5},
		{Priority: queue.ClaimedPriority, Rows: 4, Subjects: 4},
	}, nil)

	resp, err := newApp(q, new(mockPreviewer)).Test(httptest.NewRequest("GET", "/status/queue", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var report status.QueueReport
	decode(t, resp.Body, &report)
	assert.Equal(t, 8, report.Pending)
	assert.Equal(t, 4, report.Claimed)
	assert.Len(t, report.Priorities, 3)
}

func TestHandleQueue_Error(t *testing.T) {
	q := new(mockQueue)
	q.On("Stats", mock.Anything).Return(nil, errors.New("database is locked"))

	resp, err := newApp(q, new(mockPreviewer)).Test(httptest.NewRequest("GET", "/status/queue", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	var body map[string]string
	decode(t, resp.Body, &body)
	assert.Equal(t, "database is locked", body["error"])
}

func TestHandleCursors(t *testing.T) {
	wm := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	q := new(mockQueue)
	q.On("Cursors", mock.Anything).Return([]queue.Cursor{{Lane: "items", Watermark: wm}}, nil)

	resp, err := newApp(q, new(mockPreviewer)).Test(httptest.NewRequest("GET", "/status/cursors", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var cursors []queue.Cursor
	decode(t, resp.Body, &cursors)
	require.Len(t, cursors, 1)
	assert.Equal(t, "items", cursors[0].Lane)
	assert.True(t, wm.Equal(cursors[0].Watermark))
}

func TestHandleEnqueue(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		wantType changes.Type
		status   int
	}{
		{"Default", "/status/enqueue/100", changes.Other, fiber.StatusAccepted},
		{"WithType", "/status/enqueue/100?type=circ", changes.Circ, fiber.StatusAccepted},
		{"BadType", "/status/enqueue/100?type=bogus", "", fiber.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := new(mockQueue)
			q.On("Enqueue", mock.Anything, "100", mock.MatchedBy(func(cs []changes.Change) bool {
				return len(cs) == 1 && cs[0].Type == tt.wantType && cs[0].SubjectID == "100"
			})).Return(nil)

			resp, err := newApp(q, new(mockPreviewer)).Test(httptest.NewRequest("POST", tt.target, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			if tt.status == fiber.StatusAccepted {
				var body map[string]any
				decode(t, resp.Body, &body)
				assert.Equal(t, float64(tt.wantType.Priority()), body["priority"])
				q.AssertExpectations(t)
			} else {
				q.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestHandlePreview(t *testing.T) {
	p := new(mockPreviewer)
	p.On("Preview", mock.Anything, "100").Return(&pipeline.Preview{
		Outcome: &pipeline.Outcome{RecordID: "100", Doc: &pipeline.Document{ID: "100", Title: "Numerical recipes"}, Hash: "abc"},
		Changed: true,
	}, nil)
	p.On("Preview", mock.Anything, "404").Return(nil, catalog.ErrNotFound)
	p.On("Preview", mock.Anything, "500").Return(nil, errors.New("circuit breaker is open"))

	app := newApp(new(mockQueue), p)

	resp, err := app.Test(httptest.NewRequest("GET", "/status/records/100", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	var body map[string]any
	decode(t, resp.Body, &body)
	assert.Equal(t, "100", body["record_id"])
	assert.Equal(t, true, body["changed"])
	assert.Equal(t, "Numerical recipes", body["document"].(map[string]any)["title"])

	resp, err = app.Test(httptest.NewRequest("GET", "/status/records/404", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/status/records/500", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

type blockingPreviewer struct {
	calls   atomic.Int32
	release chan struct{}
}

func (b *blockingPreviewer) Preview(_ context.Context, id string) (*pipeline.Preview, error) {
	b.calls.Add(1)
	<-b.release
	return &pipeline.Preview{Outcome: &pipeline.Outcome{RecordID: id}}, nil
}

func TestService_PreviewSharesFetch(t *testing.T) {
	b := &blockingPreviewer{release: make(chan struct{})}
	svc := status.NewService(new(mockQueue), b, nil)

	var wg sync.WaitGroup
	results := make([]*pipeline.Preview, 4)
	for n := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := svc.Preview(context.Background(), "100")
			assert.NoError(t, err)
			results[n] = p
		}()
	}

	require.Eventually(t, func() bool { return b.calls.Load() == 1 }, time.Second, time.Millisecond)
	// Give the other callers time to join the in-flight call.
	time.Sleep(20 * time.Millisecond)
	close(b.release)
	wg.Wait()

	assert.Equal(t, int32(1), b.calls.Load())
	for _, p := range results {
		require.NotNil(t, p)
		assert.Equal(t, "100", p.RecordID)
	}
}
