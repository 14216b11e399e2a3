package outbox_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"taskpulse/pkg/outbox"
)

type fakeAdminStore struct {
	failed   []*outbox.Event
	replayed []int64
	err      error
}

func (f *fakeAdminStore) GetFailedEvents(ctx context.Context, limit int) ([]*outbox.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.failed) > limit {
		return f.failed[:limit], nil
	}
	return f.failed, nil
}

func (f *fakeAdminStore) ReplayEvent(ctx context.Context, eventID int64) error {
	if f.err != nil {
		return f.err
	}
	f.replayed = append(f.replayed, eventID)
	return nil
}

func adminRouter(store *fakeAdminStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	outbox.NewAdminHandler(store, zap.NewNop()).Register(r)
	return r
}

func TestListFailed(t *testing.T) {
	store := &fakeAdminStore{failed: []*outbox.Event{
		{ID: 1, EventID: "e-1", RoutingKey: "task.created", Status: "failed"},
		{ID: 2, EventID: "e-2", RoutingKey: "reminder.due", Status: "failed"},
	}}
	r := adminRouter(store)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/outbox/failed", nil))

	require.Equal(t, 200, w.Code)
	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
}

func TestReplay(t *testing.T) {
	store := &fakeAdminStore{}
	r := adminRouter(store)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/outbox/17/replay", nil))

	require.Equal(t, 200, w.Code)
	assert.Equal(t, []int64{17}, store.replayed)
}

func TestReplay_BadID(t *testing.T) {
	store := &fakeAdminStore{}
	r := adminRouter(store)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/outbox/not-a-number/replay", nil))

	assert.Equal(t, 400, w.Code)
	assert.Empty(t, store.replayed)
}

func TestReplay_StoreError(t *testing.T) {
	store := &fakeAdminStore{err: assert.AnError}
	r := adminRouter(store)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/outbox/17/replay", nil))

	assert.Equal(t, 500, w.Code)
}
