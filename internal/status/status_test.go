package status

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *sqlite.Client {
	t.Helper()
	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestLastUpdates(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.RecordUpdate(ctx, "pubmed_update", now.Add(-72*time.Hour)))
	require.NoError(t, store.RecordUpdate(ctx, "pubmed_update", now.Add(-3*time.Hour)))
	require.NoError(t, store.RecordUpdate(ctx, "ictrp", now.Add(-20*24*time.Hour)))
	require.NoError(t, store.RecordUpdate(ctx, "unrelated_feed", now))

	r := NewReporter(store.DB)
	r.now = func() time.Time { return now }

	updates, err := r.LastUpdates(ctx)
	require.NoError(t, err)
	require.Len(t, updates, 2)

	assert.Equal(t, "ictrp", updates[0].Type)
	assert.Equal(t, "20 days", updates[0].Age)

	assert.Equal(t, "pubmed_update", updates[1].Type)
	assert.True(t, now.Add(-3*time.Hour).Equal(updates[1].SourceDate))
	assert.Equal(t, "3 hours", updates[1].Age)
	assert.Equal(t, int64(3*3600), updates[1].AgeSeconds)
}

func TestLastUpdatesEmptyLog(t *testing.T) {
	updates, err := NewReporter(newStore(t).DB).LastUpdates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, updates)
}

func TestStatusHandler(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.RecordUpdate(context.Background(), "picomesh_full", time.Now().Add(-time.Minute)))

	rec := httptest.NewRecorder()
	NewReporter(store.DB).Status(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var updates []Update
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updates))
	require.Len(t, updates, 1)
	assert.Equal(t, "picomesh_full", updates[0].Type)
}

type failingQuerier struct{}

func (failingQuerier) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errors.New("relation \"update_log\" does not exist")
}

func TestStatusHandlerStoreError(t *testing.T) {
	rec := httptest.NewRecorder()
	NewReporter(failingQuerier{}).Status(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"status unavailable"}`, rec.Body.String())
}

func TestHumanize(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{10 * time.Second, "a few seconds"},
		{time.Minute, "1 minute"},
		{45 * time.Minute, "45 minutes"},
		{time.Hour, "1 hour"},
		{30 * time.Hour, "1 day"},
		{49 * time.Hour, "2 days"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, humanize(tt.d), tt.d.String())
	}
}
