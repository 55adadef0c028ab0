package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
	_ "modernc.org/sqlite"

	syncv1 "github.com/podkeep/podkeep/api/sync/v1"
	"github.com/podkeep/podkeep/internal/auth"
	"github.com/podkeep/podkeep/internal/migrations"
	"github.com/podkeep/podkeep/internal/podkeep"
	"github.com/podkeep/podkeep/internal/ratelimit"
	"github.com/podkeep/podkeep/internal/reconcile"
	pksqlite "github.com/podkeep/podkeep/internal/sqlite"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestServer(t *testing.T) (*Server, *auth.Verifier) {
	t.Helper()

	dbx, err := sqlx.Open("sqlite", "file::memory:?_time_format=sqlite")
	require.NoError(t, err)
	dbx.SetMaxOpenConns(1)
	t.Cleanup(func() { dbx.Close() })
	require.NoError(t, migrations.Run(dbx))

	repo := pksqlite.New(dbx)
	clk := clock.NewMock()
	clk.Add(24 * time.Hour * 365 * 50)
	engine := reconcile.New(repo, clk)

	verifier, err := auth.NewVerifier(testSecret)
	require.NoError(t, err)

	srvr := NewServer(ServerConfig{Port: 0, SyncPerMinute: 100}, engine, repo, verifier, dbx)
	return srvr, verifier
}

func bearer(t *testing.T, v *auth.Verifier, userID string) string {
	t.Helper()
	token, err := v.Mint(userID, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestPostSync_RequiresAuth(t *testing.T) {
	srvr, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/sync", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	srvr.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPostSync_HappyPath(t *testing.T) {
	srvr, v := newTestServer(t)

	body := `{
		"last_sync": null,
		"changes": {
			"subscriptions": [
				{"rss_source_feed": "F1", "rss_source_id": "src", "subscribed_at": "2026-03-01T10:00:00Z", "unsubscribed_at": null}
			],
			"plays": [
				{"rss_source_feed": "F1", "rss_source_item": "I1", "position": 42, "played": false, "updated_at": "2026-03-01T10:05:00Z"}
			],
			"playlists": []
		}
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/sync", strings.NewReader(body))
	req.Header.Set("Authorization", bearer(t, v, "u1"))
	rec := httptest.NewRecorder()
	srvr.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp syncv1.SyncResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.NotEmpty(t, resp.SyncToken)
	assert.Empty(t, resp.Conflicts)
	require.Len(t, resp.Changes.Subscriptions, 1)
	assert.Equal(t, "F1", resp.Changes.Subscriptions[0].Feed)
	require.Len(t, resp.Changes.Plays, 1)
	assert.Equal(t, 42, resp.Changes.Plays[0].Position)
}

func TestPostSync_MalformedTimestampsDegrade(t *testing.T) {
	srvr, v := newTestServer(t)

	// A garbage subscribed_at and a garbage updated_at must not reject
	// the batch.
	body := `{
		"changes": {
			"subscriptions": [
				{"rss_source_feed": "F1", "subscribed_at": "whenever"}
			],
			"plays": [
				{"rss_source_feed": "F1", "rss_source_item": "I1", "position": 10, "played": false, "updated_at": "???"}
			]
		}
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/sync", strings.NewReader(body))
	req.Header.Set("Authorization", bearer(t, v, "u1"))
	rec := httptest.NewRecorder()
	srvr.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp syncv1.SyncResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Changes.Plays, 1)
	assert.Equal(t, 10, resp.Changes.Plays[0].Position)
}

func TestPostSync_BadJSON(t *testing.T) {
	srvr, v := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/sync", strings.NewReader(`{"changes": [`))
	req.Header.Set("Authorization", bearer(t, v, "u1"))
	rec := httptest.NewRecorder()
	srvr.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type failingSyncer struct{}

func (failingSyncer) Sync(context.Context, string, *time.Time, podkeep.Batch) (reconcile.Result, error) {
	return reconcile.Result{}, errors.New("storage exploded: secret dsn")
}

func TestPostSync_EngineFailureIsSanitized(t *testing.T) {
	srvr, v := newTestServer(t)
	srvr.engine = failingSyncer{}

	req := httptest.NewRequest(http.MethodPost, "/api/sync", strings.NewReader(`{"changes":{}}`))
	req.Header.Set("Authorization", bearer(t, v, "u1"))
	rec := httptest.NewRecorder()
	srvr.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Sync failed", resp["error"])
	assert.Equal(t, "SYNC_ERROR", resp["code"])
	assert.NotContains(t, rec.Body.String(), "secret dsn")
}

func TestPostSync_RateLimited(t *testing.T) {
	srvr, v := newTestServer(t)
	srvr.limiter = ratelimit.NewPerUser(rate.Every(time.Minute), 1)

	token := bearer(t, v, "u1")
	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/api/sync", strings.NewReader(`{"changes":{}}`))
		req.Header.Set("Authorization", token)
		rec := httptest.NewRecorder()
		srvr.Handler.ServeHTTP(rec, req)

		assert.Equal(t, want, rec.Code, fmt.Sprintf("call %d", i))
	}
}

func TestGetSubscriptions(t *testing.T) {
	srvr, v := newTestServer(t)
	token := bearer(t, v, "u1")

	body := `{"changes":{"subscriptions":[{"rss_source_feed":"F1","subscribed_at":"2026-03-01T10:00:00Z"}]}}`
	req := httptest.NewRequest(http.MethodPost, "/api/sync", strings.NewReader(body))
	req.Header.Set("Authorization", token)
	rec := httptest.NewRecorder()
	srvr.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/subscriptions", nil)
	req.Header.Set("Authorization", token)
	rec = httptest.NewRecorder()
	srvr.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Subscriptions []syncv1.SubscriptionChange `json:"subscriptions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Subscriptions, 1)
	assert.Equal(t, "F1", resp.Subscriptions[0].Feed)

	// Another user sees nothing.
	req = httptest.NewRequest(http.MethodGet, "/api/subscriptions", nil)
	req.Header.Set("Authorization", bearer(t, v, "u2"))
	rec = httptest.NewRecorder()
	srvr.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Subscriptions)
}

func TestHealthz(t *testing.T) {
	srvr, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srvr.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
