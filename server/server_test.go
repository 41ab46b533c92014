package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdwatch/regpulse/pkg/domain"
)

type configMock struct {
	listen  string
	timeout time.Duration
}

func (c *configMock) GetServerConfig() (string, time.Duration) { return c.listen, c.timeout }

type coordinatorMock struct {
	fullSyncFunc     func(ctx context.Context) (domain.SyncStats, error)
	sourceSyncFunc   func(ctx context.Context, sourceID string) (domain.SyncStats, error)
	sourceStatusFunc func() []domain.SourceStatus
}

func (m *coordinatorMock) RunFullSync(ctx context.Context) (domain.SyncStats, error) {
	return m.fullSyncFunc(ctx)
}

func (m *coordinatorMock) RunSourceSync(ctx context.Context, sourceID string) (domain.SyncStats, error) {
	return m.sourceSyncFunc(ctx, sourceID)
}

func (m *coordinatorMock) SourceStatus() []domain.SourceStatus {
	return m.sourceStatusFunc()
}

type storeMock struct {
	listFunc  func(ctx context.Context, limit, offset int) ([]domain.NormalizedUpdate, error)
	countFunc func(ctx context.Context) (int, error)
}

func (m *storeMock) ListUpdates(ctx context.Context, limit, offset int) ([]domain.NormalizedUpdate, error) {
	return m.listFunc(ctx, limit, offset)
}

func (m *storeMock) CountUpdates(ctx context.Context) (int, error) {
	return m.countFunc(ctx)
}

func testServer(coordinator Coordinator, store Store) *Server {
	cfg := &configMock{listen: ":8080", timeout: 30 * time.Second}
	return New(cfg, coordinator, store, "test", false)
}

func TestServer_New(t *testing.T) {
	srv := testServer(&coordinatorMock{}, &storeMock{})
	assert.NotNil(t, srv)
	assert.Equal(t, "test", srv.version)
	assert.False(t, srv.debug)
}

func TestServer_Run(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	cfg := &configMock{listen: fmt.Sprintf("127.0.0.1:%d", port), timeout: 30 * time.Second}
	srv := New(cfg, &coordinatorMock{}, &storeMock{}, "test", false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = srv.Run(ctx)
	}()

	time.Sleep(100 * time.Millisecond)

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/ping", port))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(body))

	cancel()
	time.Sleep(100 * time.Millisecond)
}

func TestServer_statusHandler(t *testing.T) {
	srv := New(&configMock{}, &coordinatorMock{}, &storeMock{}, "1.2.3", false)

	req := httptest.NewRequest("GET", "/status", http.NoBody)
	w := httptest.NewRecorder()
	srv.statusHandler(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "ok", status["status"])
	assert.Equal(t, "1.2.3", status["version"])
	assert.NotEmpty(t, status["time"])
}

func TestServer_fullSyncHandler(t *testing.T) {
	t.Run("returns aggregate stats", func(t *testing.T) {
		coordinator := &coordinatorMock{
			fullSyncFunc: func(context.Context) (domain.SyncStats, error) {
				return domain.SyncStats{SourcesProcessed: 3, ArticlesExtracted: 7, DuplicatesSkipped: 2}, nil
			},
		}
		srv := testServer(coordinator, &storeMock{})

		req := httptest.NewRequest("POST", "/api/v1/sync", http.NoBody)
		w := httptest.NewRecorder()
		srv.fullSyncHandler(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var stats domain.SyncStats
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
		assert.Equal(t, 3, stats.SourcesProcessed)
		assert.Equal(t, 7, stats.ArticlesExtracted)
	})

	t.Run("sync failure is a 500", func(t *testing.T) {
		coordinator := &coordinatorMock{
			fullSyncFunc: func(context.Context) (domain.SyncStats, error) {
				return domain.SyncStats{}, errors.New("everything is broken")
			},
		}
		srv := testServer(coordinator, &storeMock{})

		req := httptest.NewRequest("POST", "/api/v1/sync", http.NoBody)
		w := httptest.NewRecorder()
		srv.fullSyncHandler(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestServer_sourceSyncHandler(t *testing.T) {
	coordinator := &coordinatorMock{
		sourceSyncFunc: func(_ context.Context, sourceID string) (domain.SyncStats, error) {
			if sourceID != "fda-recalls" {
				return domain.SyncStats{}, fmt.Errorf("unknown source %q", sourceID)
			}
			return domain.SyncStats{SourcesProcessed: 1, ArticlesExtracted: 2}, nil
		},
	}
	srv := testServer(coordinator, &storeMock{})

	t.Run("known source", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/v1/sync/fda-recalls", http.NoBody)
		req.SetPathValue("id", "fda-recalls")
		w := httptest.NewRecorder()
		srv.sourceSyncHandler(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var stats domain.SyncStats
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
		assert.Equal(t, 2, stats.ArticlesExtracted)
	})

	t.Run("unknown source is a 404", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/v1/sync/nope", http.NoBody)
		req.SetPathValue("id", "nope")
		w := httptest.NewRecorder()
		srv.sourceSyncHandler(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("blank source id is a 400", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/v1/sync/%20", http.NoBody)
		req.SetPathValue("id", "  ")
		w := httptest.NewRecorder()
		srv.sourceSyncHandler(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestServer_sourcesHandler(t *testing.T) {
	checked := time.Date(2023, 5, 10, 9, 30, 0, 0, time.UTC)
	coordinator := &coordinatorMock{
		sourceStatusFunc: func() []domain.SourceStatus {
			return []domain.SourceStatus{
				{ID: "fda-recalls", Name: "FDA Recalls", Active: true, LastStatus: "ok", LastCheckedAt: &checked},
				{ID: "mhra-alerts", Name: "MHRA Alerts", Active: true, LastStatus: "failed", LastError: "timeout"},
			}
		},
	}
	srv := testServer(coordinator, &storeMock{})

	req := httptest.NewRequest("GET", "/api/v1/sources", http.NoBody)
	w := httptest.NewRecorder()
	srv.sourcesHandler(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var statuses []domain.SourceStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &statuses))
	require.Len(t, statuses, 2)
	assert.Equal(t, "fda-recalls", statuses[0].ID)
	assert.Equal(t, "failed", statuses[1].LastStatus)
	assert.Equal(t, "timeout", statuses[1].LastError)
}

func TestServer_updatesHandler(t *testing.T) {
	store := &storeMock{
		listFunc: func(_ context.Context, limit, offset int) ([]domain.NormalizedUpdate, error) {
			assert.Equal(t, 25, limit)
			assert.Equal(t, 50, offset)
			return []domain.NormalizedUpdate{
				{ID: "u-1", Title: "Recall of infusion pumps", Priority: domain.PriorityCritical},
			}, nil
		},
		countFunc: func(context.Context) (int, error) { return 123, nil },
	}
	srv := testServer(&coordinatorMock{}, store)

	t.Run("paginated listing", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/updates?limit=25&offset=50", http.NoBody)
		w := httptest.NewRecorder()
		srv.updatesHandler(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Updates []domain.NormalizedUpdate `json:"updates"`
			Total   int                       `json:"total"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Updates, 1)
		assert.Equal(t, "Recall of infusion pumps", resp.Updates[0].Title)
		assert.Equal(t, 123, resp.Total)
	})

	t.Run("invalid limit rejected", func(t *testing.T) {
		for _, q := range []string{"limit=0", "limit=9999", "limit=abc"} {
			req := httptest.NewRequest("GET", "/api/v1/updates?"+q, http.NoBody)
			w := httptest.NewRecorder()
			srv.updatesHandler(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code, q)
		}
	})

	t.Run("negative offset rejected", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/updates?offset=-1", http.NoBody)
		w := httptest.NewRecorder()
		srv.updatesHandler(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("store failure is a 500", func(t *testing.T) {
		broken := &storeMock{
			listFunc: func(context.Context, int, int) ([]domain.NormalizedUpdate, error) {
				return nil, errors.New("db gone")
			},
			countFunc: func(context.Context) (int, error) { return 0, nil },
		}
		srv := testServer(&coordinatorMock{}, broken)

		req := httptest.NewRequest("GET", "/api/v1/updates", http.NoBody)
		w := httptest.NewRecorder()
		srv.updatesHandler(w, req)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestRenderError(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/test", http.NoBody)
	renderError(w, req, errors.New("boom"), http.StatusBadRequest)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "boom", resp["error"])
}

func TestRenderError_NilError(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/test", http.NoBody)
	renderError(w, req, nil, http.StatusInternalServerError)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "unknown error", resp["error"])
}
