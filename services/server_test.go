package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pubmed-graph/filter"
	"pubmed-graph/models"
)

type stubRunner struct {
	rows [][]any
}

func (r *stubRunner) Run(context.Context, string, map[string]any) ([][]any, error) {
	return r.rows, nil
}

func newTestServer(t *testing.T, rows [][]any) (*Server, *testEnv) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	e := newTestEnv(t)
	e.cfg.APISecretKey = "secret"
	logger := zap.NewNop()
	return &Server{
		Config:  e.cfg,
		Manager: e.mgr,
		Queries: &QueryService{
			Builder: filter.NewBuilder(filter.DefaultTextOptions, 100, nil, logger),
			Cache:   filter.NewCache(4, nil, logger),
			Runner:  &stubRunner{rows: rows},
			Logger:  logger,
		},
		Logger: logger,
	}, e
}

func do(t *testing.T, router http.Handler, method, path, body string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set("X-API-KEY", "secret")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestServer_HealthWithoutKey(t *testing.T) {
	s, _ := newTestServer(t, nil)
	w := do(t, s.Router(), http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_RequiresKey(t *testing.T) {
	s, _ := newTestServer(t, nil)
	router := s.Router()

	w := do(t, router, http.MethodGet, "/pipeline", "", false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, router, http.MethodGet, "/pipeline", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["running"])
}

func TestServer_StatusFromMetadataStore(t *testing.T) {
	s, e := newTestServer(t, nil)
	router := s.Router()

	w := do(t, router, http.MethodGet, "/status", "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, e.meta.Push(context.Background(), &models.DBMetadata{Status: models.StatusNormal}))
	w = do(t, router, http.MethodGet, "/status", "", true)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodGet, "/status/history", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	var list []json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestServer_RunWithoutScheduler(t *testing.T) {
	s, _ := newTestServer(t, nil)
	w := do(t, s.Router(), http.MethodPost, "/run", "", true)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestServer_Query(t *testing.T) {
	s, _ := newTestServer(t, [][]any{{int64(7)}, {int64(9)}})
	router := s.Router()

	w := do(t, router, http.MethodPost, "/query", `{"filters":{"journal":"heart"}}`, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res struct {
		Journals []int64 `json:"journals"`
		Rows     int     `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, []int64{7, 9}, res.Journals)
	assert.Equal(t, 2, res.Rows)

	w = do(t, router, http.MethodPost, "/query", `{"filters":{}}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, "/query", `{"filters":{"published_after":"gestern"}}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, "/query", `{"filters":{"journal":"lung","node_limit":2}}`, true)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var limit map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &limit))
	assert.EqualValues(t, 2, limit["limit"])
}
