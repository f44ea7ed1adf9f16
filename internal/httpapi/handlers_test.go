package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"ragmemory/internal/config"
	"ragmemory/internal/container"
	"ragmemory/internal/embedding"
	"ragmemory/internal/model"
	"ragmemory/internal/query"
)

type fakeIngester struct {
	ids     []string
	err     error
	calls   int
	lastTag string

	lastSessions []model.Session
}

func (f *fakeIngester) Ingest(ctx context.Context, tag string, sessions []model.Session) ([]string, error) {
	f.calls++
	f.lastTag = tag
	f.lastSessions = sessions
	return f.ids, f.err
}

func newTestServer(t *testing.T) (*Server, *container.Registry, *fakeIngester) {
	t.Helper()
	reg := container.NewRegistry(8)
	pipeline := query.NewMemoryPipeline(reg, nil, embedding.NewDeterministic(8), nil, &config.Config{FactSearchLimit: 30, SessionBoost: 0.1})
	ing := &fakeIngester{ids: []string{"tag1_s1_0"}}
	return NewServer(pipeline, ing, reg, nil, nil), reg, ing
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleContainersListsRegistryTags(t *testing.T) {
	s, reg, _ := newTestServer(t)
	_, err := reg.GetOrCreate(context.Background(), "alpha")
	require.NoError(t, err)

	rec := doRequest(t, s, http.MethodGet, "/containers", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Containers []string `json:"containers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body.Containers, "alpha")
}

func TestHandleIngestRejectsInvalidTag(t *testing.T) {
	s, _, ing := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/ingest", `{"containerTag":"bad tag!","messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Zero(t, ing.calls)
}

func TestHandleIngestRejectsEmptyMessages(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/ingest", `{"containerTag":"tag1","messages":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleIngestRejectsMalformedBody(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/ingest", `{not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleIngestSucceedsAndGeneratesSessionID(t *testing.T) {
	s, _, ing := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/ingest", `{"containerTag":"tag1","messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, ing.calls)
	require.Equal(t, "tag1", ing.lastTag)
	require.Len(t, ing.lastSessions, 1)
	require.NotEmpty(t, ing.lastSessions[0].SessionID)

	var body struct {
		DocumentIDs []string `json:"documentIds"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, []string{"tag1_s1_0"}, body.DocumentIDs)
}

func TestHandleIngestPropagatesOrchestratorError(t *testing.T) {
	s, _, ing := newTestServer(t)
	ing.err = errors.New("extraction boom")
	rec := doRequest(t, s, http.MethodPost, "/ingest", `{"containerTag":"tag1","messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleSearchRejectsInvalidTag(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/search", `{"containerTag":"bad tag","query":"hi"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSearchRejectsEmptyQuery(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/search", `{"containerTag":"tag1","query":""}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSearchOnUnknownContainerReturnsEmptyResults(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/search", `{"containerTag":"never-ingested","query":"hello","limit":5}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Results []searchResultView `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Empty(t, body.Results)
}

func TestHandleSearchReturnsIngestedChunk(t *testing.T) {
	s, reg, _ := newTestServer(t)
	c, err := reg.GetOrCreate(context.Background(), "tag1")
	require.NoError(t, err)

	ctx := context.Background()
	vecs, err := embedding.NewDeterministic(8).EmbedBatch(ctx, []string{"likes hiking in the mountains"})
	require.NoError(t, err)

	c.Lock()
	c.Hybrid.AddChunks([]model.Chunk{{ID: "tag1_s1_0", Content: "likes hiking in the mountains", SessionID: "s1", ChunkIndex: 0, Embedding: vecs[0]}})
	c.MarkLoaded()
	c.Unlock()

	rec := doRequest(t, s, http.MethodPost, "/search", `{"containerTag":"tag1","query":"likes hiking in the mountains","limit":5}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Results []searchResultView `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Results)
	require.Equal(t, "chunk", body.Results[0].Type)
	require.Equal(t, "likes hiking in the mountains", body.Results[0].Content)
}

func TestHandleStoreRejectsEmptyText(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/store", `{"containerTag":"tag1","text":""}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleStoreSucceeds(t *testing.T) {
	s, _, ing := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/store", `{"containerTag":"tag1","text":"remember this"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, ing.calls)
}

func TestHandleClearRejectsInvalidTag(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodDelete, "/clear/bad%20tag", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleClearResetsContainer(t *testing.T) {
	s, reg, _ := newTestServer(t)
	c, err := reg.GetOrCreate(context.Background(), "tag1")
	require.NoError(t, err)
	c.Lock()
	c.Facts.AddFacts([]model.AtomicFact{{ID: "f1", Content: "x", SessionID: "s1"}})
	c.Unlock()

	rec := doRequest(t, s, http.MethodDelete, "/clear/tag1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 0, c.Facts.GetFactCount())
}
