package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"earmark/internal/archive"
	"earmark/internal/logging"
	"earmark/internal/metrics"
	"earmark/internal/pipeline"
	"earmark/internal/pubsub"
	"earmark/internal/research"
	"earmark/internal/segment"
	"earmark/internal/testsupport"
)

type fixture struct {
	server   *Server
	pipeline *pipeline.Pipeline
	store    *archive.Store
	hub      *pubsub.Hub[archive.StreamView]
	deep     *testsupport.FakeDeep
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.HeartbeatSeconds = 1
	require.NoError(t, cfg.EnsureDirectories())

	logger := logging.NewNop()
	store, err := archive.NewStore(cfg.ArchivePath(), logger)
	require.NoError(t, err)
	hub := pubsub.NewHub[archive.StreamView](cfg.Pipeline.SubscriberMailbox)

	deepFake := &testsupport.FakeDeep{}
	set := testsupport.ClientSet(
		&testsupport.FakeTranscriber{},
		&testsupport.FakeShallow{},
		deepFake,
		&testsupport.FakeEmbedder{},
	)
	m := metrics.New()
	p := pipeline.New(cfg, set, store, hub, m, logger)
	researchSvc := research.NewService(store, deepFake, logger)

	server := NewServer(cfg, p, store, hub, researchSvc, m, logger)
	return &fixture{server: server, pipeline: p, store: store, hub: hub, deep: deepFake}
}

func (f *fixture) do(t *testing.T, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	recorder := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(recorder, req)
	return recorder
}

func TestStatusEndpoint(t *testing.T) {
	fix := newFixture(t)
	recorder := fix.do(t, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, recorder.Code)

	var status StatusResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &status))
	assert.Equal(t, pipeline.StateStopped, status.State)
	assert.Contains(t, status.Queues, "chunks")
}

func TestStartAndPause(t *testing.T) {
	fix := newFixture(t)
	fix.pipeline.Start(context.Background())
	defer fix.pipeline.Stop()

	recorder := fix.do(t, http.MethodPost, "/api/stream/start", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "running")

	recorder = fix.do(t, http.MethodPost, "/api/stream/pause", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "paused")

	recorder = fix.do(t, http.MethodGet, "/api/stream/start", "")
	assert.Equal(t, http.StatusMethodNotAllowed, recorder.Code)
}

func TestSegmentEndpoints(t *testing.T) {
	fix := newFixture(t)
	seg := segment.New("s1", "archived text", 1, 2, 0)
	require.NoError(t, fix.store.Upsert(seg))

	recorder := fix.do(t, http.MethodGet, "/api/segments", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "archived text")

	recorder = fix.do(t, http.MethodGet, "/api/segments/s1", "")
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = fix.do(t, http.MethodGet, "/api/segments/ghost", "")
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestIngestEndpoint(t *testing.T) {
	fix := newFixture(t)

	recorder := fix.do(t, http.MethodPost, "/api/ingest?offset=12.5", "audio-bytes")
	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)

	fix.pipeline.Start(context.Background())
	defer fix.pipeline.Stop()

	recorder = fix.do(t, http.MethodPost, "/api/ingest", "audio-bytes")
	assert.Equal(t, http.StatusConflict, recorder.Code)

	fix.pipeline.Resume()
	recorder = fix.do(t, http.MethodPost, "/api/ingest", "audio-bytes")
	assert.Equal(t, http.StatusAccepted, recorder.Code)

	recorder = fix.do(t, http.MethodPost, "/api/ingest", "")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	oversized := strings.Repeat("a", maxChunkBytes+1)
	recorder = fix.do(t, http.MethodPost, "/api/ingest", oversized)
	assert.Equal(t, http.StatusRequestEntityTooLarge, recorder.Code)
}

func TestDeepSearchEndpoint(t *testing.T) {
	fix := newFixture(t)
	seg := segment.New("s1", "the claim", 1, 2, 0)
	seg.SetFlags([]segment.Flag{{ID: "f", Source: segment.SourceShallow, Matches: []string{"claim"}}})
	require.NoError(t, fix.store.Upsert(seg))
	fix.deep.Replies = []string{`{"topic": "claim", "summary": "all clear"}`}

	recorder := fix.do(t, http.MethodPost, "/api/deepsearch", `{"segment_id": "s1"}`)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "all clear")

	recorder = fix.do(t, http.MethodPost, "/api/deepsearch", `{"segment_id": "ghost"}`)
	assert.Equal(t, http.StatusNotFound, recorder.Code)

	recorder = fix.do(t, http.MethodPost, "/api/deepsearch", "{broken")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestUserSearchEndpoint(t *testing.T) {
	fix := newFixture(t)
	require.NoError(t, fix.store.Upsert(segment.New("s1", "text", 1, 2, 0)))
	fix.deep.Replies = []string{`{"headline": "h", "body": "b", "key_figures": [], "timeline": []}`}

	recorder := fix.do(t, http.MethodPost, "/api/search",
		`{"segment_id": "s1", "selected_text": "text", "query": "why?"}`)
	require.Equal(t, http.StatusOK, recorder.Code)

	var resp research.UserSearchResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, "h", resp.Headline)
}

func TestStreamDeliversEvents(t *testing.T) {
	fix := newFixture(t)
	httpServer := httptest.NewServer(fix.server.Handler())
	defer httpServer.Close()

	resp, err := http.Get(httpServer.URL + "/api/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Wait for the subscription to register before publishing.
	deadline := time.After(2 * time.Second)
	for fix.hub.Len() == 0 {
		select {
		case <-deadline:
			t.Fatal("subscriber never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	seg := segment.New("s1", "streamed text", 1, 2, 0)
	fix.hub.Publish(archive.NewStreamView(seg, segment.Now()))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(line, "data: "))
	assert.Contains(t, line, "streamed text")
}

func TestStreamStatusSendsStateOnConnect(t *testing.T) {
	fix := newFixture(t)
	httpServer := httptest.NewServer(fix.server.Handler())
	defer httpServer.Close()

	resp, err := http.Get(httpServer.URL + "/api/stream/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, `"pipeline_state": "stopped"`)
}
