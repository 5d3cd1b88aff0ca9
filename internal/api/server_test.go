package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jobsift/jobsift/internal/config"
	"github.com/jobsift/jobsift/internal/ingest"
	"github.com/jobsift/jobsift/internal/site"
	"github.com/jobsift/jobsift/internal/site/ey"
	"github.com/jobsift/jobsift/internal/site/motion"
)

type stubRunner struct {
	summary ingest.CrawlSummary
	err     error
	gotSite string
	gotPar  ingest.QueryParams
}

func (r *stubRunner) Run(_ context.Context, siteID string, params ingest.QueryParams) (ingest.CrawlSummary, error) {
	r.gotSite = siteID
	r.gotPar = params
	return r.summary, r.err
}

func testRegistry(t *testing.T) *site.Registry {
	t.Helper()
	r := site.NewRegistry()
	require.NoError(t, r.Register(ey.New()))
	require.NoError(t, r.Register(motion.New()))
	return r
}

func newTestServer(t *testing.T, runner CrawlRunner, cfg config.Config) *Server {
	t.Helper()
	return NewServer(runner, testRegistry(t), cfg, nil)
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubRunner{}, config.Config{})
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestListSites(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubRunner{}, config.Config{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sites", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, []string{"ey", "motion"}, body["sites"])
}

func postCrawl(t *testing.T, srv *Server, payload any) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(payload)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/crawls", bytes.NewReader(buf))
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestTriggerCrawlCompleted(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{summary: ingest.CrawlSummary{RunID: "r1", Site: "ey", New: 5}}
	srv := newTestServer(t, runner, config.Config{})

	rec := postCrawl(t, srv, crawlRequest{
		Site:   "ey",
		Params: ingest.QueryParams{Country: "US", Keywords: "consultant"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp crawlResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "completed", resp.Status)
	require.Equal(t, 5, resp.Summary.New)
	require.Equal(t, "ey", runner.gotSite)
	require.Equal(t, "US", runner.gotPar.Country)
}

func TestTriggerCrawlPartial(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{summary: ingest.CrawlSummary{
		RunID:   "r2",
		Site:    "ey",
		Aborted: true,
		Reason:  "listing page 3: fetch timeout",
	}}
	srv := newTestServer(t, runner, config.Config{})

	rec := postCrawl(t, srv, crawlRequest{Site: "ey"})
	// Partial results are a successful response, not an HTTP error.
	require.Equal(t, http.StatusOK, rec.Code)

	var resp crawlResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "partial", resp.Status)
	require.True(t, resp.Summary.Aborted)
}

func TestTriggerCrawlValidation(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubRunner{}, config.Config{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/crawls", bytes.NewReader([]byte("{not json"))))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postCrawl(t, srv, crawlRequest{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postCrawl(t, srv, crawlRequest{Site: "unknown-board"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Auth: config.AuthConfig{Enabled: true, APIKey: "secret"}}
	srv := newTestServer(t, &stubRunner{}, cfg)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sites", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/sites", nil)
	req.Header.Set("X-API-Key", "secret")
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDHeader(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubRunner{}, config.Config{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestLogCarriesRequestID(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	srv := NewServer(&stubRunner{}, testRegistry(t), config.Config{}, zap.New(core))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	entries := logs.FilterMessage("request completed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.NotEmpty(t, fields["request_id"])
	// The logged id is the one returned to the caller.
	require.Equal(t, rec.Header().Get("X-Request-ID"), fields["request_id"])
}
