package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediarelay/internal/httpapi/handlers"
	"mediarelay/internal/journal"
	"mediarelay/internal/media"
	"mediarelay/internal/pkg/errors"
	"mediarelay/internal/pkg/logger"
	"mediarelay/internal/scratch"
	"mediarelay/internal/worker"
)

type fakePool struct {
	stats worker.Stats
	err   error
}

func (f fakePool) Stats(context.Context) (worker.Stats, error) { return f.stats, f.err }

type fakeJournal struct {
	since time.Time
	stats journal.Stats
}

func (f *fakeJournal) Stats(_ context.Context, since time.Time) (journal.Stats, error) {
	f.since = since
	return f.stats, nil
}

type fakeSubmitter struct {
	mu   sync.Mutex
	reqs []media.FetchRequest
	err  error
}

func (f *fakeSubmitter) Submit(_ context.Context, req media.FetchRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.reqs = append(f.reqs, req)
	return "req-9", nil
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Output: io.Discard})
}

func serve(t *testing.T, h http.Handler, method, target string, body []byte) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHealth(t *testing.T) {
	dir, err := scratch.New(t.TempDir())
	require.NoError(t, err)
	_, err = dir.WriteFile("leftover.bin", []byte("x"), 0o600)
	require.NoError(t, err)

	r := NewRouter(Deps{
		Handlers: handlers.Deps{
			Scratch: dir,
			Workers: fakePool{stats: worker.Stats{Workers: 3, Active: 1, Queued: 2}},
			Version: "test",
		},
		Log: quietLogger(),
	})

	rec, body := serve(t, r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.NotContains(t, body, "checks")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec, body = serve(t, r, http.MethodGet, "/healthz?deep=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	checks := body["checks"].(map[string]any)
	assert.EqualValues(t, 1, checks["scratch"].(map[string]any)["files"])
	assert.EqualValues(t, 2, checks["workers"].(map[string]any)["queued"])
	assert.NotContains(t, checks, "postgres")
	assert.NotContains(t, checks, "redis")
}

func TestHealthDegraded(t *testing.T) {
	r := NewRouter(Deps{
		Handlers: handlers.Deps{Workers: fakePool{err: errors.Transient("redis down")}},
		Log:      quietLogger(),
	})

	rec, body := serve(t, r, http.MethodGet, "/healthz?deep=true", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", body["status"])
}

func TestStats(t *testing.T) {
	j := &fakeJournal{stats: journal.Stats{Requests: 4, ByStatus: map[string]int64{"delivered": 3, "failed": 1}}}
	r := NewRouter(Deps{
		Handlers: handlers.Deps{
			Workers: fakePool{stats: worker.Stats{Workers: 2, Processed: 4}},
			Journal: j,
		},
		Log: quietLogger(),
	})

	rec, body := serve(t, r, http.MethodGet, "/v1/stats?window=1h", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 4, body["pool"].(map[string]any)["processed"])
	assert.EqualValues(t, 4, body["outcomes"].(map[string]any)["requests"])
	assert.WithinDuration(t, time.Now().Add(-time.Hour), j.since, 5*time.Second)

	rec, body = serve(t, r, http.MethodGet, "/v1/stats?window=forever", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", body["error"].(map[string]any)["code"])
}

func TestStatsWithoutJournal(t *testing.T) {
	r := NewRouter(Deps{Handlers: handlers.Deps{Workers: fakePool{}}, Log: quietLogger()})

	rec, body := serve(t, r, http.MethodGet, "/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, "pool")
	assert.NotContains(t, body, "outcomes")
}

func TestPostRequest(t *testing.T) {
	sub := &fakeSubmitter{}
	r := NewRouter(Deps{Handlers: handlers.Deps{Submitter: sub}, Log: quietLogger()})

	payload := []byte(`{"url":"https://www.instagram.com/p/abc123/","chat_id":42,"max_items":5}`)
	rec, body := serve(t, r, http.MethodPost, "/v1/requests", payload)
	require.Equal(t, http.StatusAccepted, rec.Code)

	got := body["request"].(map[string]any)
	assert.Equal(t, "req-9", got["id"])
	assert.Equal(t, "instagram", got["provider"])

	require.Len(t, sub.reqs, 1)
	assert.Equal(t, "api:42", sub.reqs[0].Principal)
	assert.Equal(t, int64(42), sub.reqs[0].ChatID)
	assert.Equal(t, 5, sub.reqs[0].Options.MaxItems)
}

func TestPostRequestRejects(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
		code   string
	}{
		{"malformed", `{"url":`, nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown field", `{"url":"https://youtu.be/x","chat_id":1,"extra":true}`, nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"missing chat", `{"url":"https://youtu.be/x"}`, nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unsupported host", `{"url":"https://example.com/a.mp4","chat_id":1}`, nil, http.StatusBadRequest, "UNSUPPORTED"},
		{"audio off youtube", `{"url":"https://www.tiktok.com/@a/video/1","chat_id":1,"audio_only":true}`, nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"busy", `{"url":"https://youtu.be/x","chat_id":1}`, errors.Busy("api:1"), http.StatusTooManyRequests, "BUSY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &fakeSubmitter{err: tt.err}
			r := NewRouter(Deps{Handlers: handlers.Deps{Submitter: sub}, Log: quietLogger()})

			rec, body := serve(t, r, http.MethodPost, "/v1/requests", []byte(tt.body))
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, body["error"].(map[string]any)["code"])
		})
	}
}

func TestPostRequestDisabledWithoutSubmitter(t *testing.T) {
	r := NewRouter(Deps{Log: quietLogger()})

	rec, _ := serve(t, r, http.MethodPost, "/v1/requests", []byte(`{}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	r := NewRouter(Deps{
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics\n"))
		}),
		Log: quietLogger(),
	})

	rec, _ := serve(t, r, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics\n", rec.Body.String())
}
