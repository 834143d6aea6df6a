package ops

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"aimar/internal/metrics"
	"aimar/internal/patient"
)

func newTestRouter(t *testing.T) (http.Handler, *patient.RedisQueue) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	queue := patient.NewRedisQueue(client, "aimar:patients:queue")

	reg := prometheus.NewRegistry()
	router := NewRouter(Deps{
		Queue:        queue,
		Capabilities: func() map[string]bool { return map[string]bool{"camera": false, "arm": true} },
		Gatherer:     reg,
		Metrics:      metrics.NewCollector("aimar", reg),
	})
	return router, queue
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(router, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, "ok", gjson.Get(body, "status").String())
	assert.False(t, gjson.Get(body, "capabilities.camera").Bool())
	assert.True(t, gjson.Get(body, "capabilities.arm").Bool())
}

func TestEnqueue(t *testing.T) {
	router, queue := newTestRouter(t)

	rec := do(router, http.MethodPost, "/api/queue", `{"patient_id": " p-7 "}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "p-7", gjson.Get(rec.Body.String(), "patient_id").String())

	id, err := queue.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "p-7", id)
}

func TestEnqueueBadRequest(t *testing.T) {
	router, _ := newTestRouter(t)

	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPost, "/api/queue", `{`).Code)
	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPost, "/api/queue", `{"patient_id": ""}`).Code)
}

func TestQueueLength(t *testing.T) {
	router, queue := newTestRouter(t)
	require.NoError(t, queue.Enqueue(context.Background(), "p-1"))
	require.NoError(t, queue.Enqueue(context.Background(), "p-2"))

	rec := do(router, http.MethodGet, "/api/queue", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), gjson.Get(rec.Body.String(), "length").Int())
}

func TestQueueNotConfigured(t *testing.T) {
	router := NewRouter(Deps{Gatherer: prometheus.NewRegistry()})

	assert.Equal(t, http.StatusServiceUnavailable, do(router, http.MethodGet, "/api/queue", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(router, http.MethodPost, "/api/queue", `{"patient_id":"p-1"}`).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	do(router, http.MethodPost, "/api/queue", `{"patient_id": "p-1"}`)

	rec := do(router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `aimar_queue_operations_total{op="enqueue",status="ok"} 1`)
}

func TestRequestLog(t *testing.T) {
	var buf bytes.Buffer
	router := NewRouter(Deps{
		Gatherer: prometheus.NewRegistry(),
		Logger:   slog.New(slog.NewTextHandler(&buf, nil)),
	})

	do(router, http.MethodGet, "/healthz", "")
	do(router, http.MethodGet, "/api/queue", "")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `msg="HTTP request"`)
	assert.Contains(t, lines[0], "path=/healthz")
	assert.Contains(t, lines[0], "status=200")
	assert.Contains(t, lines[0], "request_id=")
	assert.Contains(t, lines[1], "path=/api/queue")
	assert.Contains(t, lines[1], "status=503")
}
