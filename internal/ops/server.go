// Package ops serves the daemon's health, metrics and queue endpoints.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aimar/internal/metrics"
	"aimar/internal/patient"
)

type Deps struct {
	// Queue may be nil when Redis is not configured.
	Queue        patient.Queue
	Capabilities func() map[string]bool
	Gatherer     prometheus.Gatherer
	Metrics      *metrics.Collector
	// Logger receives one line per request; slog.Default() when nil.
	Logger *slog.Logger
}

type handler struct {
	deps Deps
}

func NewRouter(deps Deps) http.Handler {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	h := &handler{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(deps.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)
	r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	r.Route("/api", func(r chi.Router) {
		r.Get("/queue", h.queueLen)
		r.Post("/queue", h.enqueue)
	})
	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				logger.Info("HTTP request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", status,
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// Serve runs the router on addr until ctx is done.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Ops server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type healthResponse struct {
	Status       string          `json:"status"`
	Capabilities map[string]bool `json:"capabilities,omitempty"`
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if h.deps.Capabilities != nil {
		resp.Capabilities = h.deps.Capabilities()
	}
	writeJSON(w, http.StatusOK, resp)
}

type enqueueRequest struct {
	PatientID string `json:"patient_id"`
}

func (h *handler) enqueue(w http.ResponseWriter, r *http.Request) {
	if h.deps.Queue == nil {
		writeError(w, http.StatusServiceUnavailable, "patient queue not configured")
		return
	}

	var req enqueueRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	id := strings.TrimSpace(req.PatientID)
	if id == "" {
		writeError(w, http.StatusBadRequest, "patient_id is required")
		return
	}

	if err := h.deps.Queue.Enqueue(r.Context(), id); err != nil {
		h.deps.Metrics.RecordQueue("enqueue", "error")
		slog.Error("Failed to enqueue patient", "patient_id", id, "err", err)
		writeError(w, http.StatusBadGateway, "enqueue failed")
		return
	}
	h.deps.Metrics.RecordQueue("enqueue", "ok")
	slog.Info("Patient enqueued", "patient_id", id, "via", "http")

	writeJSON(w, http.StatusAccepted, map[string]string{"patient_id": id})
}

func (h *handler) queueLen(w http.ResponseWriter, r *http.Request) {
	if h.deps.Queue == nil {
		writeError(w, http.StatusServiceUnavailable, "patient queue not configured")
		return
	}
	n, err := h.deps.Queue.Len(r.Context())
	if err != nil {
		slog.Error("Failed to read queue length", "err", err)
		writeError(w, http.StatusBadGateway, "queue unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"length": n})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
