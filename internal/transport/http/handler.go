// Package httptransport is the thin HTTP layer over the sync service. It
// delegates to the service and translates Result failures into JSON
// responses; no business logic lives here.
package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"certsync/internal/masterlist"
	"certsync/internal/masterlist/store"
	"certsync/pkg/result"
)

// Service is the operation surface the handlers need.
type Service interface {
	Sync(ctx context.Context) result.Result[int]
	Status() *masterlist.RunStatus
}

// CountsProvider reports current trust-store row counts.
type CountsProvider interface {
	Counts(ctx context.Context) (store.Counts, error)
}

// Handler wires the sync endpoints to the service.
type Handler struct {
	service      Service
	counts       CountsProvider
	ready        func(ctx context.Context) error
	shuttingDown func() bool
	logger       *slog.Logger
	version      string
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithCounts enables row counts on the info endpoint.
func WithCounts(p CountsProvider) HandlerOption {
	return func(h *Handler) { h.counts = p }
}

// WithReadyCheck sets the dependency probe behind /ready.
func WithReadyCheck(check func(ctx context.Context) error) HandlerOption {
	return func(h *Handler) {
		if check != nil {
			h.ready = check
		}
	}
}

// WithShutdownSignal lets /health report draining during shutdown.
func WithShutdownSignal(f func() bool) HandlerOption {
	return func(h *Handler) {
		if f != nil {
			h.shuttingDown = f
		}
	}
}

// WithLogger sets the handler logger.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithVersion sets the version reported by /info.
func WithVersion(version string) HandlerOption {
	return func(h *Handler) { h.version = version }
}

// NewHandler constructs the HTTP handler set.
func NewHandler(service Service, opts ...HandlerOption) *Handler {
	h := &Handler{
		service:      service,
		ready:        func(context.Context) error { return nil },
		shuttingDown: func() bool { return false },
		logger:       slog.Default(),
		version:      "dev",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// HandleHealth reports liveness, or draining once shutdown has begun.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	if h.shuttingDown() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleReady reports readiness by probing the hard dependencies.
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	if err := h.ready(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "readiness probe failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HandleInfo reports service identity and current trust-store counts.
func (h *Handler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"service": "certsync",
		"version": h.version,
		"source":  masterlist.SourceICAOMasterList,
	}
	if h.counts != nil {
		counts, err := h.counts.Counts(r.Context())
		if err != nil {
			h.logger.ErrorContext(r.Context(), "trust store counts", "error", err)
		} else {
			info["counts"] = counts
			info["total_records"] = counts.Total()
		}
	}
	writeJSON(w, http.StatusOK, info)
}

// HandleSync triggers a run and waits for its outcome. A run already in
// flight answers 409 without touching the pipeline. The run is detached
// from request cancellation so a client disconnect cannot abort a
// replace in progress.
func (h *Handler) HandleSync(w http.ResponseWriter, r *http.Request) {
	if h.service.Status().Running() {
		writeJSON(w, http.StatusConflict, map[string]string{"status": "running"})
		return
	}

	start := time.Now()
	res := h.service.Sync(context.WithoutCancel(r.Context()))
	if desc, failed := res.Failure(); failed {
		writeJSON(w, desc.Code.HTTPStatus(), map[string]string{
			"status":     "failed",
			"error_code": string(desc.Code),
			"message":    desc.Message,
		})
		return
	}

	h.logger.InfoContext(r.Context(), "sync triggered via http",
		"rows_stored", res.MustValue(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "succeeded",
		"rows_stored": res.MustValue(),
	})
}

// HandleSyncStatus reports whether a run is in flight and the last
// outcome.
func (h *Handler) HandleSyncStatus(w http.ResponseWriter, _ *http.Request) {
	status := h.service.Status()
	body := map[string]any{"running": status.Running()}

	if report, ok := status.Last(); ok {
		last := map[string]any{
			"state":       string(report.State),
			"started_at":  report.StartedAt.UTC().Format(time.RFC3339),
			"finished_at": report.FinishedAt.UTC().Format(time.RFC3339),
		}
		if report.State == masterlist.RunStateSucceeded {
			last["rows_stored"] = report.RowsStored
		} else {
			last["error_code"] = string(report.ErrorCode)
			last["message"] = report.ErrorMsg
		}
		body["last_run"] = last
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
