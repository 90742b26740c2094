package httpapp

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ytgrab/ytgrab/internal/cleanup"
	"github.com/ytgrab/ytgrab/internal/config"
	"github.com/ytgrab/ytgrab/internal/engine"
	"github.com/ytgrab/ytgrab/internal/logger"
	"github.com/ytgrab/ytgrab/internal/pool"
	"github.com/ytgrab/ytgrab/internal/ratelimit"
	"github.com/ytgrab/ytgrab/internal/registry"
	"github.com/ytgrab/ytgrab/internal/store"
)

// HistoryStore lists archived terminal jobs. *store.DB satisfies it.
type HistoryStore interface {
	ListHistory(limit int) ([]*store.Entry, error)
}

type Handler struct {
	Registry *registry.Registry
	Pool     *pool.Pool
	Engine   engine.Engine
	Limiter  *ratelimit.Limiter
	History  HistoryStore
	Cleaner  *cleanup.Scheduler
	Config   *config.Config
	Logger   *logger.Logger
}

func NewHandler(reg *registry.Registry, p *pool.Pool, eng engine.Engine, limiter *ratelimit.Limiter, history HistoryStore, cleaner *cleanup.Scheduler, cfg *config.Config, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Default()
	}
	return &Handler{
		Registry: reg,
		Pool:     p,
		Engine:   eng,
		Limiter:  limiter,
		History:  history,
		Cleaner:  cleaner,
		Config:   cfg,
		Logger:   log.WithComponent("http"),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/health", h.Health)
	r.Post("/api/video-info", h.rateLimited(h.VideoInfo))
	r.Post("/api/download", h.rateLimited(h.StartDownload))
	r.Get("/api/download/{id}/status", h.JobStatus)
	r.Get("/api/downloads", h.ListDownloads)
	r.Get("/api/downloads/history", h.ListHistory)
	r.Post("/api/download/{id}/cancel", h.CancelDownload)
	r.Get("/api/download/{id}/file", h.DownloadFile)
	r.Get("/api/system/info", h.SystemInfo)
	r.Post("/api/cleanup", h.Cleanup)
}

// rateLimited wraps admission-path handlers with the sliding-window
// limiter, keyed by client address.
func (h *Handler) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.Limiter != nil && !h.Limiter.Admit(clientKey(r)) {
			h.respondError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
			return
		}
		next(w, r)
	}
}

// clientKey identifies the caller for rate limiting and job ownership.
func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i > 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"data":    data,
	}); err != nil {
		h.Logger.Error("Failed to encode response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		h.Logger.Error("Failed to encode error response", "error", err)
	}
}

func decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}
