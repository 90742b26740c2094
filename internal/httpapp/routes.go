package httpapp

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ytgrab/ytgrab/internal/constants"
	"github.com/ytgrab/ytgrab/internal/domain"
	"github.com/ytgrab/ytgrab/internal/engine"
	"github.com/ytgrab/ytgrab/internal/registry"
	"github.com/ytgrab/ytgrab/internal/storage"
	"github.com/ytgrab/ytgrab/internal/store"
	"github.com/ytgrab/ytgrab/internal/sysinfo"
)

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	counts := h.Registry.Counts()
	snap := sysinfo.Collect(h.Config.DownloadsDir)

	h.respondJSON(w, http.StatusOK, healthResponse{
		Status:       "ok",
		Timestamp:    time.Now().UTC(),
		Dependencies: engine.DependencyStatus(),
		Active:       counts[domain.JobStateRunning],
		Queued:       counts[domain.JobStateQueued],
		MemoryUsed:   snap.MemoryPercent,
		DiskUsed:     snap.DiskPercent,
	})
}

func (h *Handler) VideoInfo(w http.ResponseWriter, r *http.Request) {
	var req videoInfoRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := engine.ValidateURL(req.URL); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	info, err := h.Engine.Probe(r.Context(), req.URL, req.Cookies)
	if err != nil {
		h.Logger.Warn("Probe failed", "url", req.URL, "error", err)
		switch engine.Classify(err) {
		case domain.ErrorKindInvalidSource, domain.ErrorKindUnavailableFormat:
			h.respondError(w, http.StatusBadRequest, err.Error())
		default:
			h.respondError(w, http.StatusBadGateway, "failed to retrieve video information")
		}
		return
	}

	h.respondJSON(w, http.StatusOK, info)
}

func (h *Handler) StartDownload(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := engine.ValidateURL(req.URL); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Quality == "" {
		req.Quality = constants.DefaultQuality
	}
	if req.FormatType == "" {
		req.FormatType = constants.DefaultFormatType
	}
	if req.FormatType != constants.FormatMP4 && req.FormatType != constants.FormatMP3 {
		h.respondError(w, http.StatusBadRequest, "format_type must be mp4 or mp3")
		return
	}

	job := h.Registry.Create(domain.DownloadRequest{
		URL:            req.URL,
		Quality:        req.Quality,
		FormatType:     req.FormatType,
		Cookies:        req.Cookies,
		CustomFilename: storage.Sanitize(req.CustomFilename),
	}, clientKey(r))
	h.Pool.Submit(job.ID)

	h.Logger.Info("Download admitted", "job_id", job.ID, "url", req.URL, "format", req.FormatType)
	h.respondJSON(w, http.StatusAccepted, downloadAccepted{JobID: job.ID})
}

func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := h.Registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, http.StatusNotFound, "download not found")
		return
	}
	h.respondJSON(w, http.StatusOK, job)
}

func (h *Handler) ListDownloads(w http.ResponseWriter, r *http.Request) {
	state := domain.JobState(r.URL.Query().Get("state"))
	h.respondJSON(w, http.StatusOK, h.Registry.List(state))
}

func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	limit := constants.DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > constants.MaxHistoryLimit {
		limit = constants.MaxHistoryLimit
	}

	if h.History == nil {
		h.respondJSON(w, http.StatusOK, []*store.Entry{})
		return
	}
	entries, err := h.History.ListHistory(limit)
	if err != nil {
		h.Logger.Error("Failed to list history", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if entries == nil {
		entries = []*store.Entry{}
	}
	h.respondJSON(w, http.StatusOK, entries)
}

func (h *Handler) CancelDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.Pool.Cancel(id); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			h.respondError(w, http.StatusNotFound, "download not found")
			return
		}
		h.Logger.Error("Cancel failed", "job_id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to cancel download")
		return
	}

	job, err := h.Registry.Get(id)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "download not found")
		return
	}
	h.respondJSON(w, http.StatusOK, cancelResponse{JobID: id, State: string(job.State)})
}

func (h *Handler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	job, err := h.Registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, http.StatusNotFound, "download not found")
		return
	}
	if job.State != domain.JobStateCompleted {
		h.respondError(w, http.StatusConflict, "download is not completed")
		return
	}
	if job.Result == nil || job.Result.FilePath == "" {
		h.respondError(w, http.StatusNotFound, "file not available")
		return
	}
	if _, err := os.Stat(job.Result.FilePath); err != nil {
		h.respondError(w, http.StatusNotFound, "file no longer exists")
		return
	}

	name := storage.Sanitize(filepath.Base(job.Result.FilePath))
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeFile(w, r, job.Result.FilePath)
}

func (h *Handler) SystemInfo(w http.ResponseWriter, r *http.Request) {
	counts := make(map[string]int)
	for state, n := range h.Registry.Counts() {
		counts[string(state)] = n
	}

	size, err := storage.DirSize(h.Config.DownloadsDir)
	if err != nil {
		h.Logger.Warn("Failed to size downloads dir", "error", err)
	}

	h.respondJSON(w, http.StatusOK, systemInfoResponse{
		System:        sysinfo.Collect(h.Config.DownloadsDir),
		JobCounts:     counts,
		DownloadsDir:  h.Config.DownloadsDir,
		DownloadsSize: size,
		MaxConcurrent: h.Config.MaxConcurrent,
	})
}

func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	olderThan := h.Config.Retention
	if req.Hours > 0 {
		olderThan = time.Duration(req.Hours) * time.Hour
	}

	removed := h.Cleaner.Sweep(olderThan)
	h.Logger.Info("Manual cleanup", "older_than", olderThan, "removed", removed)
	h.respondJSON(w, http.StatusOK, cleanupResponse{Removed: removed})
}
