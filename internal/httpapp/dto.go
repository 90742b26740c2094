package httpapp

import (
	"time"

	"github.com/ytgrab/ytgrab/internal/engine"
	"github.com/ytgrab/ytgrab/internal/sysinfo"
)

type videoInfoRequest struct {
	URL     string `json:"url"`
	Cookies string `json:"cookies,omitempty"`
}

type downloadRequest struct {
	URL            string `json:"url"`
	Quality        string `json:"quality,omitempty"`
	FormatType     string `json:"format_type,omitempty"`
	Cookies        string `json:"cookies,omitempty"`
	CustomFilename string `json:"custom_filename,omitempty"`
}

type downloadAccepted struct {
	JobID string `json:"job_id"`
}

type cancelResponse struct {
	JobID string `json:"job_id"`
	State string `json:"state"`
}

type cleanupRequest struct {
	Hours int `json:"hours"`
}

type cleanupResponse struct {
	Removed int `json:"removed"`
}

type healthResponse struct {
	Status       string                  `json:"status"`
	Timestamp    time.Time               `json:"timestamp"`
	Dependencies engine.DependencyReport `json:"dependencies"`
	Active       int                     `json:"active_downloads"`
	Queued       int                     `json:"queued_downloads"`
	MemoryUsed   float64                 `json:"memory_percent"`
	DiskUsed     float64                 `json:"disk_percent"`
}

type systemInfoResponse struct {
	System        sysinfo.Snapshot `json:"system"`
	JobCounts     map[string]int   `json:"job_counts"`
	DownloadsDir  string           `json:"downloads_dir"`
	DownloadsSize int64            `json:"downloads_dir_bytes"`
	MaxConcurrent int              `json:"max_concurrent"`
}
