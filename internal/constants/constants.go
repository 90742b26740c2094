// Package constants contains application-wide constants to avoid magic numbers and strings.
package constants

import "time"

// Application defaults
const (
	DefaultPort            = "8080"
	DefaultDBPath          = "ytgrab.db"
	DefaultQuality         = "best"
	DefaultFormatType      = "mp4"
	DefaultConcurrency     = 5
	DefaultMaxFileSize     = int64(2) << 30 // 2 GiB
	DefaultPollInterval    = 500 * time.Millisecond
	DefaultRetryCount      = 3
	DefaultRetryBase       = 1 * time.Second
	DefaultCleanupInterval = 6 * time.Hour
	DefaultRetention       = 24 * time.Hour
	DefaultCancelGrace     = 5 * time.Second
	DefaultRateLimit       = 10
	DefaultRateWindow      = 60 * time.Second
)

// Format types accepted by the download endpoint.
const (
	FormatMP4 = "mp4"
	FormatMP3 = "mp3"
)

// File Extensions
const (
	ExtMP4 = ".mp4"
	ExtMP3 = ".mp3"
)

// Permissions
const (
	DirPermissions  = 0755
	FilePermissions = 0644
)

// Engine
const (
	EngineBinary        = "yt-dlp"
	EngineSocketTimeout = 30 * time.Second
	ProbeTimeout        = 60 * time.Second
	MaxProbeFormats     = 10
	MaxDescriptionRunes = 500
)

// HTTP
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
	ShutdownTimeout     = 5 * time.Second
)
