// Package engine is the boundary to the external fetch engine. The engine
// performs the actual network retrieval and format packaging; everything on
// this side treats it as an opaque, long-running, cancellable operation that
// reports progress and terminates with a classified outcome.
package engine

import (
	"context"
	"errors"
	"os/exec"

	"github.com/ytgrab/ytgrab/internal/domain"
)

// FetchRequest carries everything the engine needs for one job.
type FetchRequest struct {
	URL            string
	Quality        string
	FormatType     string
	Cookies        string
	CustomFilename string
	DestDir        string // per-job directory; the engine writes only here
	MaxFileSize    int64

	// OnProgress receives samples during the fetch. May be nil. Must not
	// block; the caller is expected to pass a coalescing reporter.
	OnProgress func(domain.Progress)
}

// FetchResult is returned on success.
type FetchResult struct {
	FilePath string
	FileSize int64
	Title    string
	Uploader string
}

// Engine is implemented by the yt-dlp adapter and by test fakes.
type Engine interface {
	// Probe extracts source metadata without downloading anything.
	Probe(ctx context.Context, url, cookies string) (*domain.VideoInfo, error)

	// Fetch downloads one item. Cancelling the context stops the engine;
	// the returned error then classifies as ErrorKindCancelled.
	Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error)
}

// Error is a classified engine outcome.
type Error struct {
	Kind    domain.ErrorKind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Classify extracts the error kind from an engine error. Unclassified
// errors count as engine failures.
func Classify(err error) domain.ErrorKind {
	if err == nil {
		return domain.ErrorKindNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return domain.ErrorKindEngineFailure
}

// DependencyReport describes the availability of the external binaries.
type DependencyReport struct {
	YTDLPFound  bool   `json:"yt_dlp_found"`
	YTDLPPath   string `json:"yt_dlp_path,omitempty"`
	FFmpegFound bool   `json:"ffmpeg_found"`
	FFmpegPath  string `json:"ffmpeg_path,omitempty"`
}

// DependencyStatus probes PATH for yt-dlp and ffmpeg.
func DependencyStatus() DependencyReport {
	report := DependencyReport{}
	if path, err := exec.LookPath("yt-dlp"); err == nil {
		report.YTDLPFound = true
		report.YTDLPPath = path
	}
	if path, err := exec.LookPath("ffmpeg"); err == nil {
		report.FFmpegFound = true
		report.FFmpegPath = path
	}
	return report
}
