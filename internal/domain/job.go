package domain

import "time"

type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStateRunning   JobState = "running"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
	JobStateCancelled JobState = "cancelled"
)

// IsTerminal reports whether no further transitions are permitted.
func (s JobState) IsTerminal() bool {
	return s == JobStateCompleted || s == JobStateFailed || s == JobStateCancelled
}

// CanTransition reports whether the edge s -> to is part of the job state
// machine: queued -> running, queued -> cancelled, running -> any terminal.
func (s JobState) CanTransition(to JobState) bool {
	switch s {
	case JobStateQueued:
		return to == JobStateRunning || to == JobStateCancelled
	case JobStateRunning:
		return to.IsTerminal()
	default:
		return false
	}
}

// DownloadRequest holds the client-supplied parameters of a job.
// Immutable after the job is created.
type DownloadRequest struct {
	URL            string `json:"url"`
	Quality        string `json:"quality"`
	FormatType     string `json:"format_type"`
	Cookies        string `json:"-"`
	CustomFilename string `json:"custom_filename,omitempty"`
}

// Progress is the live progress sub-record of a running job. Written only
// by the progress reporter on behalf of the fetch operation.
type Progress struct {
	Percent    float64   `json:"percent"`
	BytesDone  int64     `json:"bytes_done"`
	BytesTotal int64     `json:"bytes_total,omitempty"`
	Rate       float64   `json:"rate,omitempty"` // bytes per second
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// Result is set exactly once, at the transition into a terminal state.
type Result struct {
	FilePath  string    `json:"file_path,omitempty"`
	FileSize  int64     `json:"file_size,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// Job represents one download request tracked from admission to terminal
// outcome.
type Job struct {
	ID         string          `json:"id"`
	State      JobState        `json:"state"`
	Request    DownloadRequest `json:"request"`
	Progress   Progress        `json:"progress"`
	Result     *Result         `json:"result,omitempty"`
	Owner      string          `json:"owner,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}
