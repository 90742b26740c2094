package store

import (
	"time"

	"github.com/ytgrab/ytgrab/internal/domain"
)

// Entry is one archived terminal job. The in-memory registry is the source
// of truth while a job lives; the history table only keeps the outcome.
type Entry struct {
	ID         string     `db:"id" json:"id"`
	URL        string     `db:"url" json:"url"`
	Quality    string     `db:"quality" json:"quality"`
	FormatType string     `db:"format_type" json:"format_type"`
	State      string     `db:"state" json:"state"`
	ErrorKind  string     `db:"error_kind" json:"error_kind,omitempty"`
	Error      string     `db:"error" json:"error,omitempty"`
	FilePath   string     `db:"file_path" json:"file_path,omitempty"`
	FileSize   int64      `db:"file_size" json:"file_size"`
	Owner      string     `db:"owner" json:"-"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	StartedAt  *time.Time `db:"started_at" json:"started_at,omitempty"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}

func entryFromJob(job *domain.Job) *Entry {
	e := &Entry{
		ID:         job.ID,
		URL:        job.Request.URL,
		Quality:    job.Request.Quality,
		FormatType: job.Request.FormatType,
		State:      string(job.State),
		Owner:      job.Owner,
		CreatedAt:  job.CreatedAt,
		StartedAt:  job.StartedAt,
		FinishedAt: job.FinishedAt,
	}
	if job.Result != nil {
		e.ErrorKind = string(job.Result.ErrorKind)
		e.Error = job.Result.Message
		e.FilePath = job.Result.FilePath
		e.FileSize = job.Result.FileSize
	}
	return e
}

// Archive records a terminal job. Re-archiving the same job overwrites the
// previous row, which keeps the call idempotent.
func (db *DB) Archive(job *domain.Job) error {
	query := `INSERT OR REPLACE INTO history (
		id, url, quality, format_type, state, error_kind, error,
		file_path, file_size, owner, created_at, started_at, finished_at
	) VALUES (
		:id, :url, :quality, :format_type, :state, :error_kind, :error,
		:file_path, :file_size, :owner, :created_at, :started_at, :finished_at
	)`
	_, err := db.NamedExec(query, entryFromJob(job))
	return err
}

func (db *DB) ListHistory(limit int) ([]*Entry, error) {
	query := `SELECT * FROM history ORDER BY finished_at DESC LIMIT ?`
	var entries []*Entry
	if err := db.Select(&entries, query, limit); err != nil {
		return nil, err
	}
	return entries, nil
}

// PurgeOlderThan drops archived rows whose jobs finished before the cutoff.
func (db *DB) PurgeOlderThan(cutoff time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM history WHERE finished_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
