// Package registry owns the authoritative in-memory table of job records.
//
// The map lock guards membership only; every record carries its own mutex so
// that a progress update and a terminal transition on the same job can never
// interleave, while jobs never contend with each other. No lock is ever held
// across engine I/O. Reads return copies, never aliases into the table.
package registry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ytgrab/ytgrab/internal/domain"
)

var (
	ErrNotFound          = errors.New("job not found")
	ErrIllegalTransition = errors.New("illegal job state transition")
	ErrMissingResult     = errors.New("terminal transition requires a result")
)

type record struct {
	mu  sync.Mutex
	job domain.Job
}

type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*record

	now func() time.Time
}

func New() *Registry {
	return &Registry{
		jobs: make(map[string]*record),
		now:  time.Now,
	}
}

// Create allocates a new job in the queued state and inserts it.
// Identifier allocation and insertion are atomic under the map lock.
func (r *Registry) Create(req domain.DownloadRequest, owner string) *domain.Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	job := domain.Job{
		ID:        uuid.New().String(),
		State:     domain.JobStateQueued,
		Request:   req,
		Owner:     owner,
		CreatedAt: r.now(),
	}
	r.jobs[job.ID] = &record{job: job}

	cp := job
	return &cp
}

// Get returns a point-in-time copy of the job, or ErrNotFound.
func (r *Registry) Get(id string) (*domain.Job, error) {
	rec, err := r.record(id)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	cp := rec.job
	rec.mu.Unlock()
	return &cp, nil
}

// List returns copies of all jobs ordered by creation time descending.
// A non-empty state filters the result.
func (r *Registry) List(state domain.JobState) []*domain.Job {
	recs := r.snapshot()

	jobs := make([]*domain.Job, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		cp := rec.job
		rec.mu.Unlock()

		if state != "" && cp.State != state {
			continue
		}
		jobs = append(jobs, &cp)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

// QueuedIDs returns the ids of queued jobs in creation order, oldest first.
// Dispatch follows this order so that contended worker slots are granted FIFO.
func (r *Registry) QueuedIDs() []string {
	queued := r.List(domain.JobStateQueued)

	sort.Slice(queued, func(i, j int) bool {
		return queued[i].CreatedAt.Before(queued[j].CreatedAt)
	})

	ids := make([]string, 0, len(queued))
	for _, j := range queued {
		ids = append(ids, j.ID)
	}
	return ids
}

// Counts returns the number of jobs per state.
func (r *Registry) Counts() map[domain.JobState]int {
	recs := r.snapshot()

	counts := make(map[domain.JobState]int)
	for _, rec := range recs {
		rec.mu.Lock()
		counts[rec.job.State]++
		rec.mu.Unlock()
	}
	return counts
}

// Transition moves a job to a new state after validating the edge against
// the state machine. Terminal transitions must carry a result; the result is
// installed exactly once, together with the finished timestamp. An invalid
// edge leaves the record untouched and returns ErrIllegalTransition.
func (r *Registry) Transition(id string, to domain.JobState, result *domain.Result) error {
	rec, err := r.record(id)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if !rec.job.State.CanTransition(to) {
		return ErrIllegalTransition
	}
	if to.IsTerminal() && result == nil {
		return ErrMissingResult
	}

	now := r.now()
	switch {
	case to == domain.JobStateRunning:
		rec.job.StartedAt = &now
	case to.IsTerminal():
		cp := *result
		rec.job.Result = &cp
		rec.job.FinishedAt = &now
	}
	rec.job.State = to
	return nil
}

// UpdateProgress applies a progress sample to a running job. Samples for
// jobs that are not running, and samples whose percentage regresses, are
// dropped silently: a straggling report arriving after cancellation or
// completion must not resurface.
func (r *Registry) UpdateProgress(id string, p domain.Progress) {
	rec, err := r.record(id)
	if err != nil {
		return
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.job.State != domain.JobStateRunning {
		return
	}
	if p.Percent < rec.job.Progress.Percent {
		return
	}

	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = r.now()
	}
	rec.job.Progress = p
}

// ExpiredTerminal returns copies of terminal jobs that finished before the
// cutoff. Queued and running jobs are never reported regardless of age.
func (r *Registry) ExpiredTerminal(cutoff time.Time) []*domain.Job {
	recs := r.snapshot()

	var expired []*domain.Job
	for _, rec := range recs {
		rec.mu.Lock()
		cp := rec.job
		rec.mu.Unlock()

		if !cp.State.IsTerminal() || cp.FinishedAt == nil {
			continue
		}
		if cp.FinishedAt.Before(cutoff) {
			expired = append(expired, &cp)
		}
	}
	return expired
}

// Remove evicts a job record from the table.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.jobs, id)
	r.mu.Unlock()
}

func (r *Registry) record(id string) (*record, error) {
	r.mu.RLock()
	rec, ok := r.jobs[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (r *Registry) snapshot() []*record {
	r.mu.RLock()
	recs := make([]*record, 0, len(r.jobs))
	for _, rec := range r.jobs {
		recs = append(recs, rec)
	}
	r.mu.RUnlock()
	return recs
}
