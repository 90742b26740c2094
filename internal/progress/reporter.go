// Package progress carries progress samples from a running fetch operation
// into the job registry without ever blocking the fetch.
package progress

import (
	"sync"

	"github.com/ytgrab/ytgrab/internal/domain"
)

// Sink receives the forwarded samples. Satisfied by *registry.Registry.
type Sink interface {
	UpdateProgress(id string, p domain.Progress)
}

// Reporter is a single-slot mailbox between one fetch operation and the
// registry. Report overwrites the slot and returns immediately; a flusher
// goroutine forwards whatever is current. Under contention intermediate
// samples are coalesced rather than queued.
type Reporter struct {
	jobID string
	sink  Sink

	mu     sync.Mutex
	latest domain.Progress
	dirty  bool

	notify chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
}

func NewReporter(sink Sink, jobID string) *Reporter {
	r := &Reporter{
		jobID:  jobID,
		sink:   sink,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	r.wg.Add(1)
	go r.flushLoop()
	return r
}

// Report stores a sample and signals the flusher. Never blocks.
func (r *Reporter) Report(p domain.Progress) {
	r.mu.Lock()
	r.latest = p
	r.dirty = true
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Close flushes the final sample and stops the flusher. Safe to call once
// the fetch operation has returned.
func (r *Reporter) Close() {
	close(r.done)
	r.wg.Wait()
	r.flush()
}

func (r *Reporter) flushLoop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.notify:
			r.flush()
		case <-r.done:
			return
		}
	}
}

func (r *Reporter) flush() {
	r.mu.Lock()
	if !r.dirty {
		r.mu.Unlock()
		return
	}
	p := r.latest
	r.dirty = false
	r.mu.Unlock()

	r.sink.UpdateProgress(r.jobID, p)
}
