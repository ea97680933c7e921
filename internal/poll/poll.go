// Package poll provides the periodic refresh discipline shared by
// everything that keeps a local view in sync by polling: an immediate fetch
// on start, a fixed interval after that, and an on-demand refresh that can
// never overlap the scheduled one. Fetches carry monotonic sequence
// numbers; when refreshes race, only the most recently issued fetch may
// apply its result, so a slow stale response can never overwrite a fresh
// one.
package poll

import (
	"context"
	"log"
	"sync"
	"time"
)

// Fetch performs one refresh and returns the function that applies its
// result. The runner calls apply only while the fetch is still the latest
// issued one; superseded results are discarded unapplied.
type Fetch func(ctx context.Context) (apply func(), err error)

// Runner drives a Fetch on a fixed interval.
type Runner struct {
	name     string
	interval time.Duration
	fetch    Fetch
	trigger  chan struct{}

	mu   sync.Mutex
	seq  uint64
	busy bool
}

// NewRunner creates a runner. name is used in log lines only.
func NewRunner(name string, interval time.Duration, fetch Fetch) *Runner {
	return &Runner{
		name:     name,
		interval: interval,
		fetch:    fetch,
		trigger:  make(chan struct{}, 1),
	}
}

// Run polls until ctx is cancelled: one immediate fetch, then one per
// interval, plus any triggered refreshes. Triggered refreshes reset the
// interval so a burst of activity does not double the polling rate.
func (r *Runner) Run(ctx context.Context) {
	r.RefreshNow(ctx)

	timer := time.NewTimer(r.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("%s poller shutting down", r.name)
			return
		case <-timer.C:
			r.RefreshNow(ctx)
			timer.Reset(r.interval)
		case <-r.trigger:
			r.RefreshNow(ctx)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(r.interval)
		}
	}
}

// TriggerNow requests an out-of-band refresh. It returns false when one is
// already queued or in flight; the pending refresh covers the caller.
func (r *Runner) TriggerNow() bool {
	r.mu.Lock()
	busy := r.busy
	r.mu.Unlock()
	if busy {
		return false
	}
	select {
	case r.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// RefreshNow runs a single fetch synchronously. If another refresh is in
// flight it returns immediately; otherwise it issues the next sequence
// number and applies the result only if no later fetch was issued while
// this one ran.
func (r *Runner) RefreshNow(ctx context.Context) {
	r.mu.Lock()
	if r.busy {
		r.mu.Unlock()
		return
	}
	r.busy = true
	r.seq++
	seq := r.seq
	r.mu.Unlock()

	apply, err := r.fetch(ctx)

	r.mu.Lock()
	latest := seq == r.seq
	r.busy = false
	r.mu.Unlock()

	if err != nil {
		log.Printf("%s poll cycle failed: %v", r.name, err)
		return
	}
	if !latest {
		log.Printf("%s poll cycle superseded; discarding result", r.name)
		return
	}
	if apply != nil {
		apply()
	}
}

// supersede marks every in-flight fetch stale. Only tests need it directly;
// Run achieves the same by issuing the next fetch.
func (r *Runner) supersede() {
	r.mu.Lock()
	r.seq++
	r.mu.Unlock()
}
