// Package scheduler runs the relay's timers: identification timeout,
// key-exchange timeout, and the periodic pending-contact-request sweep
// (spec.md §5). It wraps stdlib time.Timer/time.Ticker in the shape of
// katzenpost-client/scheduler's PriorityScheduler (schedule a callback,
// let it fire, optionally reschedule) without importing that package's
// non-reusable internal logging dependency.
package scheduler

import (
	"sync"
	"time"
)

// Scheduler owns every timer/ticker the relay starts, so Stop can drain
// them all on shutdown (spec.md §5: "scheduler → workers → loop → sockets").
type Scheduler struct {
	stopped chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// New creates a Scheduler ready to accept timers.
func New() *Scheduler {
	return &Scheduler{stopped: make(chan struct{})}
}

// After schedules f to run once after d, unless the scheduler is stopped
// first. The returned timer can be cancelled early via Stop().
func (s *Scheduler) After(d time.Duration, f func()) *time.Timer {
	return time.AfterFunc(d, func() {
		select {
		case <-s.stopped:
			return
		default:
		}
		f()
	})
}

// Every runs f on every tick of d until the returned cancel func is called
// or the scheduler is stopped. Used for the 7-day pending-contact-request
// sweep.
func (s *Scheduler) Every(d time.Duration, f func()) (cancel func()) {
	ticker := time.NewTicker(d)
	done := make(chan struct{})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				f()
			case <-done:
				return
			case <-s.stopped:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// Stop cancels every recurring task and waits for their goroutines to exit.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stopped) })
	s.wg.Wait()
}
