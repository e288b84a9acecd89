// Package scheduler runs named interval jobs with an explicit
// start/stop/run-now lifecycle.  Each job exposes its status so an
// operations endpoint or CLI can tell whether the loop is alive, when
// it last ran and how the last run went.
package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// Status is a snapshot of a job's state.
type Status struct {
	Name      string     `json:"name"`
	Running   bool       `json:"running"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	Runs      uint64     `json:"runs"`
}

// ErrAlreadyRunning is returned by Start when the job loop is active.
var ErrAlreadyRunning = errors.New("job already running")

// ErrNotRunning is returned by Stop when there is no loop to stop.
var ErrNotRunning = errors.New("job not running")

// Job is a named function executed on a fixed interval.  Start and Stop
// control the loop; RunNow triggers one execution immediately whether
// or not the loop is active.  A run that is still in progress when the
// next tick fires is not overlapped: ticks are skipped until it
// returns.
type Job struct {
	name     string
	interval time.Duration
	fn       func(context.Context) error

	mu      sync.Mutex
	running bool
	busy    bool
	stop    chan struct{}
	done    chan struct{}
	lastRun time.Time
	lastErr error
	runs    uint64
}

// New constructs a job.  The interval must be positive and fn non-nil.
func New(name string, interval time.Duration, fn func(context.Context) error) *Job {
	if name == "" || interval <= 0 || fn == nil {
		panic("scheduler: invalid job definition")
	}
	return &Job{name: name, interval: interval, fn: fn}
}

// Start launches the interval loop.  Returns ErrAlreadyRunning if it is
// already active.
func (j *Job) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return ErrAlreadyRunning
	}
	j.running = true
	j.stop = make(chan struct{})
	j.done = make(chan struct{})
	go j.loop(j.stop, j.done)
	log.Printf("scheduler: job %q started (interval %s)", j.name, j.interval)
	return nil
}

// Stop halts the interval loop and waits for an in-progress run to
// finish.  Returns ErrNotRunning if the loop is not active.
func (j *Job) Stop() error {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return ErrNotRunning
	}
	stop, done := j.stop, j.done
	j.running = false
	j.mu.Unlock()

	close(stop)
	<-done
	log.Printf("scheduler: job %q stopped", j.name)
	return nil
}

// RunNow executes the job once, immediately, and records the outcome in
// the job status.  Concurrent runs are refused rather than stacked.
func (j *Job) RunNow(ctx context.Context) error {
	return j.run(ctx)
}

// Status returns a snapshot of the job's state.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	st := Status{Name: j.name, Running: j.running, Runs: j.runs}
	if !j.lastRun.IsZero() {
		t := j.lastRun
		st.LastRunAt = &t
	}
	if j.lastErr != nil {
		st.LastError = j.lastErr.Error()
	}
	return st
}

func (j *Job) loop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := j.run(context.Background()); err != nil && err != errBusy {
				log.Printf("scheduler: job %q run failed: %v", j.name, err)
			}
		}
	}
}

var errBusy = errors.New("previous run still in progress")

func (j *Job) run(ctx context.Context) error {
	j.mu.Lock()
	if j.busy {
		j.mu.Unlock()
		return errBusy
	}
	j.busy = true
	j.mu.Unlock()

	err := j.fn(ctx)

	j.mu.Lock()
	j.busy = false
	j.lastRun = time.Now().UTC()
	j.lastErr = err
	j.runs++
	j.mu.Unlock()
	return err
}
