package engine

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// CompletionFunc receives the outcome of a submitted unit. It may be invoked
// from any goroutine, including engine-internal ones, and is invoked exactly
// once per accepted submission.
type CompletionFunc func(Outcome)

// Submitter is the uniform decode submission contract the sequencer drives:
// a non-blocking submit whose result arrives later through the adapter's
// registered completion callback. A submit error is synchronous and means no
// callback will fire for that unit.
type Submitter interface {
	Submit(u Unit) error
}

// FrameDecoder is the simplest vendor style: a synchronous per-frame decode
// call that blocks until the frame is in the output buffer.
type FrameDecoder interface {
	DecodeFrame(u Unit) Outcome
}

// AsyncFrameDecoder is the callback style: submission returns immediately
// and the engine reports completion on one of its own threads.
type AsyncFrameDecoder interface {
	SubmitFrame(u Unit, done CompletionFunc) error
}

// JobQueue is the batch style: work is wrapped in a job object that is
// submitted to the engine's queue and may be cancelled before completion.
type JobQueue interface {
	NewJob(u Unit, done CompletionFunc) (Job, error)
}

// Job is one queued decode job.
type Job interface {
	Submit() error
	Cancel()
}

// Adapter presents any of the three vendor submission styles as a Submitter
// with a single completion callback. It guarantees the callback fires at
// most once per unit even if a vendor backend misbehaves and reports twice.
type Adapter struct {
	submit func(Unit, CompletionFunc) error
	done   CompletionFunc
}

// NewSyncAdapter adapts a synchronous decoder. Each submit runs the decode on
// its own goroutine so submission never blocks; workers bounds how many
// decodes execute concurrently.
func NewSyncAdapter(d FrameDecoder, workers int64, done CompletionFunc) *Adapter {
	if workers < 1 {
		workers = 1
	}
	sem := semaphore.NewWeighted(workers)
	return &Adapter{
		done: done,
		submit: func(u Unit, cb CompletionFunc) error {
			go func() {
				// Background context: admission is already bounded by the
				// caller's in-flight window, cancellation drains through it.
				_ = sem.Acquire(context.Background(), 1)
				defer sem.Release(1)
				cb(d.DecodeFrame(u))
			}()
			return nil
		},
	}
}

// NewAsyncAdapter adapts a callback-style decoder.
func NewAsyncAdapter(d AsyncFrameDecoder, done CompletionFunc) *Adapter {
	return &Adapter{
		done:   done,
		submit: d.SubmitFrame,
	}
}

// NewJobAdapter adapts a job-queue decoder.
func NewJobAdapter(q JobQueue, done CompletionFunc) *Adapter {
	return &Adapter{
		done: done,
		submit: func(u Unit, cb CompletionFunc) error {
			job, err := q.NewJob(u, cb)
			if err != nil {
				return fmt.Errorf("engine: create job %d: %w", u.Index, err)
			}
			if err := job.Submit(); err != nil {
				return fmt.Errorf("engine: submit job %d: %w", u.Index, err)
			}
			return nil
		},
	}
}

// Submit hands one unit to the underlying engine. On success the adapter's
// completion callback will eventually fire exactly once for the unit.
func (a *Adapter) Submit(u Unit) error {
	var once sync.Once
	return a.submit(u, func(o Outcome) {
		once.Do(func() { a.done(o) })
	})
}
