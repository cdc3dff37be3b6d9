// Package sequencer converts the decode engine's out-of-order, any-thread
// completion delivery into a strictly increasing sequence of frame outputs,
// while keeping up to a configurable window of units in flight. It is the
// bridge's concurrency core: a pending map plus a next-expected index under
// one mutex, with a condition variable so the control goroutine waits for
// "next frame is ready" without polling.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/oblivion8282-1337/rawbridge/internal/alignbuf"
	"github.com/oblivion8282-1337/rawbridge/internal/engine"
)

// frameAlign is the buffer alignment the engine requires for video frame
// output buffers.
const frameAlign = 16

// ErrCancelled is returned by Run when the context ends before all units
// are emitted.
var ErrCancelled = errors.New("sequencer: cancelled")

// Sink consumes one in-order outcome on the control goroutine. A blocking
// sink is the intended backpressure path: while it blocks, the pending map
// cannot drain and admission stalls once the window fills. A sink error is
// fatal and stops the run.
type Sink func(o engine.Outcome) error

// Config sizes one sequencing run.
type Config struct {
	// Window is the in-flight bound K. At most Window units are submitted
	// but not yet emitted, which also bounds resident frame buffers.
	Window int

	// Total is the number of units, indices [0, Total).
	Total uint64

	// Scale is the decode quality selector stamped on every unit.
	Scale engine.Scale

	// FrameBytes is the engine's native output buffer size per unit.
	FrameBytes int
}

// Sequencer runs one ordered decode pass over a clip's frames.
type Sequencer struct {
	cfg  Config
	sink Sink

	mu         sync.Mutex
	cond       *sync.Cond
	pending    map[uint64]engine.Outcome
	next       uint64 // next index to emit
	nextSubmit uint64 // next index to admit
	inflight   int
	failIdx    uint64 // smallest failing index, MaxUint64 when none
	failErr    error
	cancelled  bool

	free []*alignbuf.Block
	held map[uint64]*alignbuf.Block
}

// New returns a Sequencer delivering in-order outcomes to sink. Window
// values below 1 are treated as 1.
func New(cfg Config, sink Sink) *Sequencer {
	if cfg.Window < 1 {
		cfg.Window = 1
	}
	s := &Sequencer{
		cfg:     cfg,
		sink:    sink,
		pending: make(map[uint64]engine.Outcome, cfg.Window),
		failIdx: math.MaxUint64,
		held:    make(map[uint64]*alignbuf.Block, cfg.Window),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Complete records one unit outcome. It is the adapter's completion
// callback and may be invoked from any goroutine in any order.
func (s *Sequencer) Complete(o engine.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inflight--
	if o.Status != engine.StatusOK && o.Index < s.failIdx {
		s.failIdx = o.Index
		s.failErr = o.Err()
	}
	s.pending[o.Index] = o
	s.cond.Broadcast()
}

// Run drives the full pass: admit up to Window units, emit completions in
// index order through the sink, and top the window back up after each
// emission. On the first engine error it stops admitting, emits only
// outcomes strictly below the failing index, and returns that error after
// every outstanding callback has been observed — buffers referenced by
// in-flight units must outlive them.
func (s *Sequencer) Run(ctx context.Context, sub engine.Submitter) error {
	if s.cfg.Total == 0 {
		return nil
	}

	for i := 0; i < s.cfg.Window && uint64(i) < s.cfg.Total; i++ {
		b, err := alignbuf.Alloc(s.cfg.FrameBytes, frameAlign)
		if err != nil {
			s.releaseBuffers()
			return fmt.Errorf("sequencer: frame buffer: %w", err)
		}
		s.free = append(s.free, b)
	}
	defer s.releaseBuffers()

	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cancelled = true
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.admit(sub)

	for {
		s.mu.Lock()
		for !s.emittableLocked() && !s.terminalLocked() {
			s.cond.Wait()
		}

		if s.terminalLocked() {
			// Do not return while engine callbacks can still fire into the
			// frame buffers.
			for s.inflight > 0 {
				s.cond.Wait()
			}
			err := s.failErr
			cancelled := s.cancelled && s.next < s.cfg.Total
			s.mu.Unlock()
			if err != nil {
				return err
			}
			if cancelled {
				return fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
			}
			return nil
		}

		o := s.pending[s.next]
		delete(s.pending, s.next)
		s.mu.Unlock()

		err := s.sink(o)

		s.mu.Lock()
		if err != nil {
			if s.next < s.failIdx {
				s.failIdx = s.next
				s.failErr = fmt.Errorf("sequencer: emit unit %d: %w", s.next, err)
			}
			s.mu.Unlock()
			continue
		}
		s.next++
		if b, ok := s.held[o.Index]; ok {
			delete(s.held, o.Index)
			s.free = append(s.free, b)
		}
		s.mu.Unlock()

		s.admit(sub)
	}
}

// emittableLocked reports whether the next-expected outcome is buffered and
// still eligible for emission.
func (s *Sequencer) emittableLocked() bool {
	if s.cancelled || s.next >= s.cfg.Total || s.next >= s.failIdx {
		return false
	}
	_, ok := s.pending[s.next]
	return ok
}

// terminalLocked reports whether no further emission can ever happen.
func (s *Sequencer) terminalLocked() bool {
	return s.cancelled || s.next >= s.cfg.Total || s.next >= s.failIdx
}

// admit submits units until the window is full, the total is reached, or
// the run has failed or been cancelled. Submission happens with the mutex
// released because a backend may deliver its completion synchronously on
// the submitting goroutine.
func (s *Sequencer) admit(sub engine.Submitter) {
	for {
		s.mu.Lock()
		if s.cancelled || s.failErr != nil ||
			s.nextSubmit >= s.cfg.Total ||
			s.nextSubmit >= s.next+uint64(s.cfg.Window) ||
			len(s.free) == 0 {
			s.mu.Unlock()
			return
		}
		idx := s.nextSubmit
		buf := s.free[len(s.free)-1]
		s.free = s.free[:len(s.free)-1]
		s.held[idx] = buf
		s.nextSubmit++
		s.inflight++
		s.mu.Unlock()

		u := engine.Unit{Index: idx, Scale: s.cfg.Scale, Out: buf.Data}
		if err := sub.Submit(u); err != nil {
			s.mu.Lock()
			s.inflight--
			delete(s.held, idx)
			s.free = append(s.free, buf)
			if idx < s.failIdx {
				s.failIdx = idx
				s.failErr = fmt.Errorf("sequencer: submit unit %d: %w", idx, err)
			}
			s.cond.Broadcast()
			s.mu.Unlock()
			return
		}
	}
}

func (s *Sequencer) releaseBuffers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.free {
		b.Release()
	}
	s.free = nil
	for idx, b := range s.held {
		b.Release()
		delete(s.held, idx)
	}
}
