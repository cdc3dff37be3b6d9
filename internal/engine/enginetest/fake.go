// Package enginetest provides a scripted in-memory decode engine for tests.
// The fake completes submitted units on its own goroutine, optionally in a
// caller-chosen permutation of submission order, so sequencing logic can be
// exercised against worst-case completion interleavings without a vendor
// library present.
package enginetest

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/oblivion8282-1337/rawbridge/internal/engine"
)

// Options configures the fake engine's single clip.
type Options struct {
	Info engine.ClipInfo

	// CompleteOrder, when non-empty, is the exact order unit completions are
	// delivered in. Every listed index must become submittable under the
	// caller's in-flight window or the dispatcher stalls: an entry may only
	// precede entries it could overtake within the window.
	CompleteOrder []uint64

	// FailAt maps unit indices to engine status codes delivered as
	// EngineError outcomes.
	FailAt map[uint64]int32

	// SubmitFailAt makes Submit itself return an error for those indices.
	SubmitFailAt map[uint64]error

	// AudioPCM is the clip's interleaved audio payload, already in the
	// endianness declared by Info.Audio.BigEndian. Length must equal
	// TotalSamples * Channels * 4.
	AudioPCM []byte

	// AudioFailAfter, when non-nil, fails the audio read covering that
	// per-channel sample offset.
	AudioFailAfter *uint64
}

// Engine is a fake engine.Engine serving one scripted clip per path.
type Engine struct {
	opts Options

	mu    sync.Mutex
	clips []*Clip
}

// New returns a fake engine whose every opened clip follows opts.
func New(opts Options) *Engine {
	return &Engine{opts: opts}
}

// OpenClip returns a new scripted clip. The path is recorded but not read.
func (e *Engine) OpenClip(path string) (engine.Clip, error) {
	c := newClip(e.opts, path)
	e.mu.Lock()
	e.clips = append(e.clips, c)
	e.mu.Unlock()
	return c, nil
}

// Close shuts down dispatchers of all opened clips.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.clips {
		c.Close()
	}
	e.clips = nil
	return nil
}

type submission struct {
	unit engine.Unit
	done engine.CompletionFunc
}

// Clip implements engine.Clip and engine.AsyncFrameDecoder with scripted
// completion delivery.
type Clip struct {
	opts Options
	path string

	mu        sync.Mutex
	cond      *sync.Cond
	submitted map[uint64]submission
	arrival   []uint64 // submission order, used when CompleteOrder is empty
	closed    bool

	dispatchWG sync.WaitGroup
}

func newClip(opts Options, path string) *Clip {
	c := &Clip{
		opts:      opts,
		path:      path,
		submitted: make(map[uint64]submission),
	}
	c.cond = sync.NewCond(&c.mu)
	c.dispatchWG.Add(1)
	go c.dispatch()
	return c
}

// Info returns the scripted clip metadata.
func (c *Clip) Info() engine.ClipInfo { return c.opts.Info }

// SubmitFrame queues a unit for scripted completion. It never blocks.
func (c *Clip) SubmitFrame(u engine.Unit, done engine.CompletionFunc) error {
	if err, ok := c.opts.SubmitFailAt[u.Index]; ok {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return engine.ErrClosed
	}
	c.submitted[u.Index] = submission{unit: u, done: done}
	c.arrival = append(c.arrival, u.Index)
	c.cond.Broadcast()
	return nil
}

// dispatch delivers completions on the fake's own goroutine, standing in for
// the vendor engine's internal thread pool.
func (c *Clip) dispatch() {
	defer c.dispatchWG.Done()

	next := 0 // position in CompleteOrder, or count delivered in arrival mode
	for {
		c.mu.Lock()
		var sub submission
		var ok bool
		for !c.closed {
			if len(c.opts.CompleteOrder) > 0 {
				if next >= len(c.opts.CompleteOrder) {
					c.mu.Unlock()
					return
				}
				sub, ok = c.submitted[c.opts.CompleteOrder[next]]
			} else if next < len(c.arrival) {
				sub, ok = c.submitted[c.arrival[next]]
			}
			if ok {
				break
			}
			c.cond.Wait()
		}
		if c.closed {
			c.mu.Unlock()
			return
		}
		delete(c.submitted, sub.unit.Index)
		next++
		c.mu.Unlock()

		sub.done(c.outcomeFor(sub.unit))
	}
}

// outcomeFor fills the unit's buffer with a deterministic per-index pattern
// and produces the scripted status.
func (c *Clip) outcomeFor(u engine.Unit) engine.Outcome {
	if code, ok := c.opts.FailAt[u.Index]; ok {
		return engine.Outcome{Index: u.Index, Status: engine.StatusEngineError, Code: code}
	}
	for i := range u.Out {
		u.Out[i] = byte(u.Index)
	}
	return engine.Outcome{Index: u.Index, Status: engine.StatusOK, Payload: u.Out}
}

// ReadAudio serves chunks of the scripted PCM payload.
func (c *Clip) ReadAudio(offset uint64, maxSamples uint32, dst []byte) (uint32, int, error) {
	info := c.opts.Info.Audio
	if info.Channels == 0 {
		return 0, 0, engine.ErrNoAudio
	}
	if c.opts.AudioFailAfter != nil && offset >= *c.opts.AudioFailAfter {
		return 0, 0, &engine.StatusError{Op: fmt.Sprintf("read audio at %d", offset), Code: -9}
	}

	frameBytes := uint64(info.Channels) * 4
	total := uint64(len(c.opts.AudioPCM)) / frameBytes
	if offset >= total {
		return 0, 0, nil
	}

	n := uint64(maxSamples)
	if max := uint64(len(dst)) / frameBytes; n > max {
		n = max
	}
	if offset+n > total {
		n = total - offset
	}

	start := offset * frameBytes
	nb := n * frameBytes
	copy(dst, c.opts.AudioPCM[start:start+nb])
	return uint32(n), int(nb), nil
}

// Close stops the dispatcher. Units still queued are never completed, which
// models an engine whose session was torn down.
func (c *Clip) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return engine.ErrClosed
	}
	c.closed = true
	c.cond.Broadcast()
	c.mu.Unlock()

	c.dispatchWG.Wait()
	return nil
}

// BigEndianPCM builds a deterministic big-endian 32-bit interleaved payload
// for totalSamples per-channel samples, useful as Options.AudioPCM for
// clips declaring BigEndian audio.
func BigEndianPCM(totalSamples uint64, channels uint32) []byte {
	out := make([]byte, totalSamples*uint64(channels)*4)
	word := uint32(0)
	for i := 0; i+4 <= len(out); i += 4 {
		binary.BigEndian.PutUint32(out[i:], word)
		word += 0x01010101
	}
	return out
}
