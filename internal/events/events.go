// Package events serializes the bridge's side-channel protocol: one JSON
// object per line on stderr, flushed per record so a supervising process can
// observe progress without buffering delay. Four record kinds exist; exactly
// one metadata record precedes any progress, and a done record (success) or
// an error record (failure) is always last.
package events

import (
	"fmt"
	"io"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Metadata describes the opened clip. Emitted once, before any payload byte
// or progress record.
type Metadata struct {
	Type       string `json:"type"` // always "metadata"
	Timecode   string `json:"timecode"`
	FPSNum     uint32 `json:"fps_num"`
	FPSDen     uint32 `json:"fps_den"`
	Width      uint32 `json:"width"`
	Height     uint32 `json:"height"`
	FrameCount uint64 `json:"frame_count"`
}

// Progress reports one completed frame. Frame values are 1-based and
// monotonically increasing.
type Progress struct {
	Type  string `json:"type"` // always "progress"
	Frame uint64 `json:"frame"`
	Total uint64 `json:"total"`
}

// Error carries the single fatal-failure record. jsoniter escapes control
// characters and quotes, keeping the record on one line.
type Error struct {
	Type    string `json:"type"` // always "error"
	Message string `json:"message"`
}

// Done is the terminal success record.
type Done struct {
	Type string `json:"type"` // always "done"
}

// Emitter writes records to the side channel. Safe for concurrent use; the
// mutex keeps each record on its own intact line.
type Emitter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewEmitter returns an Emitter writing NDJSON records to w.
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{w: w}
}

// Metadata emits the clip metadata record.
func (e *Emitter) Metadata(m Metadata) error {
	m.Type = "metadata"
	return e.emit(m)
}

// Progress emits one progress record.
func (e *Emitter) Progress(frame, total uint64) error {
	return e.emit(Progress{Type: "progress", Frame: frame, Total: total})
}

// Error emits the fatal error record.
func (e *Emitter) Error(msg string) error {
	return e.emit(Error{Type: "error", Message: msg})
}

// Errorf emits the fatal error record with a formatted message.
func (e *Emitter) Errorf(format string, args ...any) error {
	return e.Error(fmt.Sprintf(format, args...))
}

// Done emits the terminal success record.
func (e *Emitter) Done() error {
	return e.emit(Done{Type: "done"})
}

func (e *Emitter) emit(rec any) error {
	line, err := jsonAPI.Marshal(rec)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}
	line = append(line, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.w.Write(line); err != nil {
		return fmt.Errorf("events: write: %w", err)
	}
	if f, ok := e.w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("events: flush: %w", err)
		}
	}
	return nil
}
