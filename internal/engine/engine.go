// Package engine defines the capability surface the bridge consumes from the
// vendor decode engine, and normalizes the vendor's heterogeneous submission
// styles behind one uniform submit-plus-callback contract. The engine itself
// is opaque: it decodes raw camera clips, may complete work on its own
// internal threads in any order, and never silently drops a submitted unit.
package engine

import (
	"errors"
	"fmt"

	"github.com/oblivion8282-1337/rawbridge/internal/pixel"
)

// Sentinel errors for engine session handling.
var (
	ErrUnavailable  = errors.New("engine: decode engine library not available")
	ErrClipNotFound = errors.New("engine: clip failed to load")
	ErrNoAudio      = errors.New("engine: clip has no audio")
	ErrClosed       = errors.New("engine: clip closed")
)

// StatusError is a non-success status code reported by the engine for a
// specific operation.
type StatusError struct {
	Op   string
	Code int32
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("engine: %s failed (status=%d)", e.Op, e.Code)
}

// Scale selects the debayer resolution: output dimensions are the clip's
// full dimensions divided by the scale divisor. Smaller outputs decode
// proportionally faster.
type Scale int

const (
	ScaleFull Scale = iota
	ScaleHalf
	ScaleQuarter
	ScaleEighth
)

// ParseScale maps the CLI selector to a Scale.
func ParseScale(s string) (Scale, error) {
	switch s {
	case "full":
		return ScaleFull, nil
	case "half":
		return ScaleHalf, nil
	case "quarter":
		return ScaleQuarter, nil
	case "eighth":
		return ScaleEighth, nil
	default:
		return ScaleFull, fmt.Errorf("engine: invalid debayer option %q (use full, half, quarter, eighth)", s)
	}
}

// Divisor returns the dimension divisor for the scale.
func (s Scale) Divisor() uint32 {
	switch s {
	case ScaleHalf:
		return 2
	case ScaleQuarter:
		return 4
	case ScaleEighth:
		return 8
	default:
		return 1
	}
}

func (s Scale) String() string {
	switch s {
	case ScaleHalf:
		return "half"
	case ScaleQuarter:
		return "quarter"
	case ScaleEighth:
		return "eighth"
	default:
		return "full"
	}
}

// Unit is one schedulable frame decode. Out is the caller-owned output
// buffer the engine writes into; exactly one in-flight unit owns a buffer
// at a time. Audio is not unit-scheduled, it is read synchronously through
// Clip.ReadAudio.
type Unit struct {
	Index uint64
	Scale Scale
	Out   []byte
}

// Status classifies a completed unit.
type Status int

const (
	StatusOK Status = iota
	StatusEngineError
	StatusCancelled
)

// Outcome is the result of one completed Unit. It is produced inside the
// engine's completion callback, possibly on an engine-internal thread, and
// must cross a synchronization boundary before the submitting side reads it.
type Outcome struct {
	Index   uint64
	Status  Status
	Code    int32  // engine status code when Status is StatusEngineError
	Payload []byte // the unit's Out buffer, engine-filled on StatusOK
}

// Err converts a non-OK outcome into an error, nil for StatusOK.
func (o Outcome) Err() error {
	switch o.Status {
	case StatusOK:
		return nil
	case StatusCancelled:
		return fmt.Errorf("engine: unit %d cancelled", o.Index)
	default:
		return &StatusError{Op: fmt.Sprintf("decode unit %d", o.Index), Code: o.Code}
	}
}

// AudioInfo describes a clip's native audio stream. Samples are delivered
// as 32-bit words regardless of the recorded bit depth.
type AudioInfo struct {
	Channels      uint32
	SampleRate    uint32
	BitsPerSample uint32
	TotalSamples  uint64 // per channel
	BigEndian     bool   // words need LE correction before container write
}

// ClipInfo is the metadata surface of an opened clip. Width and Height are
// the full-resolution dimensions before any debayer scaling.
type ClipInfo struct {
	Width      uint32
	Height     uint32
	FrameRate  float64
	FrameCount uint64
	Timecode   string
	Layout     pixel.Layout // native layout of decoded video frames
	Audio      AudioInfo
}

// FrameBytes returns the engine's native output buffer size for one frame
// at the given scale.
func (ci ClipInfo) FrameBytes(s Scale) int {
	d := s.Divisor()
	w := int(ci.Width / d)
	h := int(ci.Height / d)
	return w * h * ci.Layout.BytesPerPixel()
}

// Engine opens clips. Implementations wrap a loaded vendor library or, in
// tests, an in-memory fake.
type Engine interface {
	OpenClip(path string) (Clip, error)
	Close() error
}

// Clip is an exclusively owned engine clip resource. Close releases it and
// must be called exactly once, after all outstanding units referencing the
// clip have completed.
type Clip interface {
	Info() ClipInfo

	// ReadAudio decodes up to maxSamples per-channel samples starting at
	// the per-channel sample offset into dst, returning the sample count
	// and byte count actually produced. A zero sample count signals the
	// end of the stream.
	ReadAudio(offset uint64, maxSamples uint32, dst []byte) (samples uint32, n int, err error)

	Close() error
}
