//go:build linux || darwin

package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/oblivion8282-1337/rawbridge/internal/pixel"
)

// Native engine binding. The vendor ships its decode engine as a dynamic
// library with a flat C surface; the symbols are resolved at runtime with
// purego so the bridge binary starts (and can report a useful error) even
// on machines without the redistributable installed.

var (
	nativeOnce    sync.Once
	nativeHandle  uintptr
	nativeInitErr error
)

// Engine C surface. All status-returning calls use 0 for success.
var (
	rawengineInitialize func(libDir string) int32
	rawengineFinalize   func()

	rawengineClipOpen  func(path string) uint64
	rawengineClipClose func(clip uint64)

	rawengineClipWidth      func(clip uint64) uint32
	rawengineClipHeight     func(clip uint64) uint32
	rawengineClipFrameCount func(clip uint64) uint64
	rawengineClipFrameRate  func(clip uint64) float32
	rawengineClipTimecode   func(clip uint64, frame uint64) uintptr

	rawengineClipAudioChannels  func(clip uint64) uint32
	rawengineClipAudioRate      func(clip uint64) uint32
	rawengineClipAudioBitDepth  func(clip uint64) uint32
	rawengineClipAudioSamples   func(clip uint64) uint64
	rawengineClipAudioBigEndian func(clip uint64) int32

	rawengineDecodeFrame func(clip uint64, index uint64, mode int32, out uintptr, outLen uint64) int32
	rawengineReadAudio   func(clip uint64, offset uint64, out uintptr, outLen uint64, maxSamples uint32, gotSamples, gotBytes uintptr) int32
)

func libraryName() string {
	if runtime.GOOS == "darwin" {
		return "librawengine.dylib"
	}
	return "librawengine.so"
}

// loadNative resolves and binds the engine library once per process.
func loadNative(libDir string) error {
	nativeOnce.Do(func() {
		candidates := []string{
			filepath.Join(libDir, libraryName()),
			libraryName(), // system search path
		}

		var handle uintptr
		var lastErr error
		for _, path := range candidates {
			h, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
			if err == nil {
				handle = h
				break
			}
			lastErr = err
		}
		if handle == 0 {
			nativeInitErr = fmt.Errorf("%w: %v (looked under %s, set %s to override)",
				ErrUnavailable, lastErr, libDir, envLibDir)
			return
		}

		purego.RegisterLibFunc(&rawengineInitialize, handle, "rawengine_initialize")
		purego.RegisterLibFunc(&rawengineFinalize, handle, "rawengine_finalize")
		purego.RegisterLibFunc(&rawengineClipOpen, handle, "rawengine_clip_open")
		purego.RegisterLibFunc(&rawengineClipClose, handle, "rawengine_clip_close")
		purego.RegisterLibFunc(&rawengineClipWidth, handle, "rawengine_clip_width")
		purego.RegisterLibFunc(&rawengineClipHeight, handle, "rawengine_clip_height")
		purego.RegisterLibFunc(&rawengineClipFrameCount, handle, "rawengine_clip_frame_count")
		purego.RegisterLibFunc(&rawengineClipFrameRate, handle, "rawengine_clip_frame_rate")
		purego.RegisterLibFunc(&rawengineClipTimecode, handle, "rawengine_clip_timecode")
		purego.RegisterLibFunc(&rawengineClipAudioChannels, handle, "rawengine_clip_audio_channels")
		purego.RegisterLibFunc(&rawengineClipAudioRate, handle, "rawengine_clip_audio_rate")
		purego.RegisterLibFunc(&rawengineClipAudioBitDepth, handle, "rawengine_clip_audio_bit_depth")
		purego.RegisterLibFunc(&rawengineClipAudioSamples, handle, "rawengine_clip_audio_samples")
		purego.RegisterLibFunc(&rawengineClipAudioBigEndian, handle, "rawengine_clip_audio_big_endian")
		purego.RegisterLibFunc(&rawengineDecodeFrame, handle, "rawengine_decode_frame")
		purego.RegisterLibFunc(&rawengineReadAudio, handle, "rawengine_read_audio")

		if status := rawengineInitialize(libDir); status != 0 {
			nativeInitErr = &StatusError{Op: "initialize", Code: status}
			return
		}
		nativeHandle = handle
	})
	return nativeInitErr
}

// NativeEngine is the purego-backed vendor engine.
type NativeEngine struct {
	closed bool
}

// OpenNative loads the vendor library from libDir (see LibraryDir) and
// returns an engine session.
func OpenNative(libDir string) (*NativeEngine, error) {
	if err := loadNative(libDir); err != nil {
		return nil, err
	}
	return &NativeEngine{}, nil
}

// OpenClip loads a clip from disk.
func (e *NativeEngine) OpenClip(path string) (Clip, error) {
	if e.closed {
		return nil, ErrClosed
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("engine: open %s: %w", path, err)
	}

	h := rawengineClipOpen(path)
	if h == 0 {
		return nil, fmt.Errorf("%w: %s", ErrClipNotFound, path)
	}

	c := &nativeClip{handle: h}
	c.info = ClipInfo{
		Width:      rawengineClipWidth(h),
		Height:     rawengineClipHeight(h),
		FrameRate:  float64(rawengineClipFrameRate(h)),
		FrameCount: rawengineClipFrameCount(h),
		Timecode:   goString(rawengineClipTimecode(h, 0)),
		Layout:     pixel.LayoutBGR,
		Audio: AudioInfo{
			Channels:      rawengineClipAudioChannels(h),
			SampleRate:    rawengineClipAudioRate(h),
			BitsPerSample: rawengineClipAudioBitDepth(h),
			TotalSamples:  rawengineClipAudioSamples(h),
			BigEndian:     rawengineClipAudioBigEndian(h) != 0,
		},
	}
	if c.info.Timecode == "" {
		c.info.Timecode = "00:00:00:00"
	}
	return c, nil
}

// Close finalizes the engine session. Clips must be closed first.
func (e *NativeEngine) Close() error {
	if !e.closed {
		e.closed = true
		rawengineFinalize()
	}
	return nil
}

type nativeClip struct {
	handle uint64
	info   ClipInfo

	mu     sync.Mutex
	closed bool
}

func (c *nativeClip) Info() ClipInfo { return c.info }

// DecodeFrame runs the engine's synchronous frame decode; the sequencer
// wraps this through NewSyncAdapter to regain asynchronous submission.
func (c *nativeClip) DecodeFrame(u Unit) Outcome {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return Outcome{Index: u.Index, Status: StatusCancelled}
	}

	status := rawengineDecodeFrame(c.handle, u.Index, int32(u.Scale),
		uintptr(unsafe.Pointer(unsafe.SliceData(u.Out))), uint64(len(u.Out)))
	runtime.KeepAlive(u.Out)

	if status != 0 {
		return Outcome{Index: u.Index, Status: StatusEngineError, Code: status}
	}
	return Outcome{Index: u.Index, Status: StatusOK, Payload: u.Out}
}

func (c *nativeClip) ReadAudio(offset uint64, maxSamples uint32, dst []byte) (uint32, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, 0, ErrClosed
	}

	var gotSamples uint32
	var gotBytes uint64
	status := rawengineReadAudio(c.handle, offset,
		uintptr(unsafe.Pointer(unsafe.SliceData(dst))), uint64(len(dst)), maxSamples,
		uintptr(unsafe.Pointer(&gotSamples)), uintptr(unsafe.Pointer(&gotBytes)))
	runtime.KeepAlive(dst)

	if status != 0 {
		return 0, 0, &StatusError{Op: fmt.Sprintf("read audio at %d", offset), Code: status}
	}
	return gotSamples, int(gotBytes), nil
}

func (c *nativeClip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.closed = true
	rawengineClipClose(c.handle)
	return nil
}

// goString converts an engine-owned NUL-terminated string to a Go string.
func goString(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	p := unsafe.Pointer(ptr)
	n := 0
	for n < 256 && *(*byte)(unsafe.Pointer(uintptr(p)+uintptr(n))) != 0 {
		n++
	}
	if n == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(p), n))
}
