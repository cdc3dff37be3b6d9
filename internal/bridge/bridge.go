// Package bridge orchestrates one invocation of the decode bridge: it opens
// the clip on the decode engine, selects the requested mode (frame
// streaming, probe, or audio extraction), and wires the sequencer, pixel
// normalizer, container writer, and event emitter together. The primary
// channel carries raw rgb24 frame bytes; the side channel carries the NDJSON
// event protocol.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/oblivion8282-1337/rawbridge/internal/audioext"
	"github.com/oblivion8282-1337/rawbridge/internal/engine"
	"github.com/oblivion8282-1337/rawbridge/internal/events"
	"github.com/oblivion8282-1337/rawbridge/internal/pixel"
	"github.com/oblivion8282-1337/rawbridge/internal/sequencer"
	"github.com/oblivion8282-1337/rawbridge/internal/wav"
)

// ErrBadOptions indicates an invalid mode combination.
var ErrBadOptions = errors.New("bridge: invalid options")

// Options selects the mode and parameters of one run.
type Options struct {
	Input     string
	Scale     engine.Scale
	AudioPath string // extract-audio mode when non-empty
	ProbeOnly bool
	Parallel  int // in-flight decode window, minimum 1
}

// Bridge runs decode passes against an engine.
type Bridge struct {
	eng    engine.Engine
	out    io.Writer
	events *events.Emitter
	log    *slog.Logger
}

// New returns a Bridge streaming frame bytes to out and NDJSON records to
// side.
func New(eng engine.Engine, out, side io.Writer, log *slog.Logger) *Bridge {
	return &Bridge{
		eng:    eng,
		out:    out,
		events: events.NewEmitter(side),
		log:    log,
	}
}

// Run executes one mode to completion. Every fatal condition is surfaced
// exactly once as a single error record on the side channel before Run
// returns the error; on success the terminal record is done (absent in
// probe-only mode, which ends after metadata).
func (b *Bridge) Run(ctx context.Context, opts Options) (err error) {
	defer func() {
		if err != nil {
			if emitErr := b.events.Error(err.Error()); emitErr != nil {
				b.log.Error("failed to emit error record", "error", emitErr)
			}
		}
	}()

	if opts.AudioPath != "" && opts.ProbeOnly {
		return fmt.Errorf("%w: --extract-audio and --probe-only are mutually exclusive", ErrBadOptions)
	}
	if opts.Input == "" {
		return fmt.Errorf("%w: missing --input", ErrBadOptions)
	}

	clip, err := b.eng.OpenClip(opts.Input)
	if err != nil {
		return fmt.Errorf("open clip: %w", err)
	}

	if opts.AudioPath != "" {
		return b.runAudio(clip, opts.AudioPath)
	}
	return b.runVideo(ctx, clip, opts)
}

// runAudio extracts the clip's audio into a WAVE file. No metadata record
// is emitted in this mode.
func (b *Bridge) runAudio(clip engine.Clip, path string) error {
	res, err := audioext.Extract(clip, b.log)
	if err != nil {
		clip.Close()
		return err
	}
	if err := wav.WriteFile(path, res.Format, res.PCM); err != nil {
		clip.Close()
		return err
	}
	if err := clip.Close(); err != nil {
		return fmt.Errorf("close clip: %w", err)
	}

	b.log.Debug("audio extracted", "path", path, "samples", res.Samples)
	return b.events.Done()
}

// runVideo emits the metadata record and, unless probing, streams every
// frame in index order through the sequencer.
func (b *Bridge) runVideo(ctx context.Context, clip engine.Clip, opts Options) error {
	info := clip.Info()
	if info.Width == 0 || info.Height == 0 || info.FrameCount == 0 {
		clip.Close()
		return errors.New("clip has zero width, height or frames")
	}

	div := opts.Scale.Divisor()
	outW := info.Width / div
	outH := info.Height / div
	num, den := rationalRate(info.FrameRate)
	timecode := info.Timecode
	if timecode == "" {
		timecode = "00:00:00:00"
	}

	if err := b.events.Metadata(events.Metadata{
		Timecode:   timecode,
		FPSNum:     num,
		FPSDen:     den,
		Width:      outW,
		Height:     outH,
		FrameCount: info.FrameCount,
	}); err != nil {
		clip.Close()
		return err
	}

	if opts.ProbeOnly {
		return clip.Close()
	}

	// One scratch buffer per session: the RGBA layout packs into it, the
	// 3-byte layouts normalize in place.
	var scratch []byte
	if info.Layout == pixel.LayoutRGBA {
		scratch = make([]byte, int(outW)*int(outH)*3)
	}

	stats := newRunStats()
	var completed uint64
	sink := func(o engine.Outcome) error {
		rgb, err := pixel.Normalize(info.Layout, o.Payload, scratch, int(outW), int(outH))
		if err != nil {
			return err
		}
		if _, err := b.out.Write(rgb); err != nil {
			return fmt.Errorf("write frame %d: %w", o.Index, err)
		}
		stats.recordFrame(o.Index, len(rgb))
		completed++
		return b.events.Progress(completed, info.FrameCount)
	}

	seq := sequencer.New(sequencer.Config{
		Window:     opts.Parallel,
		Total:      info.FrameCount,
		Scale:      opts.Scale,
		FrameBytes: info.FrameBytes(opts.Scale),
	}, sink)

	sub, err := newSubmitter(clip, opts.Parallel, seq.Complete)
	if err != nil {
		clip.Close()
		return err
	}

	b.log.Debug("streaming frames",
		"frames", info.FrameCount,
		"width", outW,
		"height", outH,
		"window", opts.Parallel,
		"scale", opts.Scale.String(),
	)

	runErr := seq.Run(ctx, sub)

	snap := stats.Snapshot()
	b.log.Info("stream finished",
		"frames", snap.FramesEmitted,
		"bytes", snap.BytesEmitted,
		"last_index", snap.LastIndex,
		"uptime_ms", snap.UptimeMs,
		"error", runErr,
	)

	// The sequencer has observed every outstanding callback by the time it
	// returns, so the clip can be released now.
	if err := clip.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close clip: %w", err)
	}
	if runErr != nil {
		return runErr
	}
	return b.events.Done()
}

// newSubmitter adapts whichever submission style the clip exposes into the
// sequencer's uniform submit contract. Preference order mirrors cost:
// native async submission, job queue, then goroutine-wrapped synchronous
// decode.
func newSubmitter(clip engine.Clip, window int, done engine.CompletionFunc) (engine.Submitter, error) {
	switch d := clip.(type) {
	case engine.AsyncFrameDecoder:
		return engine.NewAsyncAdapter(d, done), nil
	case engine.JobQueue:
		return engine.NewJobAdapter(d, done), nil
	case engine.FrameDecoder:
		return engine.NewSyncAdapter(d, int64(window), done), nil
	default:
		return nil, errors.New("bridge: clip exposes no decode submission surface")
	}
}
