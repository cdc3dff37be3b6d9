// Package audioext pulls a clip's native audio through the decode engine in
// fixed-size chunks and accumulates it into one contiguous little-endian PCM
// buffer, sized and validated before the first read so an oversized clip
// fails up front instead of mid-write.
package audioext

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/oblivion8282-1337/rawbridge/internal/alignbuf"
	"github.com/oblivion8282-1337/rawbridge/internal/engine"
	"github.com/oblivion8282-1337/rawbridge/internal/wav"
)

const (
	// chunkSamples is the per-call sample bound for engine audio reads.
	chunkSamples = 48000

	// audioAlign is the buffer alignment the engine requires for audio
	// block output buffers.
	audioAlign = 512

	// wordBytes: the engine always delivers 4-byte words per sample
	// regardless of the recorded bit depth, and the container is written
	// as 32-bit signed little-endian PCM.
	wordBytes = 4
)

// Sentinel errors for extraction failures.
var (
	ErrNoAudio           = errors.New("audioext: clip has no audio")
	ErrContainerTooLarge = errors.New("audioext: audio exceeds WAV container capacity")
	ErrStreamMismatch    = errors.New("audioext: engine delivered more audio than clip metadata reported")
)

// Result is a fully accumulated clip audio stream ready for the container
// writer.
type Result struct {
	Format  wav.Format
	PCM     []byte
	Samples uint64 // per-channel samples accumulated
}

// Extract runs the Init -> Reading -> Done state machine over the clip's
// audio. Any chunk read failure or invalid stream shape aborts with no
// partial result.
func Extract(clip engine.Clip, log *slog.Logger) (Result, error) {
	info := clip.Info().Audio

	// Init: validate stream shape and fix the accumulator capacity from
	// metadata alone.
	if info.Channels == 0 {
		return Result{}, ErrNoAudio
	}
	if info.TotalSamples == 0 {
		return Result{}, fmt.Errorf("%w: zero samples", ErrNoAudio)
	}

	sampleRate := info.SampleRate
	if sampleRate == 0 {
		sampleRate = 48000
	}

	frameBytes := uint64(info.Channels) * wordBytes
	capacity := info.TotalSamples * frameBytes
	if err := wav.CheckSize(capacity); err != nil {
		return Result{}, fmt.Errorf("%w: %d bytes", ErrContainerTooLarge, capacity)
	}

	log.Debug("audio extraction starting",
		"channels", info.Channels,
		"sample_rate", sampleRate,
		"total_samples", info.TotalSamples,
		"big_endian", info.BigEndian,
	)

	chunk, err := alignbuf.Alloc(chunkSamples*int(frameBytes), audioAlign)
	if err != nil {
		return Result{}, fmt.Errorf("audioext: chunk buffer: %w", err)
	}
	defer chunk.Release()

	// Reading: bounded chunk reads until the engine reports zero samples
	// or the metadata total is reached.
	acc := make([]byte, 0, capacity)
	var offset uint64
	for offset < info.TotalSamples {
		samples, n, err := clip.ReadAudio(offset, chunkSamples, chunk.Data)
		if err != nil {
			return Result{}, fmt.Errorf("audioext: read at sample %d: %w", offset, err)
		}
		if samples == 0 {
			break
		}

		data := chunk.Data[:n]
		if info.BigEndian {
			swapWords(data)
		}
		if remaining := capacity - uint64(len(acc)); uint64(len(data)) > remaining {
			return Result{}, fmt.Errorf("%w: %d bytes past capacity at sample %d",
				ErrStreamMismatch, uint64(len(data))-remaining, offset)
		}
		acc = append(acc, data...)
		offset += uint64(samples)
	}

	// Done.
	return Result{
		Format: wav.Format{
			Channels:      uint16(info.Channels),
			SampleRate:    sampleRate,
			BitsPerSample: 32,
		},
		PCM:     acc,
		Samples: offset,
	}, nil
}

// swapWords converts 4-byte big-endian sample words to little-endian in
// place.
func swapWords(p []byte) {
	for i := 0; i+3 < len(p); i += 4 {
		p[i], p[i+3] = p[i+3], p[i]
		p[i+1], p[i+2] = p[i+2], p[i+1]
	}
}
