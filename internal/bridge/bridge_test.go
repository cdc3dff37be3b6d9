package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/oblivion8282-1337/rawbridge/internal/engine"
	"github.com/oblivion8282-1337/rawbridge/internal/engine/enginetest"
	"github.com/oblivion8282-1337/rawbridge/internal/pixel"
	"github.com/oblivion8282-1337/rawbridge/internal/wav"
)

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func videoInfo(w, h uint32, frames uint64, layout pixel.Layout) engine.ClipInfo {
	return engine.ClipInfo{
		Width:      w,
		Height:     h,
		FrameRate:  23.976,
		FrameCount: frames,
		Timecode:   "01:00:00:00",
		Layout:     layout,
	}
}

// sideRecords parses the NDJSON side channel into one map per line.
func sideRecords(t *testing.T, side *bytes.Buffer) []map[string]any {
	t.Helper()
	var recs []map[string]any
	for _, line := range strings.Split(strings.TrimSuffix(side.String(), "\n"), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("side channel line %q: %v", line, err)
		}
		recs = append(recs, m)
	}
	return recs
}

func TestStreamScenario(t *testing.T) {
	t.Parallel()

	const w, h, frames = 64, 32, 10
	fake := enginetest.New(enginetest.Options{
		Info:          videoInfo(w, h, frames, pixel.LayoutBGR),
		CompleteOrder: []uint64{3, 1, 0, 2, 7, 4, 6, 5, 9, 8},
	})

	var out, side bytes.Buffer
	b := New(fake, &out, &side, discardLog())
	err := b.Run(context.Background(), Options{Input: "clip.raw", Parallel: 4})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got, want := out.Len(), frames*w*h*3; got != want {
		t.Errorf("primary channel: %d bytes, want %d", got, want)
	}
	// Each frame's bytes carry its index; ordering must hold despite the
	// permuted completion order.
	data := out.Bytes()
	for f := 0; f < frames; f++ {
		frame := data[f*w*h*3 : (f+1)*w*h*3]
		for _, bv := range frame {
			if bv != byte(f) {
				t.Fatalf("frame %d carries byte %#x, want %#x", f, bv, byte(f))
			}
		}
	}

	recs := sideRecords(t, &side)
	if len(recs) != 1+frames+1 {
		t.Fatalf("side channel has %d records, want %d", len(recs), 1+frames+1)
	}
	if recs[0]["type"] != "metadata" {
		t.Errorf("first record type = %v, want metadata", recs[0]["type"])
	}
	if recs[0]["fps_num"].(float64) != 24000 || recs[0]["fps_den"].(float64) != 1001 {
		t.Errorf("metadata fps = %v/%v", recs[0]["fps_num"], recs[0]["fps_den"])
	}
	for i := 1; i <= frames; i++ {
		if recs[i]["type"] != "progress" {
			t.Fatalf("record %d type = %v, want progress", i, recs[i]["type"])
		}
		if got := uint64(recs[i]["frame"].(float64)); got != uint64(i) {
			t.Errorf("progress record %d frame = %d, want %d", i, got, i)
		}
		if got := uint64(recs[i]["total"].(float64)); got != frames {
			t.Errorf("progress record %d total = %d, want %d", i, got, frames)
		}
	}
	if recs[len(recs)-1]["type"] != "done" {
		t.Error("final record must be done")
	}
}

func TestStreamRGBADropAlpha(t *testing.T) {
	t.Parallel()

	const w, h, frames = 16, 8, 3
	fake := enginetest.New(enginetest.Options{
		Info: videoInfo(w, h, frames, pixel.LayoutRGBA),
	})

	var out, side bytes.Buffer
	b := New(fake, &out, &side, discardLog())
	if err := b.Run(context.Background(), Options{Input: "clip.raw", Parallel: 2}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, want := out.Len(), frames*w*h*3; got != want {
		t.Errorf("primary channel: %d bytes, want %d (alpha must be dropped)", got, want)
	}
}

func TestEngineErrorMidStream(t *testing.T) {
	t.Parallel()

	const w, h, frames = 16, 8, 10
	fake := enginetest.New(enginetest.Options{
		Info:   videoInfo(w, h, frames, pixel.LayoutBGR),
		FailAt: map[uint64]int32{3: -2},
	})

	var out, side bytes.Buffer
	b := New(fake, &out, &side, discardLog())
	err := b.Run(context.Background(), Options{Input: "clip.raw", Parallel: 4})

	var se *engine.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("Run err = %v, want StatusError", err)
	}

	if got, want := out.Len(), 3*w*h*3; got != want {
		t.Errorf("primary channel: %d bytes, want %d (frames 0-2 only)", got, want)
	}

	recs := sideRecords(t, &side)
	var errCount, doneCount int
	for _, r := range recs {
		switch r["type"] {
		case "error":
			errCount++
		case "done":
			doneCount++
		}
	}
	if errCount != 1 {
		t.Errorf("error records = %d, want exactly 1", errCount)
	}
	if doneCount != 0 {
		t.Error("done record must be absent on failure")
	}
}

func TestProbeOnlyIdempotent(t *testing.T) {
	t.Parallel()

	runProbe := func() string {
		fake := enginetest.New(enginetest.Options{
			Info: videoInfo(1920, 1080, 240, pixel.LayoutBGR),
		})
		var out, side bytes.Buffer
		b := New(fake, &out, &side, discardLog())
		if err := b.Run(context.Background(), Options{Input: "clip.raw", ProbeOnly: true, Parallel: 1}); err != nil {
			t.Fatalf("Run: %v", err)
		}
		if out.Len() != 0 {
			t.Error("probe mode must not write to the primary channel")
		}
		return side.String()
	}

	first, second := runProbe(), runProbe()
	if first != second {
		t.Errorf("probe output not idempotent:\n%s\nvs\n%s", first, second)
	}
	if strings.Count(first, "\n") != 1 || !strings.Contains(first, `"type":"metadata"`) {
		t.Errorf("probe must emit exactly the metadata record, got %q", first)
	}
}

func TestScaleHalvesDimensions(t *testing.T) {
	t.Parallel()

	fake := enginetest.New(enginetest.Options{
		Info: videoInfo(1920, 1080, 1, pixel.LayoutBGR),
	})
	var out, side bytes.Buffer
	b := New(fake, &out, &side, discardLog())
	err := b.Run(context.Background(), Options{Input: "clip.raw", Scale: engine.ScaleHalf, ProbeOnly: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	recs := sideRecords(t, &side)
	if w := recs[0]["width"].(float64); w != 960 {
		t.Errorf("width = %v, want 960", w)
	}
	if h := recs[0]["height"].(float64); h != 540 {
		t.Errorf("height = %v, want 540", h)
	}
}

func TestExtractAudioWritesWAV(t *testing.T) {
	t.Parallel()

	const samples, channels = 4800, 2
	info := videoInfo(16, 8, 1, pixel.LayoutBGR)
	info.Audio = engine.AudioInfo{
		Channels:      channels,
		SampleRate:    48000,
		BitsPerSample: 32,
		TotalSamples:  samples,
		BigEndian:     true,
	}
	fake := enginetest.New(enginetest.Options{
		Info:     info,
		AudioPCM: enginetest.BigEndianPCM(samples, channels),
	})

	path := filepath.Join(t.TempDir(), "out.wav")
	var out, side bytes.Buffer
	b := New(fake, &out, &side, discardLog())
	if err := b.Run(context.Background(), Options{Input: "clip.raw", AudioPath: path}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	format, pcm, err := wav.Parse(f)
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if format.Channels != channels || format.SampleRate != 48000 || format.BitsPerSample != 32 {
		t.Errorf("format = %+v", format)
	}
	if len(pcm) != samples*channels*4 {
		t.Errorf("payload %d bytes, want %d", len(pcm), samples*channels*4)
	}

	recs := sideRecords(t, &side)
	if len(recs) != 1 || recs[0]["type"] != "done" {
		t.Errorf("audio mode side channel = %v, want single done record", recs)
	}
	if out.Len() != 0 {
		t.Error("audio mode must not write to the primary channel")
	}
}

func TestExtractAudioZeroChannels(t *testing.T) {
	t.Parallel()

	info := videoInfo(16, 8, 1, pixel.LayoutBGR)
	fake := enginetest.New(enginetest.Options{Info: info})

	path := filepath.Join(t.TempDir(), "out.wav")
	var out, side bytes.Buffer
	b := New(fake, &out, &side, discardLog())
	err := b.Run(context.Background(), Options{Input: "clip.raw", AudioPath: path})
	if err == nil {
		t.Fatal("expected error for zero audio channels")
	}

	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("no output file may exist after a failed extraction")
	}
	recs := sideRecords(t, &side)
	if len(recs) != 1 || recs[0]["type"] != "error" {
		t.Errorf("side channel = %v, want single error record", recs)
	}
}

func TestMutuallyExclusiveModes(t *testing.T) {
	t.Parallel()

	fake := enginetest.New(enginetest.Options{Info: videoInfo(16, 8, 1, pixel.LayoutBGR)})
	var out, side bytes.Buffer
	b := New(fake, &out, &side, discardLog())
	err := b.Run(context.Background(), Options{Input: "clip.raw", AudioPath: "x.wav", ProbeOnly: true})
	if !errors.Is(err, ErrBadOptions) {
		t.Errorf("err = %v, want ErrBadOptions", err)
	}
}

func TestMissingInput(t *testing.T) {
	t.Parallel()

	fake := enginetest.New(enginetest.Options{})
	var out, side bytes.Buffer
	b := New(fake, &out, &side, discardLog())
	if err := b.Run(context.Background(), Options{}); !errors.Is(err, ErrBadOptions) {
		t.Errorf("err = %v, want ErrBadOptions", err)
	}
}
