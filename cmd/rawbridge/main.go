// Command rawbridge decodes raw camera clips through the vendor decode
// engine, streaming rgb24 frame bytes on stdout and NDJSON
// metadata/progress/error/done records on stderr. An audio mode reassembles
// the clip's native sample blocks into a PCM WAVE file instead.
//
// Usage:
//
//	rawbridge --input <clip> [--debayer full|half|quarter|eighth] [--parallel N]
//	rawbridge --input <clip> --extract-audio /path/to/output.wav
//	rawbridge --input <clip> --probe-only
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/oblivion8282-1337/rawbridge/internal/bridge"
	"github.com/oblivion8282-1337/rawbridge/internal/engine"
	"github.com/oblivion8282-1337/rawbridge/internal/events"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// stderr is the NDJSON side channel, so diagnostic logging is silenced
	// unless explicitly requested. With RAWBRIDGE_DEBUG set the text logs
	// interleave with the protocol records; that is a debugging trade-off
	// the consumer opts into.
	logOut := io.Discard
	level := slog.LevelInfo
	if os.Getenv("RAWBRIDGE_DEBUG") != "" {
		logOut = os.Stderr
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	emitter := events.NewEmitter(os.Stderr)

	fs := flag.NewFlagSet("rawbridge", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		input     string
		debayer   string
		audioPath string
		probeOnly bool
		parallel  int
		showVer   bool
	)
	fs.StringVar(&input, "input", "", "path to the raw clip (required)")
	fs.StringVar(&input, "i", "", "alias for --input")
	fs.StringVar(&debayer, "debayer", "full", "resolution scale: full, half, quarter, eighth")
	fs.StringVar(&audioPath, "extract-audio", "", "write the clip's audio as a WAVE file to this path")
	fs.BoolVar(&probeOnly, "probe-only", false, "emit the metadata record and exit")
	fs.IntVar(&parallel, "parallel", 1, "decode units in flight")
	fs.BoolVar(&showVer, "version", false, "print version and exit")

	if err := fs.Parse(os.Args[1:]); err != nil {
		emitter.Errorf("invalid arguments: %v", err)
		return 1
	}
	if showVer {
		fmt.Fprintln(os.Stdout, "rawbridge", version)
		return 0
	}

	scale, err := engine.ParseScale(debayer)
	if err != nil {
		emitter.Error(err.Error())
		return 1
	}

	libDir := engine.LibraryDir()
	eng, err := engine.OpenNative(libDir)
	if err != nil {
		emitter.Error(err.Error())
		return 1
	}
	defer eng.Close()

	log.Info("rawbridge starting",
		"version", version,
		"input", input,
		"scale", scale.String(),
		"parallel", parallel,
		"engine_lib", libDir,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	b := bridge.New(eng, os.Stdout, os.Stderr, log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.Run(ctx, bridge.Options{
			Input:     input,
			Scale:     scale,
			AudioPath: audioPath,
			ProbeOnly: probeOnly,
			Parallel:  parallel,
		})
	})

	if err := g.Wait(); err != nil {
		log.Error("bridge failed", "error", err)
		return 1
	}
	return 0
}
