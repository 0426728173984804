package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"

	"github.com/user/vidloop/pkg/adapters/nullsink"
	"github.com/user/vidloop/pkg/adapters/osfilesystem"
	"github.com/user/vidloop/pkg/adapters/snapshotsink"
	"github.com/user/vidloop/pkg/pipeline"
	"github.com/user/vidloop/pkg/ports"
	"github.com/user/vidloop/pkg/summarizer"
)

func playCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.Float64Flag{
			Name:     "fps",
			Usage:    l10n.T("Steps per second (default: 30)"),
			Category: l10n.T("Playback"),
		},
		&cli.IntFlag{
			Name:     "steps",
			Aliases:  []string{"n"},
			Usage:    l10n.T("Stop after this many steps (0 = until end or interrupt)"),
			Category: l10n.T("Playback"),
		},
		&cli.BoolFlag{
			Name:     "no-loop",
			Usage:    l10n.T("Stop at the end of the file instead of looping"),
			Category: l10n.T("Playback"),
		},
		&cli.BoolFlag{
			Name:     "copy-frames",
			Usage:    l10n.T("Copy each frame into a dedicated buffer before delivery"),
			Category: l10n.T("Playback"),
		},
		&cli.StringFlag{
			Name:     "snapshot-dir",
			Usage:    l10n.T("Directory to save frame snapshots into"),
			Category: l10n.T("Snapshots"),
		},
		&cli.IntFlag{
			Name:     "snapshot-every",
			Usage:    l10n.T("Save every Nth delivered frame (default: 30)"),
			Category: l10n.T("Snapshots"),
		},
		&cli.StringFlag{
			Name:     "snapshot-format",
			Usage:    l10n.T("Snapshot image format (png, jpeg)"),
			Category: l10n.T("Snapshots"),
		},
		&cli.StringFlag{
			Name:     "summary",
			Aliases:  []string{"s"},
			Usage:    l10n.T("Write a Markdown playback report to this path"),
			Category: l10n.T("Output"),
		},
	}

	return &cli.Command{
		Name:        "play",
		Usage:       l10n.T("Decode a video file in a loop"),
		Description: l10n.T("Open FILE, select its best video stream and decode it at a fixed step rate, rewinding at the end."),
		ArgsUsage:   "FILE",
		Flags:       append(flags, backendFlags()...),
		Action:      runPlay,
	}
}

func runPlay(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if c.NArg() > 0 {
		cfg.Input = c.Args().First()
	}
	if c.IsSet("fps") {
		cfg.FPS = c.Float64("fps")
	}
	if c.IsSet("steps") {
		cfg.Steps = c.Int("steps")
	}
	if c.Bool("no-loop") {
		cfg.Loop = false
	}
	if c.Bool("copy-frames") {
		cfg.CopyFrames = true
	}
	if c.IsSet("snapshot-dir") {
		cfg.Snapshot.Dir = c.String("snapshot-dir")
	}
	if c.IsSet("snapshot-every") {
		cfg.Snapshot.Every = c.Int("snapshot-every")
	}
	if c.IsSet("snapshot-format") {
		cfg.Snapshot.Format = c.String("snapshot-format")
	}
	if cfg.Input == "" {
		return cli.Exit(l10n.T("No input file given"), 2)
	}
	if err := cfg.Validate(); err != nil {
		return cli.Exit(err.Error(), 2)
	}

	log := newLogger(c, cfg)
	fs := osfilesystem.New()

	demuxer, decoders, err := newBackends(cfg, fs, log)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	counter := nullsink.New()
	var sink ports.FrameSink = counter
	var snapshots *snapshotsink.Sink
	if cfg.Snapshot.Dir != "" {
		snapshots, err = snapshotsink.New(fs, cfg.ToSnapshotOptions(log))
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		sink = ports.FrameSinkFunc(func(frame *ports.Frame) error {
			_ = counter.Deliver(frame)
			return snapshots.Deliver(frame)
		})
	}

	p := pipeline.New(demuxer, decoders, sink, log, cfg.ToPipelineOptions())
	if err := p.OpenVideo(cfg.Input); err != nil {
		return cli.Exit(l10n.F("Failed to open %s: %s", cfg.Input, err), 1)
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			log.Warn(l10n.T("Interrupted, shutting down..."))
			cancel()
		case <-ctx.Done():
		}
	}()

	steps, runErr := drive(ctx, p, cfg.FPS, cfg.Steps)

	stats := p.Stats()
	var report summarizer.FileReport
	if src := p.Source(); src != nil {
		report = summarizer.FileFromInfo(src.Info)
		report.Selected = src.StreamIndex
		if stream, ok := streamAt(src.Info, src.StreamIndex); ok {
			if info, err := decoders.Describe(stream); err == nil {
				report.Decoder = info.Decoder
			}
		}
	}

	if err := p.Close(); err != nil {
		log.Warn("Close failed: %s", err)
	}

	log.Info("Played %d steps, %d frames delivered, %d loops", steps, stats.FramesDelivered, stats.Loops)
	if snapshots != nil {
		log.Info("Saved %d snapshots to %s", snapshots.Saved(), cfg.Snapshot.Dir)
	}

	if path := c.String("summary"); path != "" {
		report.Playback = &summarizer.PlaybackInfo{
			Steps:           steps,
			UnitsRead:       stats.UnitsRead,
			FramesDelivered: stats.FramesDelivered,
			FramesFlushed:   stats.FramesFlushed,
			DecodeErrors:    stats.DecodeErrors,
			SinkErrors:      stats.SinkErrors,
			Loops:           stats.Loops,
		}
		summary := summarizer.NewBuilder().WithFile(report).Build()
		writer := summarizer.NewWriter(summarizer.NewMarkdownFormatter(), fs)
		if err := writer.Write(path, summary); err != nil {
			log.Warn("Failed to write summary: %s", err)
		}
	}

	if runErr != nil {
		return cli.Exit(runErr.Error(), 1)
	}
	return nil
}

// drive calls Step once per tick until the stream ends or ctx is cancelled,
// taking at most limit steps when limit is positive. It returns the number of
// steps taken.
func drive(ctx context.Context, p *pipeline.VideoPipeline, fps float64, limit int) (int, error) {
	interval := time.Duration(float64(time.Second) / fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	steps := 0
	for limit <= 0 || steps < limit {
		select {
		case <-ctx.Done():
			return steps, nil
		case <-ticker.C:
		}
		err := p.Step()
		steps++
		if errors.Is(err, ports.ErrEndOfStream) {
			return steps, nil
		}
		if err != nil {
			return steps, fmt.Errorf("step %d: %w", steps, err)
		}
	}
	return steps, nil
}

func streamAt(info ports.ContainerInfo, index int) (ports.StreamInfo, bool) {
	for _, s := range info.Streams {
		if s.Index == index {
			return s, true
		}
	}
	return ports.StreamInfo{}, false
}
