// Package main provides the CLI entry point for vidloop.
package main

import (
	"fmt"
	"os"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"

	"github.com/user/vidloop/pkg/adapters/libav"
	"github.com/user/vidloop/pkg/adapters/logger"
	"github.com/user/vidloop/pkg/adapters/smartcontainer"
	"github.com/user/vidloop/pkg/adapters/smartdecoder"
	"github.com/user/vidloop/pkg/config"
	"github.com/user/vidloop/pkg/ports"
)

var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:        "vidloop",
		Usage:       l10n.T("Decode video files into YUV frames in a loop"),
		Description: l10n.T("vidloop decodes the best video stream of a file into planar YUV 4:2:0 frames and replays it endlessly."),
		Version:     version,
		Commands: []*cli.Command{
			playCommand(),
			probeCommand(),
		},
	}
}

// backendFlags are shared by play and probe.
func backendFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "config",
			Aliases:  []string{"c"},
			Usage:    l10n.T("YAML configuration file"),
			Category: l10n.T("Input"),
		},
		&cli.StringFlag{
			Name:     "backend",
			Aliases:  []string{"b"},
			Usage:    l10n.T("Decoding backend (auto, native, libav)"),
			Category: l10n.T("Decoding"),
		},
		&cli.StringFlag{
			Name:     "ffmpeg-path",
			Usage:    l10n.T("Path to ffmpeg executable (falls back to FFMPEG_PATH env, then PATH)"),
			Category: l10n.T("Decoding"),
		},
		&cli.StringFlag{
			Name:     "log-level",
			Aliases:  []string{"l"},
			Usage:    l10n.T("Log level (debug, info, warn, error)"),
			Category: l10n.T("Logging"),
		},
		&cli.BoolFlag{
			Name:     "quiet",
			Aliases:  []string{"Q"},
			Usage:    l10n.T("Suppress all log output"),
			Category: l10n.T("Logging"),
		},
	}
}

// loadConfig reads --config when given and applies the shared flags.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Defaults()
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if c.IsSet("backend") {
		cfg.Backend = c.String("backend")
	}
	if c.IsSet("ffmpeg-path") {
		cfg.FFmpegPath = c.String("ffmpeg-path")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	return cfg, nil
}

func newLogger(c *cli.Context, cfg config.Config) ports.Logger {
	if c.Bool("quiet") {
		return logger.NewNoop()
	}
	level, err := ports.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		level = ports.LevelInfo
	}
	return logger.NewConsole(level)
}

// newBackends wires the container readers and decoders for the backend.
func newBackends(cfg config.Config, fs ports.FileSystem, log ports.Logger) (ports.Demuxer, *smartdecoder.Provider, error) {
	backend, err := smartdecoder.ParseBackend(cfg.Backend)
	if err != nil {
		return nil, nil, err
	}
	decoders, err := smartdecoder.New(smartdecoder.Options{
		Backend:    backend,
		FFmpegPath: cfg.FFmpegPath,
		Logger:     log,
	})
	if err != nil {
		return nil, nil, err
	}

	var demuxer ports.Demuxer
	switch backend {
	case smartdecoder.BackendLibav:
		demuxer = libav.New()
	case smartdecoder.BackendNative:
		demuxer = smartcontainer.New(fs, smartcontainer.Options{Logger: log})
	default:
		demuxer = smartcontainer.New(fs, smartcontainer.Options{Fallback: libav.New(), Logger: log})
	}
	return demuxer, decoders, nil
}
