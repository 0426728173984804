// Package config provides configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"image/color"
	"os"

	"github.com/user/vidloop/pkg/adapters/snapshotsink"
	"github.com/user/vidloop/pkg/pipeline"
	"github.com/user/vidloop/pkg/ports"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("config: invalid value")

// Backends lists the accepted decoder backend names.
var Backends = []string{"auto", "native", "libav"}

// Config represents the full configuration for vidloop.
type Config struct {
	// Input
	Input string `yaml:"input"`

	// Playback
	Backend        string  `yaml:"backend"`
	FPS            float64 `yaml:"fps"`
	Steps          int     `yaml:"steps"` // 0 plays until interrupted
	Loop           bool    `yaml:"loop"`
	DeliverFlushed bool    `yaml:"deliver_flushed"`
	CopyFrames     bool    `yaml:"copy_frames"`
	FFmpegPath     string  `yaml:"ffmpeg_path"`

	// Logging
	LogLevel string `yaml:"log_level"`

	// Snapshots
	Snapshot SnapshotConfig `yaml:"snapshot"`
}

// SnapshotConfig represents snapshot sink settings. Snapshots are disabled
// when Dir is empty.
type SnapshotConfig struct {
	Dir          string  `yaml:"dir"`
	Every        int     `yaml:"every"`
	Format       string  `yaml:"format"`
	Quality      int     `yaml:"quality"`
	Width        int     `yaml:"width"`
	Overlay      bool    `yaml:"overlay"`
	OverlayColor string  `yaml:"overlay_color"`
	FontPath     string  `yaml:"font_path"`
	FontSize     float64 `yaml:"font_size"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		// Playback
		Backend:        "auto",
		FPS:            30.0,
		Loop:           true,
		DeliverFlushed: true,

		// Logging
		LogLevel: "info",

		// Snapshots
		Snapshot: SnapshotConfig{
			Every:        30,
			Format:       "png",
			Quality:      85,
			Overlay:      true,
			OverlayColor: "#ffffff",
			FontSize:     12,
		},
	}
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks value ranges and names.
func (c Config) Validate() error {
	if c.FPS <= 0 {
		return fmt.Errorf("%w: fps must be positive, got %g", ErrInvalid, c.FPS)
	}
	if c.Steps < 0 {
		return fmt.Errorf("%w: steps must not be negative, got %d", ErrInvalid, c.Steps)
	}
	if !validBackend(c.Backend) {
		return fmt.Errorf("%w: backend %q, want one of %v", ErrInvalid, c.Backend, Backends)
	}
	if _, err := ports.ParseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Snapshot.Dir != "" {
		if _, err := snapshotsink.ParseFormat(c.Snapshot.Format); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		if c.Snapshot.Every < 0 {
			return fmt.Errorf("%w: snapshot.every must not be negative, got %d", ErrInvalid, c.Snapshot.Every)
		}
		if c.Snapshot.Quality < 0 || c.Snapshot.Quality > 100 {
			return fmt.Errorf("%w: snapshot.quality must be 0-100, got %d", ErrInvalid, c.Snapshot.Quality)
		}
	}
	return nil
}

func validBackend(name string) bool {
	for _, b := range Backends {
		if name == b {
			return true
		}
	}
	return name == ""
}

// ToPipelineOptions converts Config to pipeline.Options.
func (c Config) ToPipelineOptions() pipeline.Options {
	opts := pipeline.DefaultOptions()
	opts.Loop = c.Loop
	opts.DeliverFlushed = c.DeliverFlushed
	opts.CopyFrames = c.CopyFrames
	return opts
}

// ToSnapshotOptions converts the snapshot settings to snapshotsink.Options.
func (c Config) ToSnapshotOptions(logger ports.Logger) snapshotsink.Options {
	format, _ := snapshotsink.ParseFormat(c.Snapshot.Format)
	return snapshotsink.Options{
		Dir:          c.Snapshot.Dir,
		Every:        c.Snapshot.Every,
		Format:       format,
		Quality:      c.Snapshot.Quality,
		Width:        c.Snapshot.Width,
		Overlay:      c.Snapshot.Overlay,
		OverlayColor: ParseColor(c.Snapshot.OverlayColor),
		FontPath:     c.Snapshot.FontPath,
		FontSize:     c.Snapshot.FontSize,
		Logger:       logger,
	}
}

// ParseColor parses a hex color string to color.Color.
func ParseColor(hex string) color.Color {
	if len(hex) == 0 {
		return color.Black
	}

	if hex[0] == '#' {
		hex = hex[1:]
	}

	if len(hex) != 6 {
		return color.Black
	}

	var r, g, b uint8
	for i, c := range []byte{hex[0], hex[1]} {
		v := hexValue(c)
		if i == 0 {
			r = v << 4
		} else {
			r |= v
		}
	}
	for i, c := range []byte{hex[2], hex[3]} {
		v := hexValue(c)
		if i == 0 {
			g = v << 4
		} else {
			g |= v
		}
	}
	for i, c := range []byte{hex[4], hex[5]} {
		v := hexValue(c)
		if i == 0 {
			b = v << 4
		} else {
			b |= v
		}
	}

	return color.RGBA{R: r, G: g, B: b, A: 255}
}

func hexValue(c byte) uint8 {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		return 0
	}
}
