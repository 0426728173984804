// Package ffmpegdecoder decodes H.264 and HEVC byte streams with a
// long-lived ffmpeg process.
//
// Access units are written to ffmpeg's stdin in Annex B form and decoded
// pictures are read back from stdout as raw yuv420p. All pipe I/O is
// deadline bounded so Submit and Receive return within the poll timeout.
package ffmpegdecoder

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/user/vidloop/pkg/adapters/logger"
	"github.com/user/vidloop/pkg/ports"
)

var (
	// ErrFFmpegNotFound is returned when no ffmpeg executable is found.
	ErrFFmpegNotFound = errors.New("ffmpegdecoder: ffmpeg not found")

	// ErrPlatformNotSupported is returned where pipe deadlines are unavailable.
	ErrPlatformNotSupported = errors.New("ffmpegdecoder: platform not supported")

	// ErrStalled is returned when ffmpeg stops consuming input.
	ErrStalled = errors.New("ffmpegdecoder: ffmpeg stalled")
)

const (
	DefaultPollTimeout  = 20 * time.Millisecond
	DefaultDrainTimeout = 2 * time.Second
)

// Options configures the decoder.
type Options struct {
	// FFmpegPath overrides executable discovery.
	FFmpegPath string

	// PollTimeout bounds a Receive that waits for a picture.
	PollTimeout time.Duration

	// DrainTimeout bounds a Receive while draining, and a Submit that
	// cannot write its unit.
	DrainTimeout time.Duration

	Logger ports.Logger
}

// FindFFmpeg locates the ffmpeg executable. It checks customPath, then the
// FFMPEG_PATH environment variable, then PATH, then common install locations.
func FindFFmpeg(customPath string) (string, error) {
	if customPath != "" {
		if _, err := os.Stat(customPath); err == nil {
			return customPath, nil
		}
		return "", fmt.Errorf("%w: custom path %s not found", ErrFFmpegNotFound, customPath)
	}

	if env := os.Getenv("FFMPEG_PATH"); env != "" {
		if _, err := os.Stat(env); err == nil {
			return env, nil
		}
	}

	execName := "ffmpeg"
	if runtime.GOOS == "windows" {
		execName = "ffmpeg.exe"
	}
	if path, err := exec.LookPath(execName); err == nil {
		return path, nil
	}

	var commonPaths []string
	if runtime.GOOS == "windows" {
		commonPaths = []string{
			`C:\ffmpeg\bin\ffmpeg.exe`,
			`C:\Program Files\ffmpeg\bin\ffmpeg.exe`,
			`C:\Program Files (x86)\ffmpeg\bin\ffmpeg.exe`,
		}
	} else {
		commonPaths = []string{
			"/usr/bin/ffmpeg",
			"/usr/local/bin/ffmpeg",
			"/opt/homebrew/bin/ffmpeg",
			"/snap/bin/ffmpeg",
		}
	}
	for _, p := range commonPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", ErrFFmpegNotFound
}

// IsAvailable reports whether ffmpeg can be found with the default search.
func IsAvailable() bool {
	_, err := FindFFmpeg("")
	return err == nil && platformSupported
}

// Factory creates ffmpeg decoder sessions.
type Factory struct {
	opts   Options
	logger ports.Logger
	once   sync.Once
	path   string
	err    error
}

// New creates a factory. ffmpeg is located on first use.
func New(opts Options) *Factory {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = DefaultPollTimeout
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = DefaultDrainTimeout
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNoop()
	}
	return &Factory{opts: opts, logger: log.WithComponent("ffmpeg")}
}

func (f *Factory) executable() (string, error) {
	f.once.Do(func() {
		f.path, f.err = FindFFmpeg(f.opts.FFmpegPath)
		if f.err == nil {
			f.logger.Debug("Using ffmpeg at %s", f.path)
		}
	})
	return f.path, f.err
}

// inputFormat returns the ffmpeg demuxer name for a codec.
func inputFormat(codec ports.Codec) string {
	switch codec {
	case ports.CodecH264:
		return "h264"
	case ports.CodecHEVC:
		return "hevc"
	}
	return ""
}

// Supports reports whether the stream is H.264 or HEVC and ffmpeg exists.
func (f *Factory) Supports(stream ports.StreamInfo) bool {
	if inputFormat(stream.Codec) == "" || !platformSupported {
		return false
	}
	_, err := f.executable()
	return err == nil
}

// NewSession starts an ffmpeg process for the stream.
func (f *Factory) NewSession(cfg ports.StreamConfig) (ports.DecoderSession, error) {
	format := inputFormat(cfg.Codec)
	if format == "" {
		return nil, fmt.Errorf("%w: ffmpeg decoder does not handle %s", ports.ErrUnsupportedCodec, cfg.Codec)
	}
	path, err := f.executable()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrAlloc, err)
	}
	return newSession(path, format, cfg, f.opts, f.logger)
}

var _ ports.DecoderFactory = (*Factory)(nil)
