package summarizer

import (
	"time"

	"github.com/user/vidloop/pkg/ports"
)

// Summary contains the reports of one probe or playback run.
type Summary struct {
	GeneratedAt time.Time    `yaml:"generated_at"`
	Files       []FileReport `yaml:"files"`
}

// FileReport describes one media file.
type FileReport struct {
	Path       string         `yaml:"path"`
	Format     string         `yaml:"format,omitempty"`
	DurationMs int64          `yaml:"duration_ms"`
	Streams    []StreamReport `yaml:"streams"`

	// Selected is the stream chosen for playback, -1 when none.
	Selected int    `yaml:"selected"`
	Decoder  string `yaml:"decoder,omitempty"`

	Playback *PlaybackInfo `yaml:"playback,omitempty"`
	Error    string        `yaml:"error,omitempty"`
}

// StreamReport describes one stream of a file.
type StreamReport struct {
	Index       int    `yaml:"index"`
	MediaType   string `yaml:"type"`
	Codec       string `yaml:"codec"`
	Width       int    `yaml:"width,omitempty"`
	Height      int    `yaml:"height,omitempty"`
	PixelFormat string `yaml:"pixel_format,omitempty"`
	BitRate     int64  `yaml:"bit_rate,omitempty"`
	FrameRate   string `yaml:"frame_rate,omitempty"`
	Default     bool   `yaml:"default"`
}

// PlaybackInfo contains pipeline counters after playback.
type PlaybackInfo struct {
	Steps           int `yaml:"steps"`
	UnitsRead       int `yaml:"units_read"`
	FramesDelivered int `yaml:"frames_delivered"`
	FramesFlushed   int `yaml:"frames_flushed"`
	DecodeErrors    int `yaml:"decode_errors"`
	SinkErrors      int `yaml:"sink_errors"`
	Loops           int `yaml:"loops"`
}

// NewSummary creates a new Summary with the current timestamp.
func NewSummary() *Summary {
	return &Summary{
		GeneratedAt: time.Now(),
	}
}

// FileFromInfo builds a report from probed container information.
func FileFromInfo(info ports.ContainerInfo) FileReport {
	report := FileReport{
		Path:       info.Path,
		Format:     info.Format,
		DurationMs: info.DurationMs,
		Selected:   -1,
	}
	for _, s := range info.Streams {
		sr := StreamReport{
			Index:       s.Index,
			MediaType:   string(s.MediaType),
			Codec:       string(s.Codec),
			Width:       s.Width,
			Height:      s.Height,
			PixelFormat: string(s.PixelFormat),
			BitRate:     s.BitRate,
			Default:     s.Default,
		}
		if s.FrameRate.Den > 0 && s.FrameRate.Num > 0 {
			sr.FrameRate = s.FrameRate.String()
		}
		report.Streams = append(report.Streams, sr)
	}
	return report
}

// Builder provides a fluent interface for building a Summary.
type Builder struct {
	summary *Summary
}

// NewBuilder creates a new Builder.
func NewBuilder() *Builder {
	return &Builder{
		summary: NewSummary(),
	}
}

// WithFile appends a file report.
func (b *Builder) WithFile(report FileReport) *Builder {
	b.summary.Files = append(b.summary.Files, report)
	return b
}

// WithError appends a report for a file that could not be read.
func (b *Builder) WithError(path string, err error) *Builder {
	b.summary.Files = append(b.summary.Files, FileReport{
		Path:     path,
		Selected: -1,
		Error:    err.Error(),
	})
	return b
}

// Build returns the constructed Summary.
func (b *Builder) Build() *Summary {
	return b.summary
}
