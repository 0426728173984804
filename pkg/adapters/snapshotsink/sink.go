// Package snapshotsink provides a frame sink that saves delivered frames as
// images, for inspecting playback without a GPU.
package snapshotsink

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"path/filepath"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"

	"github.com/user/vidloop/pkg/planar"
	"github.com/user/vidloop/pkg/ports"
)

// Format is the image encoding of saved snapshots.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
)

// ErrUnsupportedFormat is returned for an unknown image format.
var ErrUnsupportedFormat = errors.New("snapshotsink: unsupported format")

// ParseFormat parses an image format name.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "png":
		return FormatPNG, nil
	case "jpeg", "jpg":
		return FormatJPEG, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// Options configures the sink.
type Options struct {
	Dir string

	// Every saves one frame out of every N delivered. Values below 1 mean 1.
	Every int

	Format  Format
	Quality int // JPEG quality

	// Width scales snapshots to this width, keeping the aspect ratio.
	// Zero keeps the decoded size.
	Width int

	// Overlay draws the frame number and timestamp onto the snapshot.
	Overlay      bool
	OverlayColor color.Color
	FontPath     string
	FontSize     float64

	Logger ports.Logger
}

// Sink saves every Nth delivered frame through a FileSystem.
type Sink struct {
	opts      Options
	fs        ports.FileSystem
	logger    ports.Logger
	delivered int
	saved     int

	fontFailed bool
}

// New creates a new snapshot sink.
func New(fs ports.FileSystem, opts Options) (*Sink, error) {
	if opts.Every < 1 {
		opts.Every = 1
	}
	if opts.Format == "" {
		opts.Format = FormatPNG
	}
	if opts.Format != FormatPNG && opts.Format != FormatJPEG {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, opts.Format)
	}
	if opts.Quality <= 0 {
		opts.Quality = 85
	}
	if opts.OverlayColor == nil {
		opts.OverlayColor = color.White
	}
	if opts.FontSize <= 0 {
		opts.FontSize = 12
	}
	if err := fs.MkdirAll(opts.Dir); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}

	s := &Sink{opts: opts, fs: fs, logger: opts.Logger}
	if s.logger != nil {
		s.logger = s.logger.WithComponent("snapshot")
	}
	return s, nil
}

// Deliver saves the frame if it is due.
func (s *Sink) Deliver(frame *ports.Frame) error {
	index := s.delivered
	s.delivered++
	if index%s.opts.Every != 0 {
		return nil
	}

	src, err := planar.YCbCr(frame)
	if err != nil {
		return fmt.Errorf("convert frame: %w", err)
	}

	var img image.Image = src
	if s.opts.Width > 0 && s.opts.Width != frame.Width {
		img = resize(img, s.opts.Width)
	}
	if s.opts.Overlay {
		img = s.overlay(img, index, frame.PTS)
	}

	data, err := encode(img, s.opts.Format, s.opts.Quality)
	if err != nil {
		return err
	}

	path := filepath.Join(s.opts.Dir, fmt.Sprintf("frame-%06d.%s", index, s.opts.Format))
	if err := s.fs.WriteFile(path, data); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	s.saved++
	if s.logger != nil {
		s.logger.Debug("Saved snapshot %s", path)
	}
	return nil
}

// Delivered returns the number of frames received.
func (s *Sink) Delivered() int {
	return s.delivered
}

// Saved returns the number of snapshots written.
func (s *Sink) Saved() int {
	return s.saved
}

// resize scales img to width, keeping its aspect ratio.
func resize(img image.Image, width int) image.Image {
	b := img.Bounds()
	height := b.Dy() * width / b.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

func (s *Sink) overlay(img image.Image, index int, pts int64) image.Image {
	dc := gg.NewContextForImage(img)
	if s.opts.FontPath != "" && !s.fontFailed {
		if err := dc.LoadFontFace(s.opts.FontPath, s.opts.FontSize); err != nil {
			// gg keeps its built-in face; report once and stop retrying.
			s.fontFailed = true
			if s.logger != nil {
				s.logger.Debug("Font %s unavailable, using default face: %s", s.opts.FontPath, err)
			}
		}
	}

	text := fmt.Sprintf("#%d pts %d", index, pts)
	_, th := dc.MeasureString(text)
	pad := 4.0

	dc.SetRGBA(0, 0, 0, 0.5)
	dc.DrawRectangle(0, 0, float64(dc.Width()), th+2*pad)
	dc.Fill()

	dc.SetColor(s.opts.OverlayColor)
	dc.DrawStringAnchored(text, pad, pad+th/2, 0, 0.5)
	return dc.Image()
}

func encode(img image.Image, format Format, quality int) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case FormatJPEG:
		opts := &jpeg.Options{Quality: quality}
		if err := jpeg.Encode(&buf, img, opts); err != nil {
			return nil, fmt.Errorf("encode JPEG: %w", err)
		}
	case FormatPNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode PNG: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	return buf.Bytes(), nil
}

// Ensure Sink implements ports.FrameSink
var _ ports.FrameSink = (*Sink)(nil)
