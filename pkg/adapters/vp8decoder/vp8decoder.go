// Package vp8decoder decodes VP8 key frames with golang.org/x/image/vp8.
//
// The x/image decoder implements intra prediction only. Inter frames are
// rejected with ErrDecode, so a clip plays as its sequence of key frames.
package vp8decoder

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/user/vidloop/pkg/planar"
	"github.com/user/vidloop/pkg/ports"
	"golang.org/x/image/vp8"
)

// ErrInterFrame is returned for VP8 frames that depend on earlier frames.
var ErrInterFrame = errors.New("vp8decoder: inter frames are not supported")

// Factory creates VP8 sessions.
type Factory struct{}

// New creates a VP8 decoder factory.
func New() *Factory {
	return &Factory{}
}

// Supports reports whether the stream is VP8.
func (f *Factory) Supports(stream ports.StreamInfo) bool {
	return stream.Codec == ports.CodecVP8
}

// NewSession creates a VP8 session.
func (f *Factory) NewSession(cfg ports.StreamConfig) (ports.DecoderSession, error) {
	if cfg.Codec != ports.CodecVP8 {
		return nil, fmt.Errorf("%w: %s is not vp8", ports.ErrUnsupportedCodec, cfg.Codec)
	}
	return &Session{cfg: cfg, dec: vp8.NewDecoder()}, nil
}

// Session decodes at Submit and hands the picture out at Receive.
type Session struct {
	cfg      ports.StreamConfig
	dec      *vp8.Decoder
	img      *image.YCbCr
	frame    ports.Frame
	pending  bool
	draining bool
	closed   bool
}

// Submit decodes one VP8 frame.
func (s *Session) Submit(au *ports.AccessUnit) error {
	if s.closed {
		return ports.ErrClosed
	}
	if au == nil {
		s.draining = true
		return nil
	}
	if s.draining {
		return fmt.Errorf("%w: unit submitted while draining", ports.ErrDecode)
	}

	s.dec.Init(bytes.NewReader(au.Data), len(au.Data))
	fh, err := s.dec.DecodeFrameHeader()
	if err != nil {
		return fmt.Errorf("%w: vp8 frame header: %v", ports.ErrDecode, err)
	}
	if !fh.KeyFrame {
		return fmt.Errorf("%w: %w", ports.ErrDecode, ErrInterFrame)
	}
	if s.cfg.Width > 0 && (fh.Width != s.cfg.Width || fh.Height != s.cfg.Height) {
		return fmt.Errorf("%w: vp8 frame is %dx%d, stream is %dx%d",
			ports.ErrDecode, fh.Width, fh.Height, s.cfg.Width, s.cfg.Height)
	}

	img, err := s.dec.DecodeFrame()
	if err != nil {
		return fmt.Errorf("%w: vp8: %v", ports.ErrDecode, err)
	}
	if err := planar.BindYCbCr(img, &s.frame); err != nil {
		return err
	}
	s.img = img
	s.frame.PTS = au.PTS
	s.frame.StreamIndex = s.cfg.StreamIndex
	s.frame.MediaType = s.cfg.MediaType
	s.pending = true
	return nil
}

// Receive returns the last decoded picture once.
func (s *Session) Receive() (*ports.Frame, error) {
	if s.closed {
		return nil, ports.ErrClosed
	}
	if s.pending {
		s.pending = false
		return &s.frame, nil
	}
	if s.draining {
		return nil, ports.ErrEndOfStream
	}
	return nil, ports.ErrNoFrameYet
}

// Reset discards the pending picture and leaves draining mode.
func (s *Session) Reset() error {
	if s.closed {
		return ports.ErrClosed
	}
	s.pending = false
	s.draining = false
	return nil
}

// Close releases the decoder.
func (s *Session) Close() {
	s.closed = true
	s.dec = nil
	s.img = nil
}

var (
	_ ports.DecoderFactory = (*Factory)(nil)
	_ ports.DecoderSession = (*Session)(nil)
)
