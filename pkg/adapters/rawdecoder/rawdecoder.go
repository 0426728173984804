// Package rawdecoder passes uncompressed planar I420 pictures through the
// decoder interface.
package rawdecoder

import (
	"fmt"

	"github.com/user/vidloop/pkg/planar"
	"github.com/user/vidloop/pkg/ports"
)

// Factory creates raw video sessions.
type Factory struct{}

// New creates a raw video decoder factory.
func New() *Factory {
	return &Factory{}
}

// Supports reports whether the stream is raw yuv420p video.
func (f *Factory) Supports(stream ports.StreamInfo) bool {
	if stream.Codec != ports.CodecRawVideo {
		return false
	}
	return stream.PixelFormat == ports.PixelFormatYUV420P ||
		stream.PixelFormat == ports.PixelFormatUnknown ||
		stream.PixelFormat == ""
}

// NewSession creates a session that expects units of exactly one packed
// I420 picture.
func (f *Factory) NewSession(cfg ports.StreamConfig) (ports.DecoderSession, error) {
	buf, err := planar.NewBuffer(cfg.Width, cfg.Height, ports.PixelFormatYUV420P)
	if err != nil {
		return nil, err
	}
	return &Session{cfg: cfg, buf: buf}, nil
}

// Session copies each submitted picture into its working frame.
type Session struct {
	cfg      ports.StreamConfig
	buf      *planar.Buffer
	pending  bool
	draining bool
	closed   bool
}

// Submit validates and copies one picture.
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
	size := s.buf.Layout().Size()
	if len(au.Data) != size {
		return fmt.Errorf("%w: raw unit of %d bytes, want %d for %dx%d",
			ports.ErrDecode, len(au.Data), size, s.cfg.Width, s.cfg.Height)
	}
	copy(s.buf.Bytes(), au.Data)

	f := s.buf.Frame()
	f.PTS = au.PTS
	f.StreamIndex = s.cfg.StreamIndex
	f.MediaType = s.cfg.MediaType
	s.pending = true
	return nil
}

// Receive returns the last submitted picture once.
func (s *Session) Receive() (*ports.Frame, error) {
	if s.closed {
		return nil, ports.ErrClosed
	}
	if s.pending {
		s.pending = false
		return s.buf.Frame(), nil
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

// Close releases the working frame.
func (s *Session) Close() {
	s.closed = true
	s.buf = nil
}

var (
	_ ports.DecoderFactory = (*Factory)(nil)
	_ ports.DecoderSession = (*Session)(nil)
)
