package mocks

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/user/vidloop/pkg/planar"
	"github.com/user/vidloop/pkg/ports"
)

// CorruptMarker makes DecoderSession reject an access unit whose data
// starts with it.
var CorruptMarker = []byte("BAD")

// DecoderProvider is a mock ports.DecoderProvider that supports a fixed set
// of codecs, all served by Factory.
type DecoderProvider struct {
	codecs  map[ports.Codec]bool
	Factory *DecoderFactory
}

// NewDecoderProvider creates a provider for the given codecs.
func NewDecoderProvider(codecs ...ports.Codec) *DecoderProvider {
	p := &DecoderProvider{
		codecs:  make(map[ports.Codec]bool),
		Factory: &DecoderFactory{},
	}
	for _, c := range codecs {
		p.codecs[c] = true
	}
	return p
}

func (p *DecoderProvider) Lookup(stream ports.StreamInfo) (ports.DecoderFactory, error) {
	if !p.codecs[stream.Codec] {
		return nil, fmt.Errorf("%w: %s", ports.ErrUnsupportedCodec, stream.Codec)
	}
	return p.Factory, nil
}

// DecoderFactory creates DecoderSessions.
type DecoderFactory struct {
	mu sync.Mutex

	// Delay holds back that many frames until a drain, like a decoder with
	// reordering.
	Delay         int
	NewSessionErr error

	Sessions []*DecoderSession
}

func (f *DecoderFactory) Supports(stream ports.StreamInfo) bool {
	return true
}

func (f *DecoderFactory) NewSession(cfg ports.StreamConfig) (ports.DecoderSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NewSessionErr != nil {
		return nil, f.NewSessionErr
	}
	s := &DecoderSession{cfg: cfg, delay: f.Delay}
	f.Sessions = append(f.Sessions, s)
	return s, nil
}

// Live returns the number of sessions not yet closed.
func (f *DecoderFactory) Live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.Sessions {
		if s.CloseCount == 0 {
			n++
		}
	}
	return n
}

type pending struct {
	value byte
	pts   int64
}

// DecoderSession produces one frame per accepted access unit, every sample
// set to the first byte of the unit.
type DecoderSession struct {
	cfg      ports.StreamConfig
	delay    int
	buf      *planar.Buffer
	queue    []pending
	draining bool

	Submitted  int
	Rejected   int
	Resets     int
	CloseCount int
}

func (s *DecoderSession) Submit(au *ports.AccessUnit) error {
	if s.CloseCount > 0 {
		return ports.ErrClosed
	}
	if au == nil {
		s.draining = true
		return nil
	}
	if s.draining {
		return fmt.Errorf("%w: submit after drain", ports.ErrDecode)
	}
	s.Submitted++
	if len(au.Data) == 0 || bytes.HasPrefix(au.Data, CorruptMarker) {
		s.Rejected++
		return fmt.Errorf("%w: corrupt unit at pts %d", ports.ErrDecode, au.PTS)
	}
	s.queue = append(s.queue, pending{value: au.Data[0], pts: au.PTS})
	return nil
}

func (s *DecoderSession) Receive() (*ports.Frame, error) {
	if len(s.queue) > s.delay || (s.draining && len(s.queue) > 0) {
		p := s.queue[0]
		s.queue = s.queue[1:]
		if s.buf == nil {
			buf, err := planar.NewBuffer(s.cfg.Width, s.cfg.Height, ports.PixelFormatYUV420P)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ports.ErrDecode, err)
			}
			s.buf = buf
		}
		data := s.buf.Bytes()
		for i := range data {
			data[i] = p.value
		}
		f := s.buf.Frame()
		f.PTS = p.pts
		f.StreamIndex = s.cfg.StreamIndex
		f.MediaType = s.cfg.MediaType
		return f, nil
	}
	if s.draining {
		return nil, ports.ErrEndOfStream
	}
	return nil, ports.ErrNoFrameYet
}

func (s *DecoderSession) Reset() error {
	s.queue = nil
	s.draining = false
	s.Resets++
	return nil
}

func (s *DecoderSession) Close() {
	s.CloseCount++
}

var (
	_ ports.DecoderProvider = (*DecoderProvider)(nil)
	_ ports.DecoderFactory  = (*DecoderFactory)(nil)
	_ ports.DecoderSession  = (*DecoderSession)(nil)
)
