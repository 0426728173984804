package libav

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/user/vidloop/pkg/planar"
	"github.com/user/vidloop/pkg/ports"
)

// Factory creates libavcodec decoder sessions.
type Factory struct{}

// NewFactory creates a libav decoder factory.
func NewFactory() *Factory {
	return &Factory{}
}

// Supports reports whether libavcodec has a decoder for the stream.
func (f *Factory) Supports(stream ports.StreamInfo) bool {
	id, ok := codecIDOf(stream.Codec, stream.Params)
	return ok && astiav.FindDecoder(id) != nil
}

// NewSession opens a decoder for cfg. Parameters probed by a libav
// container are used as they are; other streams are described from cfg.
func (f *Factory) NewSession(cfg ports.StreamConfig) (ports.DecoderSession, error) {
	id, ok := codecIDOf(cfg.Codec, cfg.Params)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrUnsupportedCodec, cfg.Codec)
	}
	codec := astiav.FindDecoder(id)
	if codec == nil {
		return nil, fmt.Errorf("%w: no libavcodec decoder for %s", ports.ErrUnsupportedCodec, cfg.Codec)
	}

	buf, err := planar.NewBuffer(cfg.Width, cfg.Height, ports.PixelFormatYUV420P)
	if err != nil {
		return nil, err
	}

	cc := astiav.AllocCodecContext(codec)
	if cc == nil {
		return nil, fmt.Errorf("%w: codec context", ports.ErrAlloc)
	}
	if err := configure(cc, id, cfg); err != nil {
		cc.Free()
		return nil, err
	}
	if err := cc.Open(codec, nil); err != nil {
		cc.Free()
		return nil, fmt.Errorf("%w: open %s decoder: %v", ports.ErrAlloc, cfg.Codec, err)
	}

	return &Session{
		cfg:   cfg,
		cc:    cc,
		pkt:   astiav.AllocPacket(),
		frame: astiav.AllocFrame(),
		buf:   buf,
	}, nil
}

func configure(cc *astiav.CodecContext, id astiav.CodecID, cfg ports.StreamConfig) error {
	params, ok := cfg.Params.(*astiav.CodecParameters)
	if !ok {
		params = astiav.AllocCodecParameters()
		defer params.Free()
		params.SetCodecID(id)
		params.SetMediaType(astiav.MediaTypeVideo)
		params.SetWidth(cfg.Width)
		params.SetHeight(cfg.Height)
		if id == astiav.CodecIDRawvideo {
			params.SetPixelFormat(astiav.PixelFormatYuv420P)
		}
		if len(cfg.Extradata) > 0 {
			if err := params.SetExtraData(cfg.Extradata); err != nil {
				return fmt.Errorf("%w: extradata: %v", ports.ErrAlloc, err)
			}
		}
	}
	if err := params.ToCodecContext(cc); err != nil {
		return fmt.Errorf("%w: codec parameters: %v", ports.ErrAlloc, err)
	}
	if cfg.TimeBase.Den > 0 {
		cc.SetTimeBase(astiav.NewRational(cfg.TimeBase.Num, cfg.TimeBase.Den))
	}
	return nil
}

// Session is one libavcodec decoder context.
type Session struct {
	cfg   ports.StreamConfig
	cc    *astiav.CodecContext
	pkt   *astiav.Packet
	frame *astiav.Frame

	// swscale conversion to the configured size and yuv420p
	ssc    *astiav.SoftwareScaleContext
	scaled *astiav.Frame

	buf    *planar.Buffer
	out    ports.Frame
	closed bool
}

// Submit sends a unit to the decoder. Packets read by a libav container
// are sent as they are; other units are copied into a packet.
func (s *Session) Submit(au *ports.AccessUnit) error {
	if s.closed {
		return ports.ErrClosed
	}
	if au == nil {
		if err := s.cc.SendPacket(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
			return fmt.Errorf("%w: drain: %v", ports.ErrDecode, err)
		}
		return nil
	}

	pkt, ok := au.Handle.(*astiav.Packet)
	if !ok || pkt == nil {
		s.pkt.Unref()
		if err := s.pkt.FromData(au.Data); err != nil {
			return fmt.Errorf("%w: packet: %v", ports.ErrDecode, err)
		}
		s.pkt.SetPts(au.PTS)
		s.pkt.SetDts(au.DTS)
		pkt = s.pkt
	}
	if err := s.cc.SendPacket(pkt); err != nil {
		return fmt.Errorf("%w: %v", ports.ErrDecode, err)
	}
	return nil
}

// Receive returns the next decoded picture converted to yuv420p.
func (s *Session) Receive() (*ports.Frame, error) {
	if s.closed {
		return nil, ports.ErrClosed
	}
	if err := s.cc.ReceiveFrame(s.frame); err != nil {
		switch {
		case errors.Is(err, astiav.ErrEagain):
			return nil, ports.ErrNoFrameYet
		case errors.Is(err, astiav.ErrEof):
			return nil, ports.ErrEndOfStream
		}
		return nil, fmt.Errorf("%w: %v", ports.ErrDecode, err)
	}
	defer s.frame.Unref()

	src := s.frame
	if src.PixelFormat() != astiav.PixelFormatYuv420P || src.Width() != s.cfg.Width || src.Height() != s.cfg.Height {
		if err := s.ensureScaler(src); err != nil {
			return nil, err
		}
		if err := s.ssc.ScaleFrame(src, s.scaled); err != nil {
			return nil, fmt.Errorf("%w: scale: %v", ports.ErrDecode, err)
		}
		src = s.scaled
	}

	if _, err := src.ImageCopyToBuffer(s.buf.Bytes(), 1); err != nil {
		return nil, fmt.Errorf("%w: copy picture: %v", ports.ErrDecode, err)
	}

	s.out = *s.buf.Frame()
	s.out.PTS = s.frame.Pts()
	s.out.StreamIndex = s.cfg.StreamIndex
	s.out.MediaType = ports.MediaTypeVideo
	return &s.out, nil
}

func (s *Session) ensureScaler(src *astiav.Frame) error {
	if s.ssc != nil {
		return nil
	}
	ssc, err := astiav.CreateSoftwareScaleContext(
		src.Width(), src.Height(), src.PixelFormat(),
		s.cfg.Width, s.cfg.Height, astiav.PixelFormatYuv420P,
		astiav.NewSoftwareScaleContextFlags(),
	)
	if err != nil {
		return fmt.Errorf("%w: scaler %dx%d %s: %v", ports.ErrAlloc, src.Width(), src.Height(), src.PixelFormat(), err)
	}

	dst := astiav.AllocFrame()
	dst.SetWidth(s.cfg.Width)
	dst.SetHeight(s.cfg.Height)
	dst.SetPixelFormat(astiav.PixelFormatYuv420P)
	if err := dst.AllocBuffer(1); err != nil {
		dst.Free()
		ssc.Free()
		return fmt.Errorf("%w: scaled frame: %v", ports.ErrAlloc, err)
	}
	s.ssc = ssc
	s.scaled = dst
	return nil
}

// Reset flushes the decoder so it accepts input after a drain.
func (s *Session) Reset() error {
	if s.closed {
		return ports.ErrClosed
	}
	s.cc.FlushBuffers()
	return nil
}

// Close frees the decoder.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	if s.scaled != nil {
		s.scaled.Free()
	}
	if s.ssc != nil {
		s.ssc.Free()
	}
	s.frame.Free()
	s.pkt.Free()
	s.cc.Free()
}

var (
	_ ports.DecoderFactory = (*Factory)(nil)
	_ ports.DecoderSession = (*Session)(nil)
)
