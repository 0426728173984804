// Package libav reads and decodes media through FFmpeg's libraries
// (libavformat, libavcodec, libswscale) using go-astiav.
//
// It handles every container and codec the linked FFmpeg build supports.
// Streams probed by this package carry their *astiav.CodecParameters in
// StreamInfo.Params, which the decoder factory uses directly.
package libav

import (
	"errors"
	"fmt"
	"sync"

	"github.com/asticode/go-astiav"
	"github.com/user/vidloop/pkg/ports"
)

var quietOnce sync.Once

// Demuxer opens files with libavformat.
type Demuxer struct{}

// New creates a libav demuxer. FFmpeg's own log output is silenced.
func New() *Demuxer {
	quietOnce.Do(func() {
		astiav.SetLogLevel(astiav.LogLevelQuiet)
	})
	return &Demuxer{}
}

// Open opens the input and reads its header.
func (d *Demuxer) Open(path string) (ports.Container, error) {
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return nil, fmt.Errorf("%w: format context", ports.ErrAlloc)
	}
	if err := fc.OpenInput(path, nil, nil); err != nil {
		fc.Free()
		return nil, fmt.Errorf("%w: %s: %v", ports.ErrOpen, path, err)
	}
	pkt := astiav.AllocPacket()
	if pkt == nil {
		fc.CloseInput()
		fc.Free()
		return nil, fmt.Errorf("%w: packet", ports.ErrAlloc)
	}
	return &Container{path: path, fc: fc, pkt: pkt}, nil
}

// Container is an input opened by libavformat.
type Container struct {
	path   string
	fc     *astiav.FormatContext
	pkt    *astiav.Packet
	probed bool
	closed bool
}

// Probe reads stream information. The first call may consume packets
// internally; libavformat replays them to ReadNext.
func (c *Container) Probe() (ports.ContainerInfo, error) {
	if c.closed {
		return ports.ContainerInfo{}, ports.ErrClosed
	}
	if !c.probed {
		if err := c.fc.FindStreamInfo(nil); err != nil {
			return ports.ContainerInfo{}, fmt.Errorf("%w: %s: %v", ports.ErrProbe, c.path, err)
		}
		c.probed = true
	}

	info := ports.ContainerInfo{Path: c.path}
	if f := c.fc.InputFormat(); f != nil {
		info.Format = f.Name()
	}
	if d := c.fc.Duration(); d > 0 {
		info.DurationMs = d / 1000
	}
	for _, s := range c.fc.Streams() {
		info.Streams = append(info.Streams, streamInfo(s))
	}
	if len(info.Streams) == 0 {
		return ports.ContainerInfo{}, fmt.Errorf("%w: %s: no streams", ports.ErrProbe, c.path)
	}
	return info, nil
}

func streamInfo(s *astiav.Stream) ports.StreamInfo {
	params := s.CodecParameters()
	info := ports.StreamInfo{
		Index:     s.Index(),
		MediaType: mediaTypeOf(params.MediaType()),
		Codec:     codecOf(params.CodecID()),
		BitRate:   params.BitRate(),
		Default:   s.DispositionFlags().Has(astiav.StreamDispositionFlagDefault),
		TimeBase:  rational(s.TimeBase()),
		Params:    params,
	}
	if info.MediaType == ports.MediaTypeVideo {
		info.Width = params.Width()
		info.Height = params.Height()
		info.PixelFormat = pixelFormatOf(params.PixelFormat())
		info.FrameRate = rational(s.AvgFrameRate())
	}
	return info
}

// ReadNext reads the next packet into the container's packet.
func (c *Container) ReadNext(au *ports.AccessUnit) error {
	if c.closed {
		return ports.ErrClosed
	}
	c.pkt.Unref()
	if err := c.fc.ReadFrame(c.pkt); err != nil {
		if errors.Is(err, astiav.ErrEof) {
			return ports.ErrEndOfStream
		}
		return fmt.Errorf("%w: %s: %v", ports.ErrEndOfStream, c.path, err)
	}

	au.StreamIndex = c.pkt.StreamIndex()
	au.Data = c.pkt.Data()
	au.PTS = c.pkt.Pts()
	au.DTS = c.pkt.Dts()
	au.Keyframe = c.pkt.Flags().Has(astiav.PacketFlagKey)
	au.Handle = c.pkt
	return nil
}

// Release unreferences the packet behind au.
func (c *Container) Release(au *ports.AccessUnit) {
	if pkt, ok := au.Handle.(*astiav.Packet); ok && pkt == c.pkt && !c.closed {
		pkt.Unref()
	}
	au.Reset()
}

// SeekStart seeks every stream back to the start of the input.
func (c *Container) SeekStart() error {
	if c.closed {
		return ports.ErrClosed
	}
	ts := c.fc.StartTime()
	if ts < 0 {
		ts = 0
	}
	if err := c.fc.SeekFrame(-1, ts, astiav.NewSeekFlags(astiav.SeekFlagBackward)); err != nil {
		return fmt.Errorf("seek %s: %w", c.path, err)
	}
	return nil
}

// Close closes the input and frees the packet.
func (c *Container) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.pkt.Free()
	c.fc.CloseInput()
	c.fc.Free()
	return nil
}

var (
	_ ports.Demuxer   = (*Demuxer)(nil)
	_ ports.Container = (*Container)(nil)
)
