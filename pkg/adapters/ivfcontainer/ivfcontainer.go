// Package ivfcontainer reads IVF files, the single-stream container used
// for VP8, VP9, AV1 and raw I420 test clips.
package ivfcontainer

import (
	"errors"
	"fmt"
	"io"

	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/user/vidloop/pkg/ports"
)

const fileHeaderSize = 32

// codecs maps IVF FourCC codes to codecs.
var codecs = map[string]ports.Codec{
	"VP80": ports.CodecVP8,
	"VP90": ports.CodecVP9,
	"AV01": ports.CodecAV1,
	"I420": ports.CodecRawVideo,
}

// Demuxer opens IVF files.
type Demuxer struct {
	fs ports.FileSystem
}

// New creates an IVF demuxer reading through fs.
func New(fs ports.FileSystem) *Demuxer {
	return &Demuxer{fs: fs}
}

// Open opens an IVF file and parses its file header.
func (d *Demuxer) Open(path string) (ports.Container, error) {
	f, err := d.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ports.ErrOpen, path, err)
	}
	reader, header, err := ivfreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: not an IVF file: %v", ports.ErrOpen, path, err)
	}
	return &Container{path: path, file: f, reader: reader, header: header}, nil
}

// Container is an opened IVF file.
type Container struct {
	path   string
	file   ports.File
	reader *ivfreader.IVFReader
	header *ivfreader.IVFFileHeader
	closed bool
}

// Probe describes the single video stream of the file.
func (c *Container) Probe() (ports.ContainerInfo, error) {
	if c.closed {
		return ports.ContainerInfo{}, ports.ErrClosed
	}
	h := c.header
	codec, ok := codecs[h.FourCC]
	if !ok {
		codec = ports.CodecUnknown
	}
	pf := ports.PixelFormatYUV420P
	if codec == ports.CodecUnknown {
		pf = ports.PixelFormatUnknown
	}

	// The header stores the frame rate as rate (denominator field) over
	// scale (numerator field); the time base is its inverse.
	timeBase := ports.Rational{Num: int(h.TimebaseNumerator), Den: int(h.TimebaseDenominator)}
	stream := ports.StreamInfo{
		Index:       0,
		MediaType:   ports.MediaTypeVideo,
		Codec:       codec,
		Width:       int(h.Width),
		Height:      int(h.Height),
		PixelFormat: pf,
		Default:     true,
		TimeBase:    timeBase,
		FrameRate:   ports.Rational{Num: int(h.TimebaseDenominator), Den: int(h.TimebaseNumerator)},
	}

	var durationMs int64
	if h.TimebaseDenominator > 0 {
		durationMs = int64(h.NumFrames) * int64(h.TimebaseNumerator) * 1000 / int64(h.TimebaseDenominator)
	}

	return ports.ContainerInfo{
		Path:       c.path,
		Format:     "ivf",
		DurationMs: durationMs,
		Streams:    []ports.StreamInfo{stream},
	}, nil
}

// ReadNext reads the next frame.
func (c *Container) ReadNext(au *ports.AccessUnit) error {
	if c.closed {
		return ports.ErrClosed
	}
	payload, fh, err := c.reader.ParseNextFrame()
	if errors.Is(err, io.EOF) {
		return ports.ErrEndOfStream
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ports.ErrEndOfStream, c.path, err)
	}

	pts := c.pts(fh.Timestamp)

	au.StreamIndex = 0
	au.Data = payload
	au.PTS = pts
	au.DTS = pts
	au.Keyframe = isKeyframe(c.header.FourCC, payload)
	return nil
}

func isKeyframe(fourcc string, payload []byte) bool {
	switch fourcc {
	case "VP80":
		return len(payload) > 0 && payload[0]&1 == 0
	case "VP90":
		// frame_marker(2) profile(2) show_existing(1) frame_type(1), profile 0/1
		return len(payload) > 0 && payload[0]&0x08 == 0 && payload[0]&0x04 == 0
	default:
		return true
	}
}

// pts undoes the reader's floor(pts*rate/scale) timestamp scaling. Rounding
// up recovers the stored pts exactly whenever scale <= rate.
func (c *Container) pts(ts uint64) int64 {
	num := uint64(c.header.TimebaseNumerator)
	den := uint64(c.header.TimebaseDenominator)
	if num == 0 || den == 0 {
		return int64(ts)
	}
	return int64((ts*num + den - 1) / den)
}

// Release drops the reference to the frame payload.
func (c *Container) Release(au *ports.AccessUnit) {
	au.Reset()
}

// SeekStart rewinds to the first frame after the file header.
func (c *Container) SeekStart() error {
	if c.closed {
		return ports.ErrClosed
	}
	if _, err := c.file.Seek(fileHeaderSize, io.SeekStart); err != nil {
		return fmt.Errorf("seek %s: %w", c.path, err)
	}
	c.reader.ResetReader(func(int64) io.Reader { return c.file })
	return nil
}

// Close closes the file.
func (c *Container) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.file.Close()
}

var (
	_ ports.Demuxer   = (*Demuxer)(nil)
	_ ports.Container = (*Container)(nil)
)
