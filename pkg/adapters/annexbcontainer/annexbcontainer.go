// Package annexbcontainer reads raw H.264 elementary streams (Annex B byte
// streams, usually .h264 or .264 files).
//
// The stream has no container timing, so units are numbered in decode order
// against a fixed frame rate.
package annexbcontainer

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/Eyevinn/mp4ff/avc"
	"github.com/pion/webrtc/v4/pkg/media/h264reader"
	"github.com/user/vidloop/pkg/ports"
)

const (
	// MaxProbeNALs bounds the scan for a sequence parameter set.
	MaxProbeNALs = 256

	// DefaultFrameRate is assumed for streams without container timing.
	DefaultFrameRate = 25
)

// HasStartCode reports whether data begins with an Annex B start code.
func HasStartCode(data []byte) bool {
	return bytes.HasPrefix(data, []byte{0, 0, 1}) || bytes.HasPrefix(data, []byte{0, 0, 0, 1})
}

// Demuxer opens H.264 elementary streams.
type Demuxer struct {
	fs ports.FileSystem
}

// New creates an Annex B demuxer reading through fs.
func New(fs ports.FileSystem) *Demuxer {
	return &Demuxer{fs: fs}
}

// Open opens a byte stream. The file must start with a start code.
func (d *Demuxer) Open(path string) (ports.Container, error) {
	f, err := d.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ports.ErrOpen, path, err)
	}
	head := make([]byte, 4)
	n, _ := io.ReadFull(f, head)
	if !HasStartCode(head[:n]) {
		f.Close()
		return nil, fmt.Errorf("%w: %s: not an Annex B stream", ports.ErrOpen, path)
	}

	c := &Container{path: path, file: f}
	if err := c.SeekStart(); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ports.ErrOpen, err)
	}
	return c, nil
}

// Container is an opened H.264 byte stream.
type Container struct {
	path    string
	file    ports.File
	reader  *h264reader.H264Reader
	pending *h264reader.NAL
	count   int64
	out     []byte
	closed  bool
}

// Probe scans the start of the stream for an SPS and rewinds.
func (c *Container) Probe() (ports.ContainerInfo, error) {
	if c.closed {
		return ports.ContainerInfo{}, ports.ErrClosed
	}
	if _, err := c.file.Seek(0, io.SeekStart); err != nil {
		return ports.ContainerInfo{}, fmt.Errorf("%w: %s: %v", ports.ErrProbe, c.path, err)
	}
	reader, err := h264reader.NewReader(c.file)
	if err != nil {
		return ports.ContainerInfo{}, fmt.Errorf("%w: %s: %v", ports.ErrProbe, c.path, err)
	}

	var sps *avc.SPS
	var spsNAL, ppsNAL []byte
	for i := 0; i < MaxProbeNALs && (sps == nil || ppsNAL == nil); i++ {
		nal, err := reader.NextNAL()
		if err != nil {
			break
		}
		switch nal.UnitType {
		case h264reader.NalUnitTypeSPS:
			if sps != nil {
				continue
			}
			parsed, err := avc.ParseSPSNALUnit(nal.Data, false)
			if err != nil {
				continue
			}
			sps = parsed
			spsNAL = nal.Data
		case h264reader.NalUnitTypePPS:
			if ppsNAL == nil {
				ppsNAL = nal.Data
			}
		}
	}
	if err := c.SeekStart(); err != nil {
		return ports.ContainerInfo{}, err
	}
	if sps == nil {
		return ports.ContainerInfo{}, fmt.Errorf("%w: %s: no sequence parameter set in the first %d NAL units",
			ports.ErrProbe, c.path, MaxProbeNALs)
	}

	extradata := append([]byte{0, 0, 0, 1}, spsNAL...)
	if ppsNAL != nil {
		extradata = append(extradata, 0, 0, 0, 1)
		extradata = append(extradata, ppsNAL...)
	}

	stream := ports.StreamInfo{
		Index:       0,
		MediaType:   ports.MediaTypeVideo,
		Codec:       ports.CodecH264,
		Width:       int(sps.Width),
		Height:      int(sps.Height),
		PixelFormat: ports.PixelFormatYUV420P,
		Default:     true,
		TimeBase:    ports.Rational{Num: 1, Den: DefaultFrameRate},
		FrameRate:   ports.Rational{Num: DefaultFrameRate, Den: 1},
		Extradata:   extradata,
	}
	return ports.ContainerInfo{
		Path:    c.path,
		Format:  "h264",
		Streams: []ports.StreamInfo{stream},
	}, nil
}

// ReadNext groups NAL units into the next access unit.
func (c *Container) ReadNext(au *ports.AccessUnit) error {
	if c.closed {
		return ports.ErrClosed
	}

	c.out = c.out[:0]
	hasSlice := false
	keyframe := false
	var readErr error
	for {
		nal := c.pending
		c.pending = nil
		if nal == nil {
			var err error
			nal, err = c.reader.NextNAL()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					readErr = err
				}
				break
			}
		}
		if len(c.out) > 0 && startsAccessUnit(nal, hasSlice) {
			c.pending = nal
			break
		}
		c.out = append(c.out, 0, 0, 0, 1)
		c.out = append(c.out, nal.Data...)
		switch nal.UnitType {
		case h264reader.NalUnitTypeCodedSliceIdr:
			keyframe = true
			hasSlice = true
		case h264reader.NalUnitTypeCodedSliceNonIdr:
			hasSlice = true
		}
	}

	if len(c.out) == 0 {
		if readErr != nil {
			return fmt.Errorf("%w: %s: %v", ports.ErrEndOfStream, c.path, readErr)
		}
		return ports.ErrEndOfStream
	}

	au.StreamIndex = 0
	au.Data = c.out
	au.PTS = c.count
	au.DTS = c.count
	au.Keyframe = keyframe
	c.count++
	return nil
}

// startsAccessUnit reports whether nal opens a new access unit given that
// the current one already holds a slice or not.
func startsAccessUnit(nal *h264reader.NAL, hasSlice bool) bool {
	switch nal.UnitType {
	case h264reader.NalUnitTypeAUD:
		return true
	case h264reader.NalUnitTypeSPS, h264reader.NalUnitTypePPS:
		return hasSlice
	case h264reader.NalUnitTypeCodedSliceIdr, h264reader.NalUnitTypeCodedSliceNonIdr:
		// first_mb_in_slice is ue(v); a leading 1 bit encodes 0.
		return hasSlice && len(nal.Data) > 1 && nal.Data[1]&0x80 != 0
	default:
		return false
	}
}

// Release drops the reference to the unit. Its buffer is reused.
func (c *Container) Release(au *ports.AccessUnit) {
	au.Reset()
}

// SeekStart rewinds to the first NAL unit.
func (c *Container) SeekStart() error {
	if c.closed {
		return ports.ErrClosed
	}
	if _, err := c.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek %s: %w", c.path, err)
	}
	reader, err := h264reader.NewReader(c.file)
	if err != nil {
		return fmt.Errorf("reader %s: %w", c.path, err)
	}
	c.reader = reader
	c.pending = nil
	c.count = 0
	return nil
}

// Close closes the file.
func (c *Container) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.reader = nil
	return c.file.Close()
}

var (
	_ ports.Demuxer   = (*Demuxer)(nil)
	_ ports.Container = (*Container)(nil)
)
