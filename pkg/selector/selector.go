// Package selector picks the stream to decode from a probed container.
package selector

import (
	"fmt"

	"github.com/user/vidloop/pkg/ports"
)

// Selection is the chosen stream together with its decoder.
type Selection struct {
	Index   int
	Stream  ports.StreamInfo
	Config  ports.StreamConfig
	Factory ports.DecoderFactory
}

// SelectBestStream chooses the best stream of the given media type.
//
// Default-flagged streams win, then the highest bit rate, then the lowest
// index. Only the winner is considered for decoding: if the provider has no
// decoder for its codec the call fails with ErrUnsupportedCodec rather than
// falling back to a lesser stream.
func SelectBestStream(info ports.ContainerInfo, mediaType ports.MediaType, decoders ports.DecoderProvider) (Selection, error) {
	best := -1
	for i, s := range info.Streams {
		if s.MediaType != mediaType {
			continue
		}
		if best < 0 || better(s, info.Streams[best]) {
			best = i
		}
	}
	if best < 0 {
		return Selection{}, fmt.Errorf("%w: no %s stream in %s", ports.ErrNotFound, mediaType, info.Path)
	}

	stream := info.Streams[best]
	factory, err := decoders.Lookup(stream)
	if err != nil {
		return Selection{}, err
	}

	return Selection{
		Index:   stream.Index,
		Stream:  stream,
		Config:  ConfigFor(stream),
		Factory: factory,
	}, nil
}

// better reports whether a ranks above b.
func better(a, b ports.StreamInfo) bool {
	if a.Default != b.Default {
		return a.Default
	}
	if a.BitRate != b.BitRate {
		return a.BitRate > b.BitRate
	}
	return a.Index < b.Index
}

// ConfigFor derives the decode configuration of a stream.
func ConfigFor(s ports.StreamInfo) ports.StreamConfig {
	pf := s.PixelFormat
	if pf == "" {
		pf = ports.PixelFormatUnknown
	}
	return ports.StreamConfig{
		StreamIndex: s.Index,
		MediaType:   s.MediaType,
		Codec:       s.Codec,
		Width:       s.Width,
		Height:      s.Height,
		PixelFormat: pf,
		TimeBase:    s.TimeBase,
		FrameRate:   s.FrameRate,
		Extradata:   s.Extradata,
		Params:      s.Params,
	}
}
