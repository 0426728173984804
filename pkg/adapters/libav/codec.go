package libav

import (
	"github.com/asticode/go-astiav"
	"github.com/user/vidloop/pkg/ports"
)

var codecIDs = map[ports.Codec]astiav.CodecID{
	ports.CodecH264:     astiav.CodecIDH264,
	ports.CodecHEVC:     astiav.CodecIDHevc,
	ports.CodecVP8:      astiav.CodecIDVp8,
	ports.CodecVP9:      astiav.CodecIDVp9,
	ports.CodecAV1:      astiav.CodecIDAv1,
	ports.CodecRawVideo: astiav.CodecIDRawvideo,
}

func codecOf(id astiav.CodecID) ports.Codec {
	for codec, cid := range codecIDs {
		if cid == id {
			return codec
		}
	}
	if name := id.Name(); name != "" {
		return ports.Codec(name)
	}
	return ports.CodecUnknown
}

// codecIDOf resolves the libavcodec ID of a stream probed by any reader.
func codecIDOf(codec ports.Codec, params any) (astiav.CodecID, bool) {
	if p, ok := params.(*astiav.CodecParameters); ok {
		return p.CodecID(), true
	}
	id, ok := codecIDs[codec]
	return id, ok
}

func mediaTypeOf(t astiav.MediaType) ports.MediaType {
	switch t {
	case astiav.MediaTypeVideo:
		return ports.MediaTypeVideo
	case astiav.MediaTypeAudio:
		return ports.MediaTypeAudio
	case astiav.MediaTypeSubtitle:
		return ports.MediaTypeSubtitle
	case astiav.MediaTypeData:
		return ports.MediaTypeData
	}
	return ports.MediaTypeUnknown
}

func pixelFormatOf(f astiav.PixelFormat) ports.PixelFormat {
	if f == astiav.PixelFormatYuv420P {
		return ports.PixelFormatYUV420P
	}
	if name := f.String(); name != "" {
		return ports.PixelFormat(name)
	}
	return ports.PixelFormatUnknown
}

func rational(r astiav.Rational) ports.Rational {
	return ports.Rational{Num: r.Num(), Den: r.Den()}
}
