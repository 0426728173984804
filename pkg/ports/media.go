package ports

import "fmt"

// MediaType classifies the content of a container stream.
type MediaType string

const (
	MediaTypeVideo    MediaType = "video"
	MediaTypeAudio    MediaType = "audio"
	MediaTypeSubtitle MediaType = "subtitle"
	MediaTypeData     MediaType = "data"
	MediaTypeUnknown  MediaType = "unknown"
)

// Codec identifies the compression format of a stream.
// Values follow the short codec names used by FFmpeg.
type Codec string

const (
	CodecH264     Codec = "h264"
	CodecHEVC     Codec = "hevc"
	CodecVP8      Codec = "vp8"
	CodecVP9      Codec = "vp9"
	CodecAV1      Codec = "av1"
	CodecRawVideo Codec = "rawvideo"
	CodecUnknown  Codec = "unknown"
)

// PixelFormat names the memory layout of a decoded image.
type PixelFormat string

const (
	// PixelFormatYUV420P is planar Y, U, V with both chroma planes
	// subsampled by two in each direction.
	PixelFormatYUV420P PixelFormat = "yuv420p"
	PixelFormatUnknown PixelFormat = "unknown"
)

// Rational is a fraction such as a time base or frame rate.
type Rational struct {
	Num int
	Den int
}

// Float64 returns the value of the fraction, or 0 when Den is 0.
func (r Rational) Float64() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// StreamInfo describes one stream found while probing a container.
type StreamInfo struct {
	Index       int
	MediaType   MediaType
	Codec       Codec
	Width       int
	Height      int
	PixelFormat PixelFormat
	BitRate     int64 // bits per second, 0 when unknown
	Default     bool  // the container marks this stream as preferred
	TimeBase    Rational
	FrameRate   Rational

	// Extradata holds codec parameter sets in Annex B form (H.264 SPS/PPS),
	// ready to be prepended to keyframes by byte-stream decoders.
	Extradata []byte

	// Params carries backend-specific codec parameters that only a decoder
	// of the same backend understands (e.g. libav codec parameters).
	Params any
}

// ContainerInfo is the result of probing an opened container.
type ContainerInfo struct {
	Path       string
	Format     string
	DurationMs int64
	Streams    []StreamInfo
}

// StreamConfig holds the resolved decode parameters of the selected stream.
// It is derived once per open and never modified afterwards.
type StreamConfig struct {
	StreamIndex int
	MediaType   MediaType
	Codec       Codec
	Width       int
	Height      int
	PixelFormat PixelFormat
	TimeBase    Rational
	FrameRate   Rational
	Extradata   []byte
	Params      any
}

// AccessUnit is one compressed packet read from a container.
// Data is only valid until the unit is released back to its container.
type AccessUnit struct {
	StreamIndex int
	Data        []byte
	PTS         int64
	DTS         int64
	Keyframe    bool

	// Handle is the backend packet the unit was read into, if any.
	Handle any
}

// Reset clears the unit so it can be refilled by the next read.
func (au *AccessUnit) Reset() {
	au.StreamIndex = -1
	au.Data = nil
	au.PTS = 0
	au.DTS = 0
	au.Keyframe = false
}

// Plane is one image plane of a decoded frame.
type Plane struct {
	Data   []byte
	Stride int // bytes per row, at least Width
	Width  int
	Height int
}

// Frame is a decoded picture in planar layout.
// For PixelFormatYUV420P, Planes[0] is luma at full resolution and
// Planes[1] and Planes[2] are chroma at half resolution, rounded up.
type Frame struct {
	Width       int
	Height      int
	PixelFormat PixelFormat
	Planes      [3]Plane
	PTS         int64
	StreamIndex int
	MediaType   MediaType
}

// ChromaSize returns the dimensions of a 4:2:0 chroma plane for a luma size.
func ChromaSize(width, height int) (int, int) {
	return (width + 1) / 2, (height + 1) / 2
}
