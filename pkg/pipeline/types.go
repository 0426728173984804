package pipeline

import "github.com/user/vidloop/pkg/ports"

// State is the lifecycle state of a VideoPipeline.
type State int

const (
	StateClosed State = iota
	StateOpening
	StateActive
	StateClosing
	StateReopening
)

// String returns the name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateReopening:
		return "reopening"
	default:
		return "unknown"
	}
}

// Options controls playback behaviour.
type Options struct {
	// MediaType is the kind of stream to decode. Defaults to video.
	MediaType ports.MediaType

	// Loop restarts playback from the first access unit when the container
	// is exhausted. Without it, Step reports ErrEndOfStream.
	Loop bool

	// DeliverFlushed delivers the frames drained from the decoder at the end
	// of each pass. Otherwise they are discarded.
	DeliverFlushed bool

	// CopyFrames delivers frames copied into the destination buffer instead
	// of the decoder's working frame.
	CopyFrames bool
}

// DefaultOptions returns looping playback with flushed frames delivered.
func DefaultOptions() Options {
	return Options{
		MediaType:      ports.MediaTypeVideo,
		Loop:           true,
		DeliverFlushed: true,
	}
}

// Stats counts pipeline activity since the last successful open.
type Stats struct {
	UnitsRead       int // access units read from the container
	UnitsSkipped    int // units of streams other than the selected one
	FramesDelivered int // frames handed to the sink, flushed ones included
	FramesFlushed   int // frames drained at the end of a pass
	DecodeErrors    int // units or frames dropped by the decoder
	SinkErrors      int // deliveries rejected by the sink
	Loops           int // completed restarts from the first access unit
}

// Resources reports which per-open resources a pipeline holds.
type Resources struct {
	Container   bool
	Decoder     bool
	Destination bool
	AccessUnit  bool
}

// Held returns the number of resources held.
func (r Resources) Held() int {
	n := 0
	for _, held := range []bool{r.Container, r.Decoder, r.Destination, r.AccessUnit} {
		if held {
			n++
		}
	}
	return n
}

// MediaSource is an opened container with its probe result and the index
// of the stream being decoded.
type MediaSource struct {
	Container   ports.Container
	Info        ports.ContainerInfo
	StreamIndex int
}
