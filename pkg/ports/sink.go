package ports

// FrameSink receives decoded video frames, typically for texture upload.
//
// Deliver is called synchronously from the pipeline. The plane slices of the
// frame are only valid for the duration of the call; a sink that needs the
// pixels later must copy them.
type FrameSink interface {
	Deliver(frame *Frame) error
}

// FrameSinkFunc adapts a function to FrameSink.
type FrameSinkFunc func(frame *Frame) error

// Deliver implements FrameSink.
func (f FrameSinkFunc) Deliver(frame *Frame) error {
	return f(frame)
}
