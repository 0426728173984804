package ports

// DecoderSession owns one decoder instance bound to a single stream.
//
// Decoding is many-to-many: a submitted unit may produce zero, one or several
// frames. Callers call Receive until it returns ErrNoFrameYet before
// submitting the next unit.
type DecoderSession interface {
	// Submit sends one access unit to the decoder. A nil unit starts draining:
	// buffered frames are returned by subsequent Receive calls, followed by
	// ErrEndOfStream.
	Submit(au *AccessUnit) error

	// Receive returns the next decoded frame, ErrNoFrameYet when more input
	// is needed, or ErrEndOfStream when a drain has completed. The frame is
	// overwritten by the next Receive.
	Receive() (*Frame, error)

	// Reset discards decoder state so the session accepts input again after
	// a drain.
	Reset() error

	// Close releases the decoder. Closing twice is a no-op.
	Close()
}

// DecoderFactory creates decoder sessions for one backend.
type DecoderFactory interface {
	// Supports reports whether the factory can decode the stream.
	Supports(stream StreamInfo) bool

	// NewSession creates a decoder configured for cfg.
	NewSession(cfg StreamConfig) (DecoderSession, error)
}

// DecoderProvider resolves a decoder factory for a stream.
type DecoderProvider interface {
	// Lookup returns a factory able to decode the stream, or an error
	// wrapping ErrUnsupportedCodec.
	Lookup(stream StreamInfo) (DecoderFactory, error)
}
