package ports

import "errors"

var (
	// ErrOpen is returned when a media file cannot be opened or its
	// container format is not recognised.
	ErrOpen = errors.New("vidloop: cannot open media")

	// ErrProbe is returned when a container holds no parseable stream headers.
	ErrProbe = errors.New("vidloop: cannot probe streams")

	// ErrNotFound is returned when the container has no stream of the
	// requested media type.
	ErrNotFound = errors.New("vidloop: no such stream")

	// ErrUnsupportedCodec is returned when no decoder is available for the
	// selected stream.
	ErrUnsupportedCodec = errors.New("vidloop: unsupported codec")

	// ErrAlloc is returned when a buffer or backend context cannot be allocated.
	ErrAlloc = errors.New("vidloop: allocation failed")

	// ErrDecode is returned when an access unit cannot be decoded.
	ErrDecode = errors.New("vidloop: decode failed")

	// ErrNoFrameYet signals that the decoder needs more input. Not a failure.
	ErrNoFrameYet = errors.New("vidloop: no frame yet")

	// ErrEndOfStream signals an exhausted container or a completed decoder
	// drain. Not a failure.
	ErrEndOfStream = errors.New("vidloop: end of stream")

	// ErrClosed is returned by operations on a pipeline that is not active.
	ErrClosed = errors.New("vidloop: pipeline closed")
)
