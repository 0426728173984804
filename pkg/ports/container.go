// Package ports defines the interfaces between the video pipeline and its
// backends: container readers, decoders, frame sinks, logging and files.
package ports

// Demuxer opens media files.
type Demuxer interface {
	// Open opens the file at path. It fails with ErrOpen when the path cannot
	// be read or its format is not recognised.
	Open(path string) (Container, error)
}

// Container is an opened media file that yields access units in decode order.
type Container interface {
	// Probe scans the container for its streams. It fails with ErrProbe when
	// no parseable stream headers are found.
	Probe() (ContainerInfo, error)

	// ReadNext fills au with the next access unit in container order.
	// It returns ErrEndOfStream once the source is exhausted.
	ReadNext(au *AccessUnit) error

	// Release returns the storage behind au to the container.
	Release(au *AccessUnit)

	// SeekStart repositions the container before its first access unit.
	SeekStart() error

	// Close releases the container. Closing twice is a no-op.
	Close() error
}
