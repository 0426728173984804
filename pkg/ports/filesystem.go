package ports

import "io"

// File is an opened, seekable media file.
type File interface {
	io.ReadSeekCloser
}

// FileSystem is the file access used by container readers (Open) and by
// sinks and report writers (WriteFile, MkdirAll).
type FileSystem interface {
	// Open opens a file for reading and seeking.
	Open(path string) (File, error)

	// WriteFile replaces the file at path with data, creating parent
	// directories as needed.
	WriteFile(path string, data []byte) error

	// MkdirAll creates a directory and all parent directories.
	MkdirAll(path string) error
}
