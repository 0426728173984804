// Package osfilesystem backs ports.FileSystem with the local disk.
package osfilesystem

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/user/vidloop/pkg/ports"
)

const (
	dirPerm  = 0755
	filePerm = 0644
)

// FileSystem reads media files from disk and writes snapshots and reports.
type FileSystem struct{}

// New returns a FileSystem rooted at the process working directory.
func New() *FileSystem {
	return &FileSystem{}
}

// Open opens path read-only. The *os.File serves as the seekable ports.File.
func (fs *FileSystem) Open(path string) (ports.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// WriteFile writes data to a temporary file next to path and renames it into
// place, so readers of path never see a partially written snapshot or report.
func (fs *FileSystem) WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Chmod(tmpPath, filePerm)
	}
	if werr == nil {
		werr = os.Rename(tmpPath, path)
	}
	if werr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", path, werr)
	}
	return nil
}

// MkdirAll creates path and any missing parents.
func (fs *FileSystem) MkdirAll(path string) error {
	return os.MkdirAll(path, dirPerm)
}

var _ ports.FileSystem = (*FileSystem)(nil)
