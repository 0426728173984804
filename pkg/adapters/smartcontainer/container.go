// Package smartcontainer opens media files with the reader matching their
// format, detected from magic bytes or, failing that, the file extension.
package smartcontainer

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/user/vidloop/pkg/adapters/annexbcontainer"
	"github.com/user/vidloop/pkg/adapters/ivfcontainer"
	"github.com/user/vidloop/pkg/adapters/mp4container"
	"github.com/user/vidloop/pkg/ports"
)

// Format is a container format recognised by the native readers.
type Format string

const (
	FormatMP4     Format = "mp4"
	FormatIVF     Format = "ivf"
	FormatAnnexB  Format = "h264"
	FormatUnknown Format = "unknown"
)

// sniffSize is the number of leading bytes inspected.
const sniffSize = 12

var mp4Boxes = []string{"ftyp", "styp", "moov", "moof", "mdat", "free", "skip", "wide"}

// DetectFromBytes detects the format from the first bytes of a file.
func DetectFromBytes(head []byte) Format {
	if bytes.HasPrefix(head, []byte("DKIF")) {
		return FormatIVF
	}
	if len(head) >= 8 {
		box := string(head[4:8])
		for _, b := range mp4Boxes {
			if box == b {
				return FormatMP4
			}
		}
	}
	if annexbcontainer.HasStartCode(head) {
		return FormatAnnexB
	}
	return FormatUnknown
}

// DetectFromExtension detects the format from a file name.
func DetectFromExtension(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".m4v", ".mov", ".m4s", ".cmfv":
		return FormatMP4
	case ".ivf":
		return FormatIVF
	case ".h264", ".264", ".avc":
		return FormatAnnexB
	}
	return FormatUnknown
}

// Options configures the demuxer.
type Options struct {
	// Fallback opens files no native reader recognises. Nil disables it.
	Fallback ports.Demuxer

	Logger ports.Logger
}

// Demuxer dispatches Open to the reader for the detected format.
type Demuxer struct {
	fs       ports.FileSystem
	readers  map[Format]ports.Demuxer
	fallback ports.Demuxer
	logger   ports.Logger
}

// New creates a demuxer reading through fs.
func New(fs ports.FileSystem, opts Options) *Demuxer {
	d := &Demuxer{
		fs: fs,
		readers: map[Format]ports.Demuxer{
			FormatMP4:    mp4container.New(fs),
			FormatIVF:    ivfcontainer.New(fs),
			FormatAnnexB: annexbcontainer.New(fs),
		},
		fallback: opts.Fallback,
		logger:   opts.Logger,
	}
	if d.logger != nil {
		d.logger = d.logger.WithComponent("container")
	}
	return d
}

// Detect reports the format of the file at path.
func (d *Demuxer) Detect(path string) (Format, error) {
	f, err := d.fs.Open(path)
	if err != nil {
		return FormatUnknown, err
	}
	defer f.Close()

	head := make([]byte, sniffSize)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return FormatUnknown, err
	}
	if format := DetectFromBytes(head[:n]); format != FormatUnknown {
		return format, nil
	}
	return DetectFromExtension(path), nil
}

// Open opens path with the matching reader.
func (d *Demuxer) Open(path string) (ports.Container, error) {
	format, err := d.Detect(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ports.ErrOpen, path, err)
	}
	if d.logger != nil {
		d.logger.Debug("Detected %s as %s", path, format)
	}

	if reader, ok := d.readers[format]; ok {
		return reader.Open(path)
	}
	if d.fallback != nil {
		return d.fallback.Open(path)
	}
	return nil, fmt.Errorf("%w: %s: unrecognised format", ports.ErrOpen, path)
}

var _ ports.Demuxer = (*Demuxer)(nil)
