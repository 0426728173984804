//go:build !unix

package ffmpegdecoder

import (
	"fmt"

	"github.com/user/vidloop/pkg/ports"
)

const platformSupported = false

func newSession(path, format string, cfg ports.StreamConfig, opts Options, log ports.Logger) (ports.DecoderSession, error) {
	return nil, fmt.Errorf("%w: %v", ports.ErrAlloc, ErrPlatformNotSupported)
}
