package pipeline

import (
	"errors"
	"fmt"

	"github.com/user/vidloop/pkg/ports"
)

// RestartOutcome is the result of handling an exhausted container.
type RestartOutcome int

const (
	// RestartLooped means the next read returns the first access unit.
	RestartLooped RestartOutcome = iota
	// RestartEnded means looping is disabled and playback is over.
	RestartEnded
	// RestartFailed means the decoder or the container could not be rewound.
	RestartFailed
)

// String returns the name of the outcome.
func (o RestartOutcome) String() string {
	switch o {
	case RestartLooped:
		return "looped"
	case RestartEnded:
		return "ended"
	case RestartFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// maxDrainFrames bounds a single drain so a misbehaving decoder cannot
// stall the caller.
const maxDrainFrames = 1024

// loopController rewinds playback when the container runs out of access units.
type loopController struct {
	enabled        bool
	deliverFlushed bool
	logger         ports.Logger
}

// onReadExhausted flushes the decoder, then either rewinds the session and
// the container or reports the end of playback. Flushed frames go to deliver
// when deliverFlushed is set.
func (lc *loopController) onReadExhausted(src *MediaSource, session ports.DecoderSession, deliver func(*ports.Frame)) (RestartOutcome, error) {
	n, err := drain(session, func(f *ports.Frame) {
		if lc.deliverFlushed {
			deliver(f)
		}
	})
	if err != nil {
		lc.logger.Warn("Decoder flush failed: %s", err)
	}
	lc.logger.Debug("Flushed %d frames", n)

	if !lc.enabled {
		return RestartEnded, nil
	}

	if err := session.Reset(); err != nil {
		return RestartFailed, fmt.Errorf("reset decoder: %w", err)
	}
	if err := src.Container.SeekStart(); err != nil {
		return RestartFailed, fmt.Errorf("seek to start: %w", err)
	}
	lc.logger.Debug("Seeked stream #%d to start", src.StreamIndex)
	return RestartLooped, nil
}

// drain puts the session into draining mode and passes every remaining frame
// to fn. It returns the number of frames drained.
func drain(session ports.DecoderSession, fn func(*ports.Frame)) (int, error) {
	if err := session.Submit(nil); err != nil {
		return 0, err
	}
	for n := 0; n < maxDrainFrames; n++ {
		frame, err := session.Receive()
		switch {
		case err == nil:
			fn(frame)
		case errors.Is(err, ports.ErrEndOfStream), errors.Is(err, ports.ErrNoFrameYet):
			return n, nil
		default:
			return n, err
		}
	}
	return maxDrainFrames, fmt.Errorf("%w: decoder did not finish draining", ports.ErrDecode)
}
