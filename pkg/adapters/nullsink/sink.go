// Package nullsink provides a frame sink that discards frames.
package nullsink

import "github.com/user/vidloop/pkg/ports"

// Sink is a no-op implementation of ports.FrameSink.
// It counts delivered frames and discards their pixels.
type Sink struct {
	frames  int
	lastPTS int64
}

// New creates a new NullSink.
func New() *Sink {
	return &Sink{}
}

// Deliver counts the frame.
func (s *Sink) Deliver(frame *ports.Frame) error {
	s.frames++
	s.lastPTS = frame.PTS
	return nil
}

// Frames returns the number of frames delivered.
func (s *Sink) Frames() int {
	return s.frames
}

// LastPTS returns the timestamp of the most recent frame.
func (s *Sink) LastPTS() int64 {
	return s.lastPTS
}

// Ensure Sink implements ports.FrameSink
var _ ports.FrameSink = (*Sink)(nil)
