package mocks

import (
	"sync"

	"github.com/user/vidloop/pkg/planar"
	"github.com/user/vidloop/pkg/ports"
)

// FrameSink is a mock ports.FrameSink that records deep copies of frames.
type FrameSink struct {
	mu     sync.Mutex
	frames []*ports.Frame

	DeliverFunc func(frame *ports.Frame) error
}

// NewFrameSink creates a new mock FrameSink.
func NewFrameSink() *FrameSink {
	return &FrameSink{}
}

func (m *FrameSink) Deliver(frame *ports.Frame) error {
	if m.DeliverFunc != nil {
		if err := m.DeliverFunc(frame); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, planar.Clone(frame))
	return nil
}

// Frames returns the recorded frames (for test verification).
func (m *FrameSink) Frames() []*ports.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*ports.Frame(nil), m.frames...)
}

// Count returns the number of delivered frames.
func (m *FrameSink) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}

var _ ports.FrameSink = (*FrameSink)(nil)
