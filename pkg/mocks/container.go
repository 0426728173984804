package mocks

import (
	"fmt"
	"sync"

	"github.com/user/vidloop/pkg/ports"
)

// Container is a scripted ports.Container that replays Units in order.
type Container struct {
	Info  ports.ContainerInfo
	Units []ports.AccessUnit

	ProbeErr error
	SeekErr  error

	// CloseFunc, when set, runs on every Close and supplies its error.
	CloseFunc func() error

	pos int

	Reads      int
	Releases   int
	Seeks      int
	CloseCount int
}

func (c *Container) Probe() (ports.ContainerInfo, error) {
	if c.ProbeErr != nil {
		return ports.ContainerInfo{}, c.ProbeErr
	}
	return c.Info, nil
}

func (c *Container) ReadNext(au *ports.AccessUnit) error {
	if c.CloseCount > 0 {
		return ports.ErrClosed
	}
	if c.pos >= len(c.Units) {
		return ports.ErrEndOfStream
	}
	*au = c.Units[c.pos]
	c.pos++
	c.Reads++
	return nil
}

func (c *Container) Release(au *ports.AccessUnit) {
	c.Releases++
	au.Reset()
}

func (c *Container) SeekStart() error {
	c.Seeks++
	if c.SeekErr != nil {
		return c.SeekErr
	}
	c.pos = 0
	return nil
}

func (c *Container) Close() error {
	c.CloseCount++
	if c.CloseFunc != nil {
		return c.CloseFunc()
	}
	return nil
}

// Closed reports whether Close has been called.
func (c *Container) Closed() bool {
	return c.CloseCount > 0
}

// Demuxer is a mock ports.Demuxer. Each Open of a registered path returns a
// fresh copy of the template container.
type Demuxer struct {
	mu        sync.Mutex
	templates map[string]*Container

	OpenErr error
	Opened  []*Container
}

// NewDemuxer creates a new mock Demuxer.
func NewDemuxer() *Demuxer {
	return &Demuxer{templates: make(map[string]*Container)}
}

// Add registers a container template for path.
func (d *Demuxer) Add(path string, c *Container) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.templates[path] = c
}

func (d *Demuxer) Open(path string) (ports.Container, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	tmpl, ok := d.templates[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrOpen, path)
	}
	c := &Container{
		Info:     tmpl.Info,
		Units:    tmpl.Units,
		ProbeErr: tmpl.ProbeErr,
		SeekErr:  tmpl.SeekErr,
	}
	c.Info.Path = path
	d.Opened = append(d.Opened, c)
	return c, nil
}

// Live returns the number of opened containers not yet closed.
func (d *Demuxer) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.Opened {
		if !c.Closed() {
			n++
		}
	}
	return n
}

// Last returns the most recently opened container.
func (d *Demuxer) Last() *Container {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Opened) == 0 {
		return nil
	}
	return d.Opened[len(d.Opened)-1]
}

var (
	_ ports.Container = (*Container)(nil)
	_ ports.Demuxer   = (*Demuxer)(nil)
)
