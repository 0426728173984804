// Package pipeline drives the decode of one media file into a frame sink.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/user/vidloop/pkg/planar"
	"github.com/user/vidloop/pkg/ports"
	"github.com/user/vidloop/pkg/selector"
)

// VideoPipeline opens a media file, selects its best video stream and feeds
// decoded frames to a sink one access unit per Step.
//
// A VideoPipeline is not safe for concurrent use.
type VideoPipeline struct {
	demuxer  ports.Demuxer
	decoders ports.DecoderProvider
	sink     ports.FrameSink
	logger   ports.Logger
	opts     Options
	loop     loopController

	state   State
	path    string
	src     *MediaSource
	config  ports.StreamConfig
	session ports.DecoderSession
	dst     *planar.Buffer
	au      *ports.AccessUnit
	ended   bool
	stats   Stats
}

// New creates a closed pipeline.
func New(demuxer ports.Demuxer, decoders ports.DecoderProvider, sink ports.FrameSink, logger ports.Logger, opts Options) *VideoPipeline {
	if opts.MediaType == "" {
		opts.MediaType = ports.MediaTypeVideo
	}
	log := logger.WithComponent("pipeline")
	return &VideoPipeline{
		demuxer:  demuxer,
		decoders: decoders,
		sink:     sink,
		logger:   log,
		opts:     opts,
		loop: loopController{
			enabled:        opts.Loop,
			deliverFlushed: opts.DeliverFlushed,
			logger:         log,
		},
	}
}

// State returns the lifecycle state.
func (p *VideoPipeline) State() State {
	return p.state
}

// StreamConfig returns the configuration of the stream being decoded.
// The second result is false unless the pipeline is active.
func (p *VideoPipeline) StreamConfig() (ports.StreamConfig, bool) {
	if p.state != StateActive {
		return ports.StreamConfig{}, false
	}
	return p.config, true
}

// Source returns the opened media source, or nil when closed.
func (p *VideoPipeline) Source() *MediaSource {
	return p.src
}

// Stats returns the activity counters of the current open.
func (p *VideoPipeline) Stats() Stats {
	return p.stats
}

// Resources reports which per-open resources are held.
func (p *VideoPipeline) Resources() Resources {
	return Resources{
		Container:   p.src != nil,
		Decoder:     p.session != nil,
		Destination: p.dst != nil,
		AccessUnit:  p.au != nil,
	}
}

// OpenVideo opens path and prepares its best video stream for decoding.
//
// An already open pipeline is closed first. On failure every resource
// acquired so far is released, the pipeline is left closed and the first
// error is returned.
func (p *VideoPipeline) OpenVideo(path string) error {
	if p.state != StateClosed {
		if err := p.Close(); err != nil {
			p.logger.Warn("Close before open failed: %s", err)
		}
	}

	p.state = StateOpening
	p.path = path
	p.stats = Stats{}
	p.logger.Info("Opening %s", path)

	if err := p.open(path); err != nil {
		if terr := p.teardown(); terr != nil {
			p.logger.Debug("Rollback of %s: %s", path, terr)
		}
		p.state = StateClosed
		p.logger.Error("Failed to open %s: %s", path, err)
		return err
	}

	p.state = StateActive
	p.logger.Info("Playing stream #%d (%s %dx%d)", p.config.StreamIndex, p.config.Codec, p.config.Width, p.config.Height)
	return nil
}

func (p *VideoPipeline) open(path string) error {
	container, err := p.demuxer.Open(path)
	if err != nil {
		return err
	}
	p.src = &MediaSource{Container: container, StreamIndex: -1}

	info, err := container.Probe()
	if err != nil {
		return err
	}
	p.src.Info = info
	p.dumpStreams(info)

	sel, err := selector.SelectBestStream(info, p.opts.MediaType, p.decoders)
	if err != nil {
		return err
	}
	p.src.StreamIndex = sel.Index

	session, err := sel.Factory.NewSession(sel.Config)
	if err != nil {
		return err
	}
	p.session = session
	p.config = sel.Config

	dst, err := planar.NewBuffer(sel.Config.Width, sel.Config.Height, ports.PixelFormatYUV420P)
	if err != nil {
		return err
	}
	p.dst = dst

	p.au = &ports.AccessUnit{StreamIndex: -1}
	return nil
}

func (p *VideoPipeline) dumpStreams(info ports.ContainerInfo) {
	p.logger.Debug("Input %s, format %s, duration %d ms", info.Path, info.Format, info.DurationMs)
	for _, s := range info.Streams {
		p.logger.Debug("Stream #%d: %s %s %dx%d %s, %d b/s, default=%t",
			s.Index, s.MediaType, s.Codec, s.Width, s.Height, s.PixelFormat, s.BitRate, s.Default)
	}
}

// Step reads one access unit. Units of the selected stream are decoded and
// every frame they produce is delivered to the sink before Step returns.
//
// Decode failures are logged and counted, and the unit is dropped. When the
// container is exhausted the loop controller rewinds playback; with looping
// disabled Step returns ErrEndOfStream from then on. Step on a pipeline that
// is not active returns ErrClosed.
func (p *VideoPipeline) Step() error {
	if p.state != StateActive {
		return ports.ErrClosed
	}
	if p.ended {
		return ports.ErrEndOfStream
	}

	if err := p.src.Container.ReadNext(p.au); err != nil {
		if !errors.Is(err, ports.ErrEndOfStream) {
			p.logger.Warn("Read failed, restarting: %s", err)
		}
		return p.restart()
	}
	defer p.src.Container.Release(p.au)
	p.stats.UnitsRead++

	if p.au.StreamIndex != p.src.StreamIndex {
		p.stats.UnitsSkipped++
		return nil
	}

	if err := p.session.Submit(p.au); err != nil {
		p.decodeError(err)
		return nil
	}
	p.receiveAll()
	return nil
}

// receiveAll delivers frames until the decoder needs more input.
func (p *VideoPipeline) receiveAll() {
	for {
		frame, err := p.session.Receive()
		if err != nil {
			if !errors.Is(err, ports.ErrNoFrameYet) && !errors.Is(err, ports.ErrEndOfStream) {
				p.decodeError(err)
			}
			return
		}
		p.deliver(frame)
	}
}

func (p *VideoPipeline) deliver(frame *ports.Frame) {
	if frame.MediaType != "" && frame.MediaType != p.opts.MediaType {
		return
	}
	if p.opts.CopyFrames {
		if err := p.dst.CopyFrom(frame); err != nil {
			p.decodeError(err)
			return
		}
		frame = p.dst.Frame()
	}
	if err := p.sink.Deliver(frame); err != nil {
		p.stats.SinkErrors++
		p.logger.Warn("Frame sink rejected frame at pts %d: %s", frame.PTS, err)
		return
	}
	p.stats.FramesDelivered++
}

func (p *VideoPipeline) deliverFlushed(frame *ports.Frame) {
	before := p.stats.FramesDelivered
	p.deliver(frame)
	if p.stats.FramesDelivered > before {
		p.stats.FramesFlushed++
	}
}

func (p *VideoPipeline) decodeError(err error) {
	p.stats.DecodeErrors++
	p.logger.Warn("Dropped frame: %s", err)
}

func (p *VideoPipeline) restart() error {
	outcome, err := p.loop.onReadExhausted(p.src, p.session, p.deliverFlushed)
	switch outcome {
	case RestartLooped:
		p.stats.Loops++
		p.logger.Info("Looping %s", p.path)
		return nil
	case RestartEnded:
		p.ended = true
		p.logger.Info("End of %s", p.path)
		return ports.ErrEndOfStream
	default:
		p.logger.Error("Failed to restart %s: %s", p.path, err)
		return fmt.Errorf("restart %s: %w", p.path, err)
	}
}

// Close releases every resource of the current open. Trailing frames still
// buffered in the decoder are discarded. Closing a closed pipeline is a no-op.
func (p *VideoPipeline) Close() error {
	return p.release(StateClosing)
}

// Reopen releases the current open exactly like Close, passing through
// StateReopening instead of StateClosing. The pipeline ends closed; the caller
// opens the next file with OpenVideo. Reopening a closed pipeline is a no-op.
func (p *VideoPipeline) Reopen() error {
	return p.release(StateReopening)
}

func (p *VideoPipeline) release(via State) error {
	if p.state == StateClosed {
		return nil
	}
	p.state = via
	err := p.teardown()
	p.state = StateClosed
	p.logger.Info("Closed %s", p.path)
	return err
}

// teardown releases resources in reverse acquisition order. It is shared by
// Close, Reopen and the rollback of a failed open, and tolerates any subset
// of resources being held.
func (p *VideoPipeline) teardown() error {
	var errs []error

	if p.session != nil {
		if n, err := drain(p.session, func(*ports.Frame) {}); err != nil {
			p.logger.Debug("Drain on close failed after %d frames: %s", n, err)
		}
		p.session.Close()
		p.session = nil
	}

	if p.src != nil {
		if err := p.src.Container.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close container: %w", err))
		}
		p.src = nil
	}

	p.au = nil
	p.dst = nil
	p.config = ports.StreamConfig{}
	p.ended = false

	return errors.Join(errs...)
}
