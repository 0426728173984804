package pipeline

import (
	"errors"
	"testing"

	"github.com/user/vidloop/pkg/adapters/logger"
	"github.com/user/vidloop/pkg/mocks"
	"github.com/user/vidloop/pkg/ports"
)

const clipPath = "clip.mp4"

func h264Stream(index, w, h int) ports.StreamInfo {
	return ports.StreamInfo{
		Index:       index,
		MediaType:   ports.MediaTypeVideo,
		Codec:       ports.CodecH264,
		Width:       w,
		Height:      h,
		PixelFormat: ports.PixelFormatYUV420P,
	}
}

func videoUnit(value byte, pts int64) ports.AccessUnit {
	return ports.AccessUnit{StreamIndex: 1, Data: []byte{value}, PTS: pts, DTS: pts}
}

// clip is an audio stream at index 0 and a 64x64 video stream at index 1.
func clip(units ...ports.AccessUnit) *mocks.Container {
	return &mocks.Container{
		Info: ports.ContainerInfo{
			Format: "mock",
			Streams: []ports.StreamInfo{
				{Index: 0, MediaType: ports.MediaTypeAudio, Codec: "aac"},
				h264Stream(1, 64, 64),
			},
		},
		Units: units,
	}
}

type fixture struct {
	p        *VideoPipeline
	demuxer  *mocks.Demuxer
	decoders *mocks.DecoderProvider
	sink     *mocks.FrameSink
}

func newFixture(opts Options, c *mocks.Container) *fixture {
	f := &fixture{
		demuxer:  mocks.NewDemuxer(),
		decoders: mocks.NewDecoderProvider(ports.CodecH264),
		sink:     mocks.NewFrameSink(),
	}
	if c != nil {
		f.demuxer.Add(clipPath, c)
	}
	f.p = New(f.demuxer, f.decoders, f.sink, logger.NewNoop(), opts)
	return f
}

func (f *fixture) assertNothingHeld(t *testing.T) {
	t.Helper()
	if held := f.p.Resources().Held(); held != 0 {
		t.Errorf("expected no resources held, got %+v", f.p.Resources())
	}
	if live := f.demuxer.Live(); live != 0 {
		t.Errorf("expected no open containers, got %d", live)
	}
	if live := f.decoders.Factory.Live(); live != 0 {
		t.Errorf("expected no open decoder sessions, got %d", live)
	}
	if f.p.State() != StateClosed {
		t.Errorf("expected closed state, got %s", f.p.State())
	}
}

func stepN(t *testing.T, p *VideoPipeline, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := p.Step(); err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
	}
}

func TestOpenVideo(t *testing.T) {
	f := newFixture(DefaultOptions(), clip(videoUnit(1, 0)))

	if err := f.p.OpenVideo(clipPath); err != nil {
		t.Fatalf("OpenVideo failed: %v", err)
	}
	if f.p.State() != StateActive {
		t.Errorf("expected active state, got %s", f.p.State())
	}
	cfg, ok := f.p.StreamConfig()
	if !ok {
		t.Fatal("expected a stream config")
	}
	if cfg.StreamIndex != 1 || cfg.Width != 64 || cfg.Height != 64 {
		t.Errorf("unexpected stream config %+v", cfg)
	}
	if held := f.p.Resources().Held(); held != 4 {
		t.Errorf("expected 4 resources held, got %+v", f.p.Resources())
	}
}

func TestStep_DeliversDecodedFrames(t *testing.T) {
	audio := ports.AccessUnit{StreamIndex: 0, Data: []byte("A")}
	f := newFixture(DefaultOptions(), clip(videoUnit(1, 0), audio, videoUnit(2, 1)))
	if err := f.p.OpenVideo(clipPath); err != nil {
		t.Fatalf("OpenVideo failed: %v", err)
	}

	stepN(t, f.p, 3)

	frames := f.sink.Frames()
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	for i, fr := range frames {
		if fr.Width != 64 || fr.Height != 64 {
			t.Errorf("frame %d: expected 64x64, got %dx%d", i, fr.Width, fr.Height)
		}
		if fr.Planes[1].Width != 32 || fr.Planes[2].Height != 32 {
			t.Errorf("frame %d: expected 32x32 chroma", i)
		}
		if want := byte(i + 1); fr.Planes[0].Data[0] != want {
			t.Errorf("frame %d: expected sample %d, got %d", i, want, fr.Planes[0].Data[0])
		}
	}

	stats := f.p.Stats()
	if stats.UnitsRead != 3 || stats.UnitsSkipped != 1 || stats.FramesDelivered != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if c := f.demuxer.Last(); c.Releases != 3 {
		t.Errorf("expected 3 releases, got %d", c.Releases)
	}
}

func TestStep_CorruptUnitIsAbsorbed(t *testing.T) {
	bad := ports.AccessUnit{StreamIndex: 1, Data: append([]byte(nil), mocks.CorruptMarker...), PTS: 1}
	f := newFixture(DefaultOptions(), clip(videoUnit(1, 0), bad, videoUnit(3, 2)))
	if err := f.p.OpenVideo(clipPath); err != nil {
		t.Fatalf("OpenVideo failed: %v", err)
	}

	stepN(t, f.p, 3)

	frames := f.sink.Frames()
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[1].PTS != 2 {
		t.Errorf("expected second delivered frame at pts 2, got %d", frames[1].PTS)
	}
	if f.p.Stats().DecodeErrors != 1 {
		t.Errorf("expected 1 decode error, got %d", f.p.Stats().DecodeErrors)
	}
	if f.p.State() != StateActive {
		t.Errorf("expected pipeline to stay active, got %s", f.p.State())
	}
}

func TestStep_LoopsToFirstUnit(t *testing.T) {
	c := clip(videoUnit(1, 0), videoUnit(2, 1))
	f := newFixture(DefaultOptions(), c)
	if err := f.p.OpenVideo(clipPath); err != nil {
		t.Fatalf("OpenVideo failed: %v", err)
	}

	// Two units, then the exhausted read that triggers the restart.
	stepN(t, f.p, 3)

	container := f.demuxer.Last()
	if container.Seeks != 1 {
		t.Errorf("expected 1 seek, got %d", container.Seeks)
	}
	session := f.decoders.Factory.Sessions[0]
	if session.Resets != 1 {
		t.Errorf("expected 1 decoder reset, got %d", session.Resets)
	}
	if f.p.Stats().Loops != 1 {
		t.Errorf("expected 1 loop, got %d", f.p.Stats().Loops)
	}

	stepN(t, f.p, 1)
	frames := f.sink.Frames()
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	if frames[2].PTS != 0 || frames[2].Planes[0].Data[0] != 1 {
		t.Errorf("expected first unit again after loop, got pts %d value %d", frames[2].PTS, frames[2].Planes[0].Data[0])
	}
}

func TestStep_FlushDeliversBufferedFrames(t *testing.T) {
	opts := DefaultOptions()
	opts.Loop = false
	f := newFixture(opts, clip(videoUnit(1, 0), videoUnit(2, 1)))
	f.decoders.Factory.Delay = 1
	if err := f.p.OpenVideo(clipPath); err != nil {
		t.Fatalf("OpenVideo failed: %v", err)
	}

	stepN(t, f.p, 2)
	if f.sink.Count() != 1 {
		t.Fatalf("expected 1 frame before flush, got %d", f.sink.Count())
	}

	if err := f.p.Step(); !errors.Is(err, ports.ErrEndOfStream) {
		t.Fatalf("expected ErrEndOfStream, got %v", err)
	}
	if f.sink.Count() != 2 {
		t.Errorf("expected flushed frame to be delivered, got %d frames", f.sink.Count())
	}
	if f.p.Stats().FramesFlushed != 1 {
		t.Errorf("expected 1 flushed frame, got %d", f.p.Stats().FramesFlushed)
	}

	if err := f.p.Step(); !errors.Is(err, ports.ErrEndOfStream) {
		t.Errorf("expected ErrEndOfStream to persist, got %v", err)
	}
}

func TestStep_FlushDiscardedWhenDisabled(t *testing.T) {
	opts := DefaultOptions()
	opts.DeliverFlushed = false
	f := newFixture(opts, clip(videoUnit(1, 0), videoUnit(2, 1)))
	f.decoders.Factory.Delay = 1
	if err := f.p.OpenVideo(clipPath); err != nil {
		t.Fatalf("OpenVideo failed: %v", err)
	}

	stepN(t, f.p, 3)

	if f.sink.Count() != 1 {
		t.Errorf("expected flushed frame to be discarded, got %d frames", f.sink.Count())
	}
	if f.p.Stats().Loops != 1 {
		t.Errorf("expected 1 loop, got %d", f.p.Stats().Loops)
	}
}

func TestStep_SeekFailure(t *testing.T) {
	c := clip(videoUnit(1, 0))
	c.SeekErr = errors.New("disk gone")
	f := newFixture(DefaultOptions(), c)
	if err := f.p.OpenVideo(clipPath); err != nil {
		t.Fatalf("OpenVideo failed: %v", err)
	}

	stepN(t, f.p, 1)
	err := f.p.Step()
	if err == nil || errors.Is(err, ports.ErrEndOfStream) {
		t.Fatalf("expected restart failure, got %v", err)
	}
	if f.p.State() != StateActive {
		t.Errorf("expected pipeline to stay active, got %s", f.p.State())
	}
}

func TestStep_SinkErrorIsAbsorbed(t *testing.T) {
	f := newFixture(DefaultOptions(), clip(videoUnit(1, 0)))
	f.sink.DeliverFunc = func(*ports.Frame) error { return errors.New("upload failed") }
	if err := f.p.OpenVideo(clipPath); err != nil {
		t.Fatalf("OpenVideo failed: %v", err)
	}

	stepN(t, f.p, 1)

	if f.p.Stats().SinkErrors != 1 || f.p.Stats().FramesDelivered != 0 {
		t.Errorf("unexpected stats %+v", f.p.Stats())
	}
}

func TestStep_CopyFrames(t *testing.T) {
	opts := DefaultOptions()
	opts.CopyFrames = true
	f := newFixture(opts, clip(videoUnit(7, 0)))
	if err := f.p.OpenVideo(clipPath); err != nil {
		t.Fatalf("OpenVideo failed: %v", err)
	}

	var backed bool
	f.sink.DeliverFunc = func(fr *ports.Frame) error {
		backed = &fr.Planes[0].Data[0] == &f.p.dst.Bytes()[0]
		return nil
	}
	stepN(t, f.p, 1)

	if !backed {
		t.Error("expected frame to be backed by the destination buffer")
	}
	if got := f.sink.Frames()[0].Planes[2].Data[0]; got != 7 {
		t.Errorf("expected sample 7, got %d", got)
	}
}

func TestStep_NotActive(t *testing.T) {
	f := newFixture(DefaultOptions(), nil)
	if err := f.p.Step(); !errors.Is(err, ports.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestOpenVideo_FailuresReleaseEverything(t *testing.T) {
	audioOnly := &mocks.Container{
		Info: ports.ContainerInfo{Streams: []ports.StreamInfo{{Index: 0, MediaType: ports.MediaTypeAudio, Codec: "aac"}}},
	}
	av1 := &mocks.Container{
		Info: ports.ContainerInfo{Streams: []ports.StreamInfo{{Index: 0, MediaType: ports.MediaTypeVideo, Codec: ports.CodecAV1, Width: 64, Height: 64}}},
	}
	noProbe := &mocks.Container{ProbeErr: ports.ErrProbe}
	zeroSize := &mocks.Container{
		Info: ports.ContainerInfo{Streams: []ports.StreamInfo{h264Stream(0, 0, 0)}},
	}

	tests := []struct {
		name       string
		container  *mocks.Container
		sessionErr error
		want       error
	}{
		{"missing file", nil, nil, ports.ErrOpen},
		{"probe failure", noProbe, nil, ports.ErrProbe},
		{"no video stream", audioOnly, nil, ports.ErrNotFound},
		{"unsupported codec", av1, nil, ports.ErrUnsupportedCodec},
		{"decoder failure", clip(), ports.ErrAlloc, ports.ErrAlloc},
		{"destination allocation failure", zeroSize, nil, ports.ErrAlloc},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(DefaultOptions(), tt.container)
			f.decoders.Factory.NewSessionErr = tt.sessionErr

			err := f.p.OpenVideo(clipPath)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			f.assertNothingHeld(t)
			if _, ok := f.p.StreamConfig(); ok {
				t.Error("expected no stream config after failed open")
			}
		})
	}
}

func TestClose(t *testing.T) {
	f := newFixture(DefaultOptions(), clip(videoUnit(1, 0), videoUnit(2, 1)))
	f.decoders.Factory.Delay = 1
	if err := f.p.OpenVideo(clipPath); err != nil {
		t.Fatalf("OpenVideo failed: %v", err)
	}
	stepN(t, f.p, 1)

	if err := f.p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	f.assertNothingHeld(t)
	if f.sink.Count() != 0 {
		t.Errorf("expected trailing frames to be discarded, got %d", f.sink.Count())
	}

	if err := f.p.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if c := f.demuxer.Last(); c.CloseCount != 1 {
		t.Errorf("expected container closed once, got %d", c.CloseCount)
	}
	if s := f.decoders.Factory.Sessions[0]; s.CloseCount != 1 {
		t.Errorf("expected session closed once, got %d", s.CloseCount)
	}
	if err := f.p.Step(); !errors.Is(err, ports.ErrClosed) {
		t.Errorf("expected ErrClosed after close, got %v", err)
	}
}

func TestClose_NeverOpened(t *testing.T) {
	f := newFixture(DefaultOptions(), nil)
	if err := f.p.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	f.assertNothingHeld(t)
}

func TestReopen(t *testing.T) {
	f := newFixture(DefaultOptions(), clip(videoUnit(1, 0), videoUnit(2, 1)))
	f.decoders.Factory.Delay = 1
	if err := f.p.OpenVideo(clipPath); err != nil {
		t.Fatalf("OpenVideo failed: %v", err)
	}
	stepN(t, f.p, 1)

	var during State
	f.demuxer.Last().CloseFunc = func() error {
		during = f.p.State()
		return nil
	}

	if err := f.p.Reopen(); err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	if during != StateReopening {
		t.Errorf("expected reopening state during teardown, got %s", during)
	}
	if f.p.State() != StateClosed {
		t.Errorf("expected closed state, got %s", f.p.State())
	}
	f.assertNothingHeld(t)
	if len(f.demuxer.Opened) != 1 || f.demuxer.Live() != 0 {
		t.Errorf("expected no container opened again, got %d opened, %d live", len(f.demuxer.Opened), f.demuxer.Live())
	}
	if f.sink.Count() != 0 {
		t.Errorf("expected trailing frames to be discarded, got %d", f.sink.Count())
	}
	if err := f.p.Step(); !errors.Is(err, ports.ErrClosed) {
		t.Errorf("expected ErrClosed after reopen, got %v", err)
	}

	if err := f.p.OpenVideo(clipPath); err != nil {
		t.Fatalf("OpenVideo after Reopen failed: %v", err)
	}
	if f.p.State() != StateActive {
		t.Errorf("expected active state, got %s", f.p.State())
	}
}

func TestReopen_AfterFailedOpen(t *testing.T) {
	f := newFixture(DefaultOptions(), nil)

	if err := f.p.OpenVideo("broken.mp4"); !errors.Is(err, ports.ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if err := f.p.Close(); err != nil {
		t.Errorf("Close after failed open: %v", err)
	}
	if err := f.p.Reopen(); err != nil {
		t.Errorf("Reopen after failed open: %v", err)
	}
	f.assertNothingHeld(t)
}

func TestReopen_NeverOpenedIsNoop(t *testing.T) {
	f := newFixture(DefaultOptions(), nil)
	if err := f.p.Reopen(); err != nil {
		t.Errorf("Reopen failed: %v", err)
	}
	if err := f.p.Reopen(); err != nil {
		t.Errorf("second Reopen failed: %v", err)
	}
	if f.p.State() != StateClosed {
		t.Errorf("expected closed state, got %s", f.p.State())
	}
	f.assertNothingHeld(t)
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateClosed:    "closed",
		StateOpening:   "opening",
		StateActive:    "active",
		StateClosing:   "closing",
		StateReopening: "reopening",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(state), got, want)
		}
	}
}

func TestOpenVideo_WhileActiveClosesPrevious(t *testing.T) {
	f := newFixture(DefaultOptions(), clip(videoUnit(1, 0)))
	if err := f.p.OpenVideo(clipPath); err != nil {
		t.Fatalf("OpenVideo failed: %v", err)
	}
	if err := f.p.OpenVideo(clipPath); err != nil {
		t.Fatalf("second OpenVideo failed: %v", err)
	}
	if f.demuxer.Live() != 1 || f.decoders.Factory.Live() != 1 {
		t.Errorf("expected previous open released, got %d containers, %d sessions", f.demuxer.Live(), f.decoders.Factory.Live())
	}
}
