package mp4container

import (
	"bytes"
	"errors"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/user/vidloop/pkg/adapters/osfilesystem"
	"github.com/user/vidloop/pkg/mocks"
	"github.com/user/vidloop/pkg/ports"
)

// buildFragmented writes a fragmented MP4 with a raw I420 video track
// (ID 1) and an audio track (ID 2). Fragments hold two video samples, one
// audio sample, then one more video sample.
func buildFragmented(t *testing.T, w, h int) []byte {
	t.Helper()
	init := mp4.CreateEmptyInit()
	init.AddEmptyTrack(10, "video", "und")
	init.AddEmptyTrack(48000, "audio", "und")

	video := init.Moov.Traks[0]
	video.Mdia.Minf.Stbl.Stsd.AddChild(mp4.CreateVisualSampleEntryBox("I420", uint16(w), uint16(h), nil))
	video.Tkhd.Width = mp4.Fixed32(w << 16)
	video.Tkhd.Height = mp4.Fixed32(h << 16)

	addSamples := func(seq, trackID uint32, start uint64, dur uint32, payloads ...[]byte) *mp4.Fragment {
		frag, err := mp4.CreateFragment(seq, trackID)
		if err != nil {
			t.Fatalf("create fragment: %v", err)
		}
		for i, p := range payloads {
			frag.AddFullSample(mp4.FullSample{
				Sample:     mp4.Sample{Flags: mp4.SyncSampleFlags, Size: uint32(len(p)), Dur: dur},
				DecodeTime: start + uint64(i)*uint64(dur),
				Data:       p,
			})
		}
		return frag
	}

	frames := [][]byte{mocks.I420Frame(w, h, 1, 128), mocks.I420Frame(w, h, 2, 128), mocks.I420Frame(w, h, 3, 128)}
	frags := []*mp4.Fragment{
		addSamples(1, 1, 0, 1, frames[0], frames[1]),
		addSamples(2, 2, 0, 9600, []byte("audio")),
		addSamples(3, 1, 2, 1, frames[2]),
	}

	var buf bytes.Buffer
	if err := mp4.NewFtyp("isom", 0x200, []string{"isom", "iso6"}).Encode(&buf); err != nil {
		t.Fatalf("encode ftyp: %v", err)
	}
	if err := init.Moov.Encode(&buf); err != nil {
		t.Fatalf("encode moov: %v", err)
	}
	for _, f := range frags {
		if err := f.Encode(&buf); err != nil {
			t.Fatalf("encode fragment: %v", err)
		}
	}
	return buf.Bytes()
}

func openBytes(t *testing.T, data []byte) (ports.Container, *mocks.FileSystem) {
	t.Helper()
	fs := mocks.NewFileSystem()
	fs.AddFile("clip.mp4", data)
	c, err := New(fs).Open("clip.mp4")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return c, fs
}

func TestOpen_NotMP4(t *testing.T) {
	fs := mocks.NewFileSystem()
	fs.AddFile("clip.ivf", mocks.IVFClip("VP80", 16, 16, 30, []byte{0}))

	if _, err := New(fs).Open("clip.ivf"); !errors.Is(err, ports.ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if fs.OpenFiles() != 0 {
		t.Errorf("expected file closed, %d open", fs.OpenFiles())
	}
}

func TestProbe_Fragmented(t *testing.T) {
	c, _ := openBytes(t, buildFragmented(t, 16, 8))
	defer c.Close()

	info, err := c.Probe()
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if len(info.Streams) != 2 {
		t.Fatalf("expected 2 streams, got %d", len(info.Streams))
	}

	v := info.Streams[0]
	if v.MediaType != ports.MediaTypeVideo || v.Codec != ports.CodecRawVideo {
		t.Errorf("unexpected video stream %+v", v)
	}
	if v.Width != 16 || v.Height != 8 {
		t.Errorf("expected 16x8, got %dx%d", v.Width, v.Height)
	}
	if v.TimeBase != (ports.Rational{Num: 1, Den: 10}) {
		t.Errorf("expected 1/10 time base, got %s", v.TimeBase)
	}
	// 3 samples of 192 bytes over 0.3 s.
	if v.BitRate != 3*192*8*10/3 {
		t.Errorf("unexpected bit rate %d", v.BitRate)
	}

	if a := info.Streams[1]; a.MediaType != ports.MediaTypeAudio || a.Index != 1 {
		t.Errorf("unexpected audio stream %+v", a)
	}
	if info.DurationMs != 300 {
		t.Errorf("expected 300 ms, got %d", info.DurationMs)
	}
}

func TestReadNext_Fragmented(t *testing.T) {
	c, _ := openBytes(t, buildFragmented(t, 16, 8))
	defer c.Close()

	wantStreams := []int{0, 0, 1, 0}
	wantPTS := []int64{0, 1, 0, 2}

	var au ports.AccessUnit
	for i := range wantStreams {
		if err := c.ReadNext(&au); err != nil {
			t.Fatalf("ReadNext %d failed: %v", i, err)
		}
		if au.StreamIndex != wantStreams[i] || au.PTS != wantPTS[i] {
			t.Errorf("unit %d: expected stream %d pts %d, got stream %d pts %d",
				i, wantStreams[i], wantPTS[i], au.StreamIndex, au.PTS)
		}
		if !au.Keyframe {
			t.Errorf("unit %d: expected sync sample", i)
		}
		c.Release(&au)
	}
	if err := c.ReadNext(&au); !errors.Is(err, ports.ErrEndOfStream) {
		t.Fatalf("expected ErrEndOfStream, got %v", err)
	}

	if err := c.SeekStart(); err != nil {
		t.Fatalf("SeekStart failed: %v", err)
	}
	if err := c.ReadNext(&au); err != nil {
		t.Fatalf("ReadNext after seek failed: %v", err)
	}
	if au.Data[0] != 1 || au.PTS != 0 {
		t.Errorf("expected first sample after seek, got luma %d pts %d", au.Data[0], au.PTS)
	}
}

// buildInterleaved writes a fragmented MP4 whose fragments each carry one
// track fragment for the video track (ID 1) and one for the audio track (ID 2).
func buildInterleaved(t *testing.T, w, h int) []byte {
	t.Helper()
	init := mp4.CreateEmptyInit()
	init.AddEmptyTrack(10, "video", "und")
	init.AddEmptyTrack(48000, "audio", "und")

	video := init.Moov.Traks[0]
	video.Mdia.Minf.Stbl.Stsd.AddChild(mp4.CreateVisualSampleEntryBox("I420", uint16(w), uint16(h), nil))
	video.Tkhd.Width = mp4.Fixed32(w << 16)
	video.Tkhd.Height = mp4.Fixed32(h << 16)

	var buf bytes.Buffer
	if err := mp4.NewFtyp("isom", 0x200, []string{"isom", "iso6"}).Encode(&buf); err != nil {
		t.Fatalf("encode ftyp: %v", err)
	}
	if err := init.Moov.Encode(&buf); err != nil {
		t.Fatalf("encode moov: %v", err)
	}

	for i := 0; i < 2; i++ {
		frag, err := mp4.CreateMultiTrackFragment(uint32(i+1), []uint32{1, 2})
		if err != nil {
			t.Fatalf("create fragment: %v", err)
		}
		v := mocks.I420Frame(w, h, byte(i+1), 128)
		if err := frag.AddFullSampleToTrack(mp4.FullSample{
			Sample:     mp4.Sample{Flags: mp4.SyncSampleFlags, Size: uint32(len(v)), Dur: 1},
			DecodeTime: uint64(i),
			Data:       v,
		}, 1); err != nil {
			t.Fatalf("add video sample: %v", err)
		}
		a := []byte("audio")
		if err := frag.AddFullSampleToTrack(mp4.FullSample{
			Sample:     mp4.Sample{Flags: mp4.SyncSampleFlags, Size: uint32(len(a)), Dur: 4800},
			DecodeTime: uint64(i) * 4800,
			Data:       a,
		}, 2); err != nil {
			t.Fatalf("add audio sample: %v", err)
		}
		if err := frag.Encode(&buf); err != nil {
			t.Fatalf("encode fragment: %v", err)
		}
	}
	return buf.Bytes()
}

func TestReadNext_MultiTrackFragments(t *testing.T) {
	c, _ := openBytes(t, buildInterleaved(t, 16, 8))
	defer c.Close()

	wantStreams := []int{0, 1, 0, 1}
	wantPTS := []int64{0, 0, 1, 4800}

	var au ports.AccessUnit
	for i := range wantStreams {
		if err := c.ReadNext(&au); err != nil {
			t.Fatalf("ReadNext %d failed: %v", i, err)
		}
		if au.StreamIndex != wantStreams[i] || au.PTS != wantPTS[i] {
			t.Errorf("unit %d: expected stream %d pts %d, got stream %d pts %d",
				i, wantStreams[i], wantPTS[i], au.StreamIndex, au.PTS)
		}
		if au.StreamIndex == 1 && string(au.Data) != "audio" {
			t.Errorf("unit %d: unexpected audio payload %q", i, au.Data)
		}
		if au.StreamIndex == 0 && au.Data[0] != byte(i/2+1) {
			t.Errorf("unit %d: unexpected luma %d", i, au.Data[0])
		}
		c.Release(&au)
	}
	if err := c.ReadNext(&au); !errors.Is(err, ports.ErrEndOfStream) {
		t.Fatalf("expected ErrEndOfStream, got %v", err)
	}
}

func TestClose(t *testing.T) {
	c, fs := openBytes(t, buildFragmented(t, 16, 8))

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if fs.OpenFiles() != 0 {
		t.Errorf("expected no open files, got %d", fs.OpenFiles())
	}
	if _, err := c.Probe(); !errors.Is(err, ports.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestAppendAnnexB(t *testing.T) {
	avcc := []byte{0, 0, 0, 2, 0x65, 0xAA, 0, 0, 0, 1, 0x41}
	got, err := appendAnnexB([]byte{0xFF}, avcc)
	if err != nil {
		t.Fatalf("appendAnnexB failed: %v", err)
	}
	want := []byte{0xFF, 0, 0, 0, 1, 0x65, 0xAA, 0, 0, 0, 1, 0x41}
	if !bytes.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	// Truncated lengths leave dst untouched.
	got, err = appendAnnexB([]byte{0xFF}, []byte{0, 0, 0, 9, 1})
	if err == nil {
		t.Error("expected an error for truncated input")
	}
	if !bytes.Equal(got, []byte{0xFF}) {
		t.Errorf("expected dst unchanged, got %v", got)
	}
}

func TestCodecOf(t *testing.T) {
	tests := map[string]ports.Codec{
		"avc1": ports.CodecH264,
		"hev1": ports.CodecHEVC,
		"vp08": ports.CodecVP8,
		"av01": ports.CodecAV1,
		"mp4a": "aac",
		"xxxx": ports.CodecUnknown,
	}
	for entry, want := range tests {
		if got := codecOf(entry); got != want {
			t.Errorf("codecOf(%q) = %q, want %q", entry, got, want)
		}
	}
}

func TestProgressiveH264(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found")
	}
	path := filepath.Join(t.TempDir(), "clip.mp4")
	cmd := exec.Command("ffmpeg", "-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "testsrc=size=64x48:rate=10",
		"-f", "lavfi", "-i", "sine=frequency=440:sample_rate=48000",
		"-t", "1", "-c:v", "libx264", "-pix_fmt", "yuv420p", "-c:a", "aac", path)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Skipf("ffmpeg cannot encode h264: %v: %s", err, out)
	}

	c, err := New(osfilesystem.New()).Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer c.Close()

	info, err := c.Probe()
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	var video ports.StreamInfo
	for _, s := range info.Streams {
		if s.MediaType == ports.MediaTypeVideo {
			video = s
		}
	}
	if video.Codec != ports.CodecH264 || video.Width != 64 || video.Height != 48 {
		t.Fatalf("unexpected video stream %+v", video)
	}
	if !bytes.HasPrefix(video.Extradata, []byte{0, 0, 0, 1}) {
		t.Errorf("expected Annex B extradata")
	}

	var au ports.AccessUnit
	videoUnits, audioUnits := 0, 0
	for c.ReadNext(&au) == nil {
		if au.StreamIndex == video.Index {
			if videoUnits == 0 {
				if !au.Keyframe || !bytes.HasPrefix(au.Data, video.Extradata) {
					t.Errorf("expected first video unit to be a keyframe with parameter sets")
				}
			}
			videoUnits++
		} else {
			audioUnits++
		}
		c.Release(&au)
	}
	if videoUnits != 10 {
		t.Errorf("expected 10 video units, got %d", videoUnits)
	}
	if audioUnits == 0 {
		t.Error("expected interleaved audio units")
	}
}
