package annexbcontainer

import (
	"bytes"
	"errors"
	"testing"

	"github.com/user/vidloop/pkg/mocks"
	"github.com/user/vidloop/pkg/ports"
)

var (
	// Baseline profile, 64x64, no VUI.
	spsNAL = []byte{0x67, 0x42, 0xC0, 0x0A, 0xDA, 0x10, 0x99}
	ppsNAL = []byte{0x68, 0xCE, 0x38, 0x80}
	idrNAL = []byte{0x65, 0x88, 0x84, 0x21}
	pNAL   = []byte{0x41, 0x9A, 0x02, 0x03}
)

func stream(nals ...[]byte) []byte {
	var buf bytes.Buffer
	for _, n := range nals {
		buf.Write([]byte{0, 0, 0, 1})
		buf.Write(n)
	}
	return buf.Bytes()
}

func open(t *testing.T, data []byte) (ports.Container, *mocks.FileSystem) {
	t.Helper()
	fs := mocks.NewFileSystem()
	fs.AddFile("clip.h264", data)
	c, err := New(fs).Open("clip.h264")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return c, fs
}

func TestOpen_NoStartCode(t *testing.T) {
	fs := mocks.NewFileSystem()
	fs.AddFile("clip.h264", []byte("garbage"))

	if _, err := New(fs).Open("clip.h264"); !errors.Is(err, ports.ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if fs.OpenFiles() != 0 {
		t.Errorf("expected file closed, %d open", fs.OpenFiles())
	}
}

func TestProbe(t *testing.T) {
	c, _ := open(t, stream(spsNAL, ppsNAL, idrNAL, pNAL))
	defer c.Close()

	info, err := c.Probe()
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	s := info.Streams[0]
	if s.Codec != ports.CodecH264 || s.Width != 64 || s.Height != 64 {
		t.Errorf("unexpected stream %+v", s)
	}
	want := stream(spsNAL, ppsNAL)
	if !bytes.Equal(s.Extradata, want) {
		t.Errorf("expected extradata %x, got %x", want, s.Extradata)
	}
}

func TestProbe_NoSPS(t *testing.T) {
	c, _ := open(t, stream(idrNAL, pNAL))
	defer c.Close()

	if _, err := c.Probe(); !errors.Is(err, ports.ErrProbe) {
		t.Errorf("expected ErrProbe, got %v", err)
	}
}

func TestReadNext_GroupsAccessUnits(t *testing.T) {
	c, _ := open(t, stream(spsNAL, ppsNAL, idrNAL, pNAL, pNAL, spsNAL, ppsNAL, idrNAL))
	defer c.Close()

	if _, err := c.Probe(); err != nil {
		t.Fatalf("Probe failed: %v", err)
	}

	want := []struct {
		data     []byte
		keyframe bool
	}{
		{stream(spsNAL, ppsNAL, idrNAL), true},
		{stream(pNAL), false},
		{stream(pNAL), false},
		{stream(spsNAL, ppsNAL, idrNAL), true},
	}

	var au ports.AccessUnit
	for i, w := range want {
		if err := c.ReadNext(&au); err != nil {
			t.Fatalf("ReadNext %d failed: %v", i, err)
		}
		if !bytes.Equal(au.Data, w.data) {
			t.Errorf("unit %d: expected %x, got %x", i, w.data, au.Data)
		}
		if au.Keyframe != w.keyframe || au.PTS != int64(i) {
			t.Errorf("unit %d: keyframe %t pts %d", i, au.Keyframe, au.PTS)
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
	if !au.Keyframe || au.PTS != 0 {
		t.Errorf("expected first unit after seek, got keyframe %t pts %d", au.Keyframe, au.PTS)
	}
}

func TestClose(t *testing.T) {
	c, fs := open(t, stream(spsNAL))
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if fs.OpenFiles() != 0 {
		t.Errorf("expected no open files, got %d", fs.OpenFiles())
	}
}
