package vp8decoder

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/user/vidloop/pkg/adapters/ivfcontainer"
	"github.com/user/vidloop/pkg/adapters/osfilesystem"
	"github.com/user/vidloop/pkg/ports"
)

func newSession(t *testing.T, w, h int) ports.DecoderSession {
	t.Helper()
	s, err := New().NewSession(ports.StreamConfig{
		MediaType: ports.MediaTypeVideo,
		Codec:     ports.CodecVP8,
		Width:     w,
		Height:    h,
	})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	return s
}

// keyframeHeader returns a key frame tag, start code and 16x16 size with no
// partition data.
func keyframeHeader() []byte {
	return []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a, 16, 0, 16, 0}
}

func TestNewSession_WrongCodec(t *testing.T) {
	_, err := New().NewSession(ports.StreamConfig{Codec: ports.CodecH264})
	if !errors.Is(err, ports.ErrUnsupportedCodec) {
		t.Errorf("expected ErrUnsupportedCodec, got %v", err)
	}
}

func TestSubmit_InterFrame(t *testing.T) {
	s := newSession(t, 16, 16)
	defer s.Close()

	err := s.Submit(&ports.AccessUnit{Data: []byte{0x01, 0x00, 0x00}})
	if !errors.Is(err, ports.ErrDecode) || !errors.Is(err, ErrInterFrame) {
		t.Fatalf("expected inter frame ErrDecode, got %v", err)
	}
	if _, err := s.Receive(); !errors.Is(err, ports.ErrNoFrameYet) {
		t.Errorf("expected ErrNoFrameYet, got %v", err)
	}
}

func TestSubmit_Truncated(t *testing.T) {
	s := newSession(t, 16, 16)
	defer s.Close()

	if err := s.Submit(&ports.AccessUnit{Data: []byte{0x10}}); !errors.Is(err, ports.ErrDecode) {
		t.Errorf("expected ErrDecode for truncated header, got %v", err)
	}
	if err := s.Submit(&ports.AccessUnit{Data: keyframeHeader()}); !errors.Is(err, ports.ErrDecode) {
		t.Errorf("expected ErrDecode for missing partitions, got %v", err)
	}
}

func TestSubmit_SizeMismatch(t *testing.T) {
	s := newSession(t, 32, 32)
	defer s.Close()

	if err := s.Submit(&ports.AccessUnit{Data: keyframeHeader()}); !errors.Is(err, ports.ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
}

func TestDecodeEncodedClip(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found")
	}
	path := filepath.Join(t.TempDir(), "clip.ivf")
	cmd := exec.Command("ffmpeg", "-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "testsrc=size=64x48:rate=10",
		"-frames:v", "3", "-c:v", "libvpx", "-g", "1", "-f", "ivf", path)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Skipf("ffmpeg cannot encode vp8: %v: %s", err, out)
	}
	if _, err := os.Stat(path); err != nil {
		t.Skipf("no clip written: %v", err)
	}

	c, err := ivfcontainer.New(osfilesystem.New()).Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer c.Close()

	s := newSession(t, 64, 48)
	defer s.Close()

	var au ports.AccessUnit
	decoded := 0
	for {
		if err := c.ReadNext(&au); err != nil {
			break
		}
		if err := s.Submit(&au); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		f, err := s.Receive()
		if err != nil {
			t.Fatalf("Receive failed: %v", err)
		}
		if f.Width != 64 || f.Height != 48 || f.Planes[1].Width != 32 || f.Planes[1].Height != 24 {
			t.Errorf("unexpected frame geometry %dx%d", f.Width, f.Height)
		}
		decoded++
		c.Release(&au)
	}
	if decoded != 3 {
		t.Errorf("expected 3 frames, got %d", decoded)
	}
}
