//go:build unix

package ffmpegdecoder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/user/vidloop/pkg/planar"
	"github.com/user/vidloop/pkg/ports"
)

const platformSupported = true

// maxStderrTail bounds how much of ffmpeg's stderr is logged.
const maxStderrTail = 2048

var errNotRunning = fmt.Errorf("%w: ffmpeg is not running", ports.ErrDecode)

// Session is one running ffmpeg process.
type Session struct {
	path   string
	format string
	cfg    ports.StreamConfig
	opts   Options
	logger ports.Logger

	cmd    *exec.Cmd
	stdin  *os.File
	stdout *os.File
	stderr *os.File

	buf     *planar.Buffer
	frame   ports.Frame
	scratch []byte

	pending    []byte  // input not yet accepted by ffmpeg
	out        []byte  // output not yet returned as frames
	pts        []int64 // presentation times awaiting a picture
	sentParams bool
	draining   bool
	eof        bool
	closed     bool
}

func newSession(path, format string, cfg ports.StreamConfig, opts Options, log ports.Logger) (ports.DecoderSession, error) {
	buf, err := planar.NewBuffer(cfg.Width, cfg.Height, ports.PixelFormatYUV420P)
	if err != nil {
		return nil, err
	}
	s := &Session{
		path:    path,
		format:  format,
		cfg:     cfg,
		opts:    opts,
		logger:  log,
		buf:     buf,
		scratch: make([]byte, 64*1024),
	}
	if err := s.start(); err != nil {
		return nil, err
	}
	log.Debug("Decoder opened: %s %dx%d", cfg.Codec, cfg.Width, cfg.Height)
	return s, nil
}

func (s *Session) args() []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-fflags", "nobuffer",
		"-probesize", "32",
		"-analyzeduration", "0",
		"-f", s.format,
		"-i", "pipe:0",
		"-an",
		"-fps_mode", "passthrough",
		"-s", fmt.Sprintf("%dx%d", s.cfg.Width, s.cfg.Height),
		"-f", "rawvideo",
		"-pix_fmt", "yuv420p",
		"pipe:1",
	}
}

// start launches ffmpeg with pipes owned by the session.
func (s *Session) start() error {
	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("%w: stdin pipe: %v", ports.ErrAlloc, err)
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		stdinR.Close()
		stdinW.Close()
		return fmt.Errorf("%w: stdout pipe: %v", ports.ErrAlloc, err)
	}
	stderr, err := os.CreateTemp("", "vidloop-ffmpeg-*.log")
	if err != nil {
		stdinR.Close()
		stdinW.Close()
		stdoutR.Close()
		stdoutW.Close()
		return fmt.Errorf("%w: stderr file: %v", ports.ErrAlloc, err)
	}

	cmd := exec.Command(s.path, s.args()...)
	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		stdinR.Close()
		stdinW.Close()
		stdoutR.Close()
		stdoutW.Close()
		stderr.Close()
		os.Remove(stderr.Name())
		return fmt.Errorf("%w: start ffmpeg: %v", ports.ErrAlloc, err)
	}
	// The child holds its own copies.
	stdinR.Close()
	stdoutW.Close()

	s.cmd = cmd
	s.stdin = stdinW
	s.stdout = stdoutR
	s.stderr = stderr
	s.pending = s.pending[:0]
	s.out = s.out[:0]
	s.pts = s.pts[:0]
	s.sentParams = false
	s.draining = false
	s.eof = false
	return nil
}

// stop ends the process and releases its pipes.
func (s *Session) stop() {
	if s.cmd == nil {
		return
	}
	if s.stdin != nil {
		s.stdin.Close()
		s.stdin = nil
	}
	s.stdout.Close()
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.cmd.Wait()
	s.cmd = nil

	if tail := s.stderrTail(); tail != "" {
		s.logger.Debug("ffmpeg stderr: %s", tail)
	}
	s.stderr.Close()
	os.Remove(s.stderr.Name())
}

func (s *Session) stderrTail() string {
	info, err := s.stderr.Stat()
	if err != nil || info.Size() == 0 {
		return ""
	}
	offset := info.Size() - maxStderrTail
	if offset < 0 {
		offset = 0
	}
	data := make([]byte, info.Size()-offset)
	n, _ := s.stderr.ReadAt(data, offset)
	return strings.TrimSpace(string(data[:n]))
}

// Submit writes one unit to ffmpeg. A nil unit closes stdin so ffmpeg
// flushes its remaining pictures.
func (s *Session) Submit(au *ports.AccessUnit) error {
	if s.closed {
		return ports.ErrClosed
	}
	if s.cmd == nil {
		return errNotRunning
	}
	if s.draining {
		return fmt.Errorf("%w: ffmpeg session is draining", ports.ErrDecode)
	}

	if au == nil {
		s.draining = true
		if err := s.writePending(s.opts.DrainTimeout); err != nil {
			return err
		}
		s.stdin.Close()
		s.stdin = nil
		return nil
	}

	if !s.sentParams && len(s.cfg.Extradata) > 0 {
		s.pending = append(s.pending, s.cfg.Extradata...)
	}
	s.sentParams = true
	s.pending = append(s.pending, au.Data...)
	s.pts = append(s.pts, au.PTS)
	return s.writePending(s.opts.DrainTimeout)
}

// writePending writes queued input, reading output between attempts so
// ffmpeg never blocks on a full stdout pipe.
func (s *Session) writePending(limit time.Duration) error {
	deadline := time.Now().Add(limit)
	for len(s.pending) > 0 {
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %v", ports.ErrDecode, ErrStalled)
		}
		s.stdin.SetWriteDeadline(time.Now().Add(s.opts.PollTimeout))
		n, err := s.stdin.Write(s.pending)
		s.pending = s.pending[:copy(s.pending, s.pending[n:])]
		if err == nil {
			continue
		}
		if !errors.Is(err, os.ErrDeadlineExceeded) {
			return fmt.Errorf("%w: write to ffmpeg: %v", ports.ErrDecode, err)
		}
		if err := s.fill(len(s.out)+1, s.opts.PollTimeout); err != nil && !errors.Is(err, os.ErrDeadlineExceeded) {
			return fmt.Errorf("%w: read from ffmpeg: %v", ports.ErrDecode, err)
		}
	}
	return nil
}

// fill reads stdout until out holds want bytes, the deadline passes or
// ffmpeg closes its output.
func (s *Session) fill(want int, timeout time.Duration) error {
	s.stdout.SetReadDeadline(time.Now().Add(timeout))
	for len(s.out) < want {
		n, err := s.stdout.Read(s.scratch)
		s.out = append(s.out, s.scratch[:n]...)
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.eof = true
			}
			return err
		}
	}
	return nil
}

// Receive returns the next picture from ffmpeg's output.
func (s *Session) Receive() (*ports.Frame, error) {
	if s.closed {
		return nil, ports.ErrClosed
	}

	if s.cmd == nil {
		return nil, errNotRunning
	}

	size := s.buf.Layout().Size()
	if len(s.out) < size && !s.eof {
		timeout := s.opts.PollTimeout
		if s.draining {
			timeout = s.opts.DrainTimeout
		}
		err := s.fill(size, timeout)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, fmt.Errorf("%w: read from ffmpeg: %v", ports.ErrDecode, err)
		}
	}

	if len(s.out) < size {
		if s.draining {
			return nil, ports.ErrEndOfStream
		}
		if s.eof {
			return nil, fmt.Errorf("%w: ffmpeg exited", ports.ErrDecode)
		}
		return nil, ports.ErrNoFrameYet
	}

	copy(s.buf.Bytes(), s.out[:size])
	s.out = s.out[:copy(s.out, s.out[size:])]

	s.frame = *s.buf.Frame()
	s.frame.PTS = s.nextPTS()
	s.frame.StreamIndex = s.cfg.StreamIndex
	s.frame.MediaType = ports.MediaTypeVideo
	return &s.frame, nil
}

// nextPTS pops the smallest pending timestamp; pictures leave the decoder
// in presentation order.
func (s *Session) nextPTS() int64 {
	if len(s.pts) == 0 {
		return 0
	}
	sort.Slice(s.pts, func(i, j int) bool { return s.pts[i] < s.pts[j] })
	pts := s.pts[0]
	s.pts = s.pts[:copy(s.pts, s.pts[1:])]
	return pts
}

// Reset restarts ffmpeg, discarding everything in flight.
func (s *Session) Reset() error {
	if s.closed {
		return ports.ErrClosed
	}
	s.logger.Debug("Restarting ffmpeg")
	s.stop()
	return s.start()
}

// Close stops ffmpeg.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.stop()
}

var _ ports.DecoderSession = (*Session)(nil)
