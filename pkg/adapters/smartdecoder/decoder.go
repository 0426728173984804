// Package smartdecoder resolves a decoder for a stream from the backends
// available on this machine.
package smartdecoder

import (
	"errors"
	"fmt"

	"github.com/user/vidloop/pkg/adapters/ffmpegdecoder"
	"github.com/user/vidloop/pkg/adapters/libav"
	"github.com/user/vidloop/pkg/adapters/rawdecoder"
	"github.com/user/vidloop/pkg/adapters/vp8decoder"
	"github.com/user/vidloop/pkg/ports"
)

// Backend selects the family of decoders to use.
type Backend string

const (
	// BackendAuto tries the native decoders, then libav.
	BackendAuto Backend = "auto"
	// BackendNative uses pure Go decoders and the ffmpeg process.
	BackendNative Backend = "native"
	// BackendLibav uses libavcodec only.
	BackendLibav Backend = "libav"
)

// ErrUnknownBackend is returned for an unrecognised backend name.
var ErrUnknownBackend = errors.New("smartdecoder: unknown backend")

// ParseBackend parses a backend name. An empty name means auto.
func ParseBackend(s string) (Backend, error) {
	switch Backend(s) {
	case "", BackendAuto:
		return BackendAuto, nil
	case BackendNative, BackendLibav:
		return Backend(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBackend, s)
}

// Options configures the provider.
type Options struct {
	Backend Backend

	// FFmpegPath is an optional custom path to the ffmpeg binary.
	FFmpegPath string

	Logger ports.Logger
}

// Info describes the decoder chosen for a stream.
type Info struct {
	Codec   ports.Codec
	Decoder string
}

type entry struct {
	name    string
	factory ports.DecoderFactory
	libav   bool
}

// Provider implements ports.DecoderProvider over the registered factories.
type Provider struct {
	entries []entry
}

// New creates a provider for the backend.
//
// The selection order:
//   - native: rawvideo passthrough, VP8 (x/image), H.264/HEVC (ffmpeg process)
//   - libav: anything libavcodec decodes
//   - auto: native first, libav first for streams probed by libav
func New(opts Options) (*Provider, error) {
	backend, err := ParseBackend(string(opts.Backend))
	if err != nil {
		return nil, err
	}

	p := &Provider{}
	if backend != BackendLibav {
		p.Register("raw", rawdecoder.New())
		p.Register("vp8", vp8decoder.New())
		p.Register("ffmpeg", ffmpegdecoder.New(ffmpegdecoder.Options{
			FFmpegPath: opts.FFmpegPath,
			Logger:     opts.Logger,
		}))
	}
	if backend != BackendNative {
		p.entries = append(p.entries, entry{name: "libav", factory: libav.NewFactory(), libav: true})
	}
	return p, nil
}

// Register appends a factory. Earlier factories win.
func (p *Provider) Register(name string, f ports.DecoderFactory) {
	p.entries = append(p.entries, entry{name: name, factory: f})
}

// Decoders returns the registered factory names in lookup order.
func (p *Provider) Decoders() []string {
	names := make([]string, 0, len(p.entries))
	for _, e := range p.entries {
		names = append(names, e.name)
	}
	return names
}

func (p *Provider) find(stream ports.StreamInfo) (entry, bool) {
	// Packets from libav containers keep their container framing, which
	// only libavcodec understands for every codec.
	if stream.Params != nil {
		for _, e := range p.entries {
			if e.libav && e.factory.Supports(stream) {
				return e, true
			}
		}
	}
	for _, e := range p.entries {
		if e.factory.Supports(stream) {
			return e, true
		}
	}
	return entry{}, false
}

// Lookup returns the first factory that supports the stream.
func (p *Provider) Lookup(stream ports.StreamInfo) (ports.DecoderFactory, error) {
	e, ok := p.find(stream)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrUnsupportedCodec, stream.Codec)
	}
	return e.factory, nil
}

// Describe reports which decoder Lookup would choose.
func (p *Provider) Describe(stream ports.StreamInfo) (Info, error) {
	e, ok := p.find(stream)
	if !ok {
		return Info{}, fmt.Errorf("%w: %s", ports.ErrUnsupportedCodec, stream.Codec)
	}
	return Info{Codec: stream.Codec, Decoder: e.name}, nil
}

// Ensure Provider implements ports.DecoderProvider
var _ ports.DecoderProvider = (*Provider)(nil)
