// Package mp4container reads progressive and fragmented MP4 files with mp4ff.
//
// All tracks are indexed. Progressive samples are returned in file offset
// order, which is the interleaving the muxer wrote; fragmented samples are
// returned fragment by fragment. H.264 samples are converted from AVCC to
// Annex B and sync samples carry the SPS/PPS from the avcC box.
package mp4container

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/Eyevinn/mp4ff/avc"
	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/user/vidloop/pkg/ports"
)

var (
	// ErrNoMoov is returned when the file carries no movie box.
	ErrNoMoov = errors.New("mp4container: no moov box found")
)

// Demuxer opens MP4 files.
type Demuxer struct {
	fs ports.FileSystem
}

// New creates an MP4 demuxer reading through fs.
func New(fs ports.FileSystem) *Demuxer {
	return &Demuxer{fs: fs}
}

// Open parses the box structure of an MP4 file and indexes its samples.
func (d *Demuxer) Open(path string) (ports.Container, error) {
	f, err := d.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ports.ErrOpen, path, err)
	}
	mp4File, err := mp4.DecodeFile(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: decode mp4: %v", ports.ErrOpen, path, err)
	}

	c := &Container{path: path, file: f}
	if err := c.index(mp4File); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: %v", ports.ErrOpen, path, err)
	}
	return c, nil
}

// Container is an opened MP4 file.
type Container struct {
	path       string
	file       ports.File
	fragmented bool
	tracks     []*track
	samples    []sample
	next       int
	buf        []byte
	out        []byte
	closed     bool
}

type track struct {
	id        uint32
	timescale uint32
	info      ports.StreamInfo
	avcc      bool   // samples are length-prefixed H.264 NAL units
	paramSets []byte // Annex B SPS/PPS prepended to sync samples
	bytes     int64
	duration  uint64
}

type sample struct {
	track  int
	offset int64  // file offset, progressive files only
	data   []byte // payload, fragmented files only
	size   uint32
	dts    uint64
	cto    int32
	sync   bool
}

func (c *Container) index(f *mp4.File) error {
	moov := f.Moov
	if moov == nil && f.Init != nil {
		moov = f.Init.Moov
	}
	if moov == nil {
		return ErrNoMoov
	}

	byID := make(map[uint32]int)
	for i, trak := range moov.Traks {
		t := newTrack(i, trak)
		byID[t.id] = i
		c.tracks = append(c.tracks, t)
	}

	c.fragmented = f.IsFragmented()
	if c.fragmented {
		if err := c.indexFragments(f, moov, byID); err != nil {
			return err
		}
	} else {
		for i, trak := range moov.Traks {
			if err := c.indexTrak(i, trak); err != nil {
				return fmt.Errorf("track %d: %w", c.tracks[i].id, err)
			}
		}
		sort.SliceStable(c.samples, func(a, b int) bool {
			return c.samples[a].offset < c.samples[b].offset
		})
	}

	for _, t := range c.tracks {
		if t.duration > 0 && t.timescale > 0 {
			t.info.BitRate = t.bytes * 8 * int64(t.timescale) / int64(t.duration)
		}
	}
	return nil
}

func newTrack(index int, trak *mp4.TrakBox) *track {
	t := &track{timescale: 1000}
	t.info = ports.StreamInfo{
		Index:       index,
		MediaType:   ports.MediaTypeData,
		Codec:       ports.CodecUnknown,
		PixelFormat: ports.PixelFormatUnknown,
	}
	if trak.Tkhd != nil {
		t.id = trak.Tkhd.TrackID
		// An enabled track is what players pick by default.
		t.info.Default = trak.Tkhd.Flags&0x1 != 0
		t.info.Width = int(trak.Tkhd.Width >> 16)
		t.info.Height = int(trak.Tkhd.Height >> 16)
	}
	if trak.Mdia == nil {
		return t
	}
	if trak.Mdia.Mdhd != nil && trak.Mdia.Mdhd.Timescale > 0 {
		t.timescale = trak.Mdia.Mdhd.Timescale
	}
	t.info.TimeBase = ports.Rational{Num: 1, Den: int(t.timescale)}
	if trak.Mdia.Hdlr != nil {
		t.info.MediaType = mediaTypeOf(trak.Mdia.Hdlr.HandlerType)
	}
	if trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil || trak.Mdia.Minf.Stbl.Stsd == nil {
		return t
	}

	for _, child := range trak.Mdia.Minf.Stbl.Stsd.Children {
		t.info.Codec = codecOf(child.Type())
		if vse, ok := child.(*mp4.VisualSampleEntryBox); ok {
			t.describeVisual(vse)
		}
		break
	}
	if t.info.MediaType == ports.MediaTypeVideo && t.info.Codec != ports.CodecUnknown {
		t.info.PixelFormat = ports.PixelFormatYUV420P
	}
	return t
}

func (t *track) describeVisual(vse *mp4.VisualSampleEntryBox) {
	if vse.Width > 0 && vse.Height > 0 {
		t.info.Width = int(vse.Width)
		t.info.Height = int(vse.Height)
	}
	if vse.AvcC != nil {
		t.avcc = true
		for _, sps := range vse.AvcC.SPSnalus {
			t.paramSets = append(t.paramSets, 0, 0, 0, 1)
			t.paramSets = append(t.paramSets, sps...)
		}
		for _, pps := range vse.AvcC.PPSnalus {
			t.paramSets = append(t.paramSets, 0, 0, 0, 1)
			t.paramSets = append(t.paramSets, pps...)
		}
		t.info.Extradata = t.paramSets
		if (t.info.Width == 0 || t.info.Height == 0) && len(vse.AvcC.SPSnalus) > 0 {
			if sps, err := avc.ParseSPSNALUnit(vse.AvcC.SPSnalus[0], false); err == nil {
				t.info.Width = int(sps.Width)
				t.info.Height = int(sps.Height)
			}
		}
	}
	if vse.HvcC != nil {
		for _, arr := range vse.HvcC.NaluArrays {
			for _, nalu := range arr.Nalus {
				t.info.Extradata = append(t.info.Extradata, 0, 0, 0, 1)
				t.info.Extradata = append(t.info.Extradata, nalu...)
			}
		}
	}
}

func mediaTypeOf(handler string) ports.MediaType {
	switch handler {
	case "vide":
		return ports.MediaTypeVideo
	case "soun":
		return ports.MediaTypeAudio
	case "subt", "text", "sbtl", "clcp":
		return ports.MediaTypeSubtitle
	default:
		return ports.MediaTypeData
	}
}

func codecOf(sampleEntry string) ports.Codec {
	switch sampleEntry {
	case "avc1", "avc3":
		return ports.CodecH264
	case "hvc1", "hev1":
		return ports.CodecHEVC
	case "vp08":
		return ports.CodecVP8
	case "vp09":
		return ports.CodecVP9
	case "av01":
		return ports.CodecAV1
	case "I420", "i420":
		return ports.CodecRawVideo
	case "mp4a":
		return "aac"
	case "Opus":
		return "opus"
	case "ac-3":
		return "ac3"
	case "ec-3":
		return "eac3"
	case "wvtt":
		return "webvtt"
	case "stpp":
		return "ttml"
	default:
		return ports.CodecUnknown
	}
}

// indexTrak lists the samples of a progressive track with their file offsets.
func (c *Container) indexTrak(ti int, trak *mp4.TrakBox) error {
	if trak.Mdia == nil || trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil {
		return nil
	}
	stbl := trak.Mdia.Minf.Stbl
	if stbl.Stsz == nil || stbl.Stsc == nil || (stbl.Stco == nil && stbl.Co64 == nil) {
		return nil
	}
	t := c.tracks[ti]

	syncSamples := make(map[uint32]bool)
	if stbl.Stss != nil {
		for _, nr := range stbl.Stss.SampleNumber {
			syncSamples[nr] = true
		}
	}

	prevChunk := -1
	var offset uint64
	var prevSize uint32
	for nr := uint32(1); nr <= stbl.Stsz.SampleNumber; nr++ {
		chunkNr, _, err := stbl.Stsc.ChunkNrFromSampleNr(int(nr))
		if err != nil {
			return fmt.Errorf("sample %d: %w", nr, err)
		}
		if chunkNr != prevChunk {
			offset, err = chunkOffset(stbl, chunkNr)
			if err != nil {
				return fmt.Errorf("sample %d: %w", nr, err)
			}
			prevChunk = chunkNr
		} else {
			offset += uint64(prevSize)
		}
		size := stbl.Stsz.GetSampleSize(int(nr))
		prevSize = size

		s := sample{
			track:  ti,
			offset: int64(offset),
			size:   size,
			sync:   stbl.Stss == nil || syncSamples[nr],
		}
		if stbl.Stts != nil {
			var dur uint32
			s.dts, dur = stbl.Stts.GetDecodeTime(nr)
			t.duration += uint64(dur)
		}
		if stbl.Ctts != nil {
			s.cto = stbl.Ctts.GetCompositionTimeOffset(nr)
		}
		t.bytes += int64(size)
		c.samples = append(c.samples, s)
	}
	return nil
}

func chunkOffset(stbl *mp4.StblBox, chunkNr int) (uint64, error) {
	if stbl.Stco != nil {
		return stbl.Stco.GetOffset(chunkNr)
	}
	if chunkNr < 1 || chunkNr > len(stbl.Co64.ChunkOffset) {
		return 0, fmt.Errorf("chunk %d out of range", chunkNr)
	}
	return stbl.Co64.ChunkOffset[chunkNr-1], nil
}

// indexFragments lists the samples of every fragment, track fragment by track
// fragment in moof order.
func (c *Container) indexFragments(f *mp4.File, moov *mp4.MoovBox, byID map[uint32]int) error {
	trexs := make(map[uint32]*mp4.TrexBox)
	if moov.Mvex != nil {
		for _, trex := range moov.Mvex.Trexs {
			trexs[trex.TrackID] = trex
		}
	}

	for _, seg := range f.Segments {
		for _, frag := range seg.Fragments {
			if frag.Moof == nil {
				continue
			}
			for _, traf := range frag.Moof.Trafs {
				trackID := traf.Tfhd.TrackID
				ti, ok := byID[trackID]
				if !ok {
					continue
				}
				// GetFullSamples picks the traf matching the trex track ID.
				trex, ok := trexs[trackID]
				if !ok {
					trex = &mp4.TrexBox{TrackID: trackID}
				}
				fullSamples, err := frag.GetFullSamples(trex)
				if err != nil {
					return fmt.Errorf("fragment of track %d: %w", trackID, err)
				}
				c.addFragmentSamples(ti, fullSamples)
			}
		}
	}
	return nil
}

func (c *Container) addFragmentSamples(ti int, fullSamples []mp4.FullSample) {
	t := c.tracks[ti]
	for _, fs := range fullSamples {
		c.samples = append(c.samples, sample{
			track: ti,
			data:  fs.Data,
			size:  fs.Size,
			dts:   fs.DecodeTime,
			cto:   fs.CompositionTimeOffset,
			sync:  !mp4.DecodeSampleFlags(fs.Flags).SampleIsNonSync,
		})
		t.bytes += int64(fs.Size)
		t.duration += uint64(fs.Dur)
	}
}

// Probe describes every track of the file.
func (c *Container) Probe() (ports.ContainerInfo, error) {
	if c.closed {
		return ports.ContainerInfo{}, ports.ErrClosed
	}
	if len(c.tracks) == 0 {
		return ports.ContainerInfo{}, fmt.Errorf("%w: %s has no tracks", ports.ErrProbe, c.path)
	}

	info := ports.ContainerInfo{Path: c.path, Format: "mp4"}
	for _, t := range c.tracks {
		if ms := int64(t.duration * 1000 / uint64(t.timescale)); ms > info.DurationMs {
			info.DurationMs = ms
		}
		info.Streams = append(info.Streams, t.info)
	}
	return info, nil
}

// ReadNext returns the next sample in container order.
func (c *Container) ReadNext(au *ports.AccessUnit) error {
	if c.closed {
		return ports.ErrClosed
	}
	if c.next >= len(c.samples) {
		return ports.ErrEndOfStream
	}
	s := c.samples[c.next]
	c.next++

	data := s.data
	if data == nil {
		if cap(c.buf) < int(s.size) {
			c.buf = make([]byte, s.size)
		}
		data = c.buf[:s.size]
		if _, err := c.file.Seek(s.offset, io.SeekStart); err != nil {
			return fmt.Errorf("%w: %s: seek to sample: %v", ports.ErrEndOfStream, c.path, err)
		}
		if _, err := io.ReadFull(c.file, data); err != nil {
			return fmt.Errorf("%w: %s: read sample: %v", ports.ErrEndOfStream, c.path, err)
		}
	}

	t := c.tracks[s.track]
	if t.avcc {
		c.out = c.out[:0]
		if s.sync {
			c.out = append(c.out, t.paramSets...)
		}
		// A damaged sample goes on without its slices so the decoder drops
		// that one unit and reading continues.
		c.out, _ = appendAnnexB(c.out, data)
		data = c.out
	}

	au.StreamIndex = s.track
	au.Data = data
	au.DTS = int64(s.dts)
	au.PTS = int64(s.dts) + int64(s.cto)
	au.Keyframe = s.sync
	return nil
}

// appendAnnexB converts length-prefixed NAL units to start-code prefixed
// ones and appends them to dst. mp4ff only accepts avcC records with 4-byte
// NAL lengths, so that is the only prefix size handled. A sample with broken
// length fields contributes nothing and the error is returned.
func appendAnnexB(dst, data []byte) ([]byte, error) {
	nalus, err := avc.GetNalusFromSample(data)
	if err != nil {
		return dst, err
	}
	for _, nalu := range nalus {
		dst = append(dst, 0, 0, 0, 1)
		dst = append(dst, nalu...)
	}
	return dst, nil
}

// Release drops the reference to the sample data. The read buffers are
// reused by the next ReadNext.
func (c *Container) Release(au *ports.AccessUnit) {
	au.Reset()
}

// SeekStart rewinds to the first sample.
func (c *Container) SeekStart() error {
	if c.closed {
		return ports.ErrClosed
	}
	c.next = 0
	return nil
}

// Close closes the file.
func (c *Container) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.samples = nil
	return c.file.Close()
}

var (
	_ ports.Demuxer   = (*Demuxer)(nil)
	_ ports.Container = (*Container)(nil)
)
