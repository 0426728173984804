// Package planar lays out YUV 4:2:0 images in memory and converts between
// pipeline frames and image.YCbCr.
package planar

import (
	"fmt"
	"image"

	"github.com/user/vidloop/pkg/ports"
)

// MaxDimension bounds the width and height of a buffer.
const MaxDimension = 16384

// PlaneLayout locates one plane inside a contiguous image.
type PlaneLayout struct {
	Offset int
	Stride int
	Width  int
	Height int
}

// Layout is the tightly packed I420 layout of a width x height image:
// Y, then U, then V, each plane stored without row padding.
type Layout struct {
	Width  int
	Height int
	Planes [3]PlaneLayout
	size   int
}

// NewLayout computes the I420 layout of an image.
func NewLayout(width, height int) (Layout, error) {
	if width <= 0 || height <= 0 || width > MaxDimension || height > MaxDimension {
		return Layout{}, fmt.Errorf("%w: invalid dimensions %dx%d", ports.ErrAlloc, width, height)
	}
	cw, ch := ports.ChromaSize(width, height)
	l := Layout{Width: width, Height: height}
	l.Planes[0] = PlaneLayout{Offset: 0, Stride: width, Width: width, Height: height}
	l.Planes[1] = PlaneLayout{Offset: width * height, Stride: cw, Width: cw, Height: ch}
	l.Planes[2] = PlaneLayout{Offset: width*height + cw*ch, Stride: cw, Width: cw, Height: ch}
	l.size = width*height + 2*cw*ch
	return l, nil
}

// Size returns the number of bytes of one image.
func (l Layout) Size() int {
	return l.size
}

// Bind points the planes of f into data, which must hold Size bytes.
// No pixels are copied.
func (l Layout) Bind(data []byte, f *ports.Frame) error {
	if len(data) != l.size {
		return fmt.Errorf("%w: have %d bytes, want %d for %dx%d yuv420p",
			ports.ErrDecode, len(data), l.size, l.Width, l.Height)
	}
	f.Width = l.Width
	f.Height = l.Height
	f.PixelFormat = ports.PixelFormatYUV420P
	for i, p := range l.Planes {
		f.Planes[i] = ports.Plane{
			Data:   data[p.Offset : p.Offset+p.Stride*p.Height],
			Stride: p.Stride,
			Width:  p.Width,
			Height: p.Height,
		}
	}
	return nil
}

// Buffer is a contiguous destination image owned by one open pipeline.
type Buffer struct {
	layout Layout
	data   []byte
	frame  ports.Frame
}

// NewBuffer allocates a destination buffer. Only yuv420p is supported;
// any other format or invalid dimensions fail with ErrAlloc.
func NewBuffer(width, height int, format ports.PixelFormat) (*Buffer, error) {
	if format != ports.PixelFormatYUV420P {
		return nil, fmt.Errorf("%w: unsupported destination format %q", ports.ErrAlloc, format)
	}
	l, err := NewLayout(width, height)
	if err != nil {
		return nil, err
	}
	b := &Buffer{layout: l, data: make([]byte, l.Size())}
	if err := l.Bind(b.data, &b.frame); err != nil {
		return nil, err
	}
	return b, nil
}

// Layout returns the buffer layout.
func (b *Buffer) Layout() Layout {
	return b.layout
}

// Bytes returns the packed image.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Frame returns a frame backed by the buffer.
func (b *Buffer) Frame() *ports.Frame {
	return &b.frame
}

// CopyFrom copies the pixels of src into the buffer, honouring src strides,
// and carries over its timestamp and stream.
func (b *Buffer) CopyFrom(src *ports.Frame) error {
	if src.Width != b.layout.Width || src.Height != b.layout.Height {
		return fmt.Errorf("%w: frame %dx%d does not match buffer %dx%d",
			ports.ErrDecode, src.Width, src.Height, b.layout.Width, b.layout.Height)
	}
	if src.PixelFormat != ports.PixelFormatYUV420P {
		return fmt.Errorf("%w: cannot copy %q frame", ports.ErrDecode, src.PixelFormat)
	}
	for i := range b.frame.Planes {
		copyPlane(&b.frame.Planes[i], &src.Planes[i])
	}
	b.frame.PTS = src.PTS
	b.frame.StreamIndex = src.StreamIndex
	b.frame.MediaType = src.MediaType
	return nil
}

func copyPlane(dst, src *ports.Plane) {
	rows := min(dst.Height, src.Height)
	cols := min(dst.Width, src.Width)
	for y := 0; y < rows; y++ {
		copy(dst.Data[y*dst.Stride:y*dst.Stride+cols], src.Data[y*src.Stride:y*src.Stride+cols])
	}
}

// Clone returns a deep copy of f with tightly packed planes.
func Clone(f *ports.Frame) *ports.Frame {
	out := *f
	for i, p := range f.Planes {
		data := make([]byte, p.Width*p.Height)
		np := ports.Plane{Data: data, Stride: p.Width, Width: p.Width, Height: p.Height}
		copyPlane(&np, &f.Planes[i])
		out.Planes[i] = np
	}
	return &out
}

// YCbCr returns f as an image.YCbCr. The pixels are shared when both chroma
// planes have the same stride, copied otherwise.
func YCbCr(f *ports.Frame) (*image.YCbCr, error) {
	if f.PixelFormat != ports.PixelFormatYUV420P {
		return nil, fmt.Errorf("%w: cannot view %q frame as YCbCr", ports.ErrDecode, f.PixelFormat)
	}
	if f.Planes[1].Stride != f.Planes[2].Stride {
		f = Clone(f)
	}
	return &image.YCbCr{
		Y:              f.Planes[0].Data,
		Cb:             f.Planes[1].Data,
		Cr:             f.Planes[2].Data,
		YStride:        f.Planes[0].Stride,
		CStride:        f.Planes[1].Stride,
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, f.Width, f.Height),
	}, nil
}

// BindYCbCr points the planes of f at a 4:2:0 image without copying.
func BindYCbCr(img *image.YCbCr, f *ports.Frame) error {
	if img.SubsampleRatio != image.YCbCrSubsampleRatio420 {
		return fmt.Errorf("%w: unsupported subsampling %v", ports.ErrDecode, img.SubsampleRatio)
	}
	w, h := img.Rect.Dx(), img.Rect.Dy()
	cw, ch := ports.ChromaSize(w, h)
	yOff := img.YOffset(img.Rect.Min.X, img.Rect.Min.Y)
	cOff := img.COffset(img.Rect.Min.X, img.Rect.Min.Y)
	f.Width = w
	f.Height = h
	f.PixelFormat = ports.PixelFormatYUV420P
	f.Planes[0] = ports.Plane{Data: img.Y[yOff:], Stride: img.YStride, Width: w, Height: h}
	f.Planes[1] = ports.Plane{Data: img.Cb[cOff:], Stride: img.CStride, Width: cw, Height: ch}
	f.Planes[2] = ports.Plane{Data: img.Cr[cOff:], Stride: img.CStride, Width: cw, Height: ch}
	return nil
}
