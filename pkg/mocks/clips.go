package mocks

import (
	"bytes"
	"encoding/binary"
)

// IVFClip builds an IVF file with a 1/fps time base and one frame per
// payload, numbered from pts 0.
func IVFClip(fourcc string, width, height, fps int, frames ...[]byte) []byte {
	var buf bytes.Buffer
	header := make([]byte, 32)
	copy(header[0:4], "DKIF")
	binary.LittleEndian.PutUint16(header[4:], 0)  // version
	binary.LittleEndian.PutUint16(header[6:], 32) // header size
	copy(header[8:12], fourcc)
	binary.LittleEndian.PutUint16(header[12:], uint16(width))
	binary.LittleEndian.PutUint16(header[14:], uint16(height))
	binary.LittleEndian.PutUint32(header[16:], uint32(fps))
	binary.LittleEndian.PutUint32(header[20:], 1)
	binary.LittleEndian.PutUint32(header[24:], uint32(len(frames)))
	buf.Write(header)

	for i, f := range frames {
		fh := make([]byte, 12)
		binary.LittleEndian.PutUint32(fh[0:], uint32(len(f)))
		binary.LittleEndian.PutUint64(fh[4:], uint64(i))
		buf.Write(fh)
		buf.Write(f)
	}
	return buf.Bytes()
}

// I420Frame returns a packed yuv420p picture with every luma sample set to
// y and every chroma sample set to c.
func I420Frame(width, height int, y, c byte) []byte {
	cw, ch := (width+1)/2, (height+1)/2
	data := make([]byte, width*height+2*cw*ch)
	for i := range data {
		if i < width*height {
			data[i] = y
		} else {
			data[i] = c
		}
	}
	return data
}
