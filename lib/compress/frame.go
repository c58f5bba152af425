/*package compress contains nbx's zstd-based encodings: the message frames used
by the network transport and the quantized, delta-encoded checkpoint files
written at the end of a run. It also has the small random number generator
used to build initial conditions and to dither dequantized values.*/
package compress

/* frame.go contains the framing for compressed messages. Each frame is

    tag                int32
    uncompressed size  int64
    compressed size    int64
    zstd payload

all little-endian. A frame with an uncompressed size of zero has no payload. */

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/DataDog/zstd"
)

// Level is the zstd compression level used for frames. Messages are sent
// once, so a fast level is preferred over a small one.
const Level = 1

// MaxFrameSize is the largest uncompressed payload a frame may carry.
const MaxFrameSize = 1 << 34

// FrameWriter writes frames to an io.Writer. It keeps an internal buffer so
// repeated writes don't allocate. It is not safe for concurrent use.
type FrameWriter struct {
	wr  io.Writer
	buf []byte
}

// NewFrameWriter creates a FrameWriter around wr.
func NewFrameWriter(wr io.Writer) *FrameWriter {
	return &FrameWriter{wr: wr}
}

// Write writes payload as a single frame with the given tag. It returns the
// number of compressed bytes written after the header.
func (f *FrameWriter) Write(tag int32, payload []byte) (int, error) {
	var err error
	f.buf = f.buf[:0]
	if len(payload) > 0 {
		f.buf, err = zstd.CompressLevel(f.buf[:cap(f.buf)], payload, Level)
		if err != nil {
			return 0, err
		}
	}

	hd := struct {
		Tag        int32
		Size, Comp int64
	}{tag, int64(len(payload)), int64(len(f.buf))}
	if err = binary.Write(f.wr, binary.LittleEndian, &hd); err != nil {
		return 0, err
	}
	if _, err = f.wr.Write(f.buf); err != nil {
		return 0, err
	}
	return len(f.buf), nil
}

// FrameReader reads frames written by a FrameWriter. It is not safe for
// concurrent use.
type FrameReader struct {
	rd  io.Reader
	buf []byte
}

// NewFrameReader creates a FrameReader around rd.
func NewFrameReader(rd io.Reader) *FrameReader {
	return &FrameReader{rd: rd}
}

// Read reads the next frame. The returned payload is newly allocated and
// owned by the caller.
func (f *FrameReader) Read() (tag int32, payload []byte, err error) {
	hd := struct {
		Tag        int32
		Size, Comp int64
	}{}
	if err = binary.Read(f.rd, binary.LittleEndian, &hd); err != nil {
		return 0, nil, err
	}
	if hd.Size < 0 || hd.Size > MaxFrameSize || hd.Comp < 0 {
		return 0, nil, fmt.Errorf("Frame header claims %d bytes compressed "+
			"to %d, which is not a valid frame.", hd.Size, hd.Comp)
	}
	if hd.Size == 0 {
		return hd.Tag, []byte{}, nil
	}

	f.buf = resizeBytes(f.buf, int(hd.Comp))
	if _, err = io.ReadFull(f.rd, f.buf); err != nil {
		return 0, nil, err
	}
	payload, err = zstd.Decompress(make([]byte, hd.Size), f.buf)
	if err != nil {
		return 0, nil, err
	}
	if int64(len(payload)) != hd.Size {
		return 0, nil, fmt.Errorf("Frame decompressed to %d bytes, but its "+
			"header claims %d.", len(payload), hd.Size)
	}
	return hd.Tag, payload, nil
}

// resizeBytes returns b with length n, reusing its storage when possible.
func resizeBytes(b []byte, n int) []byte {
	if cap(b) >= n {
		return b[:n]
	}
	b = b[:cap(b)]
	return append(b, make([]byte, n-len(b))...)
}
