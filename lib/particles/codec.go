package particles

/* codec.go contains the fixed-size binary record used to send particle copies
between processes. All fields are little-endian:

    dst level, grid, tile         3 x int32
    src level, grid, tile, index  4 x int32
    periodic shift                3 x int32
    position                      3 x float64
    id                            int64
    cpu                           int32
    communicated real components  float64 each
    communicated int components   int32 each
*/

import (
	"encoding/binary"
	"fmt"
	"math"
)

// headerInts is the number of int32 fields before the position.
const headerInts = 3 + 4 + 3

// Record is one particle copy in transit, along with the tile it is headed
// for and the location and shift it came from.
type Record struct {
	Dst TileKey
	// Src is the tile the original particle lives in, and SrcIndex is its
	// index within that tile. Both are -1 for records which carry a moving
	// particle rather than a neighbor copy.
	Src      TileKey
	SrcIndex int
	Shift    [3]int
	P        Particle
}

// Codec encodes and decodes Records for a fixed Layout. Changing the layout's
// comm masks after a Codec is created has no effect on the Codec.
type Codec struct {
	layout      Layout
	nReal, nInt int
}

// NewCodec creates a Codec that sends the components selected by layout's
// comm masks.
func NewCodec(layout Layout) *Codec {
	return &Codec{
		layout: layout.Clone(),
		nReal:  layout.NumCommReal(), nInt: layout.NumCommInt(),
	}
}

// NewFullCodec creates a Codec which sends every component regardless of the
// comm masks. This is what particle redistribution uses, since moving
// particles must not lose data.
func NewFullCodec(layout Layout) *Codec {
	return NewCodec(NewLayout(layout.NReal, layout.NInt))
}

// Layout returns the layout the codec was built for.
func (c *Codec) Layout() Layout { return c.layout.Clone() }

// RecordSize returns the number of bytes in a single encoded record.
func (c *Codec) RecordSize() int {
	return 4*headerInts + 8*3 + 8 + 4 + 8*c.nReal + 4*c.nInt
}

// Append encodes r and appends it to buf, growing buf as needed.
func (c *Codec) Append(buf []byte, r *Record) []byte {
	n := len(buf)
	size := c.RecordSize()
	if cap(buf)-n < size {
		buf = append(buf, make([]byte, size)...)
	} else {
		buf = buf[:n+size]
	}
	b := buf[n:]

	ints := [headerInts]int{
		r.Dst.Level, r.Dst.Grid, r.Dst.Tile,
		r.Src.Level, r.Src.Grid, r.Src.Tile, r.SrcIndex,
		r.Shift[0], r.Shift[1], r.Shift[2],
	}
	off := 0
	for _, x := range ints {
		binary.LittleEndian.PutUint32(b[off:], uint32(int32(x)))
		off += 4
	}
	for dim := 0; dim < 3; dim++ {
		binary.LittleEndian.PutUint64(b[off:], math.Float64bits(r.P.Pos[dim]))
		off += 8
	}
	binary.LittleEndian.PutUint64(b[off:], uint64(r.P.ID))
	off += 8
	binary.LittleEndian.PutUint32(b[off:], uint32(r.P.CPU))
	off += 4

	for i, on := range c.layout.CommReal {
		if on {
			binary.LittleEndian.PutUint64(b[off:], math.Float64bits(r.P.Real[i]))
			off += 8
		}
	}
	for i, on := range c.layout.CommInt {
		if on {
			binary.LittleEndian.PutUint32(b[off:], uint32(r.P.Int[i]))
			off += 4
		}
	}

	return buf
}

// Decode decodes a single record from the start of b into r. Components which
// are not communicated are set to zero. r.P's component slices are reused if
// they have the right length.
func (c *Codec) Decode(b []byte, r *Record) error {
	if len(b) < c.RecordSize() {
		return fmt.Errorf("Record needs %d bytes, but only %d remain.",
			c.RecordSize(), len(b))
	}

	var ints [headerInts]int
	off := 0
	for i := range ints {
		ints[i] = int(int32(binary.LittleEndian.Uint32(b[off:])))
		off += 4
	}
	r.Dst = TileKey{ints[0], ints[1], ints[2]}
	r.Src = TileKey{ints[3], ints[4], ints[5]}
	r.SrcIndex = ints[6]
	r.Shift = [3]int{ints[7], ints[8], ints[9]}

	for dim := 0; dim < 3; dim++ {
		r.P.Pos[dim] = math.Float64frombits(binary.LittleEndian.Uint64(b[off:]))
		off += 8
	}
	r.P.ID = int64(binary.LittleEndian.Uint64(b[off:]))
	off += 8
	r.P.CPU = int32(binary.LittleEndian.Uint32(b[off:]))
	off += 4

	if r.P.Real == nil || len(r.P.Real) != c.layout.NReal {
		r.P.Real = make([]float64, c.layout.NReal)
	}
	if r.P.Int == nil || len(r.P.Int) != c.layout.NInt {
		r.P.Int = make([]int32, c.layout.NInt)
	}
	for i, on := range c.layout.CommReal {
		r.P.Real[i] = 0
		if on {
			r.P.Real[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[off:]))
			off += 8
		}
	}
	for i, on := range c.layout.CommInt {
		r.P.Int[i] = 0
		if on {
			r.P.Int[i] = int32(binary.LittleEndian.Uint32(b[off:]))
			off += 4
		}
	}

	return nil
}

// DecodeAll decodes every record in b. The length of b must be a multiple of
// RecordSize.
func (c *Codec) DecodeAll(b []byte) ([]Record, error) {
	size := c.RecordSize()
	if len(b)%size != 0 {
		return nil, fmt.Errorf("Buffer of %d bytes is not a whole number "+
			"of %d-byte records.", len(b), size)
	}
	out := make([]Record, len(b)/size)
	for i := range out {
		if err := c.Decode(b[i*size:], &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}
