package compress

/* compress.go contains the integer coding used by checkpoint files. Floats are
quantized to a fixed accuracy, consecutive values are delta encoded, and the
resulting integers are written as eight zstd-compressed byte columns. */

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/DataDog/zstd"
)

// Quantize writes floor((x - lo) / delta) to out. If qPeriod is positive the
// result is wrapped into [0, qPeriod).
func Quantize(x []float64, lo, delta float64, qPeriod int64, out []int64) {
	if len(x) != len(out) {
		panic(fmt.Sprintf("Internal error: len(x) = %d, but len(out) = %d "+
			"in Quantize.", len(x), len(out)))
	}
	for i := range x {
		out[i] = int64(math.Floor((x[i] - lo) / delta))
	}
	if qPeriod > 0 {
		wrap(qPeriod, out)
	}
}

// Dequantize inverts Quantize. Each value is placed at a uniform random point
// within its quantization bin, so the error is never larger than delta and
// has no preferred direction.
func Dequantize(
	q []int64, lo, delta float64, qPeriod int64, rng *RNG, out []float64,
) {
	if len(q) != len(out) {
		panic(fmt.Sprintf("Internal error: len(q) = %d, but len(out) = %d "+
			"in Dequantize.", len(q), len(out)))
	}
	if qPeriod > 0 {
		// Deltas don't have to add up to a value inside the box.
		wrap(qPeriod, q)
	}
	rng.UniformSequence(out)
	for i := range out {
		out[i] = lo + delta*(float64(q[i])+out[i])
	}
}

func wrap(qPeriod int64, q []int64) {
	for i := range q {
		q[i] %= qPeriod
		if q[i] < 0 {
			q[i] += qPeriod
		}
	}
}

// DeltaEncode delta encodes x into out. The element before x[0] is taken to
// be offset. x and out can be the same array. If qPeriod is positive, each
// delta is replaced by the periodic image closest to zero.
func DeltaEncode(offset, qPeriod int64, x, out []int64) {
	if len(x) != len(out) {
		panic(fmt.Sprintf("Internal error: len(x) = %d, but len(out) = "+
			"%d in DeltaEncode.", len(x), len(out)))
	}
	if len(x) == 0 {
		return
	}

	// Looping this way allows x and out to alias.
	prev := x[0]
	out[0] = prev - offset
	for i := 1; i < len(x); i++ {
		next := x[i]
		out[i] = next - prev
		prev = next
	}

	if qPeriod > 0 {
		for i := range out {
			if out[i] > qPeriod/2 {
				out[i] -= qPeriod
			} else if out[i] < -qPeriod/2 {
				out[i] += qPeriod
			}
		}
	}
}

// DeltaDecode decodes an array encoded with DeltaEncode. x and out can be the
// same array.
func DeltaDecode(offset int64, x, out []int64) {
	if len(x) != len(out) {
		panic(fmt.Sprintf("Internal error: len(x) = %d, but len(out) = "+
			"%d in DeltaDecode.", len(x), len(out)))
	}
	if len(x) == 0 {
		return
	}

	out[0] = offset + x[0]
	for i := 1; i < len(out); i++ {
		out[i] = out[i-1] + x[i]
	}
}

// WriteCompressedInts writes q to wr as eight byte columns, least significant
// first, each compressed separately with zstd and preceded by its compressed
// length. Small deltas leave the high columns nearly constant, which zstd
// reduces to almost nothing. Nothing is written for an empty q. b and buf are
// scratch buffers which are resized as needed and returned.
func WriteCompressedInts(
	q []int64, b, buf []byte, wr io.Writer,
) (bOut, bufOut []byte, err error) {
	if len(q) == 0 {
		return b, buf, nil
	}
	b = resizeBytes(b, len(q))
	for col := 0; col < 8; col++ {
		intToByte(q, b, col)

		buf, err = zstd.CompressLevel(buf[:cap(buf)], b, Level)
		if err != nil {
			return nil, nil, err
		}
		err = binary.Write(wr, binary.LittleEndian, int64(len(buf)))
		if err != nil {
			return nil, nil, err
		}
		if _, err = wr.Write(buf); err != nil {
			return nil, nil, err
		}
	}
	return b[:0], buf[:0], nil
}

// ReadCompressedInts reads len(q) integers written by WriteCompressedInts
// into q. b and buf are scratch buffers which are resized as needed and
// returned.
func ReadCompressedInts(
	rd io.Reader, b, buf []byte, q []int64,
) (bOut, bufOut []byte, err error) {
	if len(q) == 0 {
		return b, buf, nil
	}
	clear(q)
	b = resizeBytes(b, len(q))
	for col := 0; col < 8; col++ {
		var n int64
		if err = binary.Read(rd, binary.LittleEndian, &n); err != nil {
			return nil, nil, err
		}
		if n < 0 || n > MaxFrameSize {
			return nil, nil, fmt.Errorf("Byte column %d claims %d compressed "+
				"bytes.", col, n)
		}
		buf = resizeBytes(buf, int(n))
		if _, err = io.ReadFull(rd, buf); err != nil {
			return nil, nil, err
		}

		b, err = zstd.Decompress(b[:cap(b)], buf)
		if err != nil {
			return nil, nil, err
		}
		if len(b) != len(q) {
			return nil, nil, fmt.Errorf("Byte column %d decompressed to %d "+
				"bytes, but %d integers were expected.", col, len(b), len(q))
		}
		byteToInt(b, q, col)
	}
	return b[:0], buf[:0], nil
}

// intToByte copies byte col of every element of q into b. Bytes are indexed
// from least to most significant.
func intToByte(q []int64, b []byte, col int) {
	for i := range q {
		b[i] = byte(uint64(q[i]) >> (8 * col))
	}
}

// byteToInt adds byte column col back into q.
func byteToInt(b []byte, q []int64, col int) {
	for i := range q {
		q[i] |= int64(uint64(b[i]) << (8 * col))
	}
}
