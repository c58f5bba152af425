package compress

/* checkpoint.go contains the checkpoint file format. A checkpoint file is

    magic number       uint32
    version            uint32
    CheckpointHeader
    id column
    x, y, z columns
    one column per real component
    one column per integer component

all little-endian. Particles are sorted by ID, every column is delta encoded,
and each column is written with WriteCompressedInts. Positions are quantized
to Delta and real components to RealDelta. IDs and integer components are
exact. */

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"slices"

	"github.com/phil-mansfield/neighbors/lib/particles"
)

const (
	// MagicNumber begins every checkpoint file.
	MagicNumber = 0xbadf00d0
	// ReverseMagicNumber is MagicNumber read with the wrong byte order.
	ReverseMagicNumber = 0xd000fdba
	Version            = 1
)

// maxQuantized bounds the magnitude of quantized values so deltas between
// them can't overflow.
const maxQuantized = 1 << 61

// CheckpointHeader describes the particles in a checkpoint file.
type CheckpointHeader struct {
	// N, NReal, and NInt are the number of particles and the number of real
	// and integer components of each. WriteCheckpoint sets them.
	N, NReal, NInt int64
	// Step and Time give the point in the run the checkpoint was written at.
	Step int64
	Time float64
	// ProbLo, ProbHi, and Periodic describe the domain. Positions along
	// periodic dimensions are wrapped into it.
	ProbLo, ProbHi [3]float64
	Periodic       [3]bool
	// Delta and RealDelta are the accuracies positions and real components
	// are stored to. Delta is shrunk so it evenly divides the domain.
	Delta, RealDelta float64
}

// positionGrid returns the adjusted position accuracy along dim and the number
// of bins spanning the domain.
func (hd *CheckpointHeader) positionGrid(dim int) (delta float64, n int64) {
	width := hd.ProbHi[dim] - hd.ProbLo[dim]
	n = int64(math.Ceil(width / hd.Delta))
	return width / float64(n), n
}

func (hd *CheckpointHeader) check() error {
	for dim := 0; dim < 3; dim++ {
		if !(hd.ProbHi[dim] > hd.ProbLo[dim]) {
			return fmt.Errorf("Checkpoint domain [%g, %g] along dimension "+
				"%d is empty.", hd.ProbLo[dim], hd.ProbHi[dim], dim)
		}
	}
	if !(hd.Delta > 0) {
		return fmt.Errorf("Checkpoint position accuracy is %g, but it must "+
			"be positive.", hd.Delta)
	} else if hd.NReal > 0 && !(hd.RealDelta > 0) {
		return fmt.Errorf("Checkpoint real component accuracy is %g, but "+
			"it must be positive.", hd.RealDelta)
	} else if hd.N < 0 || hd.NReal < 0 || hd.NInt < 0 {
		return fmt.Errorf("Checkpoint header has %d particles with %d real "+
			"and %d integer components.", hd.N, hd.NReal, hd.NInt)
	}
	for dim := 0; dim < 3; dim++ {
		width := hd.ProbHi[dim] - hd.ProbLo[dim]
		if width/hd.Delta > maxQuantized {
			return fmt.Errorf("Checkpoint position accuracy %g is too fine "+
				"for a domain of width %g.", hd.Delta, width)
		}
	}
	return nil
}

// columnBuffers are the scratch arrays shared by every column of a file.
type columnBuffers struct {
	q    []int64
	f    []float64
	b    []byte
	bZst []byte
}

func newColumnBuffers(n int) *columnBuffers {
	return &columnBuffers{q: make([]int64, n), f: make([]float64, n)}
}

// WriteCheckpoint writes ps to wr. Every particle must have the same number
// of components. ps is not modified.
func WriteCheckpoint(
	wr io.Writer, hd CheckpointHeader, ps []particles.Particle,
) error {
	hd.N, hd.NReal, hd.NInt = int64(len(ps)), 0, 0
	if len(ps) > 0 {
		hd.NReal, hd.NInt = int64(len(ps[0].Real)), int64(len(ps[0].Int))
	}
	if err := hd.check(); err != nil {
		return err
	}
	for i := range ps {
		if int64(len(ps[i].Real)) != hd.NReal ||
			int64(len(ps[i].Int)) != hd.NInt {
			return fmt.Errorf("Particle %d has %d real and %d integer "+
				"components, but particle 0 has %d and %d.", ps[i].ID,
				len(ps[i].Real), len(ps[i].Int), hd.NReal, hd.NInt)
		}
	}

	order := make([]int, len(ps))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(i, j int) int {
		return cmp.Compare(ps[i].ID, ps[j].ID)
	})

	err := binary.Write(wr, binary.LittleEndian,
		[2]uint32{MagicNumber, Version})
	if err != nil {
		return err
	}
	if err := binary.Write(wr, binary.LittleEndian, &hd); err != nil {
		return err
	}

	buf := newColumnBuffers(len(ps))
	for k, i := range order {
		buf.q[k] = ps[i].ID
	}
	if err := buf.writeInts(wr, 0); err != nil {
		return fmt.Errorf("Could not write ids: %w", err)
	}

	for dim := 0; dim < 3; dim++ {
		for k, i := range order {
			buf.f[k] = ps[i].Pos[dim]
		}
		delta, n := hd.positionGrid(dim)
		Quantize(buf.f, hd.ProbLo[dim], delta, 0, buf.q)
		if hd.Periodic[dim] {
			wrap(n, buf.q)
		} else {
			for k := range buf.q {
				buf.q[k] = min(max(buf.q[k], 0), n-1)
			}
		}
		err := buf.writeInts(wr, periodOf(hd.Periodic[dim], n))
		if err != nil {
			return fmt.Errorf("Could not write positions: %w", err)
		}
	}

	for c := 0; c < int(hd.NReal); c++ {
		for k, i := range order {
			buf.f[k] = ps[i].Real[c]
			if math.Abs(buf.f[k]/hd.RealDelta) >= maxQuantized ||
				math.IsNaN(buf.f[k]) {
				return fmt.Errorf("Real component %d of particle %d is %g, "+
					"which can't be stored to an accuracy of %g.", c,
					ps[i].ID, buf.f[k], hd.RealDelta)
			}
		}
		Quantize(buf.f, 0, hd.RealDelta, 0, buf.q)
		if err := buf.writeInts(wr, 0); err != nil {
			return fmt.Errorf("Could not write real component %d: %w", c, err)
		}
	}

	for c := 0; c < int(hd.NInt); c++ {
		for k, i := range order {
			buf.q[k] = int64(ps[i].Int[c])
		}
		if err := buf.writeInts(wr, 0); err != nil {
			return fmt.Errorf("Could not write integer component %d: %w",
				c, err)
		}
	}
	return nil
}

// ReadCheckpointHeader reads the header at the start of a checkpoint file.
func ReadCheckpointHeader(rd io.Reader) (CheckpointHeader, error) {
	hd := CheckpointHeader{}
	var start [2]uint32
	if err := binary.Read(rd, binary.LittleEndian, &start); err != nil {
		return hd, err
	}
	switch start[0] {
	case MagicNumber:
	case ReverseMagicNumber:
		return hd, fmt.Errorf("The checkpoint was written with the wrong " +
			"byte order.")
	default:
		return hd, fmt.Errorf("Not a checkpoint file. Checkpoint files "+
			"begin with %x, but this begins with %x.", MagicNumber, start[0])
	}
	if start[1] > Version {
		return hd, fmt.Errorf("The checkpoint has version %d, but only "+
			"versions up to %d can be read.", start[1], Version)
	}

	if err := binary.Read(rd, binary.LittleEndian, &hd); err != nil {
		return hd, err
	}
	return hd, hd.check()
}

// ReadCheckpoint reads a checkpoint file into particles with the given
// layout. Components the file has beyond the layout's are dropped and
// components the layout has beyond the file's are zero. seed sets the
// dithering applied when positions and real components are dequantized.
func ReadCheckpoint(
	rd io.Reader, layout particles.Layout, seed uint64,
) (CheckpointHeader, []particles.Particle, error) {
	hd, err := ReadCheckpointHeader(rd)
	if err != nil {
		return hd, nil, err
	}
	if hd.N > math.MaxInt32 {
		return hd, nil, fmt.Errorf("The checkpoint claims to hold %d "+
			"particles.", hd.N)
	}

	n := int(hd.N)
	ps := make([]particles.Particle, n)
	for i := range ps {
		ps[i] = layout.New()
	}
	buf := newColumnBuffers(n)
	rng := NewRNG(seed)

	if err := buf.readInts(rd); err != nil {
		return hd, nil, fmt.Errorf("Could not read ids: %w", err)
	}
	for i := range ps {
		ps[i].ID = buf.q[i]
	}

	for dim := 0; dim < 3; dim++ {
		if err := buf.readInts(rd); err != nil {
			return hd, nil, fmt.Errorf("Could not read positions: %w", err)
		}
		delta, nBins := hd.positionGrid(dim)
		Dequantize(buf.q, hd.ProbLo[dim], delta,
			periodOf(hd.Periodic[dim], nBins), rng, buf.f)
		top := math.Nextafter(hd.ProbHi[dim], hd.ProbLo[dim])
		for i := range ps {
			ps[i].Pos[dim] = min(max(buf.f[i], hd.ProbLo[dim]), top)
		}
	}

	for c := 0; c < int(hd.NReal); c++ {
		if err := buf.readInts(rd); err != nil {
			return hd, nil, fmt.Errorf("Could not read real component %d: %w",
				c, err)
		}
		if c >= layout.NReal {
			continue
		}
		Dequantize(buf.q, 0, hd.RealDelta, 0, rng, buf.f)
		for i := range ps {
			ps[i].Real[c] = buf.f[i]
		}
	}

	for c := 0; c < int(hd.NInt); c++ {
		if err := buf.readInts(rd); err != nil {
			return hd, nil, fmt.Errorf("Could not read integer component "+
				"%d: %w", c, err)
		}
		if c >= layout.NInt {
			continue
		}
		for i := range ps {
			ps[i].Int[c] = int32(buf.q[i])
		}
	}

	return hd, ps, nil
}

func (buf *columnBuffers) writeInts(wr io.Writer, qPeriod int64) error {
	DeltaEncode(0, qPeriod, buf.q, buf.q)
	var err error
	buf.b, buf.bZst, err = WriteCompressedInts(buf.q, buf.b, buf.bZst, wr)
	return err
}

func (buf *columnBuffers) readInts(rd io.Reader) error {
	var err error
	buf.b, buf.bZst, err = ReadCompressedInts(rd, buf.b, buf.bZst, buf.q)
	if err != nil {
		return err
	}
	DeltaDecode(0, buf.q, buf.q)
	return nil
}

func periodOf(periodic bool, n int64) int64 {
	if periodic {
		return n
	}
	return 0
}
