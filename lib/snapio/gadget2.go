package snapio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/phil-mansfield/neighbors/lib/particles"
)

const (
	gadget2HeaderSize = 256
)

// Gadget2Header is the raw header of a cosmological Gadget-2 file.
type Gadget2Header struct {
	NPart                                     [6]uint32
	Mass                                      [6]float64
	Time, Redshift                            float64
	FlagSFR, FlagFeedback                     uint32
	Nall                                      [6]uint32
	FlagCooling, NumFiles                     uint32
	BoxSize, Omega0, OmegaLambda, HubbleParam float64
	FlagStellarAge, FlagMetals                uint32
	NallHW                                    [6]uint32
	FlagEntropyICs                            uint32
	Empty                                     [60]byte
}

// Gadget2 is a Gadget-2 file with the x, v, and id blocks, in that order.
// Only the dark matter particles (type 1) are read. IDs may be 32 or 64 bits
// wide.
type Gadget2 struct {
	fileName string
	order    binary.ByteOrder
	hd       Gadget2Header
	n        int
	idSize   int
}

var _ File = &Gadget2{}

// NewGadget2 opens a Gadget-2 file and reads its header.
func NewGadget2(fileName string, order binary.ByteOrder) (*Gadget2, error) {
	if err := checkFile(fileName); err != nil {
		return nil, err
	}

	f := &Gadget2{fileName: fileName, order: order}
	file, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if err := readFortranBlock(file, order, &f.hd); err != nil {
		return nil, fmt.Errorf("%s is not a valid Gadget-2 file: %w",
			fileName, err)
	}
	f.n = int(f.hd.NPart[1])

	// The id width is whatever is left once x and v are skipped.
	offset := int64(8+gadget2HeaderSize) + 2*(8+12*int64(f.n))
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	var idBytes uint32
	if err := binary.Read(file, order, &idBytes); err != nil {
		return nil, fmt.Errorf("%s is too short to hold %d particles: %w",
			fileName, f.n, err)
	}
	switch {
	case f.n == 0:
		f.idSize = 4
	case int64(idBytes) == 4*int64(f.n):
		f.idSize = 4
	case int64(idBytes) == 8*int64(f.n):
		f.idSize = 8
	default:
		return nil, fmt.Errorf("The id block of %s has %d bytes, which is "+
			"neither 4 nor 8 bytes for each of its %d particles. This "+
			"likely means that the file has extra blocks before the ids.",
			fileName, idBytes, f.n)
	}

	return f, nil
}

// Header returns the file's header.
func (f *Gadget2) Header() Gadget2Header { return f.hd }

func (f *Gadget2) Len() int { return f.n }

func (f *Gadget2) Read(layout particles.Layout) ([]particles.Particle, error) {
	file, err := os.Open(f.fileName)
	if err != nil {
		return nil, fmt.Errorf("The file %s does not exist or cannot be "+
			"accessed.", f.fileName)
	}
	defer file.Close()

	if _, err := file.Seek(8+gadget2HeaderSize, io.SeekStart); err != nil {
		return nil, err
	}
	x, v := make([][3]float32, f.n), make([][3]float32, f.n)
	if err := readFortranBlock(file, f.order, x); err != nil {
		return nil, fmt.Errorf("could not read the x block: %w", err)
	}
	if err := readFortranBlock(file, f.order, v); err != nil {
		return nil, fmt.Errorf("could not read the v block: %w", err)
	}

	id := make([]int64, f.n)
	if f.idSize == 4 {
		id32 := make([]uint32, f.n)
		if err := readFortranBlock(file, f.order, id32); err != nil {
			return nil, fmt.Errorf("could not read the id block: %w", err)
		}
		for i := range id32 {
			id[i] = int64(id32[i])
		}
	} else {
		id64 := make([]uint64, f.n)
		if err := readFortranBlock(file, f.order, id64); err != nil {
			return nil, fmt.Errorf("could not read the id block: %w", err)
		}
		for i := range id64 {
			id[i] = int64(id64[i])
		}
	}

	out := make([]particles.Particle, f.n)
	for i := range out {
		out[i] = newParticle(layout, id[i], vec64(x[i]), vec64(v[i]))
	}
	return out, nil
}

// WriteGadget2 writes a Gadget-2 file with x, v, and id blocks. hd.NPart[1]
// is set to the number of particles. IDs are written as 32-bit integers
// unless one of them does not fit.
func WriteGadget2(
	w io.Writer, order binary.ByteOrder, hd Gadget2Header,
	x, v [][3]float32, id []uint64,
) error {
	if len(x) != len(v) || len(x) != len(id) {
		return fmt.Errorf("Writing a Gadget-2 file with %d positions, %d "+
			"velocities, and %d ids.", len(x), len(v), len(id))
	}
	hd.NPart[1] = uint32(len(x))

	blocks := []any{&hd, x, v}
	wide := false
	for i := range id {
		wide = wide || id[i] > math.MaxUint32
	}
	if wide {
		blocks = append(blocks, id)
	} else {
		id32 := make([]uint32, len(id))
		for i := range id {
			id32[i] = uint32(id[i])
		}
		blocks = append(blocks, id32)
	}

	for _, b := range blocks {
		size := uint32(binary.Size(b))
		if err := binary.Write(w, order, size); err != nil {
			return err
		}
		if err := binary.Write(w, order, b); err != nil {
			return err
		}
		if err := binary.Write(w, order, size); err != nil {
			return err
		}
	}
	return nil
}

// readFortranBlock reads a block surrounded by Fortran record markers into
// data and checks that both markers match its size.
func readFortranBlock(rd io.Reader, order binary.ByteOrder, data any) error {
	want := uint32(binary.Size(data))
	var head, foot uint32
	if err := binary.Read(rd, order, &head); err != nil {
		return err
	}
	if head != want {
		return fmt.Errorf("the block header says it holds %d bytes, but %d "+
			"were expected", head, want)
	}
	if err := binary.Read(rd, order, data); err != nil {
		return err
	}
	if err := binary.Read(rd, order, &foot); err != nil {
		return err
	}
	if head != foot {
		return fmt.Errorf("the block header, %d, and footer, %d, don't match",
			head, foot)
	}
	return nil
}

// checkFile returns an error if the given file can't be opened or if
// it is a directory.
func checkFile(fileName string) error {
	info, err := os.Stat(fileName)
	if err != nil {
		return fmt.Errorf("The file %s cannot be opened. The system error "+
			"is: \"%s\"", fileName, err.Error())
	} else if info.IsDir() {
		return fmt.Errorf("The file %s is a directory, not a snapshot file.",
			fileName)
	}
	return nil
}

func vec64(x [3]float32) [3]float64 {
	return [3]float64{float64(x[0]), float64(x[1]), float64(x[2])}
}
