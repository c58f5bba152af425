/*package snapio reads particle snapshot files into particles. Adding support
for a new file format requires writing a struct that implements the File
interface and adding it to Open.

Every reader stores positions in Particle.Pos and, if the layout has at least
three real components, velocities in the first three of them.
*/
package snapio

import (
	"encoding/binary"
	"fmt"

	"github.com/phil-mansfield/neighbors/lib/particles"
)

// File is a single snapshot file.
type File interface {
	// Len returns the number of particles in the file.
	Len() int
	// Read returns every particle in the file.
	Read(layout particles.Layout) ([]particles.Particle, error)
}

// Open opens a snapshot file of the given format: "gadget2", "text",
// "gotetra", or "checkpoint". index is the file's position in its snapshot.
// gotetra files use it to build IDs and checkpoints use it as a dithering
// seed.
func Open(format, fileName string, index int) (File, error) {
	switch format {
	case "gadget2":
		return NewGadget2(fileName, binary.LittleEndian)
	case "text":
		return NewText(fileName, DefaultTextConfig)
	case "gotetra":
		return NewSheet(fileName, index)
	case "checkpoint":
		return NewCheckpoint(fileName, index)
	}
	return nil, fmt.Errorf("'%s' is not a supported snapshot format. The "+
		"supported formats are 'gadget2', 'text', 'gotetra', and "+
		"'checkpoint'.", format)
}

// ReadFiles reads the files owned by rank out of size ranks. File i is owned
// by rank i % size. Particles are not placed into tiles.
func ReadFiles(
	format string, fileNames []string, layout particles.Layout, rank, size int,
) ([]particles.Particle, error) {
	out := []particles.Particle{}
	for i := rank; i < len(fileNames); i += size {
		f, err := Open(format, fileNames[i], i)
		if err != nil {
			return nil, err
		}
		ps, err := f.Read(layout)
		if err != nil {
			return nil, fmt.Errorf("Could not read %s: %w", fileNames[i], err)
		}
		out = append(out, ps...)
	}
	return out, nil
}

// newParticle converts a single record into a Particle.
func newParticle(
	layout particles.Layout, id int64, x, v [3]float64,
) particles.Particle {
	p := layout.New()
	p.ID, p.Pos = id, x
	if layout.NReal >= 3 {
		copy(p.Real, v[:])
	}
	return p
}
