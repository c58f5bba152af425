package snapio

import (
	"bufio"
	"fmt"
	"os"

	"github.com/phil-mansfield/neighbors/lib/compress"
	"github.com/phil-mansfield/neighbors/lib/particles"
)

// Checkpoint is a checkpoint file written by compress.WriteCheckpoint.
type Checkpoint struct {
	fileName string
	index    int
	hd       compress.CheckpointHeader
}

var _ File = &Checkpoint{}

// NewCheckpoint opens a checkpoint file and reads its header. index seeds
// the dithering of dequantized values.
func NewCheckpoint(fileName string, index int) (*Checkpoint, error) {
	if err := checkFile(fileName); err != nil {
		return nil, err
	}
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	hd, err := compress.ReadCheckpointHeader(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s is not a valid checkpoint file: %w",
			fileName, err)
	}
	return &Checkpoint{fileName, index, hd}, nil
}

// Header returns the file's header.
func (f *Checkpoint) Header() compress.CheckpointHeader { return f.hd }

func (f *Checkpoint) Len() int { return int(f.hd.N) }

func (f *Checkpoint) Read(layout particles.Layout) ([]particles.Particle, error) {
	file, err := os.Open(f.fileName)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	_, ps, err := compress.ReadCheckpoint(bufio.NewReader(file), layout,
		uint64(f.index))
	return ps, err
}
