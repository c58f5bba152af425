package snapio

import (
	"fmt"

	"github.com/phil-mansfield/gotetra/render/geom"
	"github.com/phil-mansfield/gotetra/render/io"

	"github.com/phil-mansfield/neighbors/lib/particles"
)

// Sheet is a gotetra sheet segment. Sheets store a padded grid of
// GridWidth^3 particles, of which the first SegmentWidth^3 belong to the
// segment. They don't store IDs, so IDs are the particle's position in the
// segment offset by the segment's index.
type Sheet struct {
	fileName string
	index    int
	hd       io.SheetHeader
}

var _ File = &Sheet{}

// NewSheet reads the header of the gotetra sheet file with the given index.
func NewSheet(fileName string, index int) (*Sheet, error) {
	if err := checkFile(fileName); err != nil {
		return nil, err
	}
	s := &Sheet{fileName: fileName, index: index}
	if err := io.ReadSheetHeaderAt(fileName, &s.hd); err != nil {
		return nil, fmt.Errorf("Could not read the sheet header of %s: %w",
			fileName, err)
	}
	if s.hd.SegmentWidth > s.hd.GridWidth {
		return nil, fmt.Errorf("The sheet %s has a segment width of %d, "+
			"which is larger than its grid width, %d.", fileName,
			s.hd.SegmentWidth, s.hd.GridWidth)
	}
	return s, nil
}

func (s *Sheet) Len() int {
	sw := int(s.hd.SegmentWidth)
	return sw * sw * sw
}

func (s *Sheet) Read(layout particles.Layout) ([]particles.Particle, error) {
	gw, sw := int(s.hd.GridWidth), int(s.hd.SegmentWidth)
	xg, vg := make([]geom.Vec, gw*gw*gw), make([]geom.Vec, gw*gw*gw)
	if err := io.ReadSheetPositionsAt(s.fileName, xg); err != nil {
		return nil, err
	}
	if err := io.ReadSheetVelocitiesAt(s.fileName, vg); err != nil {
		return nil, err
	}

	offset := int64(s.index) * int64(s.Len())
	out := make([]particles.Particle, 0, s.Len())
	for ix := 0; ix < sw; ix++ {
		for iy := 0; iy < sw; iy++ {
			for iz := 0; iz < sw; iz++ {
				ig := iz + iy*gw + ix*gw*gw
				i := iz + iy*sw + ix*sw*sw
				out = append(out, newParticle(layout, offset+int64(i),
					vec64(xg[ig]), vec64(vg[ig])))
			}
		}
	}
	return out, nil
}
