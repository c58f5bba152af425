/*package neighbor copies particles into the neighbor buffers of nearby tiles,
possibly on other processes, so that short-range pair interactions can be
computed from local data only. It also builds per-particle neighbor lists from
those buffers.

A round looks like

    eng, err := neighbor.NewEngine(hier, store, comm, cfg)
    err = eng.FillNeighbors(ctx)
    err = neighbor.BuildNeighborList(eng, neighbor.Cutoff{R: 0.1}, false)
    ... use eng.GetNeighbors and eng.GetNeighborList ...
    eng.ClearNeighbors()

with UpdateNeighbors replacing FillNeighbors when particles have moved only a
little and ownership has not changed.
*/
package neighbor

/* tags.go contains the value types describing where copies go. */

import (
	"cmp"
	"fmt"

	"github.com/phil-mansfield/neighbors/lib/geom"
	"github.com/phil-mansfield/neighbors/lib/particles"
)

// CopyTag names a destination for one particle copy: a tile and the periodic
// image the copy is made through. The copy's position is the original's
// position minus Shift times the domain length.
type CopyTag struct {
	Level, Grid, Tile int
	Shift             geom.IntVect
}

// Compare orders tags by level, grid, tile, and then shift.
func (a CopyTag) Compare(b CopyTag) int {
	if c := cmp.Compare(a.Level, b.Level); c != 0 {
		return c
	} else if c := cmp.Compare(a.Grid, b.Grid); c != 0 {
		return c
	} else if c := cmp.Compare(a.Tile, b.Tile); c != 0 {
		return c
	}
	return a.Shift.Compare(b.Shift)
}

func (a CopyTag) Less(b CopyTag) bool { return a.Compare(b) < 0 }

// Key returns the destination tile.
func (a CopyTag) Key() particles.TileKey {
	return particles.TileKey{Level: a.Level, Grid: a.Grid, Tile: a.Tile}
}

func (a CopyTag) String() string {
	return fmt.Sprintf("(%d, %d, %d, %v)", a.Level, a.Grid, a.Tile, a.Shift)
}

// CommTag names a remote destination tile together with its owner.
type CommTag struct {
	Proc, Level, Grid, Tile int
}

// Compare orders tags by process, level, grid, and then tile.
func (a CommTag) Compare(b CommTag) int {
	if c := cmp.Compare(a.Proc, b.Proc); c != 0 {
		return c
	} else if c := cmp.Compare(a.Level, b.Level); c != 0 {
		return c
	} else if c := cmp.Compare(a.Grid, b.Grid); c != 0 {
		return c
	}
	return cmp.Compare(a.Tile, b.Tile)
}

func (a CommTag) Less(b CommTag) bool { return a.Compare(b) < 0 }

// ImagePolicy decides what happens when a tile can be reached through more
// than one periodic image, which happens when the radius is comparable to the
// domain size.
type ImagePolicy int

const (
	// KeepImages sends one copy per distinct (tile, shift) pair.
	KeepImages ImagePolicy = iota
	// DedupImages sends a single copy per tile, through the periodic image
	// which puts the particle's cell closest to the tile.
	DedupImages
)

func (p ImagePolicy) String() string {
	switch p {
	case KeepImages:
		return "keep"
	case DedupImages:
		return "dedup"
	}
	return fmt.Sprintf("ImagePolicy(%d)", int(p))
}

// ParseImagePolicy converts "keep" or "dedup" to an ImagePolicy.
func ParseImagePolicy(s string) (ImagePolicy, error) {
	switch s {
	case "keep", "":
		return KeepImages, nil
	case "dedup":
		return DedupImages, nil
	}
	return 0, fmt.Errorf("%w: unknown image policy '%s'; valid values are "+
		"'keep' and 'dedup'", ErrConfig, s)
}
