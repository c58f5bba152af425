/*package geom contains the index-space and physical-space geometry used to
describe a block-structured, possibly multi-level, domain decomposition: cell
indices, boxes of cells, the physical extent and periodicity of each level, and
the hierarchy of grids and tiles that particles are partitioned across.
*/
package geom

import (
	"fmt"
)

// IntVect is a 3-index into the cell grid of a single level.
type IntVect [3]int

// Uniform returns an IntVect with every component set to n.
func Uniform(n int) IntVect { return IntVect{n, n, n} }

func (a IntVect) Add(b IntVect) IntVect {
	return IntVect{a[0] + b[0], a[1] + b[1], a[2] + b[2]}
}

func (a IntVect) Sub(b IntVect) IntVect {
	return IntVect{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

// Mul multiplies two IntVects component-wise.
func (a IntVect) Mul(b IntVect) IntVect {
	return IntVect{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}

// IsZero returns true if every component is zero.
func (a IntVect) IsZero() bool { return a == IntVect{} }

// Less orders IntVects lexicographically, x first.
func (a IntVect) Less(b IntVect) bool {
	for dim := 0; dim < 3; dim++ {
		if a[dim] != b[dim] {
			return a[dim] < b[dim]
		}
	}
	return false
}

// Compare returns -1, 0, or +1 depending on the lexicographic order of a and b.
func (a IntVect) Compare(b IntVect) int {
	for dim := 0; dim < 3; dim++ {
		switch {
		case a[dim] < b[dim]:
			return -1
		case a[dim] > b[dim]:
			return +1
		}
	}
	return 0
}

// coarsenInt divides i by r, rounding towards negative infinity.
func coarsenInt(i, r int) int {
	if i >= 0 {
		return i / r
	}
	return -((-i - 1) / r) - 1
}

// Coarsen maps a fine cell index onto the coarse cell containing it.
func (a IntVect) Coarsen(r IntVect) IntVect {
	return IntVect{
		coarsenInt(a[0], r[0]), coarsenInt(a[1], r[1]), coarsenInt(a[2], r[2]),
	}
}

// Box is a rectangular region of cells. Both Lo and Hi are included in the
// box, so a box with Lo == Hi contains a single cell.
type Box struct {
	Lo, Hi IntVect
}

// NewBox creates a box spanning the cells lo through hi, inclusive.
func NewBox(lo, hi IntVect) Box { return Box{lo, hi} }

func (b Box) String() string {
	return fmt.Sprintf("(%d,%d,%d)-(%d,%d,%d)",
		b.Lo[0], b.Lo[1], b.Lo[2], b.Hi[0], b.Hi[1], b.Hi[2])
}

// Ok returns true if the box contains at least one cell.
func (b Box) Ok() bool {
	return b.Hi[0] >= b.Lo[0] && b.Hi[1] >= b.Lo[1] && b.Hi[2] >= b.Lo[2]
}

// Size returns the number of cells along each dimension.
func (b Box) Size() IntVect {
	return IntVect{b.Hi[0] - b.Lo[0] + 1, b.Hi[1] - b.Lo[1] + 1,
		b.Hi[2] - b.Lo[2] + 1}
}

// NumCells returns the total number of cells in the box.
func (b Box) NumCells() int {
	if !b.Ok() {
		return 0
	}
	s := b.Size()
	return s[0] * s[1] * s[2]
}

func (b Box) Contains(iv IntVect) bool {
	for dim := 0; dim < 3; dim++ {
		if iv[dim] < b.Lo[dim] || iv[dim] > b.Hi[dim] {
			return false
		}
	}
	return true
}

// ContainsBox returns true if every cell of o is inside b.
func (b Box) ContainsBox(o Box) bool {
	return b.Contains(o.Lo) && b.Contains(o.Hi)
}

// Intersect returns the overlap of two boxes. The second return value is false
// if they do not overlap.
func (b Box) Intersect(o Box) (Box, bool) {
	out := Box{}
	for dim := 0; dim < 3; dim++ {
		out.Lo[dim] = max(b.Lo[dim], o.Lo[dim])
		out.Hi[dim] = min(b.Hi[dim], o.Hi[dim])
	}
	return out, out.Ok()
}

func (b Box) Intersects(o Box) bool {
	_, ok := b.Intersect(o)
	return ok
}

// Grow expands the box by n cells on both sides of every dimension.
func (b Box) Grow(n IntVect) Box {
	return Box{b.Lo.Sub(n), b.Hi.Add(n)}
}

// Shift translates the box by s cells.
func (b Box) Shift(s IntVect) Box {
	return Box{b.Lo.Add(s), b.Hi.Add(s)}
}

// Coarsen returns the smallest coarse box covering b when the coarse level is
// r times coarser.
func (b Box) Coarsen(r IntVect) Box {
	return Box{b.Lo.Coarsen(r), b.Hi.Coarsen(r)}
}

// Refine returns the fine box covering exactly the same region as b when the
// fine level is r times finer.
func (b Box) Refine(r IntVect) Box {
	return Box{
		b.Lo.Mul(r),
		b.Hi.Add(Uniform(1)).Mul(r).Sub(Uniform(1)),
	}
}

// Index returns the x-major offset of iv within the box. iv must be
// contained in the box.
func (b Box) Index(iv IntVect) int {
	s := b.Size()
	return (iv[0] - b.Lo[0]) + s[0]*((iv[1]-b.Lo[1])+s[1]*(iv[2]-b.Lo[2]))
}

// Cell is the inverse of Index.
func (b Box) Cell(i int) IntVect {
	s := b.Size()
	return IntVect{
		b.Lo[0] + i%s[0],
		b.Lo[1] + (i/s[0])%s[1],
		b.Lo[2] + i/(s[0]*s[1]),
	}
}

// TileCounts returns the number of tiles of the given size along each
// dimension. Edge tiles may be smaller than size.
func (b Box) TileCounts(size IntVect) IntVect {
	s := b.Size()
	n := IntVect{}
	for dim := 0; dim < 3; dim++ {
		n[dim] = (s[dim] + size[dim] - 1) / size[dim]
	}
	return n
}

// Tiles splits the box into tiles of the given size. Tiles are returned in
// x-major order of their tile index, so the tile containing a cell can be
// found with TileIndex.
func (b Box) Tiles(size IntVect) []Box {
	n := b.TileCounts(size)
	out := make([]Box, 0, n[0]*n[1]*n[2])
	for tz := 0; tz < n[2]; tz++ {
		for ty := 0; ty < n[1]; ty++ {
			for tx := 0; tx < n[0]; tx++ {
				t := IntVect{tx, ty, tz}
				lo := b.Lo.Add(t.Mul(size))
				hi := lo.Add(size).Sub(Uniform(1))
				for dim := 0; dim < 3; dim++ {
					hi[dim] = min(hi[dim], b.Hi[dim])
				}
				out = append(out, Box{lo, hi})
			}
		}
	}
	return out
}

// TileIndex returns the index into Tiles(size) of the tile containing iv.
func (b Box) TileIndex(size IntVect, iv IntVect) int {
	n := b.TileCounts(size)
	t := iv.Sub(b.Lo)
	for dim := 0; dim < 3; dim++ {
		t[dim] /= size[dim]
	}
	return t[0] + n[0]*(t[1]+n[1]*t[2])
}
