package geom

/* hierarchy.go contains the multi-level partition structure: the grids at
each level, the tiles inside each grid, which process owns each grid, and the
generation counter that marks every change to that structure. */

import (
	"fmt"
	"sync/atomic"
)

// Level is one resolution layer of the hierarchy.
type Level struct {
	Geom Geometry
	// Grids are the boxes making up the level. They must lie inside the
	// domain and must not overlap.
	Grids []Box
	// DMap is the distribution map: DMap[i] is the process that owns
	// Grids[i].
	DMap []int
	// RefRatio is the refinement ratio between this level and the next
	// coarser one. It is ignored on level 0.
	RefRatio IntVect
}

// Hierarchy is the full partition structure shared (by value) between all
// processes. Every process is expected to hold an identical copy.
type Hierarchy struct {
	levels   []Level
	tileSize IntVect
	tiles    [][][]Box

	generation atomic.Uint64
}

// NewHierarchy validates a set of levels and returns a Hierarchy at
// generation 1. tileSize gives the size of the tiles grids are split into.
func NewHierarchy(levels []Level, tileSize IntVect) (*Hierarchy, error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("A hierarchy needs at least one level.")
	}
	for dim := 0; dim < 3; dim++ {
		if tileSize[dim] < 1 {
			return nil, fmt.Errorf("Tile size %v has a non-positive "+
				"component.", tileSize)
		}
	}

	h := &Hierarchy{
		levels: make([]Level, len(levels)), tileSize: tileSize,
		tiles: make([][][]Box, len(levels)),
	}
	for lev := range levels {
		l := levels[lev]
		if lev == 0 {
			l.RefRatio = Uniform(1)
		}
		if err := h.setLevel(lev, l); err != nil {
			return nil, err
		}
	}

	for lev := 1; lev < len(levels); lev++ {
		r := h.levels[lev].RefRatio
		want := h.levels[lev-1].Geom.Domain.Refine(r)
		if h.levels[lev].Geom.Domain != want {
			return nil, fmt.Errorf("Level %d has domain %s, but refining "+
				"level %d's domain by %v gives %s.", lev,
				h.levels[lev].Geom.Domain, lev-1, r, want)
		}
	}

	h.generation.Store(1)
	return h, nil
}

// setLevel checks and installs a single level.
func (h *Hierarchy) setLevel(lev int, l Level) error {
	if len(l.Grids) != len(l.DMap) {
		return fmt.Errorf("Level %d has %d grids but a distribution map "+
			"of length %d.", lev, len(l.Grids), len(l.DMap))
	}
	for dim := 0; dim < 3; dim++ {
		if l.RefRatio[dim] < 1 {
			return fmt.Errorf("Level %d has refinement ratio %v.",
				lev, l.RefRatio)
		}
	}

	for i, b := range l.Grids {
		if !b.Ok() {
			return fmt.Errorf("Grid %d on level %d, %s, is empty.", i, lev, b)
		} else if !l.Geom.Domain.ContainsBox(b) {
			return fmt.Errorf("Grid %d on level %d, %s, is not inside "+
				"the domain %s.", i, lev, b, l.Geom.Domain)
		} else if l.DMap[i] < 0 {
			return fmt.Errorf("Grid %d on level %d is assigned to "+
				"process %d.", i, lev, l.DMap[i])
		}
		for j := 0; j < i; j++ {
			if b.Intersects(l.Grids[j]) {
				return fmt.Errorf("Grids %d and %d on level %d overlap.",
					j, i, lev)
			}
		}
	}

	tiles := make([][]Box, len(l.Grids))
	for i, b := range l.Grids {
		tiles[i] = b.Tiles(h.tileSize)
	}

	l.Grids = append([]Box{}, l.Grids...)
	l.DMap = append([]int{}, l.DMap...)
	h.levels[lev] = l
	h.tiles[lev] = tiles
	return nil
}

// Clone returns an independent copy of the hierarchy, including its
// generation. This is how each process gets its own replica.
func (h *Hierarchy) Clone() *Hierarchy {
	out := &Hierarchy{
		levels: append([]Level{}, h.levels...), tileSize: h.tileSize,
		tiles: append([][][]Box{}, h.tiles...),
	}
	out.generation.Store(h.generation.Load())
	return out
}

// Generation returns the current partition generation. It advances on every
// successful Regrid.
func (h *Hierarchy) Generation() uint64 { return h.generation.Load() }

// Regrid replaces the grids and distribution map of a level and advances the
// generation. It must not be called while an exchange is in progress.
func (h *Hierarchy) Regrid(lev int, grids []Box, dmap []int) error {
	if lev < 0 || lev >= len(h.levels) {
		return fmt.Errorf("Cannot regrid level %d of a %d-level hierarchy.",
			lev, len(h.levels))
	}
	l := h.levels[lev]
	l.Grids, l.DMap = grids, dmap
	if err := h.setLevel(lev, l); err != nil {
		return err
	}
	h.generation.Add(1)
	return nil
}

func (h *Hierarchy) NumLevels() int { return len(h.levels) }
func (h *Hierarchy) TileSize() IntVect { return h.tileSize }
func (h *Hierarchy) Level(lev int) Level { return h.levels[lev] }
func (h *Hierarchy) Geom(lev int) Geometry { return h.levels[lev].Geom }
func (h *Hierarchy) NumGrids(lev int) int { return len(h.levels[lev].Grids) }
func (h *Hierarchy) Grid(lev, grid int) Box { return h.levels[lev].Grids[grid] }

// Owner returns the process that owns a grid.
func (h *Hierarchy) Owner(lev, grid int) int { return h.levels[lev].DMap[grid] }

// Tiles returns the tiles of a grid. The returned slice must not be modified.
func (h *Hierarchy) Tiles(lev, grid int) []Box { return h.tiles[lev][grid] }

// TileOf returns the index of the tile of grid containing the cell iv.
func (h *Hierarchy) TileOf(lev, grid int, iv IntVect) int {
	return h.levels[lev].Grids[grid].TileIndex(h.tileSize, iv)
}

// LocalGrids returns the grids on a level owned by rank.
func (h *Hierarchy) LocalGrids(lev, rank int) []int {
	out := []int{}
	for i, p := range h.levels[lev].DMap {
		if p == rank {
			out = append(out, i)
		}
	}
	return out
}

// RefFactor returns the ratio between the cell sizes of level src and level
// dst, i.e. how many dst cells span one src cell if dst is finer, or how many
// src cells span one dst cell if dst is coarser. finer reports which case
// applies.
func (h *Hierarchy) RefFactor(src, dst int) (r IntVect, finer bool) {
	r = Uniform(1)
	lo, hi := min(src, dst), max(src, dst)
	for lev := lo + 1; lev <= hi; lev++ {
		r = r.Mul(h.levels[lev].RefRatio)
	}
	return r, dst > src
}

// GridsIntersecting returns the grids on a level which overlap b.
func (h *Hierarchy) GridsIntersecting(lev int, b Box) []int {
	out := []int{}
	for i, g := range h.levels[lev].Grids {
		if g.Intersects(b) {
			out = append(out, i)
		}
	}
	return out
}

// Locate finds the grid and tile which own pos on a level. ok is false if no
// grid covers pos. The position is not wrapped through periodic boundaries.
func (h *Hierarchy) Locate(lev int, pos [3]float64) (grid, tile int, ok bool) {
	iv := h.levels[lev].Geom.CellIndex(pos)
	for i, g := range h.levels[lev].Grids {
		if g.Contains(iv) {
			return i, g.TileIndex(h.tileSize, iv), true
		}
	}
	return -1, -1, false
}

// LocateFinest finds the finest level with a grid covering pos, along with
// the owning grid and tile on that level. Periodic positions must already be
// wrapped into the domain.
func (h *Hierarchy) LocateFinest(
	pos [3]float64,
) (lev, grid, tile int, ok bool) {
	for lev = len(h.levels) - 1; lev >= 0; lev-- {
		if grid, tile, ok = h.Locate(lev, pos); ok {
			return lev, grid, tile, true
		}
	}
	return -1, -1, -1, false
}
