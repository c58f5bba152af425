/*package mask contains DomainMask, a per-cell lookup table which records, for
every cell in the halo around a locally owned grid, which grid and tile own
that cell and which periodic image it was reached through.
*/
package mask

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/phil-mansfield/neighbors/lib/geom"
)

// Entry is the owner of one cell of the mask. Grid and Tile are -1 when the
// cell is outside the domain along a non-periodic dimension or is not covered
// by any grid on the level.
type Entry struct {
	Grid, Tile int
	// Shift is the periodic image the cell lies in; the owning cell is the
	// masked cell minus Shift times the domain size.
	Shift geom.IntVect
}

// Covered returns true if the entry names an owning tile.
func (e Entry) Covered() bool { return e.Grid >= 0 }

// HaloFiller computes mask entries for the cells of region, which is a grid
// grown by the halo radius. out has region.NumCells() elements and is indexed
// with region.Index.
type HaloFiller interface {
	Fill(h *geom.Hierarchy, lev int, region geom.Box, out []Entry) error
}

// GeometricFiller is the default HaloFiller. It resolves each cell directly
// against the hierarchy's replicated grid list, wrapping through periodic
// boundaries.
type GeometricFiller struct{}

var _ HaloFiller = GeometricFiller{}

func (GeometricFiller) Fill(
	h *geom.Hierarchy, lev int, region geom.Box, out []Entry,
) error {
	if len(out) != region.NumCells() {
		return fmt.Errorf("Mask region %s has %d cells, but the output "+
			"buffer has length %d.", region, region.NumCells(), len(out))
	}

	g := h.Geom(lev)
	// Grids overlapping some image of the region. Checking only these keeps
	// the per-cell search short.
	candidates := []int{}
	for _, s := range g.Images(region) {
		shifted := region.Shift(s.Mul(g.Domain.Size()).Mul(geom.Uniform(-1)))
		candidates = append(candidates, h.GridsIntersecting(lev, shifted)...)
	}

	for i := range out {
		iv := region.Cell(i)
		wrapped, s, ok := g.Wrap(iv)
		out[i] = Entry{Grid: -1, Tile: -1}
		if !ok {
			continue
		}
		for _, j := range candidates {
			if h.Grid(lev, j).Contains(wrapped) {
				out[i] = Entry{Grid: j, Tile: h.TileOf(lev, j, wrapped), Shift: s}
				break
			}
		}
	}
	return nil
}

// DomainMask holds one mask per locally owned grid on every level.
type DomainMask struct {
	radius     geom.IntVect
	generation uint64
	regions    []map[int]geom.Box
	entries    []map[int][]Entry
}

// Build creates the mask for every grid owned by rank. Grids are filled in
// parallel, using at most threads goroutines.
func Build(
	ctx context.Context, h *geom.Hierarchy, rank int, radius geom.IntVect,
	filler HaloFiller, threads int,
) (*DomainMask, error) {
	if filler == nil {
		filler = GeometricFiller{}
	}
	m := &DomainMask{
		radius: radius, generation: h.Generation(),
		regions: make([]map[int]geom.Box, h.NumLevels()),
		entries: make([]map[int][]Entry, h.NumLevels()),
	}

	for lev := 0; lev < h.NumLevels(); lev++ {
		grids := h.LocalGrids(lev, rank)
		m.regions[lev] = make(map[int]geom.Box, len(grids))
		m.entries[lev] = make(map[int][]Entry, len(grids))
		out := make([][]Entry, len(grids))

		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(threads)
		for i, grid := range grids {
			region := h.Grid(lev, grid).Grow(radius)
			m.regions[lev][grid] = region
			g.Go(func() error {
				if err := gCtx.Err(); err != nil {
					return err
				}
				out[i] = make([]Entry, region.NumCells())
				return filler.Fill(h, lev, region, out[i])
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		for i, grid := range grids {
			m.entries[lev][grid] = out[i]
		}
	}

	return m, nil
}

// Radius returns the halo radius the mask was built with.
func (m *DomainMask) Radius() geom.IntVect { return m.radius }

// Generation returns the hierarchy generation the mask was built at.
func (m *DomainMask) Generation() uint64 { return m.generation }

// Region returns the halo region of a local grid and whether the grid has a
// mask at all.
func (m *DomainMask) Region(lev, grid int) (geom.Box, bool) {
	b, ok := m.regions[lev][grid]
	return b, ok
}

// Lookup returns the entry for cell iv in the mask of a local grid. ok is
// false if the grid has no mask or iv is outside its halo region.
func (m *DomainMask) Lookup(lev, grid int, iv geom.IntVect) (e Entry, ok bool) {
	region, ok := m.regions[lev][grid]
	if !ok || !region.Contains(iv) {
		return Entry{Grid: -1, Tile: -1}, false
	}
	return m.entries[lev][grid][region.Index(iv)], true
}

// Entries returns the entries of every cell in box b, which must lie inside
// the halo region of the grid. They are appended to out in region order.
func (m *DomainMask) Entries(lev, grid int, b geom.Box, out []Entry) []Entry {
	region := m.regions[lev][grid]
	b, ok := b.Intersect(region)
	if !ok {
		return out
	}
	es := m.entries[lev][grid]
	for z := b.Lo[2]; z <= b.Hi[2]; z++ {
		for y := b.Lo[1]; y <= b.Hi[1]; y++ {
			i0 := region.Index(geom.IntVect{b.Lo[0], y, z})
			out = append(out, es[i0:i0+b.Hi[0]-b.Lo[0]+1]...)
		}
	}
	return out
}
