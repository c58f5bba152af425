package particles

/* store.go contains Store, the per-tile container of the particles owned by
one process. */

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/phil-mansfield/neighbors/lib/geom"
)

// TileKey names a tile: the level, the grid within the level, and the tile
// within the grid.
type TileKey struct {
	Level, Grid, Tile int
}

// Less orders keys by level, then grid, then tile.
func (k TileKey) Less(o TileKey) bool {
	if k.Level != o.Level {
		return k.Level < o.Level
	} else if k.Grid != o.Grid {
		return k.Grid < o.Grid
	}
	return k.Tile < o.Tile
}

// Compare returns -1, 0, or +1 in the same order as Less.
func (k TileKey) Compare(o TileKey) int {
	return cmp.Or(cmp.Compare(k.Level, o.Level), cmp.Compare(k.Grid, o.Grid),
		cmp.Compare(k.Tile, o.Tile))
}

func (k TileKey) String() string {
	return fmt.Sprintf("(%d, %d, %d)", k.Level, k.Grid, k.Tile)
}

// Store holds the particles owned by one process, grouped by tile. A Store is
// not safe for concurrent mutation, but concurrent reads of different tiles
// are fine.
type Store struct {
	layout Layout
	tiles  map[TileKey][]Particle
}

// NewStore creates an empty store for particles with the given layout.
func NewStore(layout Layout) (*Store, error) {
	if err := layout.Check(); err != nil {
		return nil, err
	}
	return &Store{layout: layout.Clone(), tiles: map[TileKey][]Particle{}}, nil
}

// Layout returns the particle layout. The comm masks may be changed through
// SetCommReal and SetCommInt.
func (s *Store) Layout() Layout { return s.layout.Clone() }

// SetCommReal turns communication of real component i on or off.
func (s *Store) SetCommReal(i int, on bool) error {
	if i < 0 || i >= s.layout.NReal {
		return fmt.Errorf("Real component %d does not exist; the layout "+
			"has %d.", i, s.layout.NReal)
	}
	s.layout.CommReal[i] = on
	return nil
}

// SetCommInt turns communication of integer component i on or off.
func (s *Store) SetCommInt(i int, on bool) error {
	if i < 0 || i >= s.layout.NInt {
		return fmt.Errorf("Int component %d does not exist; the layout "+
			"has %d.", i, s.layout.NInt)
	}
	s.layout.CommInt[i] = on
	return nil
}

// Tile returns the particles in a tile. The slice is owned by the store.
func (s *Store) Tile(key TileKey) []Particle { return s.tiles[key] }

// SetTile replaces the contents of a tile.
func (s *Store) SetTile(key TileKey, ps []Particle) {
	if len(ps) == 0 {
		delete(s.tiles, key)
		return
	}
	s.tiles[key] = ps
}

// Append adds particles to a tile after checking them against the layout.
func (s *Store) Append(key TileKey, ps ...Particle) error {
	for i := range ps {
		if err := s.layout.CheckParticle(&ps[i]); err != nil {
			return err
		}
	}
	s.tiles[key] = append(s.tiles[key], ps...)
	return nil
}

// Keys returns every non-empty tile in sorted order.
func (s *Store) Keys() []TileKey {
	keys := make([]TileKey, 0, len(s.tiles))
	for k, ps := range s.tiles {
		if len(ps) > 0 {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, TileKey.Compare)
	return keys
}

// Len returns the total number of particles in the store.
func (s *Store) Len() int {
	n := 0
	for _, ps := range s.tiles {
		n += len(ps)
	}
	return n
}

// Clear removes every particle.
func (s *Store) Clear() { s.tiles = map[TileKey][]Particle{} }

// TakeAll empties the store and returns the particles it held, in key order.
func (s *Store) TakeAll() []Particle {
	out := make([]Particle, 0, s.Len())
	for _, k := range s.Keys() {
		out = append(out, s.tiles[k]...)
	}
	s.Clear()
	return out
}

// Place wraps p's position through the periodic boundaries of the hierarchy
// and returns the tile on the finest level that owns it. An error is returned
// if the particle lies outside the domain along a non-periodic dimension or
// if its position is not finite.
func Place(h *geom.Hierarchy, p *Particle) (TileKey, error) {
	g := h.Geom(0)
	for dim := 0; dim < 3; dim++ {
		x := p.Pos[dim]
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return TileKey{}, fmt.Errorf("Particle %d has the non-finite "+
				"position %v.", p.ID, p.Pos)
		}
		if g.Periodic[dim] {
			p.Pos[dim] = wrapPosition(x, g.ProbLo[dim], g.ProbHi[dim])
		}
	}

	lev, grid, tile, ok := h.LocateFinest(p.Pos)
	if !ok {
		return TileKey{}, fmt.Errorf("Particle %d at %v is outside the "+
			"domain.", p.ID, p.Pos)
	}
	return TileKey{lev, grid, tile}, nil
}

// Add places p with Place and appends it to the owning tile. The owning tile
// must belong to rank according to the hierarchy's distribution map.
func (s *Store) Add(h *geom.Hierarchy, rank int, p Particle) error {
	key, err := Place(h, &p)
	if err != nil {
		return err
	}
	if owner := h.Owner(key.Level, key.Grid); owner != rank {
		return fmt.Errorf("Particle %d belongs to tile %s on process %d, "+
			"not process %d.", p.ID, key, owner, rank)
	}
	return s.Append(key, p)
}

// wrapPosition maps x into [lo, hi) along a periodic dimension.
func wrapPosition(x, lo, hi float64) float64 {
	if x >= lo && x < hi {
		return x
	}
	L := hi - lo
	x = lo + (x - lo) - L*math.Floor((x-lo)/L)
	// Rounding can leave x on either edge.
	if x >= hi {
		x = math.Nextafter(hi, lo)
	} else if x < lo {
		x = lo
	}
	return x
}
