package neighbor

/* list.go builds per-particle neighbor lists from filled neighbor buffers. */

import (
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/phil-mansfield/neighbors/lib/geom"
	"github.com/phil-mansfield/neighbors/lib/particles"
)

// PairChecker decides whether two particles are neighbors. Pair is called
// concurrently from several goroutines.
type PairChecker interface {
	Pair(a, b *particles.Particle) bool
}

// Cutoff accepts pairs separated by at most R. Buffered copies are already
// shifted into the tile's periodic image, so no minimum-image correction is
// needed.
type Cutoff struct {
	R float64
}

func (c Cutoff) Pair(a, b *particles.Particle) bool {
	d := r3.Sub(r3.Vec{X: a.Pos[0], Y: a.Pos[1], Z: a.Pos[2]},
		r3.Vec{X: b.Pos[0], Y: b.Pos[1], Z: b.Pos[2]})
	return r3.Norm2(d) <= c.R*c.R
}

// PairFunc adapts a function to PairChecker.
type PairFunc func(a, b *particles.Particle) bool

func (f PairFunc) Pair(a, b *particles.Particle) bool { return f(a, b) }

// NeighborList holds the neighbors of every local particle in one tile as
// indices into the tile's combined array: local particles first, followed by
// the neighbor buffer.
type NeighborList struct {
	offsets []int
	indices []int
}

// Len returns the number of local particles the list covers.
func (l *NeighborList) Len() int { return len(l.offsets) - 1 }

// Neighbors returns the combined-array indices of particle i's neighbors.
func (l *NeighborList) Neighbors(i int) []int {
	return l.indices[l.offsets[i]:l.offsets[i+1]]
}

// Pairs returns the total number of entries in the list.
func (l *NeighborList) Pairs() int { return len(l.indices) }

// Flatten returns the list in the form [n_0, j..., n_1, j..., ...], where n_i
// is the neighbor count of particle i and is followed by its neighbors.
func (l *NeighborList) Flatten() []int {
	out := make([]int, 0, l.Len()+len(l.indices))
	for i := 0; i < l.Len(); i++ {
		nb := l.Neighbors(i)
		out = append(out, len(nb))
		out = append(out, nb...)
	}
	return out
}

// BuildNeighborList builds the neighbor list of every local tile from the
// current neighbor buffers. If sort is true, candidates are visited in order
// of the cell they sit in, which improves locality on large tiles. The set of
// neighbors found is the same either way, only the order within each
// particle's list changes.
func BuildNeighborList[C PairChecker](e *Engine, check C, sort bool) error {
	if e.state == Failed {
		return e.err
	} else if e.state != BuffersFilled && e.state != ListsBuilt {
		return fmt.Errorf("%w: neighbor lists need filled buffers, but the "+
			"engine is in state %s", ErrConfig, e.state)
	}

	keys := e.store.Keys()
	lists := make([]*NeighborList, len(keys))
	g := new(errgroup.Group)
	g.SetLimit(e.cfg.threads())
	for i, k := range keys {
		g.Go(func() error {
			local, nbrs := e.store.Tile(k), e.neighbors[k]
			var order []int
			if sort {
				order = cellOrder(e.hier.Geom(k.Level), local, nbrs)
			}
			lists[i] = buildList(check, local, nbrs, order)
			return nil
		})
	}
	// Pair never returns errors, so neither does Wait.
	_ = g.Wait()

	pairs := 0
	e.lists = make(map[particles.TileKey]*NeighborList, len(keys))
	for i, k := range keys {
		e.lists[k] = lists[i]
		pairs += lists[i].Pairs()
	}
	listPairsTotal.WithLabelValues(e.label).Add(float64(pairs))
	e.state = ListsBuilt
	return nil
}

// BuildNeighborListFunc is BuildNeighborList with a plain function as the
// predicate.
func (e *Engine) BuildNeighborListFunc(fn PairFunc, sort bool) error {
	return BuildNeighborList(e, fn, sort)
}

// buildList does the quadratic scan for one tile. If order is non-nil,
// candidates are visited in that order.
func buildList[C PairChecker](
	check C, local, nbrs []particles.Particle, order []int,
) *NeighborList {
	n := len(local) + len(nbrs)
	at := func(j int) *particles.Particle {
		if j < len(local) {
			return &local[j]
		}
		return &nbrs[j-len(local)]
	}

	l := &NeighborList{offsets: make([]int, 1, len(local)+1)}
	for i := range local {
		for jj := 0; jj < n; jj++ {
			j := jj
			if order != nil {
				j = order[jj]
			}
			if j != i && check.Pair(&local[i], at(j)) {
				l.indices = append(l.indices, j)
			}
		}
		l.offsets = append(l.offsets, len(l.indices))
	}
	return l
}

// cellOrder returns the combined-array indices sorted by the cell each
// particle lies in. Ties keep their original order.
func cellOrder(g geom.Geometry, local, nbrs []particles.Particle) []int {
	n := len(local) + len(nbrs)
	cells := make([]geom.IntVect, n)
	order := make([]int, n)
	for j := range order {
		order[j] = j
		if j < len(local) {
			cells[j] = g.CellIndex(local[j].Pos)
		} else {
			cells[j] = g.CellIndex(nbrs[j-len(local)].Pos)
		}
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cells[a].Compare(cells[b])
	})
	return order
}

