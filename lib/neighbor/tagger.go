package neighbor

/* tagger.go computes, for a single particle, the set of tiles its copies must
be sent to. */

import (
	"slices"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/phil-mansfield/neighbors/lib/geom"
	"github.com/phil-mansfield/neighbors/lib/mask"
)

// Tagger computes CopyTags. It is safe for concurrent use as long as the
// hierarchy isn't regridded.
type Tagger struct {
	hier   *geom.Hierarchy
	mask   *mask.DomainMask
	radius geom.IntVect
	policy ImagePolicy
}

// NewTagger creates a tagger. If m is nil, tags on the particle's own level
// are found by intersecting boxes with the grid list instead of reading the
// mask. Both give the same tags.
func NewTagger(
	h *geom.Hierarchy, m *mask.DomainMask, radius geom.IntVect,
	policy ImagePolicy,
) *Tagger {
	return &Tagger{hier: h, mask: m, radius: radius, policy: policy}
}

// Tags appends the tags for a particle at pos, owned by tile (lev, grid,
// tile), to out and returns it. out is sorted and deduplicated; the entries
// already in out when Tags is called are discarded.
func (t *Tagger) Tags(
	lev, grid, tile int, pos [3]float64, out []CopyTag,
) []CopyTag {
	out = out[:0]
	g := t.hier.Geom(lev)
	c := g.CellIndex(pos)
	nb := geom.NewBox(c.Sub(t.radius), c.Add(t.radius))

	start := len(out)
	if t.mask != nil {
		out = t.maskTags(lev, grid, nb, out)
	} else {
		out = t.boxTags(lev, nb, out)
	}
	// The particle's own tile only needs copies through nonzero shifts.
	own := out[start:]
	own = slices.DeleteFunc(own, func(tag CopyTag) bool {
		return tag.Grid == grid && tag.Tile == tile && tag.Shift.IsZero()
	})
	out = out[:start+len(own)]

	for lev2 := 0; lev2 < t.hier.NumLevels(); lev2++ {
		if lev2 == lev {
			continue
		}
		r, finer := t.hier.RefFactor(lev, lev2)
		var b geom.Box
		if finer {
			b = nb.Refine(r)
		} else {
			b = nb.Coarsen(r)
		}
		out = t.boxTags(lev2, b, out)
	}

	slices.SortFunc(out, CopyTag.Compare)
	out = slices.Compact(out)
	if t.policy == DedupImages {
		out = t.nearestImages(g.CellCenter(c), out)
	}
	return out
}

// nearestImages keeps one tag per tile in a sorted tag list: the one whose
// shifted copy of center lies closest to the tile's center. Ties go to the
// smallest shift. Distances are measured from the cell center rather than
// the particle so that moving within a cell never changes the tags.
func (t *Tagger) nearestImages(center [3]float64, tags []CopyTag) []CopyTag {
	out := tags[:0]
	best := -1.0
	for _, tag := range tags {
		g := t.hier.Geom(tag.Level)
		tb := t.hier.Tiles(tag.Level, tag.Grid)[tag.Tile]
		d2 := r3.Norm2(r3.Sub(vec(g.BoxCenter(tb)),
			vec(g.ShiftPosition(center, tag.Shift))))

		if n := len(out); n > 0 && out[n-1].Key() == tag.Key() {
			if d2 < best {
				out[n-1], best = tag, d2
			}
			continue
		}
		out, best = append(out, tag), d2
	}
	return out
}

// maskTags reads the owners of every cell in nb from the mask of grid.
func (t *Tagger) maskTags(
	lev, grid int, nb geom.Box, out []CopyTag,
) []CopyTag {
	var buf [64]mask.Entry
	entries := t.mask.Entries(lev, grid, nb, buf[:0])
	for _, e := range entries {
		if e.Covered() {
			out = append(out, CopyTag{lev, e.Grid, e.Tile, e.Shift})
		}
	}
	return out
}

// boxTags finds every tile on lev overlapping b, or one of b's periodic
// images.
func (t *Tagger) boxTags(lev int, b geom.Box, out []CopyTag) []CopyTag {
	g := t.hier.Geom(lev)
	size := g.Domain.Size()
	for _, s := range g.Images(b) {
		shifted := b.Shift(s.Mul(size).Mul(geom.Uniform(-1)))
		for _, j := range t.hier.GridsIntersecting(lev, shifted) {
			isect, _ := shifted.Intersect(t.hier.Grid(lev, j))
			for k, tb := range t.hier.Tiles(lev, j) {
				if tb.Intersects(isect) {
					out = append(out, CopyTag{lev, j, k, s})
				}
			}
		}
	}
	return out
}

func vec(x [3]float64) r3.Vec { return r3.Vec{X: x[0], Y: x[1], Z: x[2]} }
