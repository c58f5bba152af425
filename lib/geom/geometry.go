package geom

/* geometry.go maps between physical coordinates and cell indices and handles
periodic images of the problem domain. */

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Geometry describes the physical extent of one level. Domain is the box of
// cells covering [ProbLo, ProbHi). Cells are half-open in physical space: a
// coordinate exactly on a cell face belongs to the upper cell.
type Geometry struct {
	Domain         Box
	ProbLo, ProbHi [3]float64
	Periodic       [3]bool
}

// NewGeometry creates a Geometry after checking that it is well formed.
func NewGeometry(
	domain Box, lo, hi [3]float64, periodic [3]bool,
) (Geometry, error) {
	g := Geometry{domain, lo, hi, periodic}
	if !domain.Ok() {
		return g, fmt.Errorf("The domain box %s contains no cells.", domain)
	}
	for dim := 0; dim < 3; dim++ {
		if !(hi[dim] > lo[dim]) {
			return g, fmt.Errorf("ProbHi[%d] = %g is not larger than "+
				"ProbLo[%d] = %g.", dim, hi[dim], dim, lo[dim])
		}
	}
	return g, nil
}

// Length returns the physical width of the domain along dim.
func (g Geometry) Length(dim int) float64 { return g.ProbHi[dim] - g.ProbLo[dim] }

// CellSize returns the physical width of a cell along each dimension.
func (g Geometry) CellSize() [3]float64 {
	s := g.Domain.Size()
	return [3]float64{
		g.Length(0) / float64(s[0]),
		g.Length(1) / float64(s[1]),
		g.Length(2) / float64(s[2]),
	}
}

// IsPeriodic returns true if any dimension is periodic.
func (g Geometry) IsPeriodic() bool {
	return g.Periodic[0] || g.Periodic[1] || g.Periodic[2]
}

// CellIndex returns the index of the cell containing pos. Positions outside
// the domain map to cells outside the domain box. This is the single
// boundary convention used for both ownership and neighbor tagging.
func (g Geometry) CellIndex(pos [3]float64) IntVect {
	dx := g.CellSize()
	iv := IntVect{}
	for dim := 0; dim < 3; dim++ {
		iv[dim] = int(math.Floor((pos[dim]-g.ProbLo[dim])/dx[dim])) +
			g.Domain.Lo[dim]
	}
	return iv
}

// CellCenter returns the physical center of a cell.
func (g Geometry) CellCenter(iv IntVect) [3]float64 {
	dx := g.CellSize()
	var out [3]float64
	for dim := 0; dim < 3; dim++ {
		out[dim] = g.ProbLo[dim] +
			(float64(iv[dim]-g.Domain.Lo[dim])+0.5)*dx[dim]
	}
	return out
}

// BoxCenter returns the physical center of a box of cells.
func (g Geometry) BoxCenter(b Box) [3]float64 {
	dx := g.CellSize()
	var out [3]float64
	for dim := 0; dim < 3; dim++ {
		mid := float64(b.Lo[dim]+b.Hi[dim]+1) / 2
		out[dim] = g.ProbLo[dim] + (mid-float64(g.Domain.Lo[dim]))*dx[dim]
	}
	return out
}

// Refine returns the geometry of a level r times finer than g.
func (g Geometry) Refine(r IntVect) Geometry {
	return Geometry{g.Domain.Refine(r), g.ProbLo, g.ProbHi, g.Periodic}
}

// Wrap maps a cell index into the domain through periodic boundaries. The
// returned shift s is the lattice image iv lies in: iv = wrapped + s*size. ok
// is false if iv is outside the domain along a non-periodic dimension.
func (g Geometry) Wrap(iv IntVect) (wrapped, s IntVect, ok bool) {
	size := g.Domain.Size()
	wrapped = iv
	for dim := 0; dim < 3; dim++ {
		if iv[dim] >= g.Domain.Lo[dim] && iv[dim] <= g.Domain.Hi[dim] {
			continue
		}
		if !g.Periodic[dim] {
			return iv, IntVect{}, false
		}
		s[dim] = coarsenInt(iv[dim]-g.Domain.Lo[dim], size[dim])
		wrapped[dim] = iv[dim] - s[dim]*size[dim]
	}
	return wrapped, s, true
}

// Images returns every lattice shift s for which b overlaps the periodic
// image of the domain shifted by s. The zero shift is included when b
// overlaps the domain itself. Non-periodic dimensions only ever have a zero
// shift.
func (g Geometry) Images(b Box) []IntVect {
	size := g.Domain.Size()
	var lo, hi IntVect
	for dim := 0; dim < 3; dim++ {
		if g.Periodic[dim] {
			lo[dim] = coarsenInt(b.Lo[dim]-g.Domain.Lo[dim], size[dim])
			hi[dim] = coarsenInt(b.Hi[dim]-g.Domain.Lo[dim], size[dim])
		}
	}

	out := []IntVect{}
	for sz := lo[2]; sz <= hi[2]; sz++ {
		for sy := lo[1]; sy <= hi[1]; sy++ {
			for sx := lo[0]; sx <= hi[0]; sx++ {
				s := IntVect{sx, sy, sz}
				if b.Intersects(g.Domain.Shift(s.Mul(size))) {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

// ShiftPosition returns the position of the periodic image of pos which
// lives in the image named by s, i.e. pos - s*L. This is the translation
// applied to a particle copied into a tile through a periodic boundary.
func (g Geometry) ShiftPosition(pos [3]float64, s IntVect) [3]float64 {
	out := pos
	for dim := 0; dim < 3; dim++ {
		out[dim] -= float64(s[dim]) * g.Length(dim)
	}
	return out
}

// MinimumImage returns the displacement b - a, mapped onto its shortest
// periodic image along the periodic dimensions.
func (g Geometry) MinimumImage(a, b [3]float64) r3.Vec {
	d := [3]float64{b[0] - a[0], b[1] - a[1], b[2] - a[2]}
	for dim := 0; dim < 3; dim++ {
		if !g.Periodic[dim] {
			continue
		}
		L := g.Length(dim)
		if d[dim] > L/2 {
			d[dim] -= L
		} else if d[dim] < -L/2 {
			d[dim] += L
		}
	}
	return r3.Vec{X: d[0], Y: d[1], Z: d[2]}
}
