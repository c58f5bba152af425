/*package particles contains the particle record carried between processes, the
per-tile particle store that owns them, and the fixed binary record format used
to send particle copies over the wire.*/
package particles

/* particle.go contains the Particle type and the Layout describing its
per-particle components. */

import (
	"fmt"
	"slices"
)

// Particle is a single particle. Pos, ID and CPU are always present. Real and
// Int hold the user components described by a Layout.
type Particle struct {
	Pos  [3]float64
	ID   int64
	CPU  int32
	Real []float64
	Int  []int32
}

// Layout gives the number of real and integer components each particle
// carries and which of them are sent when a particle is copied as a neighbor.
type Layout struct {
	NReal, NInt int
	// CommReal and CommInt have lengths NReal and NInt. A false entry means
	// the component is zero in neighbor copies.
	CommReal, CommInt []bool
}

// NewLayout returns a Layout where every component is communicated.
func NewLayout(nReal, nInt int) Layout {
	l := Layout{
		NReal: nReal, NInt: nInt,
		CommReal: make([]bool, nReal), CommInt: make([]bool, nInt),
	}
	for i := range l.CommReal {
		l.CommReal[i] = true
	}
	for i := range l.CommInt {
		l.CommInt[i] = true
	}
	return l
}

// Clone returns a deep copy of the layout.
func (l Layout) Clone() Layout {
	return Layout{
		NReal: l.NReal, NInt: l.NInt,
		CommReal: append([]bool{}, l.CommReal...),
		CommInt:  append([]bool{}, l.CommInt...),
	}
}

// Check returns an error if the mask lengths disagree with the component
// counts.
func (l Layout) Check() error {
	if l.NReal < 0 || l.NInt < 0 {
		return fmt.Errorf("Layout has %d real and %d int components.",
			l.NReal, l.NInt)
	} else if len(l.CommReal) != l.NReal {
		return fmt.Errorf("Layout has %d real components, but a "+
			"communication mask of length %d.", l.NReal, len(l.CommReal))
	} else if len(l.CommInt) != l.NInt {
		return fmt.Errorf("Layout has %d int components, but a "+
			"communication mask of length %d.", l.NInt, len(l.CommInt))
	}
	return nil
}

// NumCommReal returns the number of real components sent per particle.
func (l Layout) NumCommReal() int { return countTrue(l.CommReal) }

// NumCommInt returns the number of integer components sent per particle.
func (l Layout) NumCommInt() int { return countTrue(l.CommInt) }

func countTrue(x []bool) int {
	n := 0
	for _, b := range x {
		if b {
			n++
		}
	}
	return n
}

// New returns a particle with zeroed components matching the layout.
func (l Layout) New() Particle {
	return Particle{Real: make([]float64, l.NReal), Int: make([]int32, l.NInt)}
}

// CheckParticle returns an error if p does not match the layout.
func (l Layout) CheckParticle(p *Particle) error {
	if len(p.Real) != l.NReal || len(p.Int) != l.NInt {
		return fmt.Errorf("Particle %d has %d real and %d int components, "+
			"but the layout expects %d and %d.", p.ID, len(p.Real),
			len(p.Int), l.NReal, l.NInt)
	}
	return nil
}

// NeighborCopy returns a copy of p that shares no memory with it and which
// has every component outside the communication masks set to zero. The
// position is replaced by pos.
func (l Layout) NeighborCopy(p *Particle, pos [3]float64) Particle {
	out := Particle{
		Pos: pos, ID: p.ID, CPU: p.CPU,
		Real: make([]float64, l.NReal), Int: make([]int32, l.NInt),
	}
	for i, on := range l.CommReal {
		if on {
			out.Real[i] = p.Real[i]
		}
	}
	for i, on := range l.CommInt {
		if on {
			out.Int[i] = p.Int[i]
		}
	}
	return out
}

// Copy returns a deep copy of p.
func (p *Particle) Copy() Particle {
	out := *p
	out.Real = slices.Clone(p.Real)
	out.Int = slices.Clone(p.Int)
	return out
}
