/*package diag computes summary statistics of a particle run: the distribution
of neighbor list lengths, the shape of the particle distribution, and a tree
estimate of the gravitational potential.
*/
package diag

import (
	"fmt"
	"math"
	"slices"

	"github.com/phil-mansfield/gravitree"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/phil-mansfield/neighbors/lib/geom"
	"github.com/phil-mansfield/neighbors/lib/neighbor"
	"github.com/phil-mansfield/neighbors/lib/particles"
)

// Summary describes a sample of values.
type Summary struct {
	N int

	Mean, StdDev, Min, Median, Max float64
}

// Summarize returns a Summary of x. x is not modified.
func Summarize(x []float64) Summary {
	if len(x) == 0 {
		return Summary{}
	}
	sorted := slices.Clone(x)
	slices.Sort(sorted)
	s := Summary{
		N: len(x), Mean: stat.Mean(x, nil),
		Min: floats.Min(x), Max: floats.Max(x),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
	}
	if len(x) > 1 {
		s.StdDev = stat.StdDev(x, nil)
	}
	return s
}

// NeighborCounts returns the length of every neighbor list built by e, in
// tile order.
func NeighborCounts(e *neighbor.Engine, store *particles.Store) []float64 {
	out := []float64{}
	for _, k := range store.Keys() {
		nl := e.GetNeighborList(k.Level, k.Grid, k.Tile)
		if nl == nil {
			continue
		}
		for i := 0; i < nl.Len(); i++ {
			out = append(out, float64(len(nl.Neighbors(i))))
		}
	}
	return out
}

// Histogram writes a PNG histogram of x to fileName.
func Histogram(x []float64, title, fileName string) error {
	if len(x) == 0 {
		return fmt.Errorf("Cannot plot a histogram of zero values.")
	}
	bins := int(floats.Max(x)-floats.Min(x)) + 1
	bins = max(1, min(bins, 100))

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "neighbors"
	p.Y.Label.Text = "particles"

	h, err := plotter.NewHist(plotter.Values(x), bins)
	if err != nil {
		return err
	}
	p.Add(h)
	return p.Save(6*vg.Inch, 4*vg.Inch, fileName)
}

// AxisRatios returns the minor-to-major and intermediate-to-major axis ratios
// of the particle distribution around center. Periodic displacements are
// used along periodic dimensions. At least four particles are needed;
// otherwise -1, -1 is returned.
func AxisRatios(
	ps []particles.Particle, g geom.Geometry, center [3]float64,
) (ca, ba float64, err error) {
	if len(ps) < 4 {
		return -1, -1, nil
	}

	S := make([]float64, 9)
	n := 0
	for k := range ps {
		dx := g.MinimumImage(center, ps[k].Pos)
		r2 := dx.X*dx.X + dx.Y*dx.Y + dx.Z*dx.Z
		if r2 == 0 {
			continue
		}
		d := [3]float64{dx.X, dx.Y, dx.Z}
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				S[i+3*j] += d[i] * d[j] / r2
			}
		}
		n++
	}
	if n < 4 {
		return -1, -1, nil
	}
	for i := range S {
		S[i] /= float64(n)
	}

	eig := &mat.Eigen{}
	if ok := eig.Factorize(mat.NewDense(3, 3, S), mat.EigenNone); !ok {
		return -1, -1, fmt.Errorf("The shape tensor %v could not be "+
			"decomposed.", S)
	}
	val := eig.Values(make([]complex128, 3))
	a2, b2, c2 := sort3(real(val[0]), real(val[1]), real(val[2]))
	return math.Sqrt(c2 / a2), math.Sqrt(b2 / a2), nil
}

func sort3(x, y, z float64) (l1, l2, l3 float64) {
	lo, hi := min(x, y, z), max(x, y, z)
	return hi, (x + y + z) - (lo + hi), lo
}

// Potential returns the softened potential of every particle due to all the
// others, in units where G times the particle mass is one. Positions are
// taken relative to the first particle through the minimum image.
func Potential(
	ps []particles.Particle, g geom.Geometry, eps float64,
) []float64 {
	if len(ps) == 0 {
		return []float64{}
	}
	dx := make([][3]float64, len(ps))
	for i := range ps {
		d := g.MinimumImage(ps[0].Pos, ps[i].Pos)
		dx[i] = [3]float64{d.X, d.Y, d.Z}
	}

	tree := gravitree.NewTree(dx)
	pe := make([]float64, len(ps))
	tree.Potential(eps, pe)
	return pe
}
