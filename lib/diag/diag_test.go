package diag

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/phil-mansfield/neighbors/lib/geom"
	"github.com/phil-mansfield/neighbors/lib/particles"
)

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{4, 1, 3, 2})
	require.Equal(t, 4, s.N)
	require.InDelta(t, 2.5, s.Mean, 1e-12)
	require.InDelta(t, math.Sqrt(5.0/3), s.StdDev, 1e-12)
	require.Equal(t, 1.0, s.Min)
	require.Equal(t, 2.0, s.Median)
	require.Equal(t, 4.0, s.Max)

	require.Equal(t, Summary{}, Summarize(nil))
	require.Equal(t, Summary{N: 1, Mean: 7, Min: 7, Median: 7, Max: 7},
		Summarize([]float64{7}))
}

func box(t *testing.T, periodic bool) geom.Geometry {
	t.Helper()
	g, err := geom.NewGeometry(geom.NewBox(geom.IntVect{}, geom.Uniform(7)),
		[3]float64{0, 0, 0}, [3]float64{1, 1, 1},
		[3]bool{periodic, periodic, periodic})
	require.NoError(t, err)
	return g
}

func at(pos ...[3]float64) []particles.Particle {
	out := make([]particles.Particle, len(pos))
	for i := range pos {
		out[i] = particles.Particle{ID: int64(i), Pos: pos[i]}
	}
	return out
}

func TestAxisRatios(t *testing.T) {
	c := [3]float64{0.5, 0.5, 0.5}
	tests := []struct {
		ps     []particles.Particle
		ca, ba float64
	}{
		{at([3]float64{0.6, 0.5, 0.5}, [3]float64{0.4, 0.5, 0.5},
			[3]float64{0.5, 0.7, 0.5}, [3]float64{0.5, 0.3, 0.5},
			[3]float64{0.5, 0.5, 0.8}, [3]float64{0.5, 0.5, 0.2}), 1, 1},
		{at([3]float64{0.6, 0.5, 0.5}, [3]float64{0.4, 0.5, 0.5},
			[3]float64{0.7, 0.5, 0.5}, [3]float64{0.3, 0.5, 0.5}), 0, 0},
		{at([3]float64{0.6, 0.5, 0.5}), -1, -1},
	}

	for i := range tests {
		ca, ba, err := AxisRatios(tests[i].ps, box(t, false), c)
		require.NoError(t, err)
		if math.Abs(ca-tests[i].ca) > 1e-6 || math.Abs(ba-tests[i].ba) > 1e-6 {
			t.Errorf("%d) Expected c/a = %g, b/a = %g, got %g, %g.",
				i, tests[i].ca, tests[i].ba, ca, ba)
		}
	}

	// The same line wrapped across a periodic boundary.
	ps := at([3]float64{0.1, 0, 0}, [3]float64{0.9, 0, 0},
		[3]float64{0.2, 0, 0}, [3]float64{0.8, 0, 0})
	ca, ba, err := AxisRatios(ps, box(t, true), [3]float64{})
	require.NoError(t, err)
	require.InDelta(t, 0, ca, 1e-6)
	require.InDelta(t, 0, ba, 1e-6)
}

func TestPotential(t *testing.T) {
	require.Empty(t, Potential(nil, box(t, true), 0.01))

	ps := at([3]float64{0.95, 0.5, 0.5}, [3]float64{0.05, 0.5, 0.5})
	pe := Potential(ps, box(t, true), 0.01)
	require.Len(t, pe, 2)
	require.InDelta(t, pe[0], pe[1], 1e-9*math.Abs(pe[0])+1e-12)
	require.NotZero(t, pe[0])
}

func TestHistogram(t *testing.T) {
	name := filepath.Join(t.TempDir(), "counts.png")
	require.NoError(t, Histogram([]float64{1, 2, 2, 3, 3, 3}, "test", name))
	info, err := os.Stat(name)
	require.NoError(t, err)
	require.NotZero(t, info.Size())

	require.Error(t, Histogram(nil, "empty", name))
}
