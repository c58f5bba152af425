package neighbor

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/phil-mansfield/neighbors/lib/geom"
	"github.com/phil-mansfield/neighbors/lib/mask"
)

// twoLevel returns a periodic 8^3 level 0 held in a single grid with a 2x
// refined patch covering coarse cells 2 through 5.
func twoLevel(t *testing.T) *geom.Hierarchy {
	t.Helper()
	g0, err := geom.NewGeometry(geom.NewBox(geom.IntVect{}, geom.Uniform(7)),
		[3]float64{0, 0, 0}, [3]float64{1, 1, 1}, [3]bool{true, true, true})
	require.NoError(t, err)
	r := geom.Uniform(2)
	h, err := geom.NewHierarchy([]geom.Level{
		{Geom: g0, Grids: []geom.Box{geom.NewBox(geom.IntVect{}, geom.Uniform(7))},
			DMap: []int{0}},
		{Geom: g0.Refine(r), Grids: []geom.Box{
			geom.NewBox(geom.Uniform(4), geom.Uniform(11)),
		}, DMap: []int{0}, RefRatio: r},
	}, geom.Uniform(4))
	require.NoError(t, err)
	return h
}

func TestTaggerLevels(t *testing.T) {
	h := twoLevel(t)
	m, err := mask.Build(context.Background(), h, 0, geom.Uniform(1), nil, 1)
	require.NoError(t, err)

	tests := []struct {
		lev, grid, tile int
		pos             [3]float64
		out             []CopyTag
	}{
		// Coarse cell (1, 3, 3), next to the refined patch.
		{0, 0, 0, [3]float64{1.5 / 8, 3.5 / 8, 3.5 / 8}, []CopyTag{
			{0, 0, 2, geom.IntVect{}}, {0, 0, 4, geom.IntVect{}},
			{0, 0, 6, geom.IntVect{}},
			{1, 0, 0, geom.IntVect{}}, {1, 0, 2, geom.IntVect{}},
			{1, 0, 4, geom.IntVect{}}, {1, 0, 6, geom.IntVect{}},
		}},
		// Fine cell (4, 4, 4), the corner of the refined patch.
		{1, 0, 0, [3]float64{4.5 / 16, 4.5 / 16, 4.5 / 16}, []CopyTag{
			{0, 0, 0, geom.IntVect{}},
		}},
		// Coarse cell (0, 0, 0) sees seven periodic images of the far corner.
		{0, 0, 0, [3]float64{0.5 / 8, 0.5 / 8, 0.5 / 8}, []CopyTag{
			{0, 0, 1, geom.IntVect{-1, 0, 0}}, {0, 0, 2, geom.IntVect{0, -1, 0}},
			{0, 0, 3, geom.IntVect{-1, -1, 0}}, {0, 0, 4, geom.IntVect{0, 0, -1}},
			{0, 0, 5, geom.IntVect{-1, 0, -1}}, {0, 0, 6, geom.IntVect{0, -1, -1}},
			{0, 0, 7, geom.IntVect{-1, -1, -1}},
		}},
	}

	for i := range tests {
		for _, mk := range []*mask.DomainMask{m, nil} {
			tagger := NewTagger(h, mk, geom.Uniform(1), KeepImages)
			out := tagger.Tags(tests[i].lev, tests[i].grid, tests[i].tile,
				tests[i].pos, nil)
			if diff := cmp.Diff(tests[i].out, out); diff != "" {
				t.Errorf("%d) mask = %v: tags differ (-want +got):\n%s",
					i, mk != nil, diff)
			}
		}
	}
}

func TestParseImagePolicy(t *testing.T) {
	tests := []struct {
		s   string
		out ImagePolicy
		ok  bool
	}{
		{"", KeepImages, true},
		{"keep", KeepImages, true},
		{"dedup", DedupImages, true},
		{"Dedup", KeepImages, false},
	}

	for i := range tests {
		out, err := ParseImagePolicy(tests[i].s)
		if (err == nil) != tests[i].ok {
			t.Errorf("%d) Expected ok = %v, got error %v.", i, tests[i].ok, err)
		} else if tests[i].ok && out != tests[i].out {
			t.Errorf("%d) Expected %s, got %s.", i, tests[i].out, out)
		} else if !tests[i].ok {
			require.ErrorIs(t, err, ErrConfig)
		}
	}
}

func TestDedupNearest(t *testing.T) {
	// Two two-cell tiles with a radius of two cells: tile 1 can be reached
	// through two images from anywhere in tile 0.
	h := line(t, 4, true, []geom.Box{xBox(0, 3)}, []int{0}, 2)
	r := geom.IntVect{2, 0, 0}
	left, zero := geom.IntVect{-1, 0, 0}, geom.IntVect{}

	tests := []struct {
		pos        [3]float64
		keep, near []CopyTag
	}{
		{[3]float64{0.3, 0.1, 0.1},
			[]CopyTag{{0, 0, 1, left}, {0, 0, 1, zero}},
			[]CopyTag{{0, 0, 1, zero}}},
		{[3]float64{0.1, 0.1, 0.1},
			[]CopyTag{{0, 0, 1, left}, {0, 0, 1, zero}},
			[]CopyTag{{0, 0, 1, left}}},
	}

	for i := range tests {
		keep := NewTagger(h, nil, r, KeepImages).Tags(0, 0, 0, tests[i].pos, nil)
		if diff := cmp.Diff(tests[i].keep, keep); diff != "" {
			t.Errorf("%d) keep tags differ (-want +got):\n%s", i, diff)
		}
		near := NewTagger(h, nil, r, DedupImages).Tags(0, 0, 0, tests[i].pos, nil)
		if diff := cmp.Diff(tests[i].near, near); diff != "" {
			t.Errorf("%d) dedup tags differ (-want +got):\n%s", i, diff)
		}
	}
}
