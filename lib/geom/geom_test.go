package geom

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCoarsenInt(t *testing.T) {
	tests := []struct {
		i, r, out int
	}{
		{0, 2, 0}, {1, 2, 0}, {2, 2, 1}, {-1, 2, -1}, {-2, 2, -1},
		{-3, 2, -2}, {7, 4, 1}, {-4, 4, -1}, {-5, 4, -2},
	}

	for j := range tests {
		out := coarsenInt(tests[j].i, tests[j].r)
		if out != tests[j].out {
			t.Errorf("%d) Expected coarsenInt(%d, %d) = %d, got %d.",
				j, tests[j].i, tests[j].r, tests[j].out, out)
		}
	}
}

func TestBoxIntersect(t *testing.T) {
	tests := []struct {
		a, b, out Box
		ok        bool
	}{
		{NewBox(IntVect{0, 0, 0}, IntVect{3, 3, 3}),
			NewBox(IntVect{2, 2, 2}, IntVect{5, 5, 5}),
			NewBox(IntVect{2, 2, 2}, IntVect{3, 3, 3}), true},
		{NewBox(IntVect{0, 0, 0}, IntVect{3, 3, 3}),
			NewBox(IntVect{4, 0, 0}, IntVect{5, 3, 3}),
			Box{}, false},
		{NewBox(IntVect{0, 0, 0}, IntVect{3, 3, 3}),
			NewBox(IntVect{3, 3, 3}, IntVect{3, 3, 3}),
			NewBox(IntVect{3, 3, 3}, IntVect{3, 3, 3}), true},
	}

	for i := range tests {
		out, ok := tests[i].a.Intersect(tests[i].b)
		if ok != tests[i].ok {
			t.Errorf("%d) Expected ok = %v, got %v.", i, tests[i].ok, ok)
		} else if ok && out != tests[i].out {
			t.Errorf("%d) Expected intersection %s, got %s.",
				i, tests[i].out, out)
		}
	}
}

func TestBoxRefineCoarsen(t *testing.T) {
	b := NewBox(IntVect{-2, 0, 1}, IntVect{3, 1, 1})
	r := IntVect{2, 2, 4}

	fine := b.Refine(r)
	want := NewBox(IntVect{-4, 0, 4}, IntVect{7, 3, 7})
	if fine != want {
		t.Errorf("Expected refined box %s, got %s.", want, fine)
	}
	if coarse := fine.Coarsen(r); coarse != b {
		t.Errorf("Expected coarsen(refine(b)) = %s, got %s.", b, coarse)
	}
}

func TestBoxIndexCell(t *testing.T) {
	b := NewBox(IntVect{-1, 2, 0}, IntVect{2, 4, 1})
	for i := 0; i < b.NumCells(); i++ {
		iv := b.Cell(i)
		if !b.Contains(iv) {
			t.Errorf("Cell(%d) = %v is outside %s.", i, iv, b)
		}
		if j := b.Index(iv); j != i {
			t.Errorf("Expected Index(Cell(%d)) = %d, got %d.", i, i, j)
		}
	}
}

func TestTiles(t *testing.T) {
	b := NewBox(IntVect{0, 0, 0}, IntVect{4, 3, 0})
	size := IntVect{2, 2, 1}
	tiles := b.Tiles(size)

	want := []Box{
		NewBox(IntVect{0, 0, 0}, IntVect{1, 1, 0}),
		NewBox(IntVect{2, 0, 0}, IntVect{3, 1, 0}),
		NewBox(IntVect{4, 0, 0}, IntVect{4, 1, 0}),
		NewBox(IntVect{0, 2, 0}, IntVect{1, 3, 0}),
		NewBox(IntVect{2, 2, 0}, IntVect{3, 3, 0}),
		NewBox(IntVect{4, 2, 0}, IntVect{4, 3, 0}),
	}
	if diff := cmp.Diff(want, tiles); diff != "" {
		t.Errorf("Tiles mismatch (-want +got):\n%s", diff)
	}

	for i := 0; i < b.NumCells(); i++ {
		iv := b.Cell(i)
		j := b.TileIndex(size, iv)
		if !tiles[j].Contains(iv) {
			t.Errorf("TileIndex(%v) = %d, but tile %s does not contain it.",
				iv, j, tiles[j])
		}
	}
}

func periodic1D(t *testing.T) Geometry {
	g, err := NewGeometry(NewBox(IntVect{0, 0, 0}, IntVect{3, 0, 0}),
		[3]float64{0, 0, 0}, [3]float64{1, 0.25, 0.25},
		[3]bool{true, false, false})
	if err != nil {
		t.Fatalf("NewGeometry failed: %s", err.Error())
	}
	return g
}

func TestCellIndex(t *testing.T) {
	g := periodic1D(t)
	tests := []struct {
		x  float64
		ix int
	}{
		{0.0, 0}, {0.01, 0}, {0.2499, 0}, {0.25, 1}, {0.5, 2}, {0.99, 3},
		{1.0, 4}, {-0.01, -1},
	}

	for i := range tests {
		iv := g.CellIndex([3]float64{tests[i].x, 0.1, 0.1})
		if iv[0] != tests[i].ix {
			t.Errorf("%d) Expected CellIndex(%g) = %d, got %d.",
				i, tests[i].x, tests[i].ix, iv[0])
		}
	}
}

func TestWrap(t *testing.T) {
	g := periodic1D(t)
	tests := []struct {
		iv, wrapped, s IntVect
		ok             bool
	}{
		{IntVect{2, 0, 0}, IntVect{2, 0, 0}, IntVect{0, 0, 0}, true},
		{IntVect{-1, 0, 0}, IntVect{3, 0, 0}, IntVect{-1, 0, 0}, true},
		{IntVect{4, 0, 0}, IntVect{0, 0, 0}, IntVect{1, 0, 0}, true},
		{IntVect{9, 0, 0}, IntVect{1, 0, 0}, IntVect{2, 0, 0}, true},
		{IntVect{1, 1, 0}, IntVect{}, IntVect{}, false},
	}

	for i := range tests {
		wrapped, s, ok := g.Wrap(tests[i].iv)
		if ok != tests[i].ok {
			t.Errorf("%d) Expected ok = %v, got %v.", i, tests[i].ok, ok)
		} else if ok && (wrapped != tests[i].wrapped || s != tests[i].s) {
			t.Errorf("%d) Expected Wrap(%v) = %v, %v, got %v, %v.", i,
				tests[i].iv, tests[i].wrapped, tests[i].s, wrapped, s)
		}
	}
}

func TestImages(t *testing.T) {
	g := periodic1D(t)
	tests := []struct {
		b   Box
		out []IntVect
	}{
		{NewBox(IntVect{1, 0, 0}, IntVect{2, 0, 0}), []IntVect{{0, 0, 0}}},
		{NewBox(IntVect{-1, -1, -1}, IntVect{1, 1, 1}),
			[]IntVect{{-1, 0, 0}, {0, 0, 0}}},
		{NewBox(IntVect{3, 0, 0}, IntVect{4, 0, 0}),
			[]IntVect{{0, 0, 0}, {1, 0, 0}}},
		{NewBox(IntVect{-5, 0, 0}, IntVect{-4, 0, 0}),
			[]IntVect{{-2, 0, 0}, {-1, 0, 0}}},
	}

	for i := range tests {
		out := g.Images(tests[i].b)
		if diff := cmp.Diff(tests[i].out, out); diff != "" {
			t.Errorf("%d) Images(%s) mismatch (-want +got):\n%s",
				i, tests[i].b, diff)
		}
	}
}

func TestShiftPosition(t *testing.T) {
	g := periodic1D(t)
	pos := g.ShiftPosition([3]float64{0.01, 0.1, 0.1}, IntVect{-1, 0, 0})
	if math.Abs(pos[0]-1.01) > 1e-12 || pos[1] != 0.1 || pos[2] != 0.1 {
		t.Errorf("Expected shifted position (1.01, 0.1, 0.1), got %v.", pos)
	}
}

func TestMinimumImage(t *testing.T) {
	g := periodic1D(t)
	d := g.MinimumImage([3]float64{0.05, 0.1, 0.1}, [3]float64{0.95, 0.1, 0.2})
	if math.Abs(d.X+0.1) > 1e-12 || d.Y != 0 || math.Abs(d.Z-0.1) > 1e-12 {
		t.Errorf("Expected minimum image (-0.1, 0, 0.1), got %v.", d)
	}
}

func twoLevel(t *testing.T) *Hierarchy {
	g0, err := NewGeometry(NewBox(IntVect{0, 0, 0}, IntVect{7, 7, 7}),
		[3]float64{0, 0, 0}, [3]float64{1, 1, 1}, [3]bool{true, true, true})
	if err != nil {
		t.Fatalf("NewGeometry failed: %s", err.Error())
	}
	r := IntVect{2, 2, 2}
	g1 := g0.Refine(r)

	h, err := NewHierarchy([]Level{
		{Geom: g0, Grids: []Box{
			NewBox(IntVect{0, 0, 0}, IntVect{3, 7, 7}),
			NewBox(IntVect{4, 0, 0}, IntVect{7, 7, 7}),
		}, DMap: []int{0, 1}},
		{Geom: g1, Grids: []Box{
			NewBox(IntVect{4, 4, 4}, IntVect{11, 11, 11}),
		}, DMap: []int{1}, RefRatio: r},
	}, Uniform(4))
	if err != nil {
		t.Fatalf("NewHierarchy failed: %s", err.Error())
	}
	return h
}

func TestNewHierarchyErrors(t *testing.T) {
	g0, _ := NewGeometry(NewBox(IntVect{0, 0, 0}, IntVect{7, 7, 7}),
		[3]float64{0, 0, 0}, [3]float64{1, 1, 1}, [3]bool{})
	full := NewBox(IntVect{0, 0, 0}, IntVect{7, 7, 7})

	tests := []struct {
		levels []Level
		tile   IntVect
	}{
		{nil, Uniform(4)},
		{[]Level{{Geom: g0, Grids: []Box{full}, DMap: []int{0}}}, Uniform(0)},
		{[]Level{{Geom: g0, Grids: []Box{full}, DMap: nil}}, Uniform(4)},
		{[]Level{{Geom: g0, Grids: []Box{full.Grow(Uniform(1))},
			DMap: []int{0}}}, Uniform(4)},
		{[]Level{{Geom: g0, Grids: []Box{full, full}, DMap: []int{0, 1}}},
			Uniform(4)},
		{[]Level{
			{Geom: g0, Grids: []Box{full}, DMap: []int{0}},
			{Geom: g0, Grids: []Box{full}, DMap: []int{0},
				RefRatio: Uniform(2)},
		}, Uniform(4)},
	}

	for i := range tests {
		_, err := NewHierarchy(tests[i].levels, tests[i].tile)
		if err == nil {
			t.Errorf("%d) Expected NewHierarchy to fail, but got no error.", i)
		}
	}
}

func TestHierarchy(t *testing.T) {
	h := twoLevel(t)

	if h.Generation() != 1 {
		t.Errorf("Expected generation 1, got %d.", h.Generation())
	}
	if n := len(h.Tiles(0, 0)); n != 4 {
		t.Errorf("Expected grid (0, 0) to have 4 tiles, got %d.", n)
	}
	if grids := h.LocalGrids(0, 1); len(grids) != 1 || grids[0] != 1 {
		t.Errorf("Expected rank 1 to own level-0 grid [1], got %v.", grids)
	}

	r, finer := h.RefFactor(0, 1)
	if r != Uniform(2) || !finer {
		t.Errorf("Expected RefFactor(0, 1) = %v, true, got %v, %v.",
			Uniform(2), r, finer)
	}
	r, finer = h.RefFactor(1, 0)
	if r != Uniform(2) || finer {
		t.Errorf("Expected RefFactor(1, 0) = %v, false, got %v, %v.",
			Uniform(2), r, finer)
	}

	lev, grid, tile, ok := h.LocateFinest([3]float64{0.5, 0.5, 0.5})
	if !ok || lev != 1 || grid != 0 || tile != 7 {
		t.Errorf("Expected LocateFinest = (1, 0, 7), got (%d, %d, %d, %v).",
			lev, grid, tile, ok)
	}
	lev, grid, tile, ok = h.LocateFinest([3]float64{0.05, 0.9, 0.05})
	if !ok || lev != 0 || grid != 0 || tile != 1 {
		t.Errorf("Expected LocateFinest = (0, 0, 1), got (%d, %d, %d, %v).",
			lev, grid, tile, ok)
	}

	clone := h.Clone()
	err := h.Regrid(0, []Box{NewBox(IntVect{0, 0, 0}, IntVect{7, 7, 7})},
		[]int{0})
	if err != nil {
		t.Fatalf("Regrid failed: %s", err.Error())
	}
	if h.Generation() != 2 {
		t.Errorf("Expected generation 2 after Regrid, got %d.", h.Generation())
	}
	if clone.Generation() != 1 || clone.NumGrids(0) != 2 {
		t.Errorf("Regrid leaked into a clone: generation %d, %d grids.",
			clone.Generation(), clone.NumGrids(0))
	}
}
