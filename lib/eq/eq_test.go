package eq

import (
	"testing"
)

func TestSlices(t *testing.T) {
	tests := []struct {
		x, y []int
		out  bool
	}{
		{nil, nil, true},
		{[]int{}, nil, true},
		{[]int{1, 2, 3}, []int{1, 2, 3}, true},
		{[]int{1, 2, 3}, []int{1, 2}, false},
		{[]int{1, 2, 3}, []int{3, 2, 1}, false},
	}

	for i := range tests {
		if out := Slices(tests[i].x, tests[i].y); out != tests[i].out {
			t.Errorf("%d) Expected Slices(%v, %v) = %v, got %v.",
				i, tests[i].x, tests[i].y, tests[i].out, out)
		}
	}
}

func TestIntSets(t *testing.T) {
	tests := []struct {
		x, y []int
		out  bool
	}{
		{[]int{1, 2, 3}, []int{3, 1, 2}, true},
		{[]int{1, 1, 2}, []int{1, 2, 2}, false},
		{[]int{1, 2}, []int{1, 2, 2}, false},
		{nil, []int{}, true},
	}

	for i := range tests {
		if out := IntSets(tests[i].x, tests[i].y); out != tests[i].out {
			t.Errorf("%d) Expected IntSets(%v, %v) = %v, got %v.",
				i, tests[i].x, tests[i].y, tests[i].out, out)
		}
	}
}

func TestFloat64sEps(t *testing.T) {
	x := []float64{1, 2, 3}
	if !Float64sEps(x, []float64{1.05, 1.95, 3}, 0.1) {
		t.Errorf("Expected arrays within 0.1 to be equal.")
	}
	if Float64sEps(x, []float64{1.5, 2, 3}, 0.1) {
		t.Errorf("Expected arrays differing by 0.5 to be unequal.")
	}
	if !Vec64sEps([][3]float64{{1, 2, 3}}, [][3]float64{{1, 2, 3.01}}, 0.1) {
		t.Errorf("Expected vectors within 0.1 to be equal.")
	}
}
