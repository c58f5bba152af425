/*package eq is a small package for telling whether two arrays are equal to
one another. It is mainly used by tests.*/
package eq

// Slices returns true if x and y have the same length and the same elements.
func Slices[T comparable](x, y []T) bool {
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

// Float64sEps returns true if the two []float64 arrays are within eps of one
// another and false otherwise.
func Float64sEps(x, y []float64, eps float64) bool {
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i]+eps < y[i] || x[i]-eps > y[i] {
			return false
		}
	}
	return true
}

// Vec64sEps is Float64sEps for arrays of 3-vectors.
func Vec64sEps(x, y [][3]float64, eps float64) bool {
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if !Float64sEps(x[i][:], y[i][:], eps) {
			return false
		}
	}
	return true
}

// IntSets returns true if x and y contain the same values with the same
// multiplicities, in any order.
func IntSets(x, y []int) bool {
	if len(x) != len(y) {
		return false
	}
	count := map[int]int{}
	for _, v := range x {
		count[v]++
	}
	for _, v := range y {
		count[v]--
		if count[v] < 0 {
			return false
		}
	}
	return true
}
