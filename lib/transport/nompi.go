//go:build !mpi

package transport

import "fmt"

// Open returns the MPI communicator. This binary was built without the mpi
// build tag, so it always fails.
func Open() (Comm, error) {
	return nil, fmt.Errorf("This binary was built without MPI support. " +
		"Rebuild with '-tags mpi' or use the local or tcp transports.")
}
