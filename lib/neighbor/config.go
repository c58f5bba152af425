package neighbor

/* config.go contains the engine configuration, its validation, and the error
values returned by the package. */

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/phil-mansfield/neighbors/lib/geom"
)

var (
	// ErrConfig marks errors in how the engine is set up or called. They are
	// always returned before any data is sent.
	ErrConfig = errors.New("neighbor configuration error")

	// ErrComm marks failures of the transport. The engine cannot be used
	// after one.
	ErrComm = errors.New("neighbor communication error")

	// ErrStale marks cached state that no longer matches the particles or the
	// partition. It is only detected with Config.Debug set.
	ErrStale = errors.New("neighbor cache is stale")
)

// Config controls an Engine.
type Config struct {
	// Radius is the neighbor radius in cells of the particle's own level,
	// per dimension.
	Radius geom.IntVect
	// Threads is the number of worker goroutines used for tile-parallel
	// work. -1 means one per CPU.
	Threads int
	// Images decides how tiles reachable through several periodic images
	// are handled.
	Images ImagePolicy
	// UseMask makes the tagger read owners from a DomainMask instead of
	// intersecting boxes with the grid list. The results are identical.
	UseMask bool
	// Debug enables consistency checks which cost a full retag per update.
	Debug bool
}

// DefaultConfig returns a Config with a one-cell radius, one thread, and the
// mask enabled.
func DefaultConfig() Config {
	return Config{Radius: geom.Uniform(1), Threads: 1, UseMask: true}
}

// threads returns the number of worker goroutines to use.
func (c Config) threads() int {
	if c.Threads == -1 {
		return runtime.NumCPU()
	}
	return c.Threads
}

// Check returns an ErrConfig error if the configuration is invalid for the
// hierarchy.
func (c Config) Check(h *geom.Hierarchy) error {
	if c.Threads == 0 || c.Threads < -1 {
		return fmt.Errorf("%w: Threads = %d; it must be positive or -1",
			ErrConfig, c.Threads)
	} else if c.Threads > runtime.NumCPU() {
		return fmt.Errorf("%w: Threads = %d, but the machine only has %d "+
			"CPUs", ErrConfig, c.Threads, runtime.NumCPU())
	}

	if c.Images != KeepImages && c.Images != DedupImages {
		return fmt.Errorf("%w: unknown image policy %s", ErrConfig, c.Images)
	}

	if c.Radius.IsZero() {
		return fmt.Errorf("%w: the neighbor radius is zero", ErrConfig)
	}
	for dim := 0; dim < 3; dim++ {
		if c.Radius[dim] < 0 {
			return fmt.Errorf("%w: radius %v has a negative component",
				ErrConfig, c.Radius)
		}
	}

	for lev := 0; lev < h.NumLevels(); lev++ {
		g := h.Geom(lev)
		size := g.Domain.Size()
		for dim := 0; dim < 3; dim++ {
			if g.Periodic[dim] && c.Radius[dim] > size[dim] {
				return fmt.Errorf("%w: radius %v is wider than the %d-cell "+
					"periodic domain along dimension %d on level %d",
					ErrConfig, c.Radius, size[dim], dim, lev)
			}
		}
	}
	return nil
}

func isComm(err error) bool { return errors.Is(err, ErrComm) }
