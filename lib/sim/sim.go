/*package sim runs nbx's particle driver: a short N-body-style integration
which fills neighbor buffers, builds neighbor lists, applies a pairwise force
through them, moves particles, and redistributes them to the processes which
own them.

Particles carry six real components, velocity followed by acceleration, and
one integer component, the length of their neighbor list. Only velocities are
sent to neighbors.
*/
package sim

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/phil-mansfield/neighbors/lib/compress"
	"github.com/phil-mansfield/neighbors/lib/config"
	"github.com/phil-mansfield/neighbors/lib/diag"
	"github.com/phil-mansfield/neighbors/lib/format"
	"github.com/phil-mansfield/neighbors/lib/geom"
	"github.com/phil-mansfield/neighbors/lib/neighbor"
	"github.com/phil-mansfield/neighbors/lib/particles"
	"github.com/phil-mansfield/neighbors/lib/snapio"
	"github.com/phil-mansfield/neighbors/lib/transport"
)

const (
	// Real components.
	velocity = 0
	accel    = 3
	// Integer components.
	nbrCount = 0
)

// Layout returns the particle layout used by the driver.
func Layout() particles.Layout {
	l := particles.NewLayout(6, 1)
	for dim := 0; dim < 3; dim++ {
		l.CommReal[accel+dim] = false
	}
	l.CommInt[nbrCount] = false
	return l
}

// Result summarizes one rank's run.
type Result struct {
	Rank, Particles, Steps int
	// Pairs is the number of neighbor list entries on the last step.
	Pairs int
	// Counts summarizes neighbor list lengths on the last step.
	Counts diag.Summary
	// CA and BA are the axis ratios of this rank's particles.
	CA, BA float64
	// Potential summarizes the tree potential of this rank's particles. It
	// is only computed if PotentialEps is positive.
	Potential diag.Summary
}

// Launch opens the configured transport, runs every rank this process is
// responsible for, and writes metrics. It returns one Result per local rank.
func Launch(
	ctx context.Context, c *config.Config, log *slog.Logger,
) ([]*Result, error) {
	var results []*Result
	switch c.Run.Transport {
	case "local":
		w, err := transport.NewWorld(c.Run.Ranks)
		if err != nil {
			return nil, err
		}
		defer w.Close()
		results = make([]*Result, c.Run.Ranks)
		err = w.Run(ctx, func(ctx context.Context, comm transport.Comm) error {
			res, err := Run(ctx, c, comm, log)
			results[comm.Rank()] = res
			return err
		})
		if err != nil {
			return nil, err
		}
	case "tcp":
		comm, err := transport.NewTCP(ctx, c.Run.Rank, c.Addresses(),
			transport.WithLogger(log))
		if err != nil {
			return nil, err
		}
		defer comm.Close()
		res, err := Run(ctx, c, comm, log)
		if err != nil {
			return nil, err
		}
		results = []*Result{res}
	case "mpi":
		comm, err := transport.Open()
		if err != nil {
			return nil, err
		}
		defer comm.Close()
		res, err := Run(ctx, c, comm, log)
		if err != nil {
			return nil, err
		}
		results = []*Result{res}
	default:
		return nil, fmt.Errorf("Unknown transport '%s'.", c.Run.Transport)
	}

	if c.Run.MetricsFile != "" {
		err := prometheus.WriteToTextfile(c.Run.MetricsFile,
			prometheus.DefaultGatherer)
		if err != nil {
			return nil, fmt.Errorf("Could not write metrics to %s: %w",
				c.Run.MetricsFile, err)
		}
	}
	return results, nil
}

// Run runs a single rank. Every rank of comm must call it with the same
// config.
func Run(
	ctx context.Context, c *config.Config, comm transport.Comm,
	log *slog.Logger,
) (*Result, error) {
	engineLog := log
	log = log.With("rank", comm.Rank())
	h, err := c.Hierarchy(comm.Size())
	if err != nil {
		return nil, err
	}
	ecfg, err := c.Engine()
	if err != nil {
		return nil, err
	}
	sel, err := format.NewSelector(c.Run.PrintSteps)
	if err != nil {
		return nil, err
	}
	listFile, err := format.ParseFileFormat(c.Run.ListFile)
	if err != nil {
		return nil, err
	}

	store, err := particles.NewStore(Layout())
	if err != nil {
		return nil, err
	}
	ps, err := initialConditions(c, h, comm)
	if err != nil {
		return nil, err
	}
	if err := store.Append(particles.TileKey{}, ps...); err != nil {
		return nil, err
	}
	if err := neighbor.Redistribute(ctx, h, store, comm); err != nil {
		return nil, err
	}
	log.Info("Created initial conditions.", "particles", store.Len(),
		"source", c.Run.InitialConditions)

	e, err := neighbor.NewEngine(h, store, comm, ecfg,
		neighbor.WithLogger(engineLog))
	if err != nil {
		return nil, err
	}

	res := &Result{Rank: comm.Rank(), Steps: c.Run.Steps}
	for step := 0; step < c.Run.Steps; step++ {
		start := time.Now()
		if step%c.Run.RedistributeEvery == 0 {
			if step > 0 {
				err = neighbor.Redistribute(ctx, h, store, comm)
				if err != nil {
					return nil, fmt.Errorf("step %d: %w", step, err)
				}
			}
			e.ClearNeighbors()
			err = e.FillNeighbors(ctx)
		} else {
			err = e.UpdateNeighbors(ctx, c.Neighbors.ReuseSizes)
		}
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", step, err)
		}

		cutoff := neighbor.Cutoff{R: c.Neighbors.Cutoff}
		err = neighbor.BuildNeighborList(e, cutoff, c.Neighbors.SortLists)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", step, err)
		}
		if sel.Contains(step) {
			if err := writeLists(e, listFile, step, comm.Rank()); err != nil {
				return nil, err
			}
		}

		res.Pairs = accelerate(e, store, c.Run.Strength, c.Run.Softening)
		move(h, store, c.Run.Dt)

		stats := e.Stats()
		log.Debug("Finished step.", "step", step, "mode", stats.Mode,
			"local_copies", stats.LocalCopies, "pairs", res.Pairs,
			"seconds", time.Since(start).Seconds())
	}

	if c.Run.Steps > 0 {
		counts := diag.NeighborCounts(e, store)
		res.Counts = diag.Summarize(counts)
		if c.Run.PlotFile != "" && comm.Rank() == 0 && len(counts) > 0 {
			err := diag.Histogram(counts, "Neighbor counts", c.Run.PlotFile)
			if err != nil {
				return nil, err
			}
		}
	}

	local := []particles.Particle{}
	for _, k := range store.Keys() {
		local = append(local, store.Tile(k)...)
	}
	res.Particles = len(local)

	g := h.Geom(0)
	center := [3]float64{}
	for dim := range center {
		center[dim] = (g.ProbLo[dim] + g.ProbHi[dim]) / 2
	}
	res.CA, res.BA, err = diag.AxisRatios(local, g, center)
	if err != nil {
		return nil, err
	}
	if c.Run.PotentialEps > 0 {
		res.Potential = diag.Summarize(
			diag.Potential(local, g, c.Run.PotentialEps))
	}
	if c.Run.CheckpointFile != "" {
		if err := writeCheckpoint(c, g, local, comm.Rank()); err != nil {
			return nil, err
		}
	}

	log.Info("Finished run.", "particles", res.Particles, "pairs", res.Pairs,
		"mean_neighbors", res.Counts.Mean, "max_neighbors", res.Counts.Max,
		"c/a", res.CA, "b/a", res.BA)
	return res, nil
}

// initialConditions returns this rank's share of the initial particles.
// They have not been placed into tiles yet.
func initialConditions(
	c *config.Config, h *geom.Hierarchy, comm transport.Comm,
) ([]particles.Particle, error) {
	layout := Layout()
	if c.Run.InitialConditions != "random" {
		return snapio.ReadFiles(c.Run.InitialConditions, c.Run.InputFiles,
			layout, comm.Rank(), comm.Size())
	}

	// Each level-0 grid gets its own generator so the particles don't
	// depend on the number of ranks.
	g := h.Geom(0)
	dx := g.CellSize()
	out := []particles.Particle{}
	for _, grid := range h.LocalGrids(0, comm.Rank()) {
		rng := compress.NewRNG(uint64(c.Run.Seed) + uint64(grid))
		b := h.Grid(0, grid)
		for i := 0; i < b.NumCells(); i++ {
			cell := b.Cell(i)
			for k := 0; k < c.Run.ParticlesPerCell; k++ {
				p := layout.New()
				p.ID = int64(g.Domain.Index(cell)*c.Run.ParticlesPerCell + k)
				for dim := 0; dim < 3; dim++ {
					lo := g.ProbLo[dim] +
						float64(cell[dim]-g.Domain.Lo[dim])*dx[dim]
					p.Pos[dim] = rng.Range(lo, lo+dx[dim])
					p.Real[velocity+dim] = rng.Range(
						-c.Run.MaxSpeed, c.Run.MaxSpeed)
				}
				out = append(out, p)
			}
		}
	}
	return out, nil
}

// accelerate computes a softened pairwise repulsion over every neighbor list
// and returns the number of pairs used. Neighbor copies already sit in the
// right periodic image, so plain differences are used.
func accelerate(
	e *neighbor.Engine, store *particles.Store, strength, soft float64,
) int {
	pairs := 0
	for _, k := range store.Keys() {
		local := store.Tile(k)
		nbrs := e.GetNeighbors(k.Level, k.Grid, k.Tile)
		nl := e.GetNeighborList(k.Level, k.Grid, k.Tile)
		for i := range local {
			p := &local[i]
			var a [3]float64
			var list []int
			if nl != nil {
				list = nl.Neighbors(i)
			}
			for _, j := range list {
				q := at(local, nbrs, j)
				var d [3]float64
				r2 := soft * soft
				for dim := 0; dim < 3; dim++ {
					d[dim] = p.Pos[dim] - q.Pos[dim]
					r2 += d[dim] * d[dim]
				}
				f := strength / (r2 * math.Sqrt(r2))
				for dim := 0; dim < 3; dim++ {
					a[dim] += f * d[dim]
				}
			}
			copy(p.Real[accel:accel+3], a[:])
			p.Int[nbrCount] = int32(len(list))
			pairs += len(list)
		}
	}
	return pairs
}

func at(local, nbrs []particles.Particle, j int) *particles.Particle {
	if j < len(local) {
		return &local[j]
	}
	return &nbrs[j-len(local)]
}

// move kicks and drifts every particle by dt, reflecting off non-periodic
// walls. Periodic wrapping is left to Redistribute.
func move(h *geom.Hierarchy, store *particles.Store, dt float64) {
	g := h.Geom(0)
	for _, k := range store.Keys() {
		ps := store.Tile(k)
		for i := range ps {
			p := &ps[i]
			for dim := 0; dim < 3; dim++ {
				p.Real[velocity+dim] += p.Real[accel+dim] * dt
				p.Pos[dim] += p.Real[velocity+dim] * dt
				if g.Periodic[dim] {
					continue
				}
				lo, hi := g.ProbLo[dim], g.ProbHi[dim]
				if p.Pos[dim] < lo {
					p.Pos[dim] = 2*lo - p.Pos[dim]
					p.Real[velocity+dim] *= -1
				} else if p.Pos[dim] >= hi {
					p.Pos[dim] = 2*hi - p.Pos[dim]
					p.Real[velocity+dim] *= -1
				}
				p.Pos[dim] = min(max(p.Pos[dim], lo), math.Nextafter(hi, lo))
			}
		}
	}
}

// writeLists writes this rank's neighbor lists for a step.
func writeLists(
	e *neighbor.Engine, ff *format.FileFormat, step, rank int,
) error {
	name, err := ff.Expand(map[string]int{"step": step, "rank": rank})
	if err != nil {
		return err
	}
	if dir := filepath.Dir(name); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if err := e.PrintNeighborList(f, fmt.Sprintf("step %d", step)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeCheckpoint writes this rank's particles at the end of the run.
func writeCheckpoint(
	c *config.Config, g geom.Geometry, ps []particles.Particle, rank int,
) error {
	ff, err := format.ParseFileFormat(c.Run.CheckpointFile)
	if err != nil {
		return err
	}
	name, err := ff.Expand(map[string]int{"rank": rank, "step": c.Run.Steps})
	if err != nil {
		return err
	}
	return SaveCheckpoint(name, c, g, ps, c.Run.Steps)
}

// SaveCheckpoint writes ps to a checkpoint file with the accuracies set in c.
// Missing directories are created.
func SaveCheckpoint(
	name string, c *config.Config, g geom.Geometry,
	ps []particles.Particle, step int,
) error {
	if dir := filepath.Dir(name); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	hd := compress.CheckpointHeader{
		Step: int64(step), Time: float64(step) * c.Run.Dt,
		ProbLo: g.ProbLo, ProbHi: g.ProbHi, Periodic: g.Periodic,
		Delta: c.Run.CheckpointDelta, RealDelta: c.Run.CheckpointRealDelta,
	}
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	wr := bufio.NewWriter(f)
	if err := compress.WriteCheckpoint(wr, hd, ps); err != nil {
		f.Close()
		return fmt.Errorf("Could not write checkpoint %s: %w", name, err)
	}
	if err := wr.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
