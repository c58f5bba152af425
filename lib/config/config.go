/*package config reads the INI-style configuration files used by nbx. A config
file has three sections, [Domain], [Neighbors], and [Run]; run
`nbx example_config` to see every variable with its documentation.
*/
package config

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"gopkg.in/gcfg.v1"

	"github.com/phil-mansfield/neighbors/lib/format"
	"github.com/phil-mansfield/neighbors/lib/geom"
	"github.com/phil-mansfield/neighbors/lib/neighbor"
)

// Domain describes the problem domain and how it is split into grids.
type Domain struct {
	Cells, ProbLo, ProbHi, Periodic string
	MaxGridSize, TileSize           string
	// RefinedRegion is a box of coarse cells, "lo0 lo1 lo2 hi0 hi1 hi2",
	// covered by a second, finer level. Empty means a single level.
	RefinedRegion string
	RefRatio      int
}

// Neighbors configures the exchange engine and the list builder.
type Neighbors struct {
	Radius     string
	Threads    int
	Images     string
	UseMask    bool
	Debug      bool
	Cutoff     float64
	SortLists  bool
	ReuseSizes bool
}

// Run configures the driver.
type Run struct {
	Transport string
	Ranks     int
	Rank      int
	Addresses string

	InitialConditions string
	InputFiles        []string
	ParticlesPerCell  int
	Seed              int64
	MaxSpeed          float64

	Steps             int
	RedistributeEvery int
	Dt                float64
	Strength          float64
	Softening         float64

	PrintSteps   string
	ListFile     string
	PlotFile     string
	MetricsFile  string
	PotentialEps float64
	LogLevel     string

	// CheckpointFile, if set, is where each rank writes its particles at the
	// end of the run.
	CheckpointFile      string
	CheckpointDelta     float64
	CheckpointRealDelta float64
}

// Config is the full contents of a config file.
type Config struct {
	Domain    Domain
	Neighbors Neighbors
	Run       Run
}

// Default returns the configuration used for every variable not set in a
// file.
func Default() *Config {
	return &Config{
		Domain: Domain{
			Cells: "16 16 16", ProbLo: "0 0 0", ProbHi: "1 1 1",
			Periodic: "true true true", MaxGridSize: "8 8 8",
			TileSize: "4 4 4", RefRatio: 2,
		},
		Neighbors: Neighbors{
			Radius: "1", Threads: 1, Images: "keep", UseMask: true,
			Cutoff: 0.05, ReuseSizes: true,
		},
		Run: Run{
			Transport: "local", Ranks: 2, InitialConditions: "random",
			ParticlesPerCell: 1, Seed: 1, MaxSpeed: 0.1,
			Steps: 10, RedistributeEvery: 1, Dt: 1e-3, Strength: 1e-4, Softening: 1e-3,
			ListFile: "nlist_{%04d,step}.{%d,rank}.txt",
			LogLevel: "info", CheckpointDelta: 1e-6, CheckpointRealDelta: 1e-6,
		},
	}
}

// ReadFile reads and validates a config file.
func ReadFile(name string) (*Config, error) {
	c := Default()
	if err := gcfg.ReadFileInto(c, name); err != nil {
		return nil, fmt.Errorf("Could not read config file '%s': %w",
			name, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("Config file '%s' is invalid: %w", name, err)
	}
	return c, nil
}

// ReadString reads and validates a config from a string.
func ReadString(s string) (*Config, error) {
	c := Default()
	if err := gcfg.ReadStringInto(c, s); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks every variable which can be checked without reading input
// files or building the hierarchy.
func (c *Config) Validate() error {
	if _, err := c.Geometry(); err != nil {
		return err
	}
	if _, err := parseInts("MaxGridSize", c.Domain.MaxGridSize, 1); err != nil {
		return err
	}
	if _, err := parseInts("TileSize", c.Domain.TileSize, 1); err != nil {
		return err
	}
	_, refined, err := c.refined()
	if err != nil {
		return err
	}

	r, err := c.Radius()
	if err != nil {
		return err
	}
	if _, err := neighbor.ParseImagePolicy(c.Neighbors.Images); err != nil {
		return err
	}
	if c.Neighbors.Cutoff <= 0 {
		return fmt.Errorf("Cutoff = %g, but it must be positive.",
			c.Neighbors.Cutoff)
	}
	// Radius is counted in cells of each particle's own level, so the finest
	// level has the shortest reach.
	g, _ := c.Geometry()
	dx := g.CellSize()
	for dim := 0; dim < 3; dim++ {
		if refined {
			dx[dim] /= float64(c.Domain.RefRatio)
		}
		if reach := float64(r[dim]) * dx[dim]; c.Neighbors.Cutoff > reach {
			return fmt.Errorf("Cutoff = %g is larger than the neighbor "+
				"radius along dimension %d on the finest level, %d cells = "+
				"%g. Increase Radius.", c.Neighbors.Cutoff, dim, r[dim], reach)
		}
	}

	switch c.Run.Transport {
	case "local":
		if c.Run.Ranks < 1 {
			return fmt.Errorf("Ranks = %d, but the local transport needs at "+
				"least one rank.", c.Run.Ranks)
		}
	case "tcp":
		addrs := c.Addresses()
		if len(addrs) == 0 {
			return fmt.Errorf("The tcp transport needs Addresses.")
		} else if c.Run.Rank < 0 || c.Run.Rank >= len(addrs) {
			return fmt.Errorf("Rank = %d, but only %d Addresses were given.",
				c.Run.Rank, len(addrs))
		}
	case "mpi":
	default:
		return fmt.Errorf("Transport = '%s', but the only valid values are "+
			"'local', 'tcp', and 'mpi'.", c.Run.Transport)
	}

	switch c.Run.InitialConditions {
	case "random":
		if c.Run.ParticlesPerCell < 0 {
			return fmt.Errorf("ParticlesPerCell = %d, but it cannot be "+
				"negative.", c.Run.ParticlesPerCell)
		}
	case "gadget2", "text", "gotetra", "checkpoint":
		if len(c.Run.InputFiles) == 0 {
			return fmt.Errorf("InitialConditions = '%s' needs at least one "+
				"InputFiles line.", c.Run.InitialConditions)
		}
	default:
		return fmt.Errorf("InitialConditions = '%s', but the only valid "+
			"values are 'random', 'gadget2', 'text', 'gotetra', and "+
			"'checkpoint'.",
			c.Run.InitialConditions)
	}

	if !(c.Run.Dt > 0) {
		return fmt.Errorf("Dt = %g, but it must be positive.", c.Run.Dt)
	} else if !(c.Run.Softening > 0) {
		return fmt.Errorf("Softening = %g, but it must be positive.",
			c.Run.Softening)
	} else if math.IsNaN(c.Run.Strength) || math.IsInf(c.Run.Strength, 0) {
		return fmt.Errorf("Strength = %g, but it must be finite.",
			c.Run.Strength)
	}

	if c.Run.Steps < 0 {
		return fmt.Errorf("Steps = %d, but it cannot be negative.", c.Run.Steps)
	} else if c.Run.RedistributeEvery < 1 {
		return fmt.Errorf("RedistributeEvery = %d, but it must be positive.",
			c.Run.RedistributeEvery)
	}
	if _, err := format.NewSelector(c.Run.PrintSteps); err != nil {
		return fmt.Errorf("PrintSteps = '%s' is invalid: %w",
			c.Run.PrintSteps, err)
	}
	if _, err := format.ParseFileFormat(c.Run.ListFile); err != nil {
		return err
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if c.Run.CheckpointFile != "" {
		if _, err := format.ParseFileFormat(c.Run.CheckpointFile); err != nil {
			return err
		}
		if c.Run.CheckpointDelta <= 0 || c.Run.CheckpointRealDelta <= 0 {
			return fmt.Errorf("CheckpointDelta = %g and CheckpointRealDelta "+
				"= %g, but both must be positive.", c.Run.CheckpointDelta,
				c.Run.CheckpointRealDelta)
		}
	}
	return nil
}

// Geometry returns the level-0 geometry.
func (c *Config) Geometry() (geom.Geometry, error) {
	cells, err := parseInts("Cells", c.Domain.Cells, 1)
	if err != nil {
		return geom.Geometry{}, err
	}
	lo, err := parseFloats("ProbLo", c.Domain.ProbLo)
	if err != nil {
		return geom.Geometry{}, err
	}
	hi, err := parseFloats("ProbHi", c.Domain.ProbHi)
	if err != nil {
		return geom.Geometry{}, err
	}
	periodic, err := parseBools("Periodic", c.Domain.Periodic)
	if err != nil {
		return geom.Geometry{}, err
	}

	domain := geom.NewBox(geom.IntVect{}, cells.Sub(geom.Uniform(1)))
	return geom.NewGeometry(domain, lo, hi, periodic)
}

// Radius returns the neighbor radius.
func (c *Config) Radius() (geom.IntVect, error) {
	return parseInts("Radius", c.Neighbors.Radius, 0)
}

// Engine returns the engine configuration.
func (c *Config) Engine() (neighbor.Config, error) {
	r, err := c.Radius()
	if err != nil {
		return neighbor.Config{}, err
	}
	images, err := neighbor.ParseImagePolicy(c.Neighbors.Images)
	if err != nil {
		return neighbor.Config{}, err
	}
	return neighbor.Config{
		Radius: r, Threads: c.Neighbors.Threads, Images: images,
		UseMask: c.Neighbors.UseMask, Debug: c.Neighbors.Debug,
	}, nil
}

// Addresses returns the TCP peer addresses, one per rank.
func (c *Config) Addresses() []string {
	out := []string{}
	for _, a := range strings.Split(c.Run.Addresses, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// LogLevel returns the slog level named by LogLevel.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Run.LogLevel)); err != nil {
		return level, fmt.Errorf("LogLevel = '%s', but the only valid "+
			"values are 'debug', 'info', 'warn', and 'error'.", c.Run.LogLevel)
	}
	return level, nil
}

// Hierarchy chops the domain into grids no larger than MaxGridSize and deals
// them out to ranks round-robin. If RefinedRegion is set, it is covered by a
// second level chopped the same way.
func (c *Config) Hierarchy(ranks int) (*geom.Hierarchy, error) {
	g, err := c.Geometry()
	if err != nil {
		return nil, err
	}
	maxSize, err := parseInts("MaxGridSize", c.Domain.MaxGridSize, 1)
	if err != nil {
		return nil, err
	}
	tile, err := parseInts("TileSize", c.Domain.TileSize, 1)
	if err != nil {
		return nil, err
	}

	grids := g.Domain.Tiles(maxSize)
	levels := []geom.Level{{Geom: g, Grids: grids, DMap: deal(len(grids), ranks, 0)}}

	region, ok, err := c.refined()
	if err != nil {
		return nil, err
	} else if ok {
		r := geom.Uniform(c.Domain.RefRatio)
		fine := region.Refine(r).Tiles(maxSize)
		levels = append(levels, geom.Level{
			Geom: g.Refine(r), Grids: fine, RefRatio: r,
			DMap: deal(len(fine), ranks, len(grids)),
		})
	}

	return geom.NewHierarchy(levels, tile)
}

func (c *Config) refined() (geom.Box, bool, error) {
	if strings.TrimSpace(c.Domain.RefinedRegion) == "" {
		return geom.Box{}, false, nil
	}
	tok := strings.Fields(c.Domain.RefinedRegion)
	if len(tok) != 6 {
		return geom.Box{}, false, fmt.Errorf("RefinedRegion = '%s', but it "+
			"must have six integers: lo0 lo1 lo2 hi0 hi1 hi2.",
			c.Domain.RefinedRegion)
	}
	var lo, hi geom.IntVect
	for i := range tok {
		n, err := strconv.Atoi(tok[i])
		if err != nil {
			return geom.Box{}, false, fmt.Errorf("RefinedRegion element %d, "+
				"'%s', is not an integer.", i, tok[i])
		}
		if i < 3 {
			lo[i] = n
		} else {
			hi[i-3] = n
		}
	}

	b := geom.NewBox(lo, hi)
	g, err := c.Geometry()
	if err != nil {
		return geom.Box{}, false, err
	}
	if !b.Ok() || !g.Domain.ContainsBox(b) {
		return geom.Box{}, false, fmt.Errorf("RefinedRegion %s is empty or "+
			"not inside the domain %s.", b, g.Domain)
	} else if c.Domain.RefRatio < 2 {
		return geom.Box{}, false, fmt.Errorf("RefRatio = %d, but it must be "+
			"at least 2.", c.Domain.RefRatio)
	}
	return b, true, nil
}

// deal assigns n grids to ranks round-robin, starting at offset.
func deal(n, ranks, offset int) []int {
	dmap := make([]int, n)
	for i := range dmap {
		dmap[i] = (i + offset) % ranks
	}
	return dmap
}

// parseInts parses one integer, used for every dimension, or three.
func parseInts(name, s string, lo int) (geom.IntVect, error) {
	tok := strings.Fields(s)
	if len(tok) != 1 && len(tok) != 3 {
		return geom.IntVect{}, fmt.Errorf("%s = '%s', but it must be one "+
			"integer or three.", name, s)
	}
	var out geom.IntVect
	for i := range out {
		n, err := strconv.Atoi(tok[i%len(tok)])
		if err != nil {
			return geom.IntVect{}, fmt.Errorf("%s = '%s', and '%s' is not an "+
				"integer.", name, s, tok[i%len(tok)])
		} else if n < lo {
			return geom.IntVect{}, fmt.Errorf("%s = '%s', but every element "+
				"must be at least %d.", name, s, lo)
		}
		out[i] = n
	}
	return out, nil
}

func parseFloats(name, s string) ([3]float64, error) {
	tok := strings.Fields(s)
	if len(tok) != 1 && len(tok) != 3 {
		return [3]float64{}, fmt.Errorf("%s = '%s', but it must be one "+
			"number or three.", name, s)
	}
	var out [3]float64
	for i := range out {
		x, err := strconv.ParseFloat(tok[i%len(tok)], 64)
		if err != nil {
			return [3]float64{}, fmt.Errorf("%s = '%s', and '%s' is not a "+
				"number.", name, s, tok[i%len(tok)])
		}
		out[i] = x
	}
	return out, nil
}

func parseBools(name, s string) ([3]bool, error) {
	tok := strings.Fields(s)
	if len(tok) != 1 && len(tok) != 3 {
		return [3]bool{}, fmt.Errorf("%s = '%s', but it must be one "+
			"boolean or three.", name, s)
	}
	var out [3]bool
	for i := range out {
		b, err := strconv.ParseBool(tok[i%len(tok)])
		if err != nil {
			return [3]bool{}, fmt.Errorf("%s = '%s', and '%s' is not true or "+
				"false.", name, s, tok[i%len(tok)])
		}
		out[i] = b
	}
	return out, nil
}
