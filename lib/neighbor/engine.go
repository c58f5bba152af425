package neighbor

/* engine.go contains Engine, which owns the neighbor buffers of one process
and drives each round: partition sync, tagging, size negotiation, and the
exchange itself. */

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/phil-mansfield/neighbors/lib/geom"
	"github.com/phil-mansfield/neighbors/lib/mask"
	"github.com/phil-mansfield/neighbors/lib/particles"
	"github.com/phil-mansfield/neighbors/lib/transport"
)

// State is the point an Engine has reached in the current round.
type State int

const (
	Uninitialized State = iota
	MaskBuilt
	TagsCached
	SizesNegotiated
	BuffersFilled
	ListsBuilt
	BuffersCleared
	// Failed is terminal. It is entered after a communication error or a
	// failed size reuse.
	Failed
)

var stateNames = []string{
	"Uninitialized", "MaskBuilt", "TagsCached", "SizesNegotiated",
	"BuffersFilled", "ListsBuilt", "BuffersCleared", "Failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// RoundStats summarizes the most recent fill or update.
type RoundStats struct {
	// Mode is "fill" or "update".
	Mode       string
	Generation uint64
	// Reused is true if negotiated sizes were reused rather than exchanged.
	Reused bool

	// LocalCopies counts copies appended without communication, in total
	// and by destination tile.
	LocalCopies int
	LocalByTile map[particles.TileKey]int
	// SentRecords and RecvRecords count packed records per peer.
	SentRecords, RecvRecords []int
	// SendBytes and RecvBytes are the negotiated byte counts per peer.
	SendBytes, RecvBytes []int64
	// RecvByTile counts received records by destination tile.
	RecvByTile map[particles.TileKey]int
	// RemoteTiles lists every tile on another process which was sent
	// copies, sorted by process.
	RemoteTiles []CommTag
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger. The default is slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithHaloFiller replaces the collaborator which fills the halo of the
// DomainMask.
func WithHaloFiller(f mask.HaloFiller) Option {
	return func(e *Engine) { e.filler = f }
}

// Engine fills and manages the neighbor buffers of one process. An Engine is
// driven by a single goroutine; it parallelizes tile work internally.
type Engine struct {
	hier   *geom.Hierarchy
	store  *particles.Store
	comm   transport.Comm
	cfg    Config
	log    *slog.Logger
	filler mask.HaloFiller
	label  string

	state      State
	err        error
	generation uint64
	mask       *mask.DomainMask
	tags       *TagCache
	neg        *Negotiator

	neighbors map[particles.TileKey][]particles.Particle
	lists     map[particles.TileKey]*NeighborList
	stats     RoundStats
}

// NewEngine creates an engine for the particles in store, which must belong
// to process comm.Rank() of the partition described by hier.
func NewEngine(
	hier *geom.Hierarchy, store *particles.Store, comm transport.Comm,
	cfg Config, opts ...Option,
) (*Engine, error) {
	if hier == nil || store == nil || comm == nil {
		return nil, fmt.Errorf("%w: NewEngine needs a hierarchy, a store, "+
			"and a communicator", ErrConfig)
	}
	if err := cfg.Check(hier); err != nil {
		return nil, err
	}

	e := &Engine{
		hier: hier, store: store, comm: comm, cfg: cfg,
		log: slog.Default(), filler: mask.GeometricFiller{},
		label: strconv.Itoa(comm.Rank()),
		neg:   NewNegotiator(comm),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("rank", comm.Rank())
	return e, nil
}

func (e *Engine) State() State { return e.state }
func (e *Engine) Config() Config { return e.cfg }
func (e *Engine) Err() error { return e.err }
func (e *Engine) Rank() int { return e.comm.Rank() }
func (e *Engine) Tags() *TagCache { return e.tags }

// Stats returns the statistics of the last completed fill or update.
func (e *Engine) Stats() RoundStats { return e.stats }

// SetRadius changes the neighbor radius. Buffers must be cleared first.
func (e *Engine) SetRadius(r geom.IntVect) error {
	if e.state == BuffersFilled || e.state == ListsBuilt {
		return fmt.Errorf("%w: the radius cannot change while neighbor "+
			"buffers are filled; call ClearNeighbors first", ErrConfig)
	}
	cfg := e.cfg
	cfg.Radius = r
	if err := cfg.Check(e.hier); err != nil {
		return err
	}
	e.cfg = cfg
	e.mask, e.tags = nil, nil
	e.neg.Invalidate()
	return nil
}

// SetRealCommComp turns communication of real component i on or off. Copies
// of particles have uncommunicated components set to zero.
func (e *Engine) SetRealCommComp(i int, on bool) error {
	if err := e.store.SetCommReal(i, on); err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return nil
}

// SetIntCommComp turns communication of integer component i on or off.
func (e *Engine) SetIntCommComp(i int, on bool) error {
	if err := e.store.SetCommInt(i, on); err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return nil
}

// Regrid tells the engine that the partition has changed. The same is
// detected automatically from the hierarchy's generation, so calling Regrid
// is only needed when the hierarchy was replaced in place without a
// generation change.
func (e *Engine) Regrid() {
	if e.state == Failed {
		return
	}
	e.resetPartition()
	e.generation = 0
	e.neighbors, e.lists = nil, nil
	e.state = Uninitialized
}

func (e *Engine) resetPartition() {
	e.mask, e.tags = nil, nil
	e.neg.Invalidate()
}

// fail moves the engine to the Failed state. err is returned by every later
// call.
func (e *Engine) fail(err error) error {
	e.state, e.err = Failed, err
	e.neighbors, e.lists = nil, nil
	e.log.Error("Neighbor exchange failed.", "error", err)
	return err
}

// syncPartition rebuilds everything derived from the partition when its
// generation has moved, and builds the mask if it is missing.
func (e *Engine) syncPartition(ctx context.Context) error {
	gen := e.hier.Generation()
	if e.generation != gen {
		if e.generation != 0 {
			e.log.Info("Partition changed; rebuilding neighbor state.",
				"old_generation", e.generation, "generation", gen)
			tagRebuildsTotal.WithLabelValues(e.label, "regrid").Inc()
		}
		e.resetPartition()
		e.generation = gen
		e.state = Uninitialized
	}

	if e.cfg.UseMask && (e.mask == nil || e.mask.Radius() != e.cfg.Radius) {
		m, err := mask.Build(ctx, e.hier, e.comm.Rank(), e.cfg.Radius,
			e.filler, e.cfg.threads())
		if err != nil {
			return fmt.Errorf("%w: building the domain mask: %w",
				ErrConfig, err)
		}
		e.mask = m
	}
	if e.state == Uninitialized {
		e.state = MaskBuilt
	}
	return nil
}

func (e *Engine) cacheKey() cacheKey {
	return cacheKey{e.generation, e.cfg.Radius, e.cfg.Images}
}

func (e *Engine) tagger() *Tagger {
	m := e.mask
	if !e.cfg.UseMask {
		m = nil
	}
	return NewTagger(e.hier, m, e.cfg.Radius, e.cfg.Images)
}

// FillNeighbors retags every local particle and fills the neighbor buffers
// of every tile within reach, on this process and on others. Every process
// must call it together.
func (e *Engine) FillNeighbors(ctx context.Context) error {
	if e.state == Failed {
		return e.err
	}
	if err := e.cfg.Check(e.hier); err != nil {
		return err
	}
	if err := e.syncPartition(ctx); err != nil {
		return err
	}

	tags, err := buildTagCache(ctx, e.tagger(), e.store, e.cacheKey(),
		e.cfg.threads())
	if err != nil {
		return err
	}
	e.tags = tags
	e.state = TagsCached
	tagRebuildsTotal.WithLabelValues(e.label, "fill").Inc()

	return e.exchange(ctx, false, "fill")
}

// UpdateNeighbors refills the neighbor buffers using the tags from the last
// FillNeighbors, so copies carry current positions and attributes without
// retagging. With reuseSizes set, the byte counts from the last round are
// reused without communicating. If the partition changed since the last
// fill, a full fill is done instead. If the reused sizes no longer match this
// process's messages, the engine fails and closes the communicator so that
// peers waiting on those messages return errors.
func (e *Engine) UpdateNeighbors(ctx context.Context, reuseSizes bool) error {
	if e.state == Failed {
		return e.err
	}
	if err := e.cfg.Check(e.hier); err != nil {
		return err
	}

	gen := e.hier.Generation()
	if e.tags == nil || e.generation != gen || !e.tags.valid(e.cacheKey()) {
		if e.tags != nil {
			e.log.Warn("Neighbor tags are out of date; doing a full fill "+
				"instead of an update.", "tag_generation", e.generation,
				"generation", gen)
		}
		return e.FillNeighbors(ctx)
	}
	if err := e.tags.checkSlots(e.store); err != nil {
		return err
	}

	if e.cfg.Debug {
		fresh, err := buildTagCache(ctx, e.tagger(), e.store, e.cacheKey(),
			e.cfg.threads())
		if err != nil {
			return err
		}
		if k, ok := e.tags.equal(fresh); !ok {
			return fmt.Errorf("%w: cached tags for tile %s no longer match "+
				"particle positions; call FillNeighbors after moving "+
				"particles across cell boundaries", ErrStale, k)
		}
	}

	return e.exchange(ctx, reuseSizes, "update")
}

// ClearNeighbors empties every neighbor buffer and neighbor list. Tags and
// negotiated sizes are kept for UpdateNeighbors.
func (e *Engine) ClearNeighbors() {
	e.neighbors, e.lists = nil, nil
	if e.state >= TagsCached && e.state != Failed {
		e.state = BuffersCleared
	}
}

// GetNeighbors returns the neighbor buffer of a tile. The slice is owned by
// the engine and is valid until the next fill, update, or clear.
func (e *Engine) GetNeighbors(lev, grid, tile int) []particles.Particle {
	return e.neighbors[particles.TileKey{Level: lev, Grid: grid, Tile: tile}]
}

// NeighborTiles returns every tile with a non-empty neighbor buffer, sorted.
func (e *Engine) NeighborTiles() []particles.TileKey {
	keys := make([]particles.TileKey, 0, len(e.neighbors))
	for k := range e.neighbors {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)
	return keys
}

// GetNeighborList returns the neighbor list of a tile, or nil if lists have
// not been built or the tile has no local particles.
func (e *Engine) GetNeighborList(lev, grid, tile int) *NeighborList {
	return e.lists[particles.TileKey{Level: lev, Grid: grid, Tile: tile}]
}

// PrintNeighborList writes every neighbor list as one line per particle,
// naming neighbors by ID. Each line starts with prefix.
func (e *Engine) PrintNeighborList(w io.Writer, prefix string) error {
	if e.lists == nil {
		return fmt.Errorf("%w: neighbor lists have not been built", ErrConfig)
	}
	keys := make([]particles.TileKey, 0, len(e.lists))
	for k := range e.lists {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)

	for _, k := range keys {
		local := e.store.Tile(k)
		nbrs := e.neighbors[k]
		list := e.lists[k]
		for i := 0; i < list.Len(); i++ {
			_, err := fmt.Fprintf(w, "%s tile %s particle %d (id %d):",
				prefix, k, i, local[i].ID)
			if err != nil {
				return err
			}
			for _, j := range list.Neighbors(i) {
				var id int64
				if j < len(local) {
					id = local[j].ID
				} else {
					id = nbrs[j-len(local)].ID
				}
				if _, err := fmt.Fprintf(w, " %d", id); err != nil {
					return err
				}
			}
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
	}
	return nil
}

func compareKeys(a, b particles.TileKey) int { return a.Compare(b) }

// elapsed records the duration of a round.
func (e *Engine) elapsed(mode string, start time.Time) {
	roundDuration.WithLabelValues(e.label, mode).
		Observe(time.Since(start).Seconds())
}
