package neighbor

/* cache.go memoizes tagger output per owning tile. */

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/phil-mansfield/neighbors/lib/geom"
	"github.com/phil-mansfield/neighbors/lib/particles"
)

// cacheKey identifies the inputs which, together with particle positions,
// determine every tag.
type cacheKey struct {
	generation uint64
	radius     geom.IntVect
	policy     ImagePolicy
}

// TagCache holds the CopyTags of every particle in every local tile, indexed
// by the particle's slot in its tile.
type TagCache struct {
	key   cacheKey
	tiles map[particles.TileKey][][]CopyTag
}

// buildTagCache tags every particle in the store, one tile per goroutine.
func buildTagCache(
	ctx context.Context, tagger *Tagger, store *particles.Store,
	key cacheKey, threads int,
) (*TagCache, error) {
	keys := store.Keys()
	out := make([][][]CopyTag, len(keys))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(threads)
	for i, k := range keys {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			out[i] = tagTile(tagger, k, store.Tile(k))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c := &TagCache{key: key, tiles: make(map[particles.TileKey][][]CopyTag, len(keys))}
	for i, k := range keys {
		c.tiles[k] = out[i]
	}
	return c, nil
}

func tagTile(t *Tagger, k particles.TileKey, ps []particles.Particle) [][]CopyTag {
	tags := make([][]CopyTag, len(ps))
	var buf []CopyTag
	for i := range ps {
		buf = t.Tags(k.Level, k.Grid, k.Tile, ps[i].Pos, buf)
		tags[i] = slices.Clone(buf)
	}
	return tags
}

// valid returns true if the cache was built for the given inputs.
func (c *TagCache) valid(key cacheKey) bool { return c != nil && c.key == key }

// Tile returns the tags of every particle in a tile.
func (c *TagCache) Tile(k particles.TileKey) [][]CopyTag { return c.tiles[k] }

// checkSlots returns an error if any tile's particle count differs from the
// count the cache was built with.
func (c *TagCache) checkSlots(store *particles.Store) error {
	keys := store.Keys()
	if len(keys) != len(c.tiles) {
		return fmt.Errorf("%w: %d tiles hold particles, but tags were "+
			"cached for %d", ErrConfig, len(keys), len(c.tiles))
	}
	for _, k := range keys {
		tags, ok := c.tiles[k]
		if n := len(store.Tile(k)); !ok || n != len(tags) {
			return fmt.Errorf("%w: tile %s holds %d particles, but tags "+
				"were cached for %d; particles were added, removed, or "+
				"redistributed since the last fill", ErrConfig, k, n,
				len(tags))
		}
	}
	return nil
}

// equal reports the first tile whose tags differ between two caches.
func (c *TagCache) equal(o *TagCache) (particles.TileKey, bool) {
	for k, tags := range c.tiles {
		otags, ok := o.tiles[k]
		if !ok || !slices.EqualFunc(tags, otags, slices.Equal[[]CopyTag]) {
			return k, false
		}
	}
	for k := range o.tiles {
		if _, ok := c.tiles[k]; !ok {
			return k, false
		}
	}
	return particles.TileKey{}, true
}

// Len returns the total number of tags in the cache.
func (c *TagCache) Len() int {
	n := 0
	for _, tags := range c.tiles {
		for _, t := range tags {
			n += len(t)
		}
	}
	return n
}
