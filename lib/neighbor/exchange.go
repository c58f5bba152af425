package neighbor

/* exchange.go contains the copy step of a round: local copies are appended
directly, remote copies are packed into one byte buffer per peer, sent with
sizes agreed in advance, and unpacked into the tiles named in their headers. */

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/phil-mansfield/neighbors/lib/geom"
	"github.com/phil-mansfield/neighbors/lib/particles"
	"github.com/phil-mansfield/neighbors/lib/transport"
)

// exchangeTag is the message tag used for packed neighbor records.
const exchangeTag = 0

// entry is a neighbor copy along with where it came from, which fixes its
// position in the canonical buffer order.
type entry struct {
	src   particles.TileKey
	index int
	shift geom.IntVect
	p     particles.Particle
}

func compareEntries(a, b entry) int {
	if c := compareKeys(a.src, b.src); c != 0 {
		return c
	} else if c := cmp.Compare(a.index, b.index); c != 0 {
		return c
	}
	return a.shift.Compare(b.shift)
}

// staging is one worker's private output.
type staging struct {
	local  map[particles.TileKey][]entry
	remote map[CommTag]struct{}
	send   [][]byte
	sent   []int
}

func newStaging(size int) *staging {
	return &staging{
		local:  map[particles.TileKey][]entry{},
		remote: map[CommTag]struct{}{},
		send:   make([][]byte, size),
		sent:   make([]int, size),
	}
}

// packTile stages copies of every particle in tile k.
func (e *Engine) packTile(
	k particles.TileKey, layout particles.Layout, codec *particles.Codec,
	st *staging,
) {
	rank := e.comm.Rank()
	ps := e.store.Tile(k)
	tags := e.tags.Tile(k)
	for i := range ps {
		for _, tag := range tags[i] {
			pos := e.hier.Geom(tag.Level).ShiftPosition(ps[i].Pos, tag.Shift)
			dst := tag.Key()
			owner := e.hier.Owner(tag.Level, tag.Grid)
			if owner == rank {
				st.local[dst] = append(st.local[dst], entry{
					src: k, index: i, shift: tag.Shift,
					p: layout.NeighborCopy(&ps[i], pos),
				})
				continue
			}

			rec := particles.Record{
				Dst: dst, Src: k, SrcIndex: i, Shift: [3]int(tag.Shift),
				P: ps[i],
			}
			rec.P.Pos = pos
			st.send[owner] = codec.Append(st.send[owner], &rec)
			st.sent[owner]++
			ct := CommTag{owner, dst.Level, dst.Grid, dst.Tile}
			st.remote[ct] = struct{}{}
		}
	}
}

// exchange runs the copy step of a round with the current tag cache.
func (e *Engine) exchange(ctx context.Context, reuse bool, mode string) error {
	start := time.Now()
	defer e.elapsed(mode, start)

	rank, size := e.comm.Rank(), e.comm.Size()
	layout := e.store.Layout()
	codec := particles.NewCodec(layout)
	keys := e.store.Keys()

	// Pack, one contiguous run of tiles per worker.
	nw := max(1, min(e.cfg.threads(), len(keys)))
	stages := make([]*staging, nw)
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(nw)
	for w := range stages {
		lo, hi := w*len(keys)/nw, (w+1)*len(keys)/nw
		g.Go(func() error {
			st := newStaging(size)
			for _, k := range keys[lo:hi] {
				if err := gCtx.Err(); err != nil {
					return err
				}
				e.packTile(k, layout, codec, st)
			}
			stages[w] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	stats := RoundStats{
		Mode: mode, Generation: e.generation, Reused: reuse,
		LocalByTile: map[particles.TileKey]int{},
		SentRecords: make([]int, size), RecvRecords: make([]int, size),
		SendBytes: make([]int64, size),
		RecvByTile: map[particles.TileKey]int{},
	}
	buffers := map[particles.TileKey][]entry{}
	sendBufs := make([][]byte, size)
	remote := map[CommTag]struct{}{}
	for _, st := range stages {
		for ct := range st.remote {
			remote[ct] = struct{}{}
		}
		for k, es := range st.local {
			buffers[k] = append(buffers[k], es...)
			stats.LocalByTile[k] += len(es)
			stats.LocalCopies += len(es)
		}
		for p := range sendBufs {
			sendBufs[p] = append(sendBufs[p], st.send[p]...)
			stats.SentRecords[p] += st.sent[p]
		}
	}
	for p := range sendBufs {
		if p != rank {
			stats.SendBytes[p] = int64(len(sendBufs[p]))
		}
	}
	for ct := range remote {
		stats.RemoteTiles = append(stats.RemoteTiles, ct)
	}
	slices.SortFunc(stats.RemoteTiles, CommTag.Compare)

	// Negotiate.
	recvBytes, err := e.neg.Negotiate(ctx, stats.SendBytes, e.generation,
		codec.RecordSize(), reuse)
	if err != nil {
		if reuse && !isComm(err) {
			// Peers which passed their own reuse checks have already posted
			// receives from this rank and only a closed communicator
			// releases them.
			e.comm.Close()
		}
		return e.fail(err)
	}
	stats.RecvBytes = recvBytes
	e.state = SizesNegotiated
	negotiationMode := "recompute"
	if reuse {
		negotiationMode = "reuse"
	}
	negotiationsTotal.WithLabelValues(e.label, negotiationMode).Inc()

	// Post receives, then sends. Peers with nothing to send or receive get
	// no message at all.
	recvBufs := make([][]byte, size)
	reqs := make([]transport.Request, 0, 2*size)
	for p := 0; p < size; p++ {
		if p == rank || recvBytes[p] == 0 {
			continue
		}
		recvBufs[p] = make([]byte, recvBytes[p])
		r, err := e.comm.Irecv(ctx, p, exchangeTag, recvBufs[p])
		if err != nil {
			return e.fail(fmt.Errorf("%w: posting receive from rank %d: %w",
				ErrComm, p, err))
		}
		reqs = append(reqs, r)
	}
	for p := 0; p < size; p++ {
		if p == rank || len(sendBufs[p]) == 0 {
			continue
		}
		r, err := e.comm.Isend(ctx, p, exchangeTag, sendBufs[p])
		if err != nil {
			return e.fail(fmt.Errorf("%w: posting send to rank %d: %w",
				ErrComm, p, err))
		}
		reqs = append(reqs, r)
	}
	if err := transport.WaitAll(ctx, reqs); err != nil {
		return e.fail(fmt.Errorf("%w: %w", ErrComm, err))
	}

	// Unpack.
	for p := 0; p < size; p++ {
		if recvBufs[p] == nil {
			continue
		}
		recs, err := codec.DecodeAll(recvBufs[p])
		if err != nil {
			return e.fail(fmt.Errorf("%w: unpacking records from rank %d: %w",
				ErrComm, p, err))
		}
		for _, r := range recs {
			if e.cfg.Debug {
				if err := e.checkDestination(r.Dst); err != nil {
					return err
				}
			}
			buffers[r.Dst] = append(buffers[r.Dst], entry{
				src: r.Src, index: r.SrcIndex, shift: geom.IntVect(r.Shift),
				p: r.P,
			})
			stats.RecvRecords[p]++
			stats.RecvByTile[r.Dst]++
		}
	}

	e.neighbors = make(map[particles.TileKey][]particles.Particle, len(buffers))
	for k, es := range buffers {
		slices.SortFunc(es, compareEntries)
		ps := make([]particles.Particle, len(es))
		for i := range es {
			ps[i] = es[i].p
		}
		e.neighbors[k] = ps
	}
	e.lists = nil
	e.stats = stats
	e.state = BuffersFilled
	e.recordStats(&stats)
	return nil
}

// checkDestination returns an error if a received record names a tile this
// process does not own.
func (e *Engine) checkDestination(k particles.TileKey) error {
	ok := k.Level >= 0 && k.Level < e.hier.NumLevels() &&
		k.Grid >= 0 && k.Grid < e.hier.NumGrids(k.Level) &&
		k.Tile >= 0 && k.Tile < len(e.hier.Tiles(k.Level, k.Grid))
	if !ok || e.hier.Owner(k.Level, k.Grid) != e.comm.Rank() {
		return fmt.Errorf("%w: received a copy for tile %s, which is not "+
			"owned by rank %d; processes disagree about the partition",
			ErrStale, k, e.comm.Rank())
	}
	return nil
}

func (e *Engine) recordStats(s *RoundStats) {
	sent, recv, bytes := 0, 0, int64(0)
	for p := range s.SentRecords {
		sent += s.SentRecords[p]
		recv += s.RecvRecords[p]
		bytes += s.SendBytes[p]
	}
	localCopiesTotal.WithLabelValues(e.label).Add(float64(s.LocalCopies))
	remoteSentTotal.WithLabelValues(e.label).Add(float64(sent))
	remoteRecvTotal.WithLabelValues(e.label).Add(float64(recv))
	bytesSentTotal.WithLabelValues(e.label).Add(float64(bytes))

	e.log.Debug("Filled neighbor buffers.", "mode", s.Mode,
		"generation", s.Generation, "local_copies", s.LocalCopies,
		"records_sent", sent, "records_received", recv, "bytes_sent", bytes,
		"reused_sizes", s.Reused)
}
