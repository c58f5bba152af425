package neighbor

/* redistribute.go moves particles to the process and tile that own their
current positions. */

import (
	"context"
	"fmt"

	"github.com/phil-mansfield/neighbors/lib/geom"
	"github.com/phil-mansfield/neighbors/lib/particles"
	"github.com/phil-mansfield/neighbors/lib/transport"
)

// redistributeTag is the message tag used for migrating particles.
const redistributeTag = 1

// Redistribute wraps every particle in store through the periodic boundaries
// and moves it to the tile that owns its position, sending it to another
// process if needed. Every component is sent, whatever the comm masks say.
// Every process must call it together. Tags cached by an Engine are invalid
// afterwards, so the next round must be a FillNeighbors.
func Redistribute(
	ctx context.Context, hier *geom.Hierarchy, store *particles.Store,
	comm transport.Comm,
) error {
	rank, size := comm.Rank(), comm.Size()
	codec := particles.NewFullCodec(store.Layout())

	ps := store.TakeAll()
	send := make([][]byte, size)
	var rec particles.Record
	for i := range ps {
		k, err := particles.Place(hier, &ps[i])
		if err != nil {
			return err
		}
		owner := hier.Owner(k.Level, k.Grid)
		if owner == rank {
			if err := store.Append(k, ps[i]); err != nil {
				return err
			}
			continue
		}
		rec = particles.Record{Dst: k, P: ps[i]}
		send[owner] = codec.Append(send[owner], &rec)
	}

	counts := make([]int64, size)
	for p := range send {
		counts[p] = int64(len(send[p]))
	}
	recvCounts, err := comm.Alltoall(ctx, counts)
	if err != nil {
		return fmt.Errorf("%w: redistribution sizes: %w", ErrComm, err)
	}

	recv := make([][]byte, size)
	reqs := []transport.Request{}
	for p := 0; p < size; p++ {
		if p == rank || recvCounts[p] == 0 {
			continue
		}
		recv[p] = make([]byte, recvCounts[p])
		r, err := comm.Irecv(ctx, p, redistributeTag, recv[p])
		if err != nil {
			return fmt.Errorf("%w: %w", ErrComm, err)
		}
		reqs = append(reqs, r)
	}
	for p := 0; p < size; p++ {
		if p == rank || len(send[p]) == 0 {
			continue
		}
		r, err := comm.Isend(ctx, p, redistributeTag, send[p])
		if err != nil {
			return fmt.Errorf("%w: %w", ErrComm, err)
		}
		reqs = append(reqs, r)
	}
	if err := transport.WaitAll(ctx, reqs); err != nil {
		return fmt.Errorf("%w: %w", ErrComm, err)
	}

	for p := range recv {
		if recv[p] == nil {
			continue
		}
		recs, err := codec.DecodeAll(recv[p])
		if err != nil {
			return fmt.Errorf("%w: particles from rank %d: %w", ErrComm, p, err)
		}
		for i := range recs {
			if hier.Owner(recs[i].Dst.Level, recs[i].Dst.Grid) != rank {
				return fmt.Errorf("%w: rank %d sent particle %d to tile %s, "+
					"which rank %d does not own", ErrStale, p, recs[i].P.ID,
					recs[i].Dst, rank)
			}
			if err := store.Append(recs[i].Dst, recs[i].P); err != nil {
				return err
			}
		}
	}
	return nil
}
