package neighbor

/* negotiate.go establishes how many bytes each process will receive from
each peer before any particle data is posted. */

import (
	"context"
	"fmt"
	"slices"

	"github.com/phil-mansfield/neighbors/lib/transport"
)

// Negotiator exchanges per-peer byte counts. Counts are either recomputed
// with an all-to-all exchange or reused from the previous round.
type Negotiator struct {
	comm transport.Comm

	valid      bool
	generation uint64
	recordSize int
	send, recv []int64
}

// NewNegotiator creates a negotiator over comm.
func NewNegotiator(comm transport.Comm) *Negotiator {
	return &Negotiator{comm: comm}
}

// Negotiate returns the number of bytes this process will receive from each
// peer, given the number it will send to each peer. With reuse set, the
// previous round's counts are returned without communicating; this is only
// allowed if they were computed under the same generation and record size,
// and the send counts must be unchanged. Reuse skips the collective, so a
// process whose reuse check fails can't tell its peers; callers must abort
// the communicator. Entry [rank] is always zero.
func (n *Negotiator) Negotiate(
	ctx context.Context, send []int64, generation uint64, recordSize int,
	reuse bool,
) ([]int64, error) {
	if len(send) != n.comm.Size() {
		return nil, fmt.Errorf("%w: %d send counts for %d processes",
			ErrConfig, len(send), n.comm.Size())
	}

	if reuse {
		switch {
		case !n.valid:
			return nil, fmt.Errorf("%w: no negotiated sizes to reuse",
				ErrConfig)
		case n.generation != generation:
			return nil, fmt.Errorf("%w: sizes were negotiated under "+
				"generation %d, but the partition is at generation %d",
				ErrConfig, n.generation, generation)
		case n.recordSize != recordSize:
			return nil, fmt.Errorf("%w: sizes were negotiated for %d-byte "+
				"records, but records are now %d bytes", ErrConfig,
				n.recordSize, recordSize)
		case !slices.Equal(n.send, send):
			return nil, fmt.Errorf("%w: send sizes changed since they "+
				"were negotiated", ErrConfig)
		}
		return slices.Clone(n.recv), nil
	}

	recv, err := n.comm.Alltoall(ctx, send)
	if err != nil {
		n.Invalidate()
		return nil, fmt.Errorf("%w: size negotiation: %w", ErrComm, err)
	}
	recv[n.comm.Rank()] = 0
	for p, b := range recv {
		if b < 0 || b%int64(recordSize) != 0 {
			n.Invalidate()
			return nil, fmt.Errorf("%w: rank %d will send %d bytes, which "+
				"is not a whole number of %d-byte records", ErrComm, p, b,
				recordSize)
		}
	}

	n.valid, n.generation, n.recordSize = true, generation, recordSize
	n.send, n.recv = slices.Clone(send), slices.Clone(recv)
	return recv, nil
}

// Invalidate drops the stored counts so the next round must recompute them.
func (n *Negotiator) Invalidate() {
	n.valid = false
	n.send, n.recv = nil, nil
}

// Valid returns true if there are counts that can be reused.
func (n *Negotiator) Valid() bool { return n.valid }
