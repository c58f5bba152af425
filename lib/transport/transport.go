/*package transport contains the process-to-process communication layer used by
the neighbor exchange: an all-to-all exchange of counts, and asynchronous
point-to-point byte messages matched by source and tag.

Three implementations are provided. World runs every rank as a goroutine in one
process and is used by tests and single-machine runs. TCP connects separate
processes with zstd-compressed frames. MPI wraps an MPI library through cgo and
is only built with the mpi build tag.
*/
package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrSizeMismatch is returned when a received message's length differs
	// from the length of the buffer posted to receive it.
	ErrSizeMismatch = errors.New("received message size does not match " +
		"the posted buffer")

	// ErrClosed is returned by operations on a closed communicator.
	ErrClosed = errors.New("communicator is closed")
)

// alltoallTag is reserved for the count exchange. User tags must be
// non-negative.
const alltoallTag = -1

// Request is a pending asynchronous operation.
type Request interface {
	// Wait blocks until the operation completes or ctx is done.
	Wait(ctx context.Context) error
}

// Comm is a communicator over a fixed set of ranks.
type Comm interface {
	Rank() int
	Size() int
	// Alltoall sends send[p] to every rank p and returns the value each rank
	// sent to this one. Every rank must call it the same number of times.
	Alltoall(ctx context.Context, send []int64) ([]int64, error)
	// Isend starts sending buf to rank dst with the given tag. buf must not
	// be modified until the request completes.
	Isend(ctx context.Context, dst, tag int, buf []byte) (Request, error)
	// Irecv starts receiving the next message from src with the given tag
	// into buf. The message must be exactly len(buf) bytes long.
	Irecv(ctx context.Context, src, tag int, buf []byte) (Request, error)
	Close() error
}

// WaitAll waits on every request and returns the first error encountered.
// It always waits on every request, even after an error.
func WaitAll(ctx context.Context, reqs []Request) error {
	var first error
	for _, r := range reqs {
		if r == nil {
			continue
		}
		if err := r.Wait(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// doneRequest is a request which completed when it was created.
type doneRequest struct{ err error }

func (r doneRequest) Wait(ctx context.Context) error { return r.err }

// checkPeer returns an error if p is not a valid rank.
func checkPeer(c Comm, p int) error {
	if p < 0 || p >= c.Size() {
		return fmt.Errorf("Rank %d is outside the communicator of size %d.",
			p, c.Size())
	}
	return nil
}

// pointToPoint is the part of Comm which alltoallP2P is built on.
type pointToPoint interface {
	Rank() int
	Size() int
	isend(ctx context.Context, dst, tag int, buf []byte) (Request, error)
	irecv(ctx context.Context, src, tag int, buf []byte) (Request, error)
}

// alltoallP2P implements Alltoall with one 8-byte message to every peer on
// the reserved tag. Messages between a pair of ranks are delivered in order,
// so successive calls can't mix.
func alltoallP2P(
	ctx context.Context, c pointToPoint, send []int64,
) ([]int64, error) {
	n := c.Size()
	if len(send) != n {
		return nil, fmt.Errorf("Alltoall needs %d send values, got %d.",
			n, len(send))
	}

	sendBufs := make([]byte, 8*n)
	recvBufs := make([]byte, 8*n)
	reqs := make([]Request, 0, 2*n)
	for p := 0; p < n; p++ {
		b := recvBufs[8*p : 8*p+8]
		r, err := c.irecv(ctx, p, alltoallTag, b)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, r)
	}
	for p := 0; p < n; p++ {
		b := sendBufs[8*p : 8*p+8]
		binary.LittleEndian.PutUint64(b, uint64(send[p]))
		r, err := c.isend(ctx, p, alltoallTag, b)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, r)
	}
	if err := WaitAll(ctx, reqs); err != nil {
		return nil, err
	}

	out := make([]int64, n)
	for p := range out {
		out[p] = int64(binary.LittleEndian.Uint64(recvBufs[8*p:]))
	}
	return out, nil
}

// checkTag returns an error for tags reserved by the transport.
func checkTag(tag int) error {
	if tag < 0 {
		return fmt.Errorf("Message tag %d is negative; negative tags are "+
			"reserved.", tag)
	}
	return nil
}
