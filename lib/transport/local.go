package transport

/* local.go contains World, an in-memory communicator whose ranks are
goroutines in a single process. */

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// World is a set of in-memory ranks which share mailboxes.
type World struct {
	boxes  []*mailbox
	closed atomic.Bool
}

// NewWorld creates a world with n ranks.
func NewWorld(n int) (*World, error) {
	if n < 1 {
		return nil, fmt.Errorf("A world needs at least one rank, got %d.", n)
	}
	w := &World{boxes: make([]*mailbox, n)}
	for i := range w.boxes {
		w.boxes[i] = newMailbox()
	}
	return w, nil
}

// Size returns the number of ranks in the world.
func (w *World) Size() int { return len(w.boxes) }

// Comm returns the communicator for a rank.
func (w *World) Comm(rank int) *LocalComm {
	return &LocalComm{world: w, rank: rank}
}

// Close closes every rank's mailbox. Pending receives fail with ErrClosed.
func (w *World) Close() error {
	if w.closed.Swap(true) {
		return nil
	}
	for _, b := range w.boxes {
		b.close(ErrClosed)
	}
	return nil
}

// Run calls fn once per rank, each in its own goroutine, and returns the
// first error. The world is closed when any rank fails so that peers blocked
// on that rank are released.
func (w *World) Run(
	ctx context.Context, fn func(ctx context.Context, c Comm) error,
) error {
	var g errgroup.Group
	var once sync.Once
	for rank := range w.boxes {
		g.Go(func() error {
			err := fn(ctx, w.Comm(rank))
			if err != nil {
				once.Do(func() { w.Close() })
			}
			return err
		})
	}
	return g.Wait()
}

// LocalComm is one rank of a World.
type LocalComm struct {
	world *World
	rank  int
}

var _ Comm = &LocalComm{}

func (c *LocalComm) Rank() int { return c.rank }
func (c *LocalComm) Size() int { return len(c.world.boxes) }

func (c *LocalComm) Alltoall(
	ctx context.Context, send []int64,
) ([]int64, error) {
	return alltoallP2P(ctx, c, send)
}

func (c *LocalComm) Isend(
	ctx context.Context, dst, tag int, buf []byte,
) (Request, error) {
	if err := checkTag(tag); err != nil {
		return nil, err
	}
	return c.isend(ctx, dst, tag, buf)
}

func (c *LocalComm) Irecv(
	ctx context.Context, src, tag int, buf []byte,
) (Request, error) {
	if err := checkTag(tag); err != nil {
		return nil, err
	}
	return c.irecv(ctx, src, tag, buf)
}

// isend copies buf into the destination mailbox, so the request is already
// complete when it is returned.
func (c *LocalComm) isend(
	ctx context.Context, dst, tag int, buf []byte,
) (Request, error) {
	if err := checkPeer(c, dst); err != nil {
		return nil, err
	} else if c.world.closed.Load() {
		return nil, ErrClosed
	}
	msg := append([]byte{}, buf...)
	c.world.boxes[dst].deliver(c.rank, tag, msg)
	return doneRequest{}, nil
}

func (c *LocalComm) irecv(
	ctx context.Context, src, tag int, buf []byte,
) (Request, error) {
	if err := checkPeer(c, src); err != nil {
		return nil, err
	} else if c.world.closed.Load() {
		return nil, ErrClosed
	}
	return c.world.boxes[c.rank].post(src, tag, buf), nil
}

// Close closes the whole world, since a rank leaving would strand its peers.
func (c *LocalComm) Close() error { return c.world.Close() }
