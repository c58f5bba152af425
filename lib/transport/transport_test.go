package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// exchangeRing has every rank send rank+1 bytes to each peer and checks what
// it receives.
func exchangeRing(ctx context.Context, c Comm) error {
	n, rank := c.Size(), c.Rank()

	send := make([]int64, n)
	for p := range send {
		send[p] = int64(10*rank + p)
	}
	recv, err := c.Alltoall(ctx, send)
	if err != nil {
		return err
	}
	for p := range recv {
		if recv[p] != int64(10*p+rank) {
			return errors.New("alltoall delivered the wrong count")
		}
	}

	reqs := []Request{}
	bufs := make([][]byte, n)
	for p := 0; p < n; p++ {
		bufs[p] = make([]byte, p+1)
		r, err := c.Irecv(ctx, p, 7, bufs[p])
		if err != nil {
			return err
		}
		reqs = append(reqs, r)
	}
	for p := 0; p < n; p++ {
		msg := make([]byte, rank+1)
		for i := range msg {
			msg[i] = byte(rank)
		}
		r, err := c.Isend(ctx, p, 7, msg)
		if err != nil {
			return err
		}
		reqs = append(reqs, r)
	}
	if err := WaitAll(ctx, reqs); err != nil {
		return err
	}
	for p := range bufs {
		for _, b := range bufs[p] {
			if int(b) != p {
				return errors.New("point-to-point delivered the wrong bytes")
			}
		}
	}
	return nil
}

func TestWorldExchange(t *testing.T) {
	ctx := testCtx(t)
	for _, n := range []int{1, 2, 5} {
		w, err := NewWorld(n)
		require.NoError(t, err)
		require.NoError(t, w.Run(ctx, exchangeRing), "world of %d ranks", n)
		require.NoError(t, w.Close())
	}
}

func TestWorldOrdering(t *testing.T) {
	ctx := testCtx(t)
	w, err := NewWorld(2)
	require.NoError(t, err)

	err = w.Run(ctx, func(ctx context.Context, c Comm) error {
		if c.Rank() == 0 {
			for i := 0; i < 10; i++ {
				if _, err := c.Isend(ctx, 1, 3, []byte{byte(i)}); err != nil {
					return err
				}
			}
			return nil
		}
		for i := 0; i < 10; i++ {
			b := make([]byte, 1)
			r, err := c.Irecv(ctx, 0, 3, b)
			if err != nil {
				return err
			}
			if err := r.Wait(ctx); err != nil {
				return err
			}
			if int(b[0]) != i {
				return errors.New("messages arrived out of order")
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestSizeMismatch(t *testing.T) {
	ctx := testCtx(t)
	w, err := NewWorld(2)
	require.NoError(t, err)
	c0, c1 := w.Comm(0), w.Comm(1)

	_, err = c0.Isend(ctx, 1, 0, make([]byte, 5))
	require.NoError(t, err)
	r, err := c1.Irecv(ctx, 0, 0, make([]byte, 4))
	require.NoError(t, err)
	require.ErrorIs(t, r.Wait(ctx), ErrSizeMismatch)
}

func TestBadArguments(t *testing.T) {
	ctx := testCtx(t)
	w, err := NewWorld(2)
	require.NoError(t, err)
	c := w.Comm(0)

	_, err = c.Isend(ctx, 2, 0, nil)
	require.Error(t, err)
	_, err = c.Irecv(ctx, -1, 0, nil)
	require.Error(t, err)
	_, err = c.Isend(ctx, 1, -1, nil)
	require.Error(t, err)
	_, err = c.Alltoall(ctx, []int64{1})
	require.Error(t, err)

	_, err = NewWorld(0)
	require.Error(t, err)
}

func TestClosedWorld(t *testing.T) {
	ctx := testCtx(t)
	w, err := NewWorld(2)
	require.NoError(t, err)

	r, err := w.Comm(1).Irecv(ctx, 0, 0, make([]byte, 1))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.ErrorIs(t, r.Wait(ctx), ErrClosed)

	_, err = w.Comm(0).Isend(ctx, 1, 0, []byte{1})
	require.ErrorIs(t, err, ErrClosed)
}

func TestWaitCancelled(t *testing.T) {
	w, err := NewWorld(2)
	require.NoError(t, err)
	r, err := w.Comm(1).Irecv(context.Background(), 0, 0, make([]byte, 1))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, r.Wait(ctx), context.Canceled)
}

func TestTCPExchange(t *testing.T) {
	ctx := testCtx(t)
	const n = 3

	lns := make([]net.Listener, n)
	addrs := make([]string, n)
	for i := range lns {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		lns[i], addrs[i] = ln, ln.Addr().String()
	}

	comms := make([]*TCP, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			comms[i], errs[i] = NewTCPListener(ctx, i, lns[i], addrs)
			if errs[i] == nil {
				errs[i] = exchangeRing(ctx, comms[i])
			}
		}()
	}
	wg.Wait()
	for i := range errs {
		require.NoError(t, errs[i], "rank %d", i)
	}

	for i := range comms {
		require.Greater(t, comms[i].BytesSent(), int64(0))
	}
	for i := range comms {
		wg.Add(1)
		go func() {
			defer wg.Done()
			comms[i].Close()
		}()
	}
	wg.Wait()

	_, err := comms[0].Isend(ctx, 1, 0, []byte{1})
	require.ErrorIs(t, err, ErrClosed)
}
