package transport

/* tcp.go contains a communicator which connects separate processes over TCP.
Every ordered pair of ranks gets its own connection, written by a single
goroutine so that messages between two ranks arrive in the order they were
sent. Payloads are zstd-compressed frames from lib/compress. */

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phil-mansfield/neighbors/lib/compress"
)

// dialRetry is the pause between attempts to reach a peer which isn't
// listening yet.
const dialRetry = 50 * time.Millisecond

// sendQueueLen is the number of outstanding sends per peer before Isend
// blocks.
const sendQueueLen = 64

type sendJob struct {
	tag  int
	buf  []byte
	done chan error
}

type sendRequest struct {
	done chan error
	err  error
	fin  bool
}

func (r *sendRequest) Wait(ctx context.Context) error {
	if r.fin {
		return r.err
	}
	select {
	case err := <-r.done:
		r.fin, r.err = true, err
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TCP is a communicator over TCP connections.
type TCP struct {
	rank, size int
	log        *slog.Logger

	ln     net.Listener
	box    *mailbox
	queues []chan sendJob
	out    []net.Conn
	in     []net.Conn
	mu     sync.Mutex

	closing      atomic.Bool
	sends, recvs sync.WaitGroup
	bytesSent    atomic.Int64
}

var _ Comm = &TCP{}

// TCPOption configures a TCP communicator.
type TCPOption func(*TCP)

// WithLogger sets the logger used for connection events.
func WithLogger(log *slog.Logger) TCPOption {
	return func(t *TCP) { t.log = log }
}

// NewTCP listens on addrs[rank] and connects to every other address in addrs.
// It returns once all connections in both directions are established or ctx
// is done.
func NewTCP(
	ctx context.Context, rank int, addrs []string, opts ...TCPOption,
) (*TCP, error) {
	if rank < 0 || rank >= len(addrs) {
		return nil, fmt.Errorf("Rank %d has no address in a list of %d.",
			rank, len(addrs))
	}
	ln, err := net.Listen("tcp", addrs[rank])
	if err != nil {
		return nil, err
	}
	return NewTCPListener(ctx, rank, ln, addrs, opts...)
}

// NewTCPListener is NewTCP with an already open listener for this rank.
// addrs[rank] is ignored.
func NewTCPListener(
	ctx context.Context, rank int, ln net.Listener, addrs []string,
	opts ...TCPOption,
) (*TCP, error) {
	t := &TCP{
		rank: rank, size: len(addrs), log: slog.Default(), ln: ln,
		box:    newMailbox(),
		queues: make([]chan sendJob, len(addrs)),
		out:    make([]net.Conn, len(addrs)),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.With("rank", rank, "transport", "tcp")

	accepted := make(chan error, 1)
	go func() { accepted <- t.acceptAll() }()

	for p, addr := range addrs {
		if p == rank {
			continue
		}
		conn, err := dialPeer(ctx, addr)
		if err != nil {
			t.Close()
			return nil, fmt.Errorf("Could not connect rank %d to rank %d at "+
				"%s: %w", rank, p, addr, err)
		}
		err = binary.Write(conn, binary.LittleEndian, int32(rank))
		if err != nil {
			conn.Close()
			t.Close()
			return nil, err
		}
		t.out[p] = conn
		t.queues[p] = make(chan sendJob, sendQueueLen)
		t.sends.Add(1)
		go t.sendLoop(p, conn, t.queues[p])
	}

	select {
	case err := <-accepted:
		if err != nil {
			t.Close()
			return nil, err
		}
	case <-ctx.Done():
		t.Close()
		return nil, ctx.Err()
	}

	t.log.Debug("Connected to all peers.", "peers", t.size-1)
	return t, nil
}

func dialPeer(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ctx.Err(), err)
		case <-time.After(dialRetry):
		}
	}
}

func (t *TCP) addIncoming(conn net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.in = append(t.in, conn)
}

// acceptAll accepts one connection from every peer and starts its reader.
func (t *TCP) acceptAll() error {
	seen := make([]bool, t.size)
	for n := 0; n < t.size-1; n++ {
		conn, err := t.ln.Accept()
		if err != nil {
			return err
		}
		var src int32
		if err := binary.Read(conn, binary.LittleEndian, &src); err != nil {
			conn.Close()
			return err
		}
		if src < 0 || int(src) >= t.size || int(src) == t.rank || seen[src] {
			conn.Close()
			return fmt.Errorf("Rank %d got an unexpected connection "+
				"claiming to be rank %d.", t.rank, src)
		}
		seen[src] = true
		t.addIncoming(conn)
		t.recvs.Add(1)
		go t.recvLoop(int(src), conn)
	}
	return nil
}

func (t *TCP) sendLoop(p int, conn net.Conn, jobs <-chan sendJob) {
	defer t.sends.Done()
	bw := bufio.NewWriter(conn)
	fw := compress.NewFrameWriter(bw)
	var failed error
	for job := range jobs {
		if failed != nil {
			job.done <- failed
			continue
		}
		n, err := fw.Write(int32(job.tag), job.buf)
		if err == nil {
			err = bw.Flush()
		}
		if err != nil {
			failed = fmt.Errorf("%w: send to rank %d: %v", ErrClosed, p, err)
			t.log.Warn("Send failed.", "peer", p, "error", err)
		} else {
			t.bytesSent.Add(int64(n))
		}
		job.done <- failed
	}
}

func (t *TCP) recvLoop(p int, conn net.Conn) {
	defer t.recvs.Done()
	fr := compress.NewFrameReader(bufio.NewReader(conn))
	for {
		tag, payload, err := fr.Read()
		if err != nil {
			if !t.closing.Load() {
				t.log.Warn("Connection lost.", "peer", p, "error", err)
				t.box.close(fmt.Errorf("%w: connection from rank %d: %v",
					ErrClosed, p, err))
			}
			return
		}
		t.box.deliver(p, int(tag), payload)
	}
}

func (t *TCP) Rank() int { return t.rank }
func (t *TCP) Size() int { return t.size }

// BytesSent returns the number of compressed payload bytes written so far.
func (t *TCP) BytesSent() int64 { return t.bytesSent.Load() }

func (t *TCP) Alltoall(ctx context.Context, send []int64) ([]int64, error) {
	return alltoallP2P(ctx, t, send)
}

func (t *TCP) Isend(
	ctx context.Context, dst, tag int, buf []byte,
) (Request, error) {
	if err := checkTag(tag); err != nil {
		return nil, err
	}
	return t.isend(ctx, dst, tag, buf)
}

func (t *TCP) Irecv(
	ctx context.Context, src, tag int, buf []byte,
) (Request, error) {
	if err := checkTag(tag); err != nil {
		return nil, err
	}
	return t.irecv(ctx, src, tag, buf)
}

func (t *TCP) isend(
	ctx context.Context, dst, tag int, buf []byte,
) (Request, error) {
	if err := checkPeer(t, dst); err != nil {
		return nil, err
	} else if t.closing.Load() {
		return nil, ErrClosed
	}
	if dst == t.rank {
		t.box.deliver(t.rank, tag, append([]byte{}, buf...))
		return doneRequest{}, nil
	}

	job := sendJob{tag: tag, buf: buf, done: make(chan error, 1)}
	select {
	case t.queues[dst] <- job:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &sendRequest{done: job.done}, nil
}

func (t *TCP) irecv(
	ctx context.Context, src, tag int, buf []byte,
) (Request, error) {
	if err := checkPeer(t, src); err != nil {
		return nil, err
	} else if t.closing.Load() {
		return nil, ErrClosed
	}
	return t.box.post(src, tag, buf), nil
}

// Close shuts down every connection. Sends already queued are flushed first,
// and pending receives fail with ErrClosed.
func (t *TCP) Close() error {
	if t.closing.Swap(true) {
		return nil
	}
	for _, q := range t.queues {
		if q != nil {
			close(q)
		}
	}
	waitTimeout(&t.sends, time.Second)
	for _, c := range t.out {
		if c != nil {
			c.Close()
		}
	}
	err := t.ln.Close()

	// Peers see EOF once every rank has closed its outgoing side.
	waitTimeout(&t.recvs, time.Second)
	t.mu.Lock()
	for _, c := range t.in {
		c.Close()
	}
	t.mu.Unlock()
	t.box.close(ErrClosed)
	return err
}

func waitTimeout(wg *sync.WaitGroup, d time.Duration) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
	}
}
