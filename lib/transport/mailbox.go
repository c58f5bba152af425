package transport

/* mailbox.go contains the receive side shared by the in-memory and TCP
transports: delivered messages are queued by (source, tag) until a matching
receive is posted, and receives posted early wait for their message. */

import (
	"context"
	"fmt"
	"sync"
)

type mailKey struct{ src, tag int }

type mailbox struct {
	mu      sync.Mutex
	queues  map[mailKey][][]byte
	waiters map[mailKey][]chan []byte
	closed  chan struct{}
	once    sync.Once
	err     error
}

func newMailbox() *mailbox {
	return &mailbox{
		queues:  map[mailKey][][]byte{},
		waiters: map[mailKey][]chan []byte{},
		closed:  make(chan struct{}),
	}
}

// deliver hands msg to the oldest waiting receive for its key, or queues it.
// The mailbox takes ownership of msg.
func (m *mailbox) deliver(src, tag int, msg []byte) {
	k := mailKey{src, tag}
	m.mu.Lock()
	defer m.mu.Unlock()
	if ws := m.waiters[k]; len(ws) > 0 {
		ws[0] <- msg
		m.waiters[k] = ws[1:]
		return
	}
	m.queues[k] = append(m.queues[k], msg)
}

// receive returns a channel which will carry the next message for the key.
func (m *mailbox) receive(src, tag int) <-chan []byte {
	k := mailKey{src, tag}
	ch := make(chan []byte, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if q := m.queues[k]; len(q) > 0 {
		ch <- q[0]
		m.queues[k] = q[1:]
		return ch
	}
	m.waiters[k] = append(m.waiters[k], ch)
	return ch
}

// close fails every pending and future receive with err.
func (m *mailbox) close(err error) {
	m.once.Do(func() {
		m.mu.Lock()
		m.err = err
		m.mu.Unlock()
		close(m.closed)
	})
}

func (m *mailbox) closeErr() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// recvRequest completes when its message arrives and has been copied into
// buf.
type recvRequest struct {
	box      *mailbox
	ch       <-chan []byte
	buf      []byte
	src, tag int

	done bool
	err  error
}

func (m *mailbox) post(src, tag int, buf []byte) *recvRequest {
	return &recvRequest{box: m, ch: m.receive(src, tag), buf: buf,
		src: src, tag: tag}
}

func (r *recvRequest) Wait(ctx context.Context) error {
	if r.done {
		return r.err
	}
	select {
	case msg := <-r.ch:
		return r.finish(msg)
	case <-r.box.closed:
		// A message may have arrived before the close.
		select {
		case msg := <-r.ch:
			return r.finish(msg)
		default:
		}
		r.done, r.err = true, r.box.closeErr()
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *recvRequest) finish(msg []byte) error {
	r.done = true
	if len(msg) != len(r.buf) {
		r.err = fmt.Errorf("%w: expected %d bytes from rank %d (tag %d), "+
			"got %d", ErrSizeMismatch, len(r.buf), r.src, r.tag, len(msg))
		return r.err
	}
	copy(r.buf, msg)
	return nil
}
