package bus

import (
	"context"
	"fmt"
	"sync"
)

// inbox is one rank's queue of undelivered envelopes.
type inbox struct {
	mu     sync.Mutex
	queue  []Envelope
	signal chan struct{}
}

func newInbox() *inbox {
	return &inbox{signal: make(chan struct{}, 1)}
}

func (ib *inbox) notify() {
	select {
	case ib.signal <- struct{}{}:
	default:
	}
}

func (ib *inbox) push(e Envelope) {
	ib.mu.Lock()
	ib.queue = append(ib.queue, e)
	ib.mu.Unlock()
	ib.notify()
}

// probeInbox reports the head-of-queue envelope without consuming it.
func probeInbox(ib *inbox) (Envelope, bool) {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	if len(ib.queue) == 0 {
		return Envelope{}, false
	}
	return ib.queue[0], true
}

// recvAnyFromInbox blocks until any envelope is queued, then consumes and
// returns it.
func recvAnyFromInbox(ctx context.Context, ib *inbox) (Envelope, error) {
	for {
		ib.mu.Lock()
		if len(ib.queue) > 0 {
			e := ib.queue[0]
			ib.queue = ib.queue[1:]
			ib.mu.Unlock()
			return e, nil
		}
		ib.mu.Unlock()

		select {
		case <-ctx.Done():
			return Envelope{}, ctx.Err()
		case <-ib.signal:
		}
	}
}

// recvTaggedFromInbox blocks until an envelope from source tagged tag is
// queued, then consumes and returns it. Envelopes that don't match are
// left in place.
func recvTaggedFromInbox(ctx context.Context, ib *inbox, source int, tag Tag) (Envelope, error) {
	for {
		ib.mu.Lock()
		for i, e := range ib.queue {
			if e.Source == source && e.Tag == tag {
				ib.queue = append(ib.queue[:i], ib.queue[i+1:]...)
				ib.mu.Unlock()
				return e, nil
			}
		}
		ib.mu.Unlock()

		select {
		case <-ctx.Done():
			return Envelope{}, ctx.Err()
		case <-ib.signal:
		}
	}
}

// hub holds the shared state for one group of Loopback ranks: their
// inboxes plus the generation counters Barrier and AllGather use.
type hub struct {
	size    int
	inboxes []*inbox

	mu           sync.Mutex
	barrierCount int
	barrierCh    chan struct{}

	gatherCount  int
	gatherBuf    [][]byte
	gatherResult [][]byte
	gatherCh     chan struct{}
}

func newHub(size int) *hub {
	h := &hub{
		size:      size,
		inboxes:   make([]*inbox, size),
		barrierCh: make(chan struct{}),
		gatherBuf: make([][]byte, size),
		gatherCh:  make(chan struct{}),
	}
	for i := range h.inboxes {
		h.inboxes[i] = newInbox()
	}
	return h
}

// Loopback is an in-process Bus: N virtual ranks sharing one process,
// communicating over buffered queues rather than a network connection.
// Used by tests and by deployments that want the distributed protocol's
// exact code paths without a real cluster.
type Loopback struct {
	rank int
	hub  *hub
}

// NewLoopbackGroup returns size ranks that can all talk to each other.
func NewLoopbackGroup(size int) []*Loopback {
	h := newHub(size)
	ranks := make([]*Loopback, size)
	for i := 0; i < size; i++ {
		ranks[i] = &Loopback{rank: i, hub: h}
	}
	return ranks
}

func (l *Loopback) Rank() int { return l.rank }
func (l *Loopback) Size() int { return l.hub.size }

func (l *Loopback) Send(ctx context.Context, dest int, tag Tag, payload []byte) error {
	if dest < 0 || dest >= l.hub.size {
		return fmt.Errorf("bus: dest rank %d out of range [0,%d)", dest, l.hub.size)
	}
	l.hub.inboxes[dest].push(Envelope{Source: l.rank, Tag: tag, Payload: payload})
	return nil
}

func (l *Loopback) WaitAll(ctx context.Context, dests []int, tag Tag, payload []byte) error {
	for _, d := range dests {
		if err := l.Send(ctx, d, tag, payload); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loopback) Probe(ctx context.Context) (Envelope, bool, error) {
	e, ok := probeInbox(l.hub.inboxes[l.rank])
	return e, ok, nil
}

func (l *Loopback) RecvAny(ctx context.Context) (Envelope, error) {
	return recvAnyFromInbox(ctx, l.hub.inboxes[l.rank])
}

func (l *Loopback) Recv(ctx context.Context, source int, tag Tag) (Envelope, error) {
	return recvTaggedFromInbox(ctx, l.hub.inboxes[l.rank], source, tag)
}

// Barrier blocks until every rank in the group has called Barrier.
func (l *Loopback) Barrier(ctx context.Context) error {
	h := l.hub
	h.mu.Lock()
	h.barrierCount++
	if h.barrierCount == h.size {
		h.barrierCount = 0
		ch := h.barrierCh
		h.barrierCh = make(chan struct{})
		h.mu.Unlock()
		close(ch)
		return nil
	}
	ch := h.barrierCh
	h.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AllGather exchanges payload with every rank in the group and returns
// the gathered values ordered by rank.
func (l *Loopback) AllGather(ctx context.Context, payload []byte) ([][]byte, error) {
	h := l.hub
	h.mu.Lock()
	h.gatherBuf[l.rank] = payload
	h.gatherCount++
	if h.gatherCount == h.size {
		result := make([][]byte, h.size)
		copy(result, h.gatherBuf)
		h.gatherBuf = make([][]byte, h.size)
		h.gatherCount = 0
		h.gatherResult = result
		ch := h.gatherCh
		h.gatherCh = make(chan struct{})
		h.mu.Unlock()
		close(ch)
		return result, nil
	}
	ch := h.gatherCh
	h.mu.Unlock()

	select {
	case <-ch:
		h.mu.Lock()
		result := h.gatherResult
		h.mu.Unlock()
		return result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close is a no-op for Loopback: there is no connection to tear down.
func (l *Loopback) Close() error { return nil }
