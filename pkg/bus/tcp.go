package bus

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/go-msgpack/v2/codec"
	"github.com/quiverio/quiver/pkg/log"
	"github.com/rs/zerolog"
)

// msgpackHandle configures the wire encoding every TCPBus connection uses.
// hashicorp/raft's own network transport encodes its RPCs with the same
// handle over a raw connection pool; Barrier and AllGather here are built
// out of the same Send/Recv primitives ordinary messages use, the way
// raft layers RPCs rather than inventing a separate collective wire
// protocol.
var msgpackHandle = &codec.MsgpackHandle{}

// internal tags used only by TCPBus's rank-0-coordinated Barrier and
// AllGather implementation; never exposed to callers.
const (
	tagBarrierArrive Tag = -(iota + 1)
	tagBarrierRelease
	tagGatherArrive
	tagGatherRelease
)

// wireEnvelope is the on-the-wire form of Envelope: Tag is transmitted as
// a plain int so codec doesn't need a registered type for it.
type wireEnvelope struct {
	Source  int
	Tag     int
	Payload []byte
}

// TCPBus is a real multi-process Bus backend. Each rank listens on a TCP
// address and dials every peer once at startup; messages are framed as
// a 4-byte big-endian length prefix followed by a msgpack-encoded
// wireEnvelope.
type TCPBus struct {
	rank  int
	addrs []string

	ln     net.Listener
	logger zerolog.Logger

	mu    sync.Mutex
	conns map[int]net.Conn

	inbox *inbox

	closeOnce sync.Once
	closed    chan struct{}
}

// DialTCPBus starts listening on addrs[rank] and dials every peer whose
// rank is less than this one (higher ranks dial in, completing the mesh
// once every rank has started). Blocks until every connection, inbound
// and outbound, is established.
func DialTCPBus(ctx context.Context, rank int, addrs []string) (*TCPBus, error) {
	if rank < 0 || rank >= len(addrs) {
		return nil, fmt.Errorf("bus: rank %d out of range [0,%d)", rank, len(addrs))
	}

	ln, err := net.Listen("tcp", addrs[rank])
	if err != nil {
		return nil, fmt.Errorf("bus: listen on %s: %w", addrs[rank], err)
	}

	t := &TCPBus{
		rank:   rank,
		addrs:  addrs,
		ln:     ln,
		logger: log.WithComponent("bus").With().Int("rank", rank).Logger(),
		conns:  make(map[int]net.Conn),
		inbox:  newInbox(),
		closed: make(chan struct{}),
	}

	go t.acceptLoop()

	for peer := 0; peer < rank; peer++ {
		conn, err := dialWithRetry(ctx, addrs[peer])
		if err != nil {
			t.Close()
			return nil, fmt.Errorf("bus: dial rank %d at %s: %w", peer, addrs[peer], err)
		}
		if err := t.handshakeOutbound(conn, peer); err != nil {
			t.Close()
			return nil, err
		}
	}

	for {
		t.mu.Lock()
		connected := len(t.conns)
		t.mu.Unlock()
		if connected >= len(addrs)-1 {
			break
		}
		select {
		case <-ctx.Done():
			t.Close()
			return nil, fmt.Errorf("bus: waiting for peers to connect: %w", ctx.Err())
		case <-time.After(10 * time.Millisecond):
		}
	}

	return t, nil
}

func dialWithRetry(ctx context.Context, addr string) (net.Conn, error) {
	deadline := time.Now().Add(30 * time.Second)
	for {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			return conn, nil
		}
		if time.Now().After(deadline) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

// handshakeOutbound registers an outbound connection to peer and starts
// reading envelopes off it.
func (t *TCPBus) handshakeOutbound(conn net.Conn, peer int) error {
	if err := binary.Write(conn, binary.BigEndian, int32(t.rank)); err != nil {
		conn.Close()
		return fmt.Errorf("bus: handshake to rank %d: %w", peer, err)
	}
	t.mu.Lock()
	t.conns[peer] = conn
	t.mu.Unlock()
	go t.readLoop(conn, peer)
	return nil
}

func (t *TCPBus) acceptLoop() {
	for {
		conn, err := t.ln.Accept()
		if err != nil {
			select {
			case <-t.closed:
				return
			default:
				t.logger.Warn().Err(err).Msg("bus: accept failed")
				return
			}
		}

		var peerRank int32
		if err := binary.Read(conn, binary.BigEndian, &peerRank); err != nil {
			t.logger.Warn().Err(err).Msg("bus: handshake read failed")
			conn.Close()
			continue
		}

		t.mu.Lock()
		t.conns[int(peerRank)] = conn
		t.mu.Unlock()
		go t.readLoop(conn, int(peerRank))
	}
}

func (t *TCPBus) readLoop(conn net.Conn, peer int) {
	for {
		var length uint32
		if err := binary.Read(conn, binary.BigEndian, &length); err != nil {
			if err != io.EOF {
				t.logger.Debug().Err(err).Int("peer", peer).Msg("bus: connection read ended")
			}
			return
		}
		frame := make([]byte, length)
		if _, err := io.ReadFull(conn, frame); err != nil {
			t.logger.Warn().Err(err).Int("peer", peer).Msg("bus: short frame read")
			return
		}

		var we wireEnvelope
		dec := codec.NewDecoderBytes(frame, msgpackHandle)
		if err := dec.Decode(&we); err != nil {
			t.logger.Warn().Err(err).Int("peer", peer).Msg("bus: frame decode failed")
			continue
		}

		t.inbox.push(Envelope{Source: we.Source, Tag: Tag(we.Tag), Payload: we.Payload})
	}
}

// sendRaw frames and writes one envelope to dest over its existing
// connection.
func (t *TCPBus) sendRaw(dest int, tag Tag, payload []byte) error {
	t.mu.Lock()
	conn, ok := t.conns[dest]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("bus: no connection to rank %d", dest)
	}

	we := wireEnvelope{Source: t.rank, Tag: int(tag), Payload: payload}
	var buf []byte
	enc := codec.NewEncoderBytes(&buf, msgpackHandle)
	if err := enc.Encode(we); err != nil {
		return fmt.Errorf("bus: encode envelope: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := binary.Write(conn, binary.BigEndian, uint32(len(buf))); err != nil {
		return fmt.Errorf("bus: write frame length to rank %d: %w", dest, err)
	}
	if _, err := conn.Write(buf); err != nil {
		return fmt.Errorf("bus: write frame to rank %d: %w", dest, err)
	}
	return nil
}

func (t *TCPBus) Rank() int { return t.rank }
func (t *TCPBus) Size() int { return len(t.addrs) }

func (t *TCPBus) Send(ctx context.Context, dest int, tag Tag, payload []byte) error {
	return t.sendRaw(dest, tag, payload)
}

func (t *TCPBus) WaitAll(ctx context.Context, dests []int, tag Tag, payload []byte) error {
	for _, d := range dests {
		if err := t.sendRaw(d, tag, payload); err != nil {
			return err
		}
	}
	return nil
}

func (t *TCPBus) Probe(ctx context.Context) (Envelope, bool, error) {
	e, ok := probeInbox(t.inbox)
	return e, ok, nil
}

func (t *TCPBus) RecvAny(ctx context.Context) (Envelope, error) {
	return recvAnyFromInbox(ctx, t.inbox)
}

func (t *TCPBus) Recv(ctx context.Context, source int, tag Tag) (Envelope, error) {
	return recvTaggedFromInbox(ctx, t.inbox, source, tag)
}

// Barrier is coordinated by rank 0: every other rank sends
// tagBarrierArrive and waits for tagBarrierRelease; rank 0 collects one
// arrival per peer, then broadcasts release.
func (t *TCPBus) Barrier(ctx context.Context) error {
	if t.rank == 0 {
		for peer := 1; peer < t.Size(); peer++ {
			if _, err := recvTaggedFromInbox(ctx, t.inbox, peer, tagBarrierArrive); err != nil {
				return err
			}
		}
		for peer := 1; peer < t.Size(); peer++ {
			if err := t.sendRaw(peer, tagBarrierRelease, nil); err != nil {
				return err
			}
		}
		return nil
	}

	if err := t.sendRaw(0, tagBarrierArrive, nil); err != nil {
		return err
	}
	_, err := recvTaggedFromInbox(ctx, t.inbox, 0, tagBarrierRelease)
	return err
}

// AllGather is coordinated by rank 0 the same way Barrier is: every peer
// sends its payload tagged tagGatherArrive, rank 0 assembles the full
// ordered slice and broadcasts it back msgpack-encoded under
// tagGatherRelease.
func (t *TCPBus) AllGather(ctx context.Context, payload []byte) ([][]byte, error) {
	if t.rank == 0 {
		result := make([][]byte, t.Size())
		result[0] = payload
		for peer := 1; peer < t.Size(); peer++ {
			e, err := recvTaggedFromInbox(ctx, t.inbox, peer, tagGatherArrive)
			if err != nil {
				return nil, err
			}
			result[peer] = e.Payload
		}

		var encoded []byte
		enc := codec.NewEncoderBytes(&encoded, msgpackHandle)
		if err := enc.Encode(result); err != nil {
			return nil, fmt.Errorf("bus: encode gather result: %w", err)
		}
		for peer := 1; peer < t.Size(); peer++ {
			if err := t.sendRaw(peer, tagGatherRelease, encoded); err != nil {
				return nil, err
			}
		}
		return result, nil
	}

	if err := t.sendRaw(0, tagGatherArrive, payload); err != nil {
		return nil, err
	}
	e, err := recvTaggedFromInbox(ctx, t.inbox, 0, tagGatherRelease)
	if err != nil {
		return nil, err
	}

	var result [][]byte
	dec := codec.NewDecoderBytes(e.Payload, msgpackHandle)
	if err := dec.Decode(&result); err != nil {
		return nil, fmt.Errorf("bus: decode gather result: %w", err)
	}
	return result, nil
}

// Close stops accepting connections and closes every peer connection.
func (t *TCPBus) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.ln.Close()
		t.mu.Lock()
		for _, c := range t.conns {
			c.Close()
		}
		t.mu.Unlock()
	})
	return nil
}
