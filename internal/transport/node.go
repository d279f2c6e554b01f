package transport

import (
	"encoding/binary"
	"io"
	"net"
	"sync"

	"canopy/internal/wire"
)

// ack is the transport-level liveness reply written after every accepted
// inbound frame. It carries no protocol meaning and is never decoded.
const ack = "ACK"

// key identifies a Node: the same remote peer may have both a
// register-connection and an ordinary connection, so the register flag is
// part of the key.
type key struct {
	addr     wire.Address
	register bool
}

// node is a logical connection to a remote peer: an outbound FIFO of
// encoded packet bytes plus the client socket that drains it.
type node struct {
	addr     wire.Address
	register bool

	mu    sync.Mutex
	conn  net.Conn
	queue [][]byte
}

func dialNode(addr wire.Address, register bool) (*node, error) {
	conn, err := net.Dial("tcp", addr.RealString())
	if err != nil {
		return nil, err
	}
	n := &node{addr: addr, register: register, conn: conn}
	// The remote writes a transport-level ACK after every frame it reads
	// from us; nothing above this layer cares, but the bytes must be
	// drained or the remote's writes eventually block on full TCP buffers.
	go n.drainAcks()
	return n, nil
}

func (n *node) drainAcks() {
	buf := make([]byte, 64)
	for {
		if _, err := n.conn.Read(buf); err != nil {
			return
		}
	}
}

// enqueue appends encoded bytes to the outbound FIFO; sent on the next flush.
func (n *node) enqueue(frame []byte) {
	n.mu.Lock()
	n.queue = append(n.queue, frame)
	n.mu.Unlock()
}

// flush drains the FIFO to the socket in enqueue order. On the first
// write error it stops and returns the error; the caller closes and
// removes this node.
func (n *node) flush() error {
	n.mu.Lock()
	pending := n.queue
	n.queue = nil
	n.mu.Unlock()

	for _, frame := range pending {
		if _, err := n.conn.Write(frame); err != nil {
			return err
		}
	}
	return nil
}

func (n *node) close() {
	_ = n.conn.Close()
}

// readOneFrame reads a single framed packet (20-byte header + body) from
// an inbound connection, per the codec's length field.
func readOneFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, wire.HeaderLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	bodyLen := int(binary.BigEndian.Uint32(header[4:8]))
	body := make([]byte, bodyLen)
	if bodyLen > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, err
		}
	}
	frame := make([]byte, 0, wire.HeaderLen+bodyLen)
	frame = append(frame, header...)
	frame = append(frame, body...)
	return frame, nil
}
