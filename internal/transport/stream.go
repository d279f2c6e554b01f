// Package transport implements the per-peer TCP transport: a listener
// accepting inbound connections and reading framed packets off each one
// until it closes, and persistent outbound client sockets per neighbor
// with FIFO send buffers.
package transport

import (
	"net"
	"strconv"
	"sync"

	"canopy/internal/bufx"
	"canopy/internal/wire"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Stream owns a peer's TCP listener and its map of outbound connections.
// The listener and its accept goroutines only ever append to Inbound;
// every other method is expected to be called from the single owning
// peer's tick loop.
type Stream struct {
	self wire.Address
	log  *logrus.Entry

	ln       net.Listener
	closeCh  chan struct{}
	closeErr error

	mu    sync.RWMutex
	nodes map[key]*node

	// Inbound is the shared byte-blob FIFO: listener goroutines push,
	// the tick loop drains once per tick.
	Inbound *bufx.Queue[[]byte]
}

// New binds a TCP listener at addr's real form and starts the accept loop.
func New(self wire.Address, log *logrus.Entry) (*Stream, error) {
	host, port := self.Real()
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %s", self.RealString())
	}
	s := &Stream{
		self:    self,
		log:     log,
		ln:      ln,
		closeCh: make(chan struct{}),
		nodes:   make(map[key]*node),
		Inbound: &bufx.Queue[[]byte]{},
	}
	go s.acceptLoop()
	return s, nil
}

func (s *Stream) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.closeCh:
				return
			default:
				s.log.WithError(err).Warn("accept error")
				continue
			}
		}
		go s.serveConn(conn)
	}
}

// serveConn reads framed packets off one accepted connection until it
// errors or is closed, pushing raw frame bytes to Inbound and replying
// with the transport-level ACK after each one.
func (s *Stream) serveConn(conn net.Conn) {
	defer conn.Close()
	for {
		frame, err := readOneFrame(conn)
		if err != nil {
			return
		}
		s.Inbound.Push(frame)
		if _, err := conn.Write([]byte(ack)); err != nil {
			return
		}
	}
}

// GetOrCreateNode returns the existing outbound connection to addr, or
// dials a new one. register selects the register-connection slot, which
// is excluded from broadcast fan-out.
func (s *Stream) GetOrCreateNode(addr wire.Address, register bool) (*node, error) {
	k := key{addr: addr, register: register}

	s.mu.RLock()
	n, ok := s.nodes[k]
	s.mu.RUnlock()
	if ok {
		return n, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.nodes[k]; ok {
		return n, nil
	}
	n, err := dialNode(addr, register)
	if err != nil {
		return nil, errors.Wrapf(wire.ErrTransportError, "dial %s: %v", addr, err)
	}
	s.nodes[k] = n
	return n, nil
}

// AddMessageToOutBuff enqueues encoded bytes on the connection to addr,
// dialing it first if necessary.
func (s *Stream) AddMessageToOutBuff(addr wire.Address, register bool, frame []byte) error {
	n, err := s.GetOrCreateNode(addr, register)
	if err != nil {
		return err
	}
	n.enqueue(frame)
	return nil
}

// SendOutBufMessages flushes every connection's FIFO to its socket. A
// connection whose flush errors is closed and removed; its loss is only
// observed by higher layers via reunion timeout.
func (s *Stream) SendOutBufMessages() {
	s.mu.Lock()
	snapshot := make(map[key]*node, len(s.nodes))
	for k, n := range s.nodes {
		snapshot[k] = n
	}
	s.mu.Unlock()

	for k, n := range snapshot {
		if err := n.flush(); err != nil {
			s.log.WithError(err).WithField("addr", k.addr).Warn("transport send failed, dropping node")
			s.removeNode(k)
		}
	}
}

func (s *Stream) removeNode(k key) {
	s.mu.Lock()
	n, ok := s.nodes[k]
	if ok {
		delete(s.nodes, k)
	}
	s.mu.Unlock()
	if ok {
		n.close()
	}
}

// HasNode reports whether a connection to addr with the given register
// flag currently exists.
func (s *Stream) HasNode(addr wire.Address, register bool) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.nodes[key{addr: addr, register: register}]
	return ok
}

// GetNodes returns every non-register Node — used for broadcast. Passing
// ignoreRegister=false would include register-connections; the protocol
// never does this, so it is not exposed.
func (s *Stream) GetNodes() []addrConn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]addrConn, 0, len(s.nodes))
	for k, n := range s.nodes {
		if k.register {
			continue
		}
		out = append(out, addrConn{addr: k.addr, node: n})
	}
	return out
}

type addrConn struct {
	addr wire.Address
	node *node
}

func (c addrConn) Addr() wire.Address { return c.addr }

// Enqueue appends encoded bytes to this connection's outbound FIFO.
func (c addrConn) Enqueue(frame []byte) { c.node.enqueue(frame) }

// Shutdown stops the listener and closes every outbound connection.
func (s *Stream) Shutdown() {
	close(s.closeCh)
	_ = s.ln.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.nodes {
		n.close()
	}
	s.nodes = map[key]*node{}
}
