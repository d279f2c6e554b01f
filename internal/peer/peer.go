// Package peer implements the single-threaded event loop shared by root
// and client peers, plus their two state machines: registration,
// parent-selection, and reunion liveness on the root; the
// register/advertise/join/reunion ladder and reconnection on the client.
package peer

import (
	"sync"
	"time"

	"canopy/internal/graph"
	"canopy/internal/metrics"
	"canopy/internal/transport"
	"canopy/internal/ui"
	"canopy/internal/wire"
	"github.com/sirupsen/logrus"
)

const (
	tickPeriod = 2 * time.Second

	clientReunionSendDelay = 4 * time.Second
	clientReunionDeadline  = 45 * time.Second
	rootLivenessDeadline   = 30 * time.Second
)

// Peer drives a single overlay node's event loop. A Peer is either a Root
// (IsRoot true, Graph non-nil) or a Client (RootAddr set, status ladder
// active); both share the same tick/dispatch machinery.
type Peer struct {
	Self   wire.Address
	IsRoot bool

	stream  *transport.Stream
	ui      *ui.UI
	metrics *metrics.Collector
	log     *logrus.Entry

	alive        bool
	shutdownOnce sync.Once

	// Root-only.
	graph *graph.Graph

	// Client-only.
	rootAddr                    wire.Address
	parentAddr                  *wire.Address
	status                      peerStatus
	reunionActive               bool
	lastReunionResponseReceived time.Time
	lastReunionRequestSent      time.Time
	reunionSent                 bool
}

// New builds a Peer. If root is true, this is the Root; otherwise
// rootAddr must name the Root to register with.
func New(self wire.Address, root bool, rootAddr wire.Address, stream *transport.Stream, u *ui.UI, m *metrics.Collector, log *logrus.Entry) *Peer {
	p := &Peer{
		Self:     self,
		IsRoot:   root,
		rootAddr: rootAddr,
		stream:   stream,
		ui:       u,
		metrics:  m,
		log:      log,
		alive:    true,
	}
	if root {
		p.graph = graph.New(self)
		p.reunionActive = true // root runs the liveness sweep from construction
	}
	return p
}

// Run drives the tick loop until Shutdown is called. Each tick drains the
// inbound buffer, drains user commands, flushes outbound buffers, and —
// if reunion is active — services reunion timers, then sleeps out the
// remainder of the tick period.
func (p *Peer) Run() {
	for p.alive {
		start := time.Now()

		for _, frame := range p.stream.Inbound.DrainAll() {
			p.handleFrame(frame)
		}
		for _, cmd := range p.ui.Commands.DrainAll() {
			p.handleCommand(cmd)
		}
		p.stream.SendOutBufMessages()

		if p.reunionActive {
			if p.IsRoot {
				p.updateReunionRoot()
			} else {
				p.updateReunionClient()
			}
		}

		if p.metrics != nil {
			p.metrics.TickDuration.Observe(time.Since(start).Seconds())
			if p.graph != nil {
				p.metrics.GraphSize.Set(float64(p.graph.Size()))
			}
		}

		elapsed := time.Since(start)
		if sleep := tickPeriod - elapsed; sleep > 0 {
			time.Sleep(sleep)
		}
	}
}

// Shutdown sets the alive flag false, signals the UI and transport to
// stop, and returns; the next tick (already exited) will not resume.
// Safe to call more than once in a single tick's command batch (e.g. two
// "exit" commands drained together) — only the first call does anything.
func (p *Peer) Shutdown() {
	p.shutdownOnce.Do(func() {
		p.alive = false
		p.ui.Stop()
		p.stream.Shutdown()
	})
}

func (p *Peer) handleFrame(frame []byte) {
	pkt, err := wire.Decode(frame)
	if err != nil {
		p.countDropped("malformed")
		p.log.WithError(err).Warn("dropping malformed packet")
		return
	}
	p.countIn(pkt.Type)
	p.dispatch(pkt)
}

func (p *Peer) dispatch(pkt wire.Packet) {
	switch pkt.Type {
	case wire.TypeRegister:
		if p.IsRoot {
			p.handleRegisterRoot(pkt)
		} else {
			p.handleRegisterClient(pkt)
		}
	case wire.TypeAdvertise:
		if p.IsRoot {
			p.handleAdvertiseRoot(pkt)
		} else {
			p.handleAdvertiseClient(pkt)
		}
	case wire.TypeJoin:
		p.handleJoin(pkt)
	case wire.TypeMessage:
		p.handleMessage(pkt)
	case wire.TypeReunion:
		if p.IsRoot {
			p.handleReunionRoot(pkt)
		} else {
			p.handleReunionClient(pkt)
		}
	default:
		p.countDropped("unhandled_type")
		p.log.WithField("type", pkt.Type).Warn("dropping unhandled packet type")
	}
}

func (p *Peer) handleCommand(cmd ui.Command) {
	switch cmd.Name {
	case "register":
		p.cmdRegister()
	case "advertiser":
		p.cmdAdvertise()
	case "message":
		p.cmdMessage(cmd.Args[0])
	case "exit":
		p.Shutdown()
	default:
		p.log.WithField("command", cmd.Name).Warn("dropping unknown command")
	}
}

func (p *Peer) send(addr wire.Address, register bool, pkt wire.Packet) {
	frame, err := wire.Encode(pkt)
	if err != nil {
		p.log.WithError(err).Error("encode failed, dropping outbound packet")
		return
	}
	if err := p.stream.AddMessageToOutBuff(addr, register, frame); err != nil {
		p.log.WithError(err).WithField("addr", addr).Warn("could not enqueue outbound packet")
		return
	}
	p.countOut(pkt.Type)
}

func (p *Peer) countIn(t wire.Type) {
	if p.metrics != nil {
		p.metrics.PacketsIn.WithLabelValues(t.String()).Inc()
	}
}

func (p *Peer) countOut(t wire.Type) {
	if p.metrics != nil {
		p.metrics.PacketsOut.WithLabelValues(t.String()).Inc()
	}
}

func (p *Peer) countDropped(reason string) {
	if p.metrics != nil {
		p.metrics.PacketsDropped.WithLabelValues(reason).Inc()
	}
}
