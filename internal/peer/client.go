package peer

import (
	"time"

	"canopy/internal/wire"
	"github.com/pkg/errors"
)

// cmdRegister sends a Register Request to root over the register
// connection. A no-op once already registered.
func (p *Peer) cmdRegister() {
	if p.status.IsRegistered() {
		err := errors.Wrap(wire.ErrInvalidTransition, "register command: already registered")
		p.log.WithError(err).Debug("ignoring register command")
		return
	}
	body := wire.RegisterRequestBody(p.Self)
	pkt := wire.NewPacket(wire.TypeRegister, p.Self, body)
	p.send(p.rootAddr, true, pkt)
}

// cmdAdvertise sends an Advertise Request to root over the ordinary
// connection. Legal only while Registered or Advertised-but-not-Joined
// (the reunion-failure recovery path re-advertises from Registered); a
// no-op before registering or once joined.
func (p *Peer) cmdAdvertise() {
	if !p.status.IsRegistered() || p.status.IsJoined() {
		err := errors.Wrapf(wire.ErrInvalidTransition, "advertise command: status %s", p.status.status)
		p.log.WithError(err).Debug("ignoring advertise command")
		return
	}
	pkt := wire.NewPacket(wire.TypeAdvertise, p.Self, wire.AdvertiseRequestBody())
	p.send(p.rootAddr, false, pkt)
}

// cmdMessage broadcasts locally originated text to every non-register
// neighbor.
func (p *Peer) cmdMessage(text string) {
	pkt := wire.NewPacket(wire.TypeMessage, p.Self, text)
	p.broadcast(pkt, nil)
}

// handleRegisterClient: clients never receive Register Requests in
// practice (they only ever go to root), and a Register Response
// transitions Initial->Registered; duplicates are dropped.
func (p *Peer) handleRegisterClient(pkt wire.Packet) {
	tag, ok := bodyTag(pkt.Body)
	if !ok {
		p.countDropped("malformed")
		return
	}
	switch tag {
	case "REQ":
		p.log.Debug("ignoring register request packet for client")
	case "RES":
		if !wire.IsRegisterResponseBody(pkt.Body) {
			p.countDropped("malformed")
			p.log.Warn("dropping malformed register response")
			return
		}
		if !p.status.setRegistered() {
			err := errors.Wrapf(wire.ErrInvalidTransition, "register response: status %s", p.status.status)
			p.log.WithError(err).Debug("ignoring duplicate register response")
			return
		}
		p.log.Info("registered with root")
	default:
		p.countDropped("malformed")
	}
}

// handleAdvertiseClient: an Advertise Response records the assigned
// parent, transitions to Advertised, immediately sends Join, transitions
// to Joined, and starts the reunion daemon.
func (p *Peer) handleAdvertiseClient(pkt wire.Packet) {
	tag, ok := bodyTag(pkt.Body)
	if !ok {
		p.countDropped("malformed")
		return
	}
	switch tag {
	case "REQ":
		p.log.Debug("ignoring advertise request packet for client")
	case "RES":
		parent, err := wire.ParseAdvertiseResponseBody(pkt.Body)
		if err != nil {
			p.countDropped("malformed")
			p.log.WithError(err).Warn("dropping malformed advertise response")
			return
		}
		if !p.status.setAdvertised() {
			err := errors.Wrapf(wire.ErrInvalidTransition, "advertise response: status %s", p.status.status)
			p.log.WithError(err).Debug("ignoring advertise response")
			return
		}
		p.parentAddr = &parent
		join := wire.NewPacket(wire.TypeJoin, p.Self, wire.JoinBody())
		p.send(parent, false, join)
		p.status.setJoined()
		p.startReunionDaemon()
	default:
		p.countDropped("malformed")
	}
}

// handleJoin: a parent adds the sender as a reachable child connection.
// The root already has this connection from replying to the Advertise
// Request, so it is a no-op there.
func (p *Peer) handleJoin(pkt wire.Packet) {
	if p.IsRoot {
		p.log.Debug("root ignoring join packet (already connected via advertise response)")
		return
	}
	if _, err := p.stream.GetOrCreateNode(pkt.Source, false); err != nil {
		p.log.WithError(err).Warn("failed to add child connection on join")
	}
}

// handleReunionClient handles both roles a client can play in the
// reunion chain: forwarding a child's hello upward, and propagating the
// root's hello-back downward.
func (p *Peer) handleReunionClient(pkt wire.Packet) {
	parsed, err := wire.ParseReunionBody(pkt.Body)
	if err != nil {
		p.countDropped("malformed")
		p.log.WithError(err).Warn("dropping malformed reunion packet")
		return
	}

	switch parsed.Tag {
	case "REQ":
		p.handleReunionHelloAsParent(pkt.Source, parsed)
	case "RES":
		p.handleReunionHelloBack(parsed)
	}
}

// handleReunionHelloAsParent appends this peer's own address and forwards
// the hello upward to the parent. Rejects hellos from anything that is
// not a known, believed-to-be-child neighbor.
func (p *Peer) handleReunionHelloAsParent(sender wire.Address, parsed wire.ReunionParser) {
	if !p.stream.HasNode(sender, false) {
		p.countDropped("unknown_neighbor")
		err := errors.Wrapf(wire.ErrUnknownNeighbor, "reunion hello from %s", sender)
		p.log.WithError(err).WithField("addr", sender).Warn("dropping reunion hello from non-child")
		return
	}
	if p.parentAddr == nil {
		p.log.Debug("dropping reunion hello: no parent to forward to")
		return
	}

	entries := append(append([]wire.Address{}, parsed.Entries...), p.Self)
	body, err := wire.ReunionBody("REQ", entries)
	if err != nil {
		p.log.WithError(err).Error("failed to build forwarded reunion hello")
		return
	}
	pkt := wire.NewPacket(wire.TypeReunion, p.Self, body)
	p.send(*p.parentAddr, false, pkt)
}

// handleReunionHelloBack requires entries[0] == self, records the
// liveness timestamp, and — if more hops remain — forwards the
// remaining path to the next (child) hop.
func (p *Peer) handleReunionHelloBack(parsed wire.ReunionParser) {
	if len(parsed.Entries) == 0 || parsed.Entries[0] != p.Self {
		p.countDropped("unknown_neighbor")
		err := errors.Wrap(wire.ErrUnknownNeighbor, "reunion hello-back not addressed to self")
		p.log.WithError(err).Warn("dropping reunion hello-back")
		return
	}

	p.lastReunionResponseReceived = time.Now()
	p.reunionSent = false

	rest := parsed.Entries[1:]
	if len(rest) == 0 {
		return
	}

	nextHop := rest[0]
	if !p.stream.HasNode(nextHop, false) {
		p.countDropped("unknown_neighbor")
		err := errors.Wrapf(wire.ErrUnknownNeighbor, "reunion hello-back next hop %s", nextHop)
		p.log.WithError(err).WithField("addr", nextHop).Warn("dropping reunion hello-back: next hop not a known child")
		return
	}

	body, err := wire.ReunionBody("RES", rest)
	if err != nil {
		p.log.WithError(err).Error("failed to build forwarded reunion hello-back")
		return
	}
	pkt := wire.NewPacket(wire.TypeReunion, p.Self, body)
	p.send(nextHop, false, pkt)
}

// handleMessage: broadcast handling is identical for root and client —
// print, then rebroadcast to every non-register neighbor except the
// sender, re-stamped with this peer's own address as source, matching
// the per-hop source rewriting the original implementation performs on
// rebroadcast.
func (p *Peer) handleMessage(pkt wire.Packet) {
	if !p.stream.HasNode(pkt.Source, false) {
		p.countDropped("unknown_neighbor")
		err := errors.Wrapf(wire.ErrUnknownNeighbor, "message from %s", pkt.Source)
		p.log.WithError(err).WithField("addr", pkt.Source).Warn("dropping message from unknown neighbor")
		return
	}
	p.printMessage(pkt.Source, pkt.Body)

	out := wire.NewPacket(wire.TypeMessage, p.Self, pkt.Body)
	p.broadcast(out, &pkt.Source)
}

// startReunionDaemon seeds the reunion timers on entering Joined.
func (p *Peer) startReunionDaemon() {
	p.lastReunionResponseReceived = time.Now()
	p.reunionSent = false
	p.reunionActive = true
}

// updateReunionClient services the client's reunion timers each tick: a
// missed deadline triggers disconnect recovery; otherwise a fresh hello is
// sent once none is in flight and either none has been sent yet or more
// than clientReunionSendDelay has passed since the last one.
func (p *Peer) updateReunionClient() {
	now := time.Now()

	if now.Sub(p.lastReunionResponseReceived) > clientReunionDeadline {
		p.disconnect()
		return
	}

	if p.reunionSent {
		return
	}
	if !p.lastReunionRequestSent.IsZero() && now.Sub(p.lastReunionRequestSent) <= clientReunionSendDelay {
		return
	}

	body, err := wire.ReunionBody("REQ", []wire.Address{p.Self})
	if err != nil {
		p.log.WithError(err).Error("failed to build reunion hello")
		return
	}
	pkt := wire.NewPacket(wire.TypeReunion, p.Self, body)
	p.send(*p.parentAddr, false, pkt)
	p.reunionSent = true
	p.lastReunionRequestSent = now
}

// disconnect drops status to Registered, clears the parent, disables the
// reunion daemon, and automatically re-advertises.
func (p *Peer) disconnect() {
	if !p.status.disconnect() {
		return
	}
	err := errors.Wrap(wire.ErrReunionTimeout, "no reunion response within deadline")
	p.log.WithError(err).Warn("disconnecting and re-advertising")
	p.parentAddr = nil
	p.reunionActive = false
	p.cmdAdvertise()
}
