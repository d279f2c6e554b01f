package peer

import (
	"time"

	"canopy/internal/wire"
	"github.com/pkg/errors"
)

// handleRegisterRoot accepts Register Requests unconditionally (idempotent
// — duplicate requests produce duplicate ACKs, no graph effect) and
// log-and-drops Register Responses, since roots never register.
func (p *Peer) handleRegisterRoot(pkt wire.Packet) {
	tag, ok := bodyTag(pkt.Body)
	if !ok {
		p.countDropped("malformed")
		p.log.Warn("dropping malformed register packet")
		return
	}
	switch tag {
	case "REQ":
		if _, err := wire.ParseRegisterRequestBody(pkt.Body); err != nil {
			p.countDropped("malformed")
			p.log.WithError(err).Warn("dropping malformed register request")
			return
		}
		resp := wire.NewPacket(wire.TypeRegister, p.Self, wire.RegisterResponseBody())
		p.send(pkt.Source, true, resp)
	case "RES":
		p.log.Debug("ignoring register response packet for root")
	default:
		p.countDropped("malformed")
	}
}

// handleAdvertiseRoot selects a parent via BFS, inserts the sender into
// the graph, and replies with the parent's address.
func (p *Peer) handleAdvertiseRoot(pkt wire.Packet) {
	tag, ok := bodyTag(pkt.Body)
	if !ok {
		p.countDropped("malformed")
		return
	}
	switch tag {
	case "REQ":
		if pkt.Body != wire.AdvertiseRequestBody() {
			p.countDropped("malformed")
			p.log.Warn("dropping malformed advertise request")
			return
		}
		parentAddr := p.graph.Insert(pkt.Source)
		resp := wire.NewPacket(wire.TypeAdvertise, p.Self, wire.AdvertiseResponseBody(parentAddr))
		p.send(pkt.Source, false, resp)
	case "RES":
		p.log.Debug("ignoring advertise response packet for root")
	default:
		p.countDropped("malformed")
	}
}

// handleReunionRoot parses the hello path, rejects it unless the
// immediate hop is a known neighbor, refreshes last-seen for every
// address on the path that is in the graph, and echoes the reversed
// path back to the original sender's first hop.
func (p *Peer) handleReunionRoot(pkt wire.Packet) {
	parsed, err := wire.ParseReunionBody(pkt.Body)
	if err != nil {
		p.countDropped("malformed")
		p.log.WithError(err).Warn("dropping malformed reunion packet")
		return
	}
	if parsed.Tag != "REQ" {
		p.log.Debug("ignoring reunion response packet for root")
		return
	}

	immediateHop := parsed.Entries[len(parsed.Entries)-1]
	if !p.stream.HasNode(immediateHop, false) {
		p.countDropped("unknown_neighbor")
		err := errors.Wrapf(wire.ErrUnknownNeighbor, "reunion request immediate hop %s", immediateHop)
		p.log.WithError(err).WithField("addr", immediateHop).Warn("dropping reunion request from non-neighbor")
		return
	}

	for _, addr := range parsed.Entries {
		if node, ok := p.graph.Find(addr); ok {
			node.LastSeen = time.Now()
		}
	}

	reversed := make([]wire.Address, len(parsed.Entries))
	for i, addr := range parsed.Entries {
		reversed[len(parsed.Entries)-1-i] = addr
	}
	body, err := wire.ReunionBody("RES", reversed)
	if err != nil {
		p.log.WithError(err).Error("failed to build reunion response body")
		return
	}
	resp := wire.NewPacket(wire.TypeReunion, p.Self, body)
	p.send(immediateHop, false, resp)
}

// updateReunionRoot is the root's liveness sweep: every tick, evict any
// graph node (and its entire subtree) whose last reunion hello predates
// the disconnection deadline.
func (p *Peer) updateReunionRoot() {
	threshold := time.Now().Add(-rootLivenessDeadline)
	for _, n := range p.graph.GetInactiveNodes(threshold) {
		err := errors.Wrapf(wire.ErrLivenessExpiry, "node %s last seen %s", n.Addr, n.LastSeen)
		p.log.WithError(err).WithField("addr", n.Addr).Info("liveness expired, removing node and subtree")
		p.graph.Remove(n)
		if p.metrics != nil {
			p.metrics.ReunionEvicted.Inc()
		}
	}
}

// bodyTag extracts the 3-char REQ/RES discriminator shared by Register,
// Advertise, and Reunion bodies.
func bodyTag(body string) (string, bool) {
	if len(body) < 3 {
		return "", false
	}
	return body[:3], true
}
