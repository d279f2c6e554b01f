package peer

import "canopy/internal/wire"

// broadcast fans pkt out to every connected non-register neighbor except
// skip (nil for a locally originated message, the immediate sender when
// rebroadcasting).
func (p *Peer) broadcast(pkt wire.Packet, skip *wire.Address) {
	frame, err := wire.Encode(pkt)
	if err != nil {
		p.log.WithError(err).Error("encode failed, dropping broadcast")
		return
	}
	for _, n := range p.stream.GetNodes() {
		if skip != nil && n.Addr() == *skip {
			continue
		}
		n.Enqueue(frame)
		p.countOut(pkt.Type)
	}
}

// printMessage surfaces a received broadcast to the operator as an Info
// log line on the peer's logger; it does not write to the UI's output
// stream.
func (p *Peer) printMessage(from wire.Address, text string) {
	p.log.WithField("from", from).Infof("message: %s", text)
}
