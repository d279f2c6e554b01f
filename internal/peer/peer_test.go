package peer

import (
	"io"
	"strings"
	"testing"
	"time"

	"canopy/internal/transport"
	"canopy/internal/ui"
	"canopy/internal/wire"
	"github.com/sirupsen/logrus"
)

func testEntry() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func mustAddr(t *testing.T, ip string, port int) wire.Address {
	t.Helper()
	a, err := wire.NewAddress(ip, port)
	if err != nil {
		t.Fatalf("NewAddress: %v", err)
	}
	return a
}

func newTestPeer(t *testing.T, self wire.Address, root bool, rootAddr wire.Address) (*Peer, *transport.Stream) {
	t.Helper()
	entry := testEntry()
	s, err := transport.New(self, entry)
	if err != nil {
		t.Fatalf("transport.New(%v): %v", self, err)
	}
	t.Cleanup(s.Shutdown)
	u := ui.New(self.RealString(), root, strings.NewReader(""), io.Discard)
	p := New(self, root, rootAddr, s, u, nil, entry)
	return p, s
}

// drainFrame polls a stream's Inbound queue until a frame appears or the
// deadline passes, since delivery crosses a real TCP connection handled by
// another goroutine.
func drainFrame(t *testing.T, s *transport.Stream) []byte {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		frames := s.Inbound.DrainAll()
		if len(frames) > 0 {
			return frames[0]
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for inbound frame")
	return nil
}

func TestHandleAdvertiseRootAssignsParentAndInsertsGraph(t *testing.T) {
	rootAddr := mustAddr(t, "127.0.0.1", 19101)
	childAddr := mustAddr(t, "127.0.0.1", 19102)

	rootPeer, _ := newTestPeer(t, rootAddr, true, wire.Address{})
	_, childStream := newTestPeer(t, childAddr, false, rootAddr)

	req := wire.NewPacket(wire.TypeAdvertise, childAddr, wire.AdvertiseRequestBody())
	rootPeer.handleAdvertiseRoot(req)

	if _, ok := rootPeer.graph.Find(childAddr); !ok {
		t.Fatal("child address not inserted into root's graph")
	}

	rootPeer.stream.SendOutBufMessages()
	frame := drainFrame(t, childStream)

	resp, err := wire.Decode(frame)
	if err != nil {
		t.Fatalf("Decode advertise response: %v", err)
	}
	parent, err := wire.ParseAdvertiseResponseBody(resp.Body)
	if err != nil {
		t.Fatalf("ParseAdvertiseResponseBody: %v", err)
	}
	if parent != rootAddr {
		t.Errorf("assigned parent = %+v, want root %+v (only candidate)", parent, rootAddr)
	}
}

func TestHandleReunionRootRejectsNonNeighbor(t *testing.T) {
	rootAddr := mustAddr(t, "127.0.0.1", 19103)
	strangerAddr := mustAddr(t, "127.0.0.1", 19104)

	rootPeer, _ := newTestPeer(t, rootAddr, true, wire.Address{})
	rootPeer.graph.Insert(strangerAddr)
	node, _ := rootPeer.graph.Find(strangerAddr)
	staleSeen := time.Now().Add(-time.Hour)
	node.LastSeen = staleSeen

	body, err := wire.ReunionBody("REQ", []wire.Address{strangerAddr})
	if err != nil {
		t.Fatalf("ReunionBody: %v", err)
	}
	pkt := wire.NewPacket(wire.TypeReunion, strangerAddr, body)

	// No connection to strangerAddr has ever been established (no Advertise
	// or Join occurred), so this reunion hello must be dropped rather than
	// refresh its graph liveness.
	rootPeer.handleReunionRoot(pkt)

	if !node.LastSeen.Equal(staleSeen) {
		t.Error("LastSeen should not have been refreshed for a non-neighbor")
	}
}

func TestHandleRegisterRootRepliesAck(t *testing.T) {
	rootAddr := mustAddr(t, "127.0.0.1", 19105)
	clientAddr := mustAddr(t, "127.0.0.1", 19106)

	rootPeer, _ := newTestPeer(t, rootAddr, true, wire.Address{})
	_, clientStream := newTestPeer(t, clientAddr, false, rootAddr)

	req := wire.NewPacket(wire.TypeRegister, clientAddr, wire.RegisterRequestBody(clientAddr))
	rootPeer.handleRegisterRoot(req)
	rootPeer.stream.SendOutBufMessages()

	frame := drainFrame(t, clientStream)
	resp, err := wire.Decode(frame)
	if err != nil {
		t.Fatalf("Decode register response: %v", err)
	}
	if !wire.IsRegisterResponseBody(resp.Body) {
		t.Errorf("response body = %q, want register ack", resp.Body)
	}
}

func TestUpdateReunionRootEvictsExpiredSubtree(t *testing.T) {
	rootAddr := mustAddr(t, "127.0.0.1", 19107)
	childAddr := mustAddr(t, "127.0.0.1", 19108)

	rootPeer, _ := newTestPeer(t, rootAddr, true, wire.Address{})
	rootPeer.graph.Insert(childAddr)

	node, ok := rootPeer.graph.Find(childAddr)
	if !ok {
		t.Fatal("child not present after Insert")
	}
	node.LastSeen = time.Now().Add(-rootLivenessDeadline - time.Second)

	rootPeer.updateReunionRoot()

	if _, ok := rootPeer.graph.Find(childAddr); ok {
		t.Error("expired child should have been evicted")
	}
}
