package wire

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	src, err := NewAddress("10.0.0.1", 9000)
	if err != nil {
		t.Fatalf("NewAddress: %v", err)
	}
	pkt := NewPacket(TypeMessage, src, "hello canopy")

	frame, err := Encode(pkt)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(frame) != HeaderLen+len(pkt.Body) {
		t.Fatalf("frame length = %d, want %d", len(frame), HeaderLen+len(pkt.Body))
	}

	got, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Version != Version || got.Type != TypeMessage || got.Body != pkt.Body || got.Source != src {
		t.Errorf("Decode round trip = %+v, want version=%d type=%v body=%q source=%+v",
			got, Version, TypeMessage, pkt.Body, src)
	}
}

func TestEncodeDecodeJoinBody(t *testing.T) {
	src, _ := NewAddress("1.2.3.4", 1)
	pkt := NewPacket(TypeJoin, src, JoinBody())
	frame, err := Encode(pkt)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Body != "JOIN" {
		t.Errorf("Body = %q, want JOIN", got.Body)
	}
}

func TestDecodeRejectsShortBuffer(t *testing.T) {
	if _, err := Decode(make([]byte, HeaderLen-1)); err == nil {
		t.Error("expected error for buffer shorter than header")
	}
}

func TestDecodeRejectsLengthMismatch(t *testing.T) {
	src, _ := NewAddress("1.2.3.4", 1)
	pkt := NewPacket(TypeMessage, src, "abc")
	frame, err := Encode(pkt)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// Truncate the body so the header's length field disagrees with reality.
	truncated := frame[:len(frame)-1]
	if _, err := Decode(truncated); err == nil {
		t.Error("expected error for length field mismatch")
	}
}
