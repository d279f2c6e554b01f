package peer

import "testing"

func TestStatusLadderMonotonic(t *testing.T) {
	var s peerStatus

	if s.IsRegistered() {
		t.Fatal("fresh status should not be registered")
	}
	if !s.setRegistered() {
		t.Fatal("setRegistered from Initial should succeed")
	}
	if !s.IsRegistered() || s.IsAdvertised() {
		t.Fatal("status should be Registered only")
	}
	if !s.setAdvertised() {
		t.Fatal("setAdvertised from Registered should succeed")
	}
	if !s.setJoined() {
		t.Fatal("setJoined from Advertised should succeed")
	}
	if !s.IsJoined() {
		t.Fatal("status should be Joined")
	}
}

func TestStatusLadderRejectsSkippedTransitions(t *testing.T) {
	var s peerStatus
	if s.setAdvertised() {
		t.Error("setAdvertised from Initial should fail")
	}
	if s.setJoined() {
		t.Error("setJoined from Initial should fail")
	}
}

func TestStatusLadderRejectsDuplicateTransitions(t *testing.T) {
	var s peerStatus
	s.setRegistered()
	if s.setRegistered() {
		t.Error("setRegistered should fail once already Registered")
	}
}

func TestDisconnectSnapsBackToRegistered(t *testing.T) {
	var s peerStatus
	s.setRegistered()
	s.setAdvertised()
	s.setJoined()

	if !s.disconnect() {
		t.Fatal("disconnect from Joined should succeed")
	}
	if !s.IsRegistered() || s.IsAdvertised() {
		t.Error("disconnect should snap back to exactly Registered")
	}
}

func TestDisconnectNoOpBeforeRegistered(t *testing.T) {
	var s peerStatus
	if s.disconnect() {
		t.Error("disconnect from Initial should be a no-op")
	}
}
