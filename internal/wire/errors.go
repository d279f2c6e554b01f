package wire

import "github.com/pkg/errors"

// Error taxonomy. Each sentinel is wrapped with context at the detection
// site via errors.Wrap, and matched at call sites with errors.Is.
var (
	// ErrMalformedPacket: bad length, bad header, or undecodable body.
	// Logged and dropped; never closes the connection it arrived on.
	ErrMalformedPacket = errors.New("malformed packet")

	// ErrInvalidTransition: a command or packet implies an illegal state
	// transition. The operation is a no-op.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrUnknownNeighbor: a Reunion or Message packet arrived from a
	// non-neighbor, or an expected next hop is not a known child.
	ErrUnknownNeighbor = errors.New("unknown neighbor")

	// ErrTransportError: an outbound send failed.
	ErrTransportError = errors.New("transport error")

	// ErrReunionTimeout: client has not heard from root in too long.
	ErrReunionTimeout = errors.New("reunion timeout")

	// ErrLivenessExpiry: root has not heard a reunion hello from a graph
	// node in too long.
	ErrLivenessExpiry = errors.New("liveness expiry")
)
