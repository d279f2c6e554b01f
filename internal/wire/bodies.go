package wire

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
)

// Position-based ASCII body grammar. No separators: every offset below is
// the sole source of truth for wire shape, per the protocol's packet
// format notes. Any deviation is a bug, not a forward-compatible variant.

const (
	reqTag = "REQ"
	resTag = "RES"
)

// --- Register ---

// RegisterRequestBody is "REQ" + ip(15) + port(5): the address the sender
// wants registered.
func RegisterRequestBody(addr Address) string {
	return reqTag + addr.Canonical()
}

// RegisterResponseBody is the fixed 6-char "RESACK".
func RegisterResponseBody() string {
	return "RESACK"
}

// ParseRegisterRequestBody extracts the requested address, or
// ErrMalformedPacket if the body isn't exactly 23 chars starting with REQ.
func ParseRegisterRequestBody(body string) (Address, error) {
	if len(body) != 23 || body[:3] != reqTag {
		return Address{}, errors.Wrapf(ErrMalformedPacket, "bad register request body %q", body)
	}
	return ParseCanonical(body[3:])
}

// IsRegisterResponseBody reports whether body is the literal ack.
func IsRegisterResponseBody(body string) bool {
	return body == "RESACK"
}

// --- Advertise ---

// AdvertiseRequestBody is the fixed 3-char "REQ".
func AdvertiseRequestBody() string { return reqTag }

// AdvertiseResponseBody is "RES" + parent_ip(15) + parent_port(5).
func AdvertiseResponseBody(parent Address) string {
	return resTag + parent.Canonical()
}

// ParseAdvertiseResponseBody extracts the assigned parent address using
// the fixed offsets (chars 3:18 for IP, 18:23 for port).
func ParseAdvertiseResponseBody(body string) (Address, error) {
	if len(body) != 23 || body[:3] != resTag {
		return Address{}, errors.Wrapf(ErrMalformedPacket, "bad advertise response body %q", body)
	}
	return Address{IP: body[3:18], Port: body[18:23]}, nil
}

// --- Join ---

// JoinBody is the fixed 4-char "JOIN".
func JoinBody() string { return "JOIN" }

// --- Reunion ---

const reunionMaxEntries = 99

// ReunionBody builds "REQ"|"RES" + count(2) + count*(ip15+port5).
func ReunionBody(tag string, entries []Address) (string, error) {
	if tag != reqTag && tag != resTag {
		return "", errors.Errorf("invalid reunion tag %q", tag)
	}
	if len(entries) > reunionMaxEntries {
		return "", errors.Errorf("too many reunion entries: %d", len(entries))
	}
	body := tag + fmt.Sprintf("%02d", len(entries))
	for _, e := range entries {
		body += e.Canonical()
	}
	return body, nil
}

// ReunionParser validates and decodes a Reunion body per the wire grammar:
// (len(body)-5) % 20 == 0, the count field parses as decimal, and
// len(body) == 5 + 20*count. Invalid bodies are reported so the packet
// can be dropped without touching peer state.
type ReunionParser struct {
	Tag     string
	Entries []Address
}

// ParseReunionBody validates and decodes a reunion body, wrapping
// ErrMalformedPacket on any violation of the grammar.
func ParseReunionBody(body string) (ReunionParser, error) {
	if len(body) <= 5 {
		return ReunionParser{}, errors.Wrapf(ErrMalformedPacket, "reunion body too short: %q", body)
	}
	tag := body[:3]
	if tag != reqTag && tag != resTag {
		return ReunionParser{}, errors.Wrapf(ErrMalformedPacket, "bad reunion tag %q", tag)
	}
	if (len(body)-5)%20 != 0 {
		return ReunionParser{}, errors.Wrapf(ErrMalformedPacket, "reunion body misaligned: len=%d", len(body))
	}
	count, err := strconv.Atoi(body[3:5])
	if err != nil {
		return ReunionParser{}, errors.Wrapf(ErrMalformedPacket, "bad reunion count %q", body[3:5])
	}
	if len(body) != 5+20*count {
		return ReunionParser{}, errors.Wrapf(ErrMalformedPacket, "reunion count %d disagrees with body length %d", count, len(body))
	}

	entries := make([]Address, 0, count)
	for i := 0; i < count; i++ {
		chunk := body[5+20*i : 5+20*(i+1)]
		addr, err := ParseCanonical(chunk)
		if err != nil {
			return ReunionParser{}, errors.Wrapf(ErrMalformedPacket, "bad reunion entry %d: %v", i, err)
		}
		entries = append(entries, addr)
	}

	return ReunionParser{Tag: tag, Entries: entries}, nil
}
