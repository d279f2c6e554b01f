package wire

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// Encode renders a Packet into its wire form: the 20-byte big-endian
// header followed by the ASCII body. The length field is always set to
// the body's byte count — the single source of truth for wire shape.
func Encode(p Packet) ([]byte, error) {
	octets, err := p.Source.Octets()
	if err != nil {
		return nil, errors.Wrap(err, "encode: source address")
	}
	port, err := p.Source.PortNum()
	if err != nil {
		return nil, errors.Wrap(err, "encode: source port")
	}

	buf := new(bytes.Buffer)
	buf.Grow(HeaderLen + len(p.Body))

	fields := []any{
		p.Version,
		uint16(p.Type),
		uint32(p.Length()),
		octets[0], octets[1], octets[2], octets[3],
		port,
	}
	for _, f := range fields {
		if err := binary.Write(buf, binary.BigEndian, f); err != nil {
			return nil, errors.Wrap(err, "encode: header")
		}
	}
	buf.WriteString(p.Body)
	return buf.Bytes(), nil
}

// Decode parses a wire blob into a Packet. It fails with ErrMalformedPacket
// if the blob is shorter than the fixed header or the header's length
// field does not equal the actual body byte count.
func Decode(buf []byte) (Packet, error) {
	if len(buf) < HeaderLen {
		return Packet{}, errors.Wrapf(ErrMalformedPacket, "buffer too short: %d bytes", len(buf))
	}

	r := bytes.NewReader(buf[:HeaderLen])
	var version, ptype uint16
	var length uint32
	var octets [4]uint16
	var port uint32

	for _, f := range []any{&version, &ptype, &length, &octets[0], &octets[1], &octets[2], &octets[3], &port} {
		if err := binary.Read(r, binary.BigEndian, f); err != nil {
			return Packet{}, errors.Wrap(ErrMalformedPacket, err.Error())
		}
	}

	body := buf[HeaderLen:]
	if int(length) != len(body) {
		return Packet{}, errors.Wrapf(ErrMalformedPacket, "length field %d != body bytes %d", length, len(body))
	}

	return Packet{
		Version: version,
		Type:    Type(ptype),
		Source:  AddressFromOctets(octets, port),
		Body:    string(body),
	}, nil
}
