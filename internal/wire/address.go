// Package wire implements the five-packet protocol: canonical addressing,
// the fixed-header binary packet format, and the per-type ASCII body
// grammar described by the overlay's wire specification.
package wire

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Address is the canonical (IP, port) pair used in every packet body and in
// all equality comparisons: IP as four dot-separated 3-digit octets
// (15 chars), port as a 5-digit zero-padded decimal.
type Address struct {
	IP   string
	Port string
}

const ipLen = 15
const portLen = 5

// NewAddress canonicalizes a raw IP and port into the fixed-width form.
func NewAddress(ip string, port int) (Address, error) {
	cip, err := canonicalIP(ip)
	if err != nil {
		return Address{}, err
	}
	if port < 0 || port > 65535 {
		return Address{}, errors.Errorf("port out of range: %d", port)
	}
	return Address{IP: cip, Port: fmt.Sprintf("%05d", port)}, nil
}

// ParseAddress canonicalizes a "host:port" real-form address, as returned
// by net.Conn.RemoteAddr or dialed from the command line.
func ParseAddress(hostport string) (Address, error) {
	h, p, err := splitHostPort(hostport)
	if err != nil {
		return Address{}, err
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return Address{}, errors.Wrapf(err, "invalid port %q", p)
	}
	return NewAddress(h, port)
}

func splitHostPort(hostport string) (string, string, error) {
	idx := strings.LastIndex(hostport, ":")
	if idx < 0 {
		return "", "", errors.Errorf("missing port in address %q", hostport)
	}
	return hostport[:idx], hostport[idx+1:], nil
}

func canonicalIP(ip string) (string, error) {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return "", errors.Errorf("invalid ip %q: expected 4 octets", ip)
	}
	out := make([]string, 4)
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 || v > 255 {
			return "", errors.Errorf("invalid ip %q: bad octet %q", ip, p)
		}
		out[i] = fmt.Sprintf("%03d", v)
	}
	return strings.Join(out, "."), nil
}

// Real returns the unpadded (host, port) form suitable for net.Dial/net.Listen.
func (a Address) Real() (string, int) {
	octets := strings.Split(a.IP, ".")
	real := make([]string, len(octets))
	for i, o := range octets {
		v, _ := strconv.Atoi(o)
		real[i] = strconv.Itoa(v)
	}
	port, _ := strconv.Atoi(a.Port)
	return strings.Join(real, "."), port
}

// RealString returns "host:port" in real (unpadded) form for net.Dial.
func (a Address) RealString() string {
	ip, port := a.Real()
	return fmt.Sprintf("%s:%d", ip, port)
}

// Canonical returns the 20-char concatenation used in packet bodies.
func (a Address) Canonical() string {
	return a.IP + a.Port
}

func (a Address) String() string {
	return a.Canonical()
}

// Octets returns the address IP as four u16 header fields.
func (a Address) Octets() ([4]uint16, error) {
	var out [4]uint16
	parts := strings.Split(a.IP, ".")
	if len(parts) != 4 {
		return out, errors.Errorf("invalid canonical ip %q", a.IP)
	}
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return out, errors.Wrapf(err, "invalid ip octet %q", p)
		}
		out[i] = uint16(v)
	}
	return out, nil
}

// PortNum returns the address port as a u32 header field.
func (a Address) PortNum() (uint32, error) {
	v, err := strconv.Atoi(a.Port)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid port %q", a.Port)
	}
	return uint32(v), nil
}

// AddressFromOctets reconstructs a canonical Address from decoded header fields.
func AddressFromOctets(octets [4]uint16, port uint32) Address {
	ip := fmt.Sprintf("%03d.%03d.%03d.%03d", octets[0], octets[1], octets[2], octets[3])
	return Address{IP: ip, Port: fmt.Sprintf("%05d", port)}
}

// ParseCanonical splits a 20-char canonical blob (ip15+port5) into an Address.
func ParseCanonical(s string) (Address, error) {
	if len(s) != ipLen+portLen {
		return Address{}, errors.Errorf("invalid canonical address length %d", len(s))
	}
	ip := s[:ipLen]
	port := s[ipLen:]
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return Address{}, errors.Errorf("invalid canonical ip %q", ip)
	}
	for _, p := range parts {
		if len(p) != 3 {
			return Address{}, errors.Errorf("invalid canonical ip octet %q", p)
		}
		if _, err := strconv.Atoi(p); err != nil {
			return Address{}, errors.Wrapf(err, "invalid ip octet %q", p)
		}
	}
	if len(port) != 5 {
		return Address{}, errors.Errorf("invalid canonical port %q", port)
	}
	if _, err := strconv.Atoi(port); err != nil {
		return Address{}, errors.Wrapf(err, "invalid port %q", port)
	}
	return Address{IP: ip, Port: port}, nil
}
