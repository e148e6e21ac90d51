package bmp

import (
	"encoding/binary"
	"net"
)

// ParsePerPeerHeader decodes the 42-byte per-peer header that prefixes
// Route Monitoring, Statistics Report, Peer Down and Peer Up messages.
//
// Per-peer header layout (RFC 7854 §4.2):
//
//	Offset  0: Peer Type (1 byte)
//	Offset  1: Peer Flags (1 byte)
//	Offset  2: Peer Distinguisher (8 bytes, meaningful only for L3 VPN peers)
//	Offset 10: Peer Address (16 bytes)
//	Offset 26: Peer AS (4 bytes)
//	Offset 30: Peer BGP ID (4 bytes)
//	Offset 34: Timestamp seconds (4 bytes)
//	Offset 38: Timestamp microseconds (4 bytes)
func ParsePerPeerHeader(data []byte) (*PerPeerHeader, error) {
	if len(data) < PerPeerHeaderSize {
		return nil, &TruncatedMessageError{What: "per-peer header", Need: PerPeerHeaderSize, Have: len(data)}
	}

	peerType := data[0]
	if peerType != PeerTypeGlobal && peerType != PeerTypeL3VPN {
		return nil, &UnknownPeerTypeError{Type: peerType}
	}

	flags := data[1]
	// Only the V and L bits are defined; a set reserved bit means the flags
	// octet cannot be interpreted against this version of the protocol.
	if flags&^(PeerFlagIPv6|PeerFlagPostPolicy) != 0 {
		return nil, &UnknownPeerFlagError{Flags: flags}
	}

	h := &PerPeerHeader{
		Type:       peerType,
		IPv6:       flags&PeerFlagIPv6 != 0,
		PostPolicy: flags&PeerFlagPostPolicy != 0,
	}

	if peerType == PeerTypeL3VPN {
		rd := binary.BigEndian.Uint64(data[2:10])
		h.Distinguisher = &rd
	}

	// Peer address is always 16 bytes on the wire; an IPv4 address occupies
	// the low 4 bytes.
	if h.IPv6 {
		h.Address = net.IP(data[10:26]).String()
	} else {
		h.Address = net.IP(data[22:26]).String()
	}

	h.AS = binary.BigEndian.Uint32(data[26:30])
	// The BGP identifier renders as a dotted quad regardless of address family.
	h.BGPID = net.IP(data[30:34]).String()
	h.Timestamp = Timestamp{
		Seconds:      binary.BigEndian.Uint32(data[34:38]),
		Microseconds: binary.BigEndian.Uint32(data[38:42]),
	}

	return h, nil
}
