package bmp

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/route-beacon/bmp-station/internal/bgp"
)

// Decode routes one BMP message body to the decoder for its type and
// returns the per-peer header (nil for Initiation and Termination, which
// carry none) together with the typed body. Decoding is stateless: every
// call is a pure function of its input, and the input buffer is not
// retained past the call.
func Decode(msgType uint8, body []byte) (*PerPeerHeader, Body, error) {
	switch msgType {
	case MsgTypeRouteMonitoring, MsgTypeStatisticsReport, MsgTypePeerDown, MsgTypePeerUp:
		peer, err := ParsePerPeerHeader(body)
		if err != nil {
			return nil, nil, err
		}
		rest := body[PerPeerHeaderSize:]

		var decoded Body
		switch msgType {
		case MsgTypeRouteMonitoring:
			decoded, err = decodeRouteMonitoring(rest)
		case MsgTypeStatisticsReport:
			decoded, err = decodeStatsReport(rest)
		case MsgTypePeerDown:
			decoded, err = decodePeerDown(rest)
		case MsgTypePeerUp:
			decoded, err = decodePeerUp(rest, peer.IPv6)
		}
		if err != nil {
			return nil, nil, err
		}
		return peer, decoded, nil

	case MsgTypeInitiation:
		info, err := decodeInfoTLVs(body, InitInfoNames)
		if err != nil {
			return nil, nil, err
		}
		return nil, &Initiation{Info: info}, nil

	case MsgTypeTermination:
		info, err := decodeInfoTLVs(body, TermInfoNames)
		if err != nil {
			return nil, nil, err
		}
		return nil, &Termination{Info: info}, nil

	default:
		return nil, nil, &UnknownMessageTypeError{Type: msgType}
	}
}

// decodeRouteMonitoring decodes the BGP PDU following the per-peer header.
// The embedded message type sits at offset 18 of the PDU's own 19-byte
// header; the header is stripped before delegating to the BGP codec.
func decodeRouteMonitoring(data []byte) (*RouteMonitoring, error) {
	if len(data) < bgp.HeaderSize {
		return nil, &TruncatedMessageError{What: "embedded BGP header", Need: bgp.HeaderSize, Have: len(data)}
	}

	bgpType := data[18]
	pdu := data[bgp.HeaderSize:]

	switch bgpType {
	case bgp.MsgTypeUpdate:
		// Routers speaking BMP negotiate the four-octet-AS capability on
		// the monitored sessions, so AS_PATH is decoded with 4-byte ASNs.
		update, err := bgp.ParseUpdate(pdu, true)
		if err != nil {
			return nil, &EmbeddedDecodeError{BGPType: bgpType, Raw: pdu, Err: err}
		}
		return &RouteMonitoring{BGPType: bgpType, Update: update}, nil

	case bgp.MsgTypeRouteRefresh:
		refresh, err := bgp.ParseRouteRefresh(pdu)
		if err != nil {
			return nil, &EmbeddedDecodeError{BGPType: bgpType, Raw: pdu, Err: err}
		}
		return &RouteMonitoring{BGPType: bgpType, RouteRefresh: refresh}, nil

	default:
		return nil, &UnsupportedEmbeddedTypeError{BGPType: bgpType}
	}
}

// decodeStatsReport decodes a Statistics Report body: a 4-byte counter
// count, then that many (type, length, value) entries. Values are
// big-endian unsigned integers up to 64 bits wide. Duplicate counter types
// overwrite earlier entries.
func decodeStatsReport(data []byte) (*StatsReport, error) {
	if len(data) < 4 {
		return nil, &TruncatedMessageError{What: "statistics count", Need: 4, Have: len(data)}
	}

	count := binary.BigEndian.Uint32(data[0:4])
	offset := 4

	report := &StatsReport{Counters: make(map[uint16]uint64)}
	for i := uint32(0); i < count; i++ {
		if offset+4 > len(data) {
			return nil, &MalformedTLVError{Offset: offset, Need: 4, Have: len(data) - offset}
		}
		statType := binary.BigEndian.Uint16(data[offset : offset+2])
		statLen := int(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
		offset += 4

		if offset+statLen > len(data) {
			return nil, &MalformedTLVError{Offset: offset, Need: statLen, Have: len(data) - offset}
		}
		if statLen > 8 {
			// Counter value wider than 64 bits cannot be represented.
			return nil, &MalformedTLVError{Offset: offset, Need: statLen, Have: 8}
		}

		var value uint64
		for _, b := range data[offset : offset+statLen] {
			value = value<<8 | uint64(b)
		}
		offset += statLen

		if _, ok := StatTypeNames[statType]; !ok {
			if _, seen := report.Counters[statType]; !seen {
				report.Unrecognized = append(report.Unrecognized, statType)
			}
		}
		report.Counters[statType] = value
	}

	return report, nil
}

// decodePeerDown decodes a Peer Down Notification body. The first byte is
// the reason code; reasons 1 and 3 carry a full NOTIFICATION PDU, reason 2
// a two-byte FSM event code, reason 4 nothing. Unknown reasons are kept
// as-is with no payload so callers can count them.
func decodePeerDown(data []byte) (*PeerDown, error) {
	if len(data) < 1 {
		return nil, &TruncatedMessageError{What: "peer down reason", Need: 1, Have: len(data)}
	}

	down := &PeerDown{Reason: data[0]}
	payload := data[1:]

	switch down.Reason {
	case PeerDownLocalNotification, PeerDownRemoteNotification:
		if len(payload) < bgp.HeaderSize {
			return nil, &TruncatedMessageError{What: "peer down NOTIFICATION PDU", Need: bgp.HeaderSize, Have: len(payload)}
		}
		notification, err := bgp.ParseNotification(payload[bgp.HeaderSize:])
		if err != nil {
			return nil, &EmbeddedDecodeError{BGPType: bgp.MsgTypeNotification, Raw: payload, Err: err}
		}
		down.Notification = notification

	case PeerDownLocalNoMessage:
		if len(payload) < 2 {
			return nil, &TruncatedMessageError{What: "peer down FSM event code", Need: 2, Have: len(payload)}
		}
		// Both bytes zero means no relevant event code was reported.
		down.FSMEvent = binary.BigEndian.Uint16(payload[0:2])

	case PeerDownRemoteNoMessage:
		// No further payload.
	}

	return down, nil
}

// decodePeerUp decodes a Peer Up Notification body. The fixed fields are a
// 16-byte local address (interpreted via the peer's V flag, like the peer
// address), local port and remote port, followed by the sent and received
// OPEN PDUs back to back. The sent OPEN's own length field determines where
// the received OPEN begins; the received OPEN runs to the end of the body.
func decodePeerUp(data []byte, ipv6 bool) (*PeerUp, error) {
	const fixedLen = 20 // address(16) + local port(2) + remote port(2)
	if len(data) < fixedLen {
		return nil, &TruncatedMessageError{What: "peer up fixed fields", Need: fixedLen, Have: len(data)}
	}

	up := &PeerUp{
		LocalPort:  binary.BigEndian.Uint16(data[16:18]),
		RemotePort: binary.BigEndian.Uint16(data[18:20]),
	}
	if ipv6 {
		up.LocalAddress = net.IP(data[0:16]).String()
	} else {
		up.LocalAddress = net.IP(data[12:16]).String()
	}

	opens := data[fixedLen:]
	if len(opens) < bgp.HeaderSize {
		return nil, &TruncatedMessageError{What: "sent OPEN header", Need: bgp.HeaderSize, Have: len(opens)}
	}

	sentLen := int(binary.BigEndian.Uint16(opens[16:18]))
	if sentLen < bgp.HeaderSize || sentLen > len(opens) {
		return nil, &EmbeddedDecodeError{
			BGPType: bgp.MsgTypeOpen,
			Raw:     opens,
			Err:     fmt.Errorf("bgp: sent OPEN length %d outside [%d, %d]", sentLen, bgp.HeaderSize, len(opens)),
		}
	}

	sent, err := bgp.ParseOpen(opens[bgp.HeaderSize:sentLen])
	if err != nil {
		return nil, &EmbeddedDecodeError{BGPType: bgp.MsgTypeOpen, Raw: opens[:sentLen], Err: err}
	}
	up.SentOpen = sent

	received := opens[sentLen:]
	if len(received) < bgp.HeaderSize {
		return nil, &TruncatedMessageError{What: "received OPEN header", Need: bgp.HeaderSize, Have: len(received)}
	}
	recv, err := bgp.ParseOpen(received[bgp.HeaderSize:])
	if err != nil {
		return nil, &EmbeddedDecodeError{BGPType: bgp.MsgTypeOpen, Raw: received, Err: err}
	}
	up.ReceivedOpen = recv

	return up, nil
}
