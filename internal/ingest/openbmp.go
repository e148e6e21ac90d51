package ingest

import (
	"encoding/binary"
	"fmt"
	"net"
)

const (
	// OBMP v1.7 format (used by goBMP).
	obmpMagic        uint32 = 0x4F424D50 // "OBMP"
	obmpMinHeaderLen        = 12         // enough to read header_length and msg_length

	// Legacy v2 format.
	legacyHeaderSize      = 10 // version(2) + collector_hash(4) + msg_len(4)
	legacyVersionExpected = 2
)

// RawFrame is an unwrapped OpenBMP frame: the BMP payload plus the router
// identity the collector stamped on it.
type RawFrame struct {
	BMPBytes   []byte
	RouterIP   string // from the OBMP v1.7 header; empty if unavailable
	RouterHash string // hex; empty if unavailable
}

// UnwrapOpenBMP strips the OpenBMP collector framing and returns the BMP
// payload. Both OBMP v1.7 (goBMP) and the legacy v2 format are accepted.
func UnwrapOpenBMP(data []byte, maxPayloadBytes int) (RawFrame, error) {
	if len(data) < 4 {
		return RawFrame{}, fmt.Errorf("openbmp: frame too short (%d bytes)", len(data))
	}

	if binary.BigEndian.Uint32(data[0:4]) == obmpMagic {
		return unwrapOBMPv17(data, maxPayloadBytes)
	}

	return unwrapLegacyV2(data, maxPayloadBytes)
}

// unwrapOBMPv17 parses the OBMP v1.7 header produced by goBMP.
//
// Header layout:
//
//	 0-3:  Magic (uint32) = 0x4F424D50 ("OBMP")
//	 4:    Version Major (uint8) = 1
//	 5:    Version Minor (uint8) = 7
//	 6-7:  Header Length (uint16) — total header size
//	 8-11: BMP Message Length (uint32)
//	12:    Flags (uint8)
//	13:    Message Type (uint8)
//	14-17: Timestamp seconds (uint32)
//	18-21: Timestamp microseconds (uint32)
//	22-37: Collector Hash (16 bytes)
//	38-39: Collector Admin ID Length (uint16)
//	40..40+N: Collector Admin ID (N bytes)
//	40+N..55+N: Router Hash (16 bytes)
//	56+N..71+N: Router IP (16 bytes)
func unwrapOBMPv17(data []byte, maxPayloadBytes int) (RawFrame, error) {
	if len(data) < obmpMinHeaderLen {
		return RawFrame{}, fmt.Errorf("openbmp: v1.7 frame too short (%d bytes)", len(data))
	}

	headerLen := int(binary.BigEndian.Uint16(data[6:8]))
	msgLen := binary.BigEndian.Uint32(data[8:12])

	if headerLen < obmpMinHeaderLen {
		return RawFrame{}, fmt.Errorf("openbmp: header_length %d too small", headerLen)
	}
	if headerLen > len(data) {
		return RawFrame{}, fmt.Errorf("openbmp: header_length %d exceeds frame (%d bytes)", headerLen, len(data))
	}
	if msgLen == 0 {
		return RawFrame{}, fmt.Errorf("openbmp: msg_len is 0")
	}
	if maxPayloadBytes > 0 && int(msgLen) > maxPayloadBytes {
		return RawFrame{}, fmt.Errorf("openbmp: msg_len %d exceeds limit %d", msgLen, maxPayloadBytes)
	}

	totalLen := headerLen + int(msgLen)
	if len(data) < totalLen {
		return RawFrame{}, fmt.Errorf("openbmp: frame truncated (have %d, need %d)", len(data), totalLen)
	}

	frame := RawFrame{BMPBytes: data[headerLen:totalLen]}

	// Router identity sits past the variable-length collector admin ID.
	if headerLen >= 40 && len(data) >= 40 {
		adminIDLen := int(binary.BigEndian.Uint16(data[38:40]))
		hashOff := 40 + adminIDLen
		ipOff := hashOff + 16

		if ipOff+16 <= headerLen {
			frame.RouterHash = fmt.Sprintf("%x", data[hashOff:hashOff+16])
			frame.RouterIP = routerIPString(data[ipOff : ipOff+16])
		}
	}

	return frame, nil
}

// unwrapLegacyV2 parses the simplified 10-byte OpenBMP v2 header, which
// carries no router identity.
func unwrapLegacyV2(data []byte, maxPayloadBytes int) (RawFrame, error) {
	if len(data) < legacyHeaderSize {
		return RawFrame{}, fmt.Errorf("openbmp: frame too short (%d bytes, need %d)", len(data), legacyHeaderSize)
	}

	version := binary.BigEndian.Uint16(data[0:2])
	if version != legacyVersionExpected {
		return RawFrame{}, fmt.Errorf("openbmp: unrecognized format (no OBMP magic, version=%d)", version)
	}

	// collector_hash at offset 2-6 is ignored.
	msgLen := binary.BigEndian.Uint32(data[6:10])

	if msgLen == 0 {
		return RawFrame{}, fmt.Errorf("openbmp: msg_len is 0")
	}
	if maxPayloadBytes > 0 && int(msgLen) > maxPayloadBytes {
		return RawFrame{}, fmt.Errorf("openbmp: msg_len %d exceeds limit %d", msgLen, maxPayloadBytes)
	}

	totalLen := legacyHeaderSize + int(msgLen)
	if len(data) < totalLen {
		return RawFrame{}, fmt.Errorf("openbmp: frame truncated (have %d, need %d)", len(data), totalLen)
	}

	return RawFrame{BMPBytes: data[legacyHeaderSize:totalLen]}, nil
}

// routerIPString renders 16 bytes of OBMP router IP. Collectors disagree on
// the encoding: IPv4 may sit in the first 4 bytes with trailing zeros
// (goBMP), in the last 4 with leading zeros, or as IPv4-mapped IPv6.
func routerIPString(b []byte) string {
	if len(b) != 16 {
		return ""
	}

	ip := net.IP(b)
	if v4 := ip.To4(); v4 != nil {
		return v4.String()
	}

	trailingZero := true
	for i := 4; i < 16; i++ {
		if b[i] != 0 {
			trailingZero = false
			break
		}
	}
	if trailingZero && (b[0] != 0 || b[1] != 0 || b[2] != 0 || b[3] != 0) {
		return net.IP(b[:4]).String()
	}

	leadingZero := true
	for i := 0; i < 12; i++ {
		if b[i] != 0 {
			leadingZero = false
			break
		}
	}
	if leadingZero && (b[12] != 0 || b[13] != 0 || b[14] != 0 || b[15] != 0) {
		return net.IP(b[12:16]).String()
	}

	if ip.IsUnspecified() {
		return ""
	}

	return ip.String()
}
