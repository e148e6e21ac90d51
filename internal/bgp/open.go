package bgp

import (
	"encoding/binary"
	"fmt"
	"net"
)

// ParseOpen parses a BGP OPEN body (the bytes after the 19-byte BGP header).
//
// OPEN body layout (RFC 4271 §4.2):
//
//	Offset 0: Version (1 byte)
//	Offset 1: My Autonomous System (2 bytes)
//	Offset 3: Hold Time (2 bytes)
//	Offset 5: BGP Identifier (4 bytes)
//	Offset 9: Opt Parm Len (1 byte)
//	Offset 10: Optional Parameters (variable)
//
// A 2-byte AS of AS_TRANS is resolved through the four-octet-AS capability
// when present.
func ParseOpen(data []byte) (*Open, error) {
	if len(data) < 10 {
		return nil, fmt.Errorf("bgp: open body too short (%d bytes)", len(data))
	}

	open := &Open{
		Version:  data[0],
		AS:       uint32(binary.BigEndian.Uint16(data[1:3])),
		HoldTime: binary.BigEndian.Uint16(data[3:5]),
		BGPID:    net.IP(data[5:9]).String(),
	}

	optParmLen := int(data[9])
	if 10+optParmLen > len(data) {
		return nil, fmt.Errorf("bgp: open optional parameters truncated (declared %d, have %d)", optParmLen, len(data)-10)
	}

	open.Capabilities = parseCapabilities(data[10 : 10+optParmLen])

	if open.AS == uint32(ASTrans) {
		for _, c := range open.Capabilities {
			if c.Code == CapCodeFourOctetAS && len(c.Value) == 4 {
				open.AS = binary.BigEndian.Uint32(c.Value)
				break
			}
		}
	}

	return open, nil
}

// parseCapabilities scans OPEN optional parameters for capabilities
// (parameter type 2, RFC 5492). Malformed trailing bytes end the scan;
// what was collected so far is returned.
func parseCapabilities(optParams []byte) []Capability {
	var caps []Capability
	offset := 0
	for offset+2 <= len(optParams) {
		paramType := optParams[offset]
		paramLen := int(optParams[offset+1])
		offset += 2

		if offset+paramLen > len(optParams) {
			return caps
		}

		if paramType == 2 { // Capabilities parameter
			capData := optParams[offset : offset+paramLen]
			capOffset := 0
			for capOffset+2 <= len(capData) {
				capCode := capData[capOffset]
				capLen := int(capData[capOffset+1])
				capOffset += 2

				if capOffset+capLen > len(capData) {
					break
				}

				caps = append(caps, Capability{
					Code:  capCode,
					Value: capData[capOffset : capOffset+capLen],
				})
				capOffset += capLen
			}
		}

		offset += paramLen
	}
	return caps
}
