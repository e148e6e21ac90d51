package bgp

import (
	"encoding/binary"
	"fmt"
)

// ParseUpdate parses a BGP UPDATE body (the bytes after the 19-byte BGP
// header). fourOctetAS selects 4-byte AS_PATH encoding, negotiated via the
// RFC 6793 capability on the monitored session.
func ParseUpdate(data []byte, fourOctetAS bool) (*Update, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("bgp: update body too short (%d bytes)", len(data))
	}

	offset := 0

	// Withdrawn routes length.
	withdrawnLen := int(binary.BigEndian.Uint16(data[offset : offset+2]))
	offset += 2

	if offset+withdrawnLen > len(data) {
		return nil, fmt.Errorf("bgp: withdrawn length %d exceeds data", withdrawnLen)
	}

	withdrawn, err := parsePrefixes(data[offset:offset+withdrawnLen], 4)
	if err != nil {
		return nil, fmt.Errorf("bgp: parse withdrawn routes: %w", err)
	}
	offset += withdrawnLen

	// Total path attribute length.
	if offset+2 > len(data) {
		return nil, fmt.Errorf("bgp: no room for path attr length")
	}
	totalPathAttrLen := int(binary.BigEndian.Uint16(data[offset : offset+2]))
	offset += 2

	if offset+totalPathAttrLen > len(data) {
		return nil, fmt.Errorf("bgp: path attr length %d exceeds data", totalPathAttrLen)
	}

	attrs, err := ParsePathAttributes(data[offset:offset+totalPathAttrLen], fourOctetAS)
	if err != nil {
		return nil, fmt.Errorf("bgp: parse path attrs: %w", err)
	}
	offset += totalPathAttrLen

	// Remaining bytes are the IPv4 NLRI.
	nlri, err := parsePrefixes(data[offset:], 4)
	if err != nil {
		return nil, fmt.Errorf("bgp: parse NLRI: %w", err)
	}

	return &Update{
		Withdrawn:  withdrawn,
		Attributes: attrs,
		NLRI:       nlri,
	}, nil
}

// IsEndOfRIB reports whether the update is an End-of-RIB marker: no
// withdrawn routes, no NLRI, and either no attributes at all or only an
// empty MP_UNREACH_NLRI.
func (u *Update) IsEndOfRIB() bool {
	if len(u.Withdrawn) != 0 || len(u.NLRI) != 0 {
		return false
	}
	a := u.Attributes
	if a == nil {
		return true
	}
	return a.Origin == "" && a.ASPath == "" && a.Nexthop == "" &&
		len(a.MPReachNLRI) == 0 && len(a.MPUnreachNLRI) == 0 &&
		len(a.Attrs) == 0
}
