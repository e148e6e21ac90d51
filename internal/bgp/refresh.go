package bgp

import (
	"encoding/binary"
	"fmt"
)

// ParseRouteRefresh parses a ROUTE-REFRESH body (the bytes after the
// 19-byte BGP header): AFI (2 bytes), subtype (1 byte, RFC 7313), SAFI
// (1 byte).
func ParseRouteRefresh(data []byte) (*RouteRefresh, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("bgp: route refresh body too short (%d bytes)", len(data))
	}

	return &RouteRefresh{
		AFI:     binary.BigEndian.Uint16(data[0:2]),
		Subtype: data[2],
		SAFI:    data[3],
	}, nil
}
