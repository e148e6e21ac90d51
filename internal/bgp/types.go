package bgp

// BGP message types (RFC 4271 §4.1).
const (
	MsgTypeOpen         uint8 = 1
	MsgTypeUpdate       uint8 = 2
	MsgTypeNotification uint8 = 3
	MsgTypeKeepalive    uint8 = 4
	MsgTypeRouteRefresh uint8 = 5
)

// HeaderSize is the generic BGP message header: marker(16) + length(2) + type(1).
const HeaderSize = 19

// BGP path attribute type codes.
const (
	AttrTypeOrigin         uint8 = 1
	AttrTypeASPath         uint8 = 2
	AttrTypeNextHop        uint8 = 3
	AttrTypeMED            uint8 = 4
	AttrTypeLocalPref      uint8 = 5
	AttrTypeCommunity      uint8 = 8
	AttrTypeMPReachNLRI    uint8 = 14
	AttrTypeMPUnreachNLRI  uint8 = 15
	AttrTypeExtCommunity   uint8 = 16
	AttrTypeLargeCommunity uint8 = 32
)

// AFI codes.
const (
	AFIIPv4 uint16 = 1
	AFIIPv6 uint16 = 2
)

// SAFI codes.
const (
	SAFIUnicast uint8 = 1
)

// AS_PATH segment types.
const (
	ASPathSegmentSet      uint8 = 1
	ASPathSegmentSequence uint8 = 2
)

// Origin values.
var OriginValues = map[uint8]string{
	0: "IGP",
	1: "EGP",
	2: "INCOMPLETE",
}

// ASTrans is the 2-byte placeholder AS (RFC 6793) signalling that the real
// ASN is carried in the four-octet-AS capability.
const ASTrans uint16 = 23456

// Capability codes (RFC 5492 registry subset).
const (
	CapCodeMultiprotocol uint8 = 1
	CapCodeRouteRefresh  uint8 = 2
	CapCodeFourOctetAS   uint8 = 65
	CapCodeAddPath       uint8 = 69
)

// Update is a decoded BGP UPDATE body.
type Update struct {
	Withdrawn  []string // CIDR notation
	Attributes *PathAttributes
	NLRI       []string // CIDR notation
}

// Capability is one capability from an OPEN's optional parameters.
type Capability struct {
	Code  uint8
	Value []byte
}

// Open is a decoded BGP OPEN body.
type Open struct {
	Version      uint8
	AS           uint32 // resolved through the four-octet-AS capability when AS_TRANS
	HoldTime     uint16
	BGPID        string
	Capabilities []Capability
}

// Notification is a decoded BGP NOTIFICATION body.
type Notification struct {
	Code    uint8
	Subcode uint8
	Data    []byte
}

// NotificationCodeNames maps NOTIFICATION error codes (RFC 4271 §4.5).
var NotificationCodeNames = map[uint8]string{
	1: "message-header-error",
	2: "open-message-error",
	3: "update-message-error",
	4: "hold-timer-expired",
	5: "fsm-error",
	6: "cease",
}

// RouteRefresh is a decoded ROUTE-REFRESH body (RFC 2918 / RFC 7313).
type RouteRefresh struct {
	AFI     uint16
	Subtype uint8
	SAFI    uint8
}
