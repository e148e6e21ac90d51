package bmp

import "github.com/route-beacon/bmp-station/internal/bgp"

// BMP message type codes (RFC 7854).
const (
	MsgTypeRouteMonitoring  uint8 = 0
	MsgTypeStatisticsReport uint8 = 1
	MsgTypePeerDown         uint8 = 2
	MsgTypePeerUp           uint8 = 3
	MsgTypeInitiation       uint8 = 4
	MsgTypeTermination      uint8 = 5
)

// BMP peer types.
const (
	PeerTypeGlobal uint8 = 0
	PeerTypeL3VPN  uint8 = 1
)

// Per-peer header flag bits. The remaining six bits are reserved.
const (
	PeerFlagIPv6       uint8 = 0x80 // V bit
	PeerFlagPostPolicy uint8 = 0x40 // L bit
)

// BMP header sizes.
const (
	CommonHeaderSize  = 6  // version(1) + msg_length(4) + msg_type(1)
	PerPeerHeaderSize = 42 // peer_type(1) + flags(1) + distinguisher(8) + addr(16) + AS(4) + BGPID(4) + ts_sec(4) + ts_usec(4)
)

// BMPVersion is the expected BMP protocol version.
const BMPVersion uint8 = 3

// Peer Down reason codes (RFC 7854 §4.9).
const (
	PeerDownLocalNotification  uint8 = 1
	PeerDownLocalNoMessage     uint8 = 2
	PeerDownRemoteNotification uint8 = 3
	PeerDownRemoteNoMessage    uint8 = 4
)

// StatTypeNames maps Statistics Report counter type codes to names
// (RFC 7854 §4.8). Types outside this table are still decoded but flagged
// as unrecognized.
var StatTypeNames = map[uint16]string{
	0: "prefixes-rejected",
	1: "duplicate-prefix-advertisements",
	2: "duplicate-withdraws",
	3: "updates-invalidated-by-cluster-list",
	4: "updates-invalidated-by-as-path-loop",
	5: "updates-invalidated-by-originator-id",
	6: "updates-invalidated-by-as-confed-loop",
	7: "routes-in-adj-rib-in",
	8: "routes-in-loc-rib",
}

// InitInfoNames maps Initiation message information TLV types to names
// (RFC 7854 §4.3).
var InitInfoNames = map[uint16]string{
	0: "string",
	1: "sys-descr",
	2: "sys-name",
}

// TermInfoNames maps Termination message information TLV types to names
// (RFC 7854 §4.5).
var TermInfoNames = map[uint16]string{
	0: "string",
	1: "reason",
}

// TermReasonNames maps reason codes carried in a Termination type-1 TLV.
var TermReasonNames = map[uint16]string{
	0: "administratively-closed",
	1: "unspecified",
	2: "out-of-resources",
	3: "redundant-connection",
	4: "permanently-administratively-closed",
}

// Timestamp is the per-peer header timestamp: the time the encapsulated
// routes were received. Both fields zero when unavailable.
type Timestamp struct {
	Seconds      uint32
	Microseconds uint32
}

// PerPeerHeader identifies the monitored peering session a BMP message body
// pertains to (RFC 7854 §4.2).
type PerPeerHeader struct {
	Type       uint8
	IPv6       bool
	PostPolicy bool
	// Distinguisher is set only for L3 VPN instance peers; nil for global
	// instance peers, where the wire bytes are reserved and ignored.
	Distinguisher *uint64
	Address       string
	AS            uint32
	BGPID         string
	Timestamp     Timestamp
}

// Body is implemented by the decoded body of every BMP message type, so
// callers can switch exhaustively over message kinds.
type Body interface {
	bmpBody()
}

// RouteMonitoring carries one decoded BGP PDU copied from the monitored
// peer's Adj-RIB-In stream. Exactly one of Update or RouteRefresh is set,
// selected by BGPType.
type RouteMonitoring struct {
	BGPType      uint8
	Update       *bgp.Update
	RouteRefresh *bgp.RouteRefresh
}

// StatsReport maps statistics counter type codes to their values.
// Duplicate types in the wire message overwrite: last write wins.
type StatsReport struct {
	Counters map[uint16]uint64
	// Unrecognized lists counter types absent from StatTypeNames, in wire
	// order, for observability. Their values are still present in Counters.
	Unrecognized []uint16
}

// PeerDown reports a terminated peering session. Reason selects which of
// the optional fields is meaningful.
type PeerDown struct {
	Reason uint8
	// Notification is the decoded NOTIFICATION PDU for reasons 1 and 3.
	Notification *bgp.Notification
	// FSMEvent is the RFC 4271 §8.1 event code for reason 2; zero means no
	// relevant event code was reported.
	FSMEvent uint16
}

// PeerUp reports a peering session that reached ESTABLISHED state.
type PeerUp struct {
	LocalAddress string
	LocalPort    uint16
	RemotePort   uint16
	SentOpen     *bgp.Open
	ReceivedOpen *bgp.Open
}

// InfoTLV is one information TLV from an Initiation or Termination message.
// Name is set for recognized types, empty otherwise.
type InfoTLV struct {
	Type  uint16
	Name  string
	Value []byte
}

// Initiation carries the monitored router's self-description TLVs.
type Initiation struct {
	Info []InfoTLV
}

// Termination carries the router's stated reasons for closing the session.
type Termination struct {
	Info []InfoTLV
}

func (*RouteMonitoring) bmpBody() {}
func (*StatsReport) bmpBody()     {}
func (*PeerDown) bmpBody()        {}
func (*PeerUp) bmpBody()          {}
func (*Initiation) bmpBody()      {}
func (*Termination) bmpBody()     {}
