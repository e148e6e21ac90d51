package ingest

import (
	"github.com/route-beacon/bmp-station/internal/bgp"
	"github.com/route-beacon/bmp-station/internal/bmp"
)

// RouteEventRow is one per-prefix row for route_events, extracted from a
// Route Monitoring message.
type RouteEventRow struct {
	EventID []byte // 32-byte SHA-256 of the BMP message
	RouterIP string
	Peer     *bmp.PerPeerHeader
	Prefix   string
	AFI      int    // IP version: 4 or 6
	Action   string // "announce" or "withdraw"
	Attrs    *bgp.PathAttributes
	BMPRaw   []byte
	Topic    string
}

// PeerEventRow is one peer_events row (Peer Up or Peer Down).
type PeerEventRow struct {
	RouterIP string
	Peer     *bmp.PerPeerHeader
	Event    string // "up" or "down"
	Up       *bmp.PeerUp
	Down     *bmp.PeerDown
}

// StatRow is one peer_stats row: a single counter from a Statistics Report.
type StatRow struct {
	RouterIP     string
	Peer         *bmp.PerPeerHeader
	StatType     uint16
	StatName     string
	Value        uint64
	Unrecognized bool
}

// RouterRow upserts one routers row from an Initiation or Termination
// message, merged with operator-supplied metadata.
type RouterRow struct {
	RouterIP   string
	Name       string
	Location   string
	SysName    string
	SysDescr   string
	Info       []bmp.InfoTLV
	TermReason string
}

// Batch collects rows of all kinds for one flush.
type Batch struct {
	Routes  []*RouteEventRow
	Peers   []*PeerEventRow
	Stats   []*StatRow
	Routers []*RouterRow
}

func (b *Batch) empty() bool {
	return len(b.Routes) == 0 && len(b.Peers) == 0 && len(b.Stats) == 0 && len(b.Routers) == 0
}

func (b *Batch) size() int {
	return len(b.Routes) + len(b.Peers) + len(b.Stats) + len(b.Routers)
}

func (b *Batch) append(other *Batch) {
	b.Routes = append(b.Routes, other.Routes...)
	b.Peers = append(b.Peers, other.Peers...)
	b.Stats = append(b.Stats, other.Stats...)
	b.Routers = append(b.Routers, other.Routers...)
}

// routeRowsFromUpdate flattens a decoded UPDATE into per-prefix rows:
// IPv4 NLRI and MP_REACH prefixes become announcements, IPv4 withdrawn
// routes and MP_UNREACH prefixes become withdrawals.
func routeRowsFromUpdate(eventID []byte, routerIP string, peer *bmp.PerPeerHeader, u *bgp.Update, raw []byte, topic string) []*RouteEventRow {
	var rows []*RouteEventRow

	add := func(prefix string, afi int, action string) {
		rows = append(rows, &RouteEventRow{
			EventID:  eventID,
			RouterIP: routerIP,
			Peer:     peer,
			Prefix:   prefix,
			AFI:      afi,
			Action:   action,
			Attrs:    u.Attributes,
			BMPRaw:   raw,
			Topic:    topic,
		})
	}

	for _, p := range u.NLRI {
		add(p, 4, "announce")
	}
	for _, p := range u.Withdrawn {
		add(p, 4, "withdraw")
	}

	if a := u.Attributes; a != nil {
		reachVer := afiVersion(a.MPReachAFI)
		for _, p := range a.MPReachNLRI {
			add(p, reachVer, "announce")
		}
		unreachVer := afiVersion(a.MPUnreachAFI)
		for _, p := range a.MPUnreachNLRI {
			add(p, unreachVer, "withdraw")
		}
	}

	return rows
}

func afiVersion(afi uint16) int {
	if afi == bgp.AFIIPv6 {
		return 6
	}
	return 4
}

// routerRowFromInfo builds a routers upsert from Initiation or Termination
// info TLVs. sysName/sysDescr come from the recognized Initiation types;
// termReason is non-empty only for Termination.
func routerRowFromInfo(routerIP string, info []bmp.InfoTLV, termReason string) *RouterRow {
	row := &RouterRow{
		RouterIP:   routerIP,
		Info:       info,
		TermReason: termReason,
	}
	for _, tlv := range info {
		switch tlv.Name {
		case "sys-name":
			row.SysName = string(tlv.Value)
		case "sys-descr":
			row.SysDescr = string(tlv.Value)
		}
	}
	return row
}
