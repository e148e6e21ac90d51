package bmp

import (
	"encoding/binary"
	"errors"
	"reflect"
	"testing"

	"github.com/route-beacon/bmp-station/internal/bgp"
)

// buildBGPMessage wraps a PDU body in the generic 19-byte BGP header.
func buildBGPMessage(msgType uint8, body []byte) []byte {
	msg := make([]byte, bgp.HeaderSize+len(body))
	for i := 0; i < 16; i++ {
		msg[i] = 0xFF
	}
	binary.BigEndian.PutUint16(msg[16:18], uint16(len(msg)))
	msg[18] = msgType
	copy(msg[bgp.HeaderSize:], body)
	return msg
}

// buildOpenBody builds a minimal OPEN body with no optional parameters.
func buildOpenBody(asn uint16, holdTime uint16, bgpID []byte) []byte {
	body := make([]byte, 10)
	body[0] = 4 // version
	binary.BigEndian.PutUint16(body[1:3], asn)
	binary.BigEndian.PutUint16(body[3:5], holdTime)
	copy(body[5:9], bgpID)
	body[9] = 0 // opt parm len
	return body
}

// buildStatsBody builds a Statistics Report body from (type, len, value) entries.
func buildStatsBody(entries ...[3]uint64) []byte {
	body := make([]byte, 4)
	binary.BigEndian.PutUint32(body[0:4], uint32(len(entries)))
	for _, e := range entries {
		statType, statLen, value := uint16(e[0]), int(e[1]), e[2]
		entry := make([]byte, 4+statLen)
		binary.BigEndian.PutUint16(entry[0:2], statType)
		binary.BigEndian.PutUint16(entry[2:4], uint16(statLen))
		for i := statLen - 1; i >= 0; i-- {
			entry[4+i] = byte(value)
			value >>= 8
		}
		body = append(body, entry...)
	}
	return body
}

func TestDecode_RouteMonitoringUpdate(t *testing.T) {
	// UPDATE announcing 10.0.0.0/24 with ORIGIN=IGP and NEXT_HOP=192.168.1.1.
	attrs := []byte{
		0x40, bgp.AttrTypeOrigin, 1, 0,
		0x40, bgp.AttrTypeNextHop, 4, 192, 168, 1, 1,
	}
	update := make([]byte, 0, 4+len(attrs)+4)
	update = append(update, 0x00, 0x00) // withdrawn routes length
	update = append(update, byte(len(attrs)>>8), byte(len(attrs)))
	update = append(update, attrs...)
	update = append(update, 24, 10, 0, 0) // NLRI 10.0.0.0/24

	body := append(buildPerPeerHeader(PeerTypeGlobal, 0x00), buildBGPMessage(bgp.MsgTypeUpdate, update)...)

	peer, decoded, err := Decode(MsgTypeRouteMonitoring, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if peer == nil {
		t.Fatal("expected per-peer header")
	}

	rm, ok := decoded.(*RouteMonitoring)
	if !ok {
		t.Fatalf("expected *RouteMonitoring, got %T", decoded)
	}
	if rm.BGPType != bgp.MsgTypeUpdate {
		t.Errorf("expected embedded type %d, got %d", bgp.MsgTypeUpdate, rm.BGPType)
	}
	if rm.Update == nil {
		t.Fatal("expected decoded UPDATE")
	}
	if len(rm.Update.NLRI) != 1 || rm.Update.NLRI[0] != "10.0.0.0/24" {
		t.Errorf("expected NLRI ['10.0.0.0/24'], got %v", rm.Update.NLRI)
	}
	if rm.Update.Attributes.Origin != "IGP" {
		t.Errorf("expected origin 'IGP', got '%s'", rm.Update.Attributes.Origin)
	}
	if rm.Update.Attributes.Nexthop != "192.168.1.1" {
		t.Errorf("expected nexthop '192.168.1.1', got '%s'", rm.Update.Attributes.Nexthop)
	}
}

func TestDecode_RouteMonitoringRouteRefresh(t *testing.T) {
	refresh := []byte{0x00, 0x01, 0x00, 0x01} // AFI=1, subtype=0, SAFI=1
	body := append(buildPerPeerHeader(PeerTypeGlobal, 0x00), buildBGPMessage(bgp.MsgTypeRouteRefresh, refresh)...)

	_, decoded, err := Decode(MsgTypeRouteMonitoring, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rm := decoded.(*RouteMonitoring)
	if rm.RouteRefresh == nil {
		t.Fatal("expected decoded ROUTE-REFRESH")
	}
	if rm.RouteRefresh.AFI != 1 || rm.RouteRefresh.Subtype != 0 || rm.RouteRefresh.SAFI != 1 {
		t.Errorf("unexpected route refresh %+v", rm.RouteRefresh)
	}
}

func TestDecode_RouteMonitoringUnsupportedEmbeddedType(t *testing.T) {
	body := append(buildPerPeerHeader(PeerTypeGlobal, 0x00), buildBGPMessage(bgp.MsgTypeKeepalive, nil)...)

	_, _, err := Decode(MsgTypeRouteMonitoring, body)
	var unsupErr *UnsupportedEmbeddedTypeError
	if !errors.As(err, &unsupErr) {
		t.Fatalf("expected UnsupportedEmbeddedTypeError, got %v", err)
	}
	if unsupErr.BGPType != bgp.MsgTypeKeepalive {
		t.Errorf("expected error to carry type %d, got %d", bgp.MsgTypeKeepalive, unsupErr.BGPType)
	}
}

func TestDecode_RouteMonitoringEmbeddedDecodeError(t *testing.T) {
	// UPDATE body of 2 bytes cannot hold the mandatory length fields.
	badUpdate := []byte{0x00, 0x00}
	body := append(buildPerPeerHeader(PeerTypeGlobal, 0x00), buildBGPMessage(bgp.MsgTypeUpdate, badUpdate)...)

	_, _, err := Decode(MsgTypeRouteMonitoring, body)
	var embErr *EmbeddedDecodeError
	if !errors.As(err, &embErr) {
		t.Fatalf("expected EmbeddedDecodeError, got %v", err)
	}
	if embErr.BGPType != bgp.MsgTypeUpdate {
		t.Errorf("expected embedded type %d, got %d", bgp.MsgTypeUpdate, embErr.BGPType)
	}
	// Raw undecoded bytes are retained for diagnostics.
	if !reflect.DeepEqual(embErr.Raw, badUpdate) {
		t.Errorf("expected raw bytes %v, got %v", badUpdate, embErr.Raw)
	}
}

func TestDecode_StatsReport(t *testing.T) {
	body := append(buildPerPeerHeader(PeerTypeGlobal, 0x00),
		buildStatsBody([3]uint64{1, 4, 100}, [3]uint64{2, 4, 200})...)

	_, decoded, err := Decode(MsgTypeStatisticsReport, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	report := decoded.(*StatsReport)
	want := map[uint16]uint64{1: 100, 2: 200}
	if !reflect.DeepEqual(report.Counters, want) {
		t.Errorf("expected counters %v, got %v", want, report.Counters)
	}
	if len(report.Unrecognized) != 0 {
		t.Errorf("expected no unrecognized types, got %v", report.Unrecognized)
	}
}

func TestDecode_StatsReportDuplicateLastWins(t *testing.T) {
	// Duplicate stat types overwrite: the wire may carry repeated entries
	// and the decoder deliberately keeps the last one.
	body := append(buildPerPeerHeader(PeerTypeGlobal, 0x00),
		buildStatsBody([3]uint64{1, 4, 10}, [3]uint64{1, 4, 20})...)

	_, decoded, err := Decode(MsgTypeStatisticsReport, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	report := decoded.(*StatsReport)
	if !reflect.DeepEqual(report.Counters, map[uint16]uint64{1: 20}) {
		t.Errorf("expected last-wins counters {1:20}, got %v", report.Counters)
	}
}

func TestDecode_StatsReport64BitCounter(t *testing.T) {
	body := append(buildPerPeerHeader(PeerTypeGlobal, 0x00),
		buildStatsBody([3]uint64{7, 8, 5_000_000_000})...)

	_, decoded, err := Decode(MsgTypeStatisticsReport, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	report := decoded.(*StatsReport)
	if report.Counters[7] != 5_000_000_000 {
		t.Errorf("expected counter 5000000000, got %d", report.Counters[7])
	}
}

func TestDecode_StatsReportUnrecognizedType(t *testing.T) {
	body := append(buildPerPeerHeader(PeerTypeGlobal, 0x00),
		buildStatsBody([3]uint64{999, 4, 7})...)

	_, decoded, err := Decode(MsgTypeStatisticsReport, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	report := decoded.(*StatsReport)
	if report.Counters[999] != 7 {
		t.Errorf("expected unrecognized counter kept with value 7, got %v", report.Counters)
	}
	if !reflect.DeepEqual(report.Unrecognized, []uint16{999}) {
		t.Errorf("expected unrecognized list [999], got %v", report.Unrecognized)
	}
}

func TestDecode_StatsReportTruncated(t *testing.T) {
	// Declares 2 counters but carries only one.
	body := append(buildPerPeerHeader(PeerTypeGlobal, 0x00), 0x00, 0x00, 0x00, 0x02)
	body = append(body, 0x00, 0x01, 0x00, 0x04, 0, 0, 0, 100)

	_, _, err := Decode(MsgTypeStatisticsReport, body)
	var tlvErr *MalformedTLVError
	if !errors.As(err, &tlvErr) {
		t.Fatalf("expected MalformedTLVError, got %v", err)
	}
}

func TestDecode_PeerDownNoPayload(t *testing.T) {
	body := append(buildPerPeerHeader(PeerTypeGlobal, 0x00), PeerDownRemoteNoMessage)

	_, decoded, err := Decode(MsgTypePeerDown, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	down := decoded.(*PeerDown)
	if down.Reason != PeerDownRemoteNoMessage {
		t.Errorf("expected reason %d, got %d", PeerDownRemoteNoMessage, down.Reason)
	}
	if down.Notification != nil || down.FSMEvent != 0 {
		t.Errorf("expected no payload, got %+v", down)
	}
}

func TestDecode_PeerDownWithNotification(t *testing.T) {
	// Reason 1: full NOTIFICATION PDU follows (cease / administrative shutdown).
	notification := buildBGPMessage(bgp.MsgTypeNotification, []byte{6, 2})
	body := append(buildPerPeerHeader(PeerTypeGlobal, 0x00), PeerDownLocalNotification)
	body = append(body, notification...)

	_, decoded, err := Decode(MsgTypePeerDown, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	down := decoded.(*PeerDown)
	if down.Notification == nil {
		t.Fatal("expected decoded NOTIFICATION")
	}
	if down.Notification.Code != 6 || down.Notification.Subcode != 2 {
		t.Errorf("expected code=6 subcode=2, got code=%d subcode=%d", down.Notification.Code, down.Notification.Subcode)
	}
}

func TestDecode_PeerDownFSMEvent(t *testing.T) {
	body := append(buildPerPeerHeader(PeerTypeGlobal, 0x00), PeerDownLocalNoMessage, 0x00, 0x12)

	_, decoded, err := Decode(MsgTypePeerDown, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	down := decoded.(*PeerDown)
	if down.FSMEvent != 0x12 {
		t.Errorf("expected FSM event 18, got %d", down.FSMEvent)
	}
}

func TestDecode_PeerDownUnknownReason(t *testing.T) {
	body := append(buildPerPeerHeader(PeerTypeGlobal, 0x00), 9)

	_, decoded, err := Decode(MsgTypePeerDown, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	down := decoded.(*PeerDown)
	if down.Reason != 9 {
		t.Errorf("expected reason 9 kept as-is, got %d", down.Reason)
	}
	if down.Notification != nil || down.FSMEvent != 0 {
		t.Errorf("expected no payload for unknown reason, got %+v", down)
	}
}

func TestDecode_PeerUp(t *testing.T) {
	sentOpen := buildBGPMessage(bgp.MsgTypeOpen, buildOpenBody(64512, 90, []byte{10, 0, 0, 1}))
	receivedOpen := buildBGPMessage(bgp.MsgTypeOpen, buildOpenBody(64513, 180, []byte{10, 0, 0, 2}))

	body := buildPerPeerHeader(PeerTypeGlobal, 0x00)
	fixed := make([]byte, 20)
	copy(fixed[12:16], []byte{198, 51, 100, 1}) // IPv4 local address, low 4 bytes
	binary.BigEndian.PutUint16(fixed[16:18], 179)
	binary.BigEndian.PutUint16(fixed[18:20], 41522)
	body = append(body, fixed...)
	body = append(body, sentOpen...)
	body = append(body, receivedOpen...)

	peer, decoded, err := Decode(MsgTypePeerUp, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if peer == nil {
		t.Fatal("expected per-peer header")
	}

	up := decoded.(*PeerUp)
	if up.LocalAddress != "198.51.100.1" {
		t.Errorf("expected local address '198.51.100.1', got '%s'", up.LocalAddress)
	}
	if up.LocalPort != 179 || up.RemotePort != 41522 {
		t.Errorf("expected ports 179/41522, got %d/%d", up.LocalPort, up.RemotePort)
	}
	if up.SentOpen == nil || up.SentOpen.AS != 64512 || up.SentOpen.BGPID != "10.0.0.1" {
		t.Errorf("unexpected sent OPEN: %+v", up.SentOpen)
	}
	if up.ReceivedOpen == nil || up.ReceivedOpen.AS != 64513 || up.ReceivedOpen.HoldTime != 180 {
		t.Errorf("unexpected received OPEN: %+v", up.ReceivedOpen)
	}
}

func TestDecode_PeerUpTruncatedOpens(t *testing.T) {
	body := buildPerPeerHeader(PeerTypeGlobal, 0x00)
	body = append(body, make([]byte, 20)...) // fixed fields only, no OPENs

	_, _, err := Decode(MsgTypePeerUp, body)
	var truncErr *TruncatedMessageError
	if !errors.As(err, &truncErr) {
		t.Fatalf("expected TruncatedMessageError, got %v", err)
	}
}

func TestDecode_Initiation(t *testing.T) {
	body := append(buildTLV(0, []byte("abc")), buildTLV(999, []byte("x"))...)

	peer, decoded, err := Decode(MsgTypeInitiation, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if peer != nil {
		t.Error("expected no per-peer header for Initiation")
	}

	init := decoded.(*Initiation)
	if len(init.Info) != 2 {
		t.Fatalf("expected 2 info TLVs, got %d", len(init.Info))
	}
	if init.Info[0].Name != "string" || string(init.Info[0].Value) != "abc" {
		t.Errorf("expected type 0 named 'string' with value 'abc', got %+v", init.Info[0])
	}
	if init.Info[1].Type != 999 || init.Info[1].Name != "" {
		t.Errorf("expected unrecognized type 999 retained, got %+v", init.Info[1])
	}
}

func TestDecode_Termination(t *testing.T) {
	body := buildTLV(1, []byte{0x00, 0x00}) // reason: administratively closed

	peer, decoded, err := Decode(MsgTypeTermination, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if peer != nil {
		t.Error("expected no per-peer header for Termination")
	}

	term := decoded.(*Termination)
	if len(term.Info) != 1 || term.Info[0].Name != "reason" {
		t.Errorf("unexpected termination info %+v", term.Info)
	}
}

func TestDecode_TerminationMalformedTLV(t *testing.T) {
	body := buildTLV(1, []byte{0x00, 0x00})
	// Truncate mid-value.
	_, _, err := Decode(MsgTypeTermination, body[:5])
	var tlvErr *MalformedTLVError
	if !errors.As(err, &tlvErr) {
		t.Fatalf("expected MalformedTLVError, got %v", err)
	}
}

func TestDecode_UnknownMessageType(t *testing.T) {
	_, _, err := Decode(9, nil)
	var typeErr *UnknownMessageTypeError
	if !errors.As(err, &typeErr) {
		t.Fatalf("expected UnknownMessageTypeError, got %v", err)
	}
	if typeErr.Type != 9 {
		t.Errorf("expected error to carry type 9, got %d", typeErr.Type)
	}
}

func TestDecode_Idempotent(t *testing.T) {
	body := append(buildPerPeerHeader(PeerTypeGlobal, 0x00),
		buildStatsBody([3]uint64{1, 4, 100}, [3]uint64{2, 4, 200})...)

	peer1, decoded1, err1 := Decode(MsgTypeStatisticsReport, body)
	peer2, decoded2, err2 := Decode(MsgTypeStatisticsReport, body)
	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v, %v", err1, err2)
	}
	if !reflect.DeepEqual(peer1, peer2) {
		t.Errorf("per-peer headers differ between identical decodes")
	}
	if !reflect.DeepEqual(decoded1, decoded2) {
		t.Errorf("bodies differ between identical decodes")
	}
}
