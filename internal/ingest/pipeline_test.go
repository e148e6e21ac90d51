package ingest

import (
	"encoding/binary"
	"testing"

	"github.com/route-beacon/bmp-station/internal/config"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

func testPipeline(routerMeta map[string]config.RouterMeta) *Pipeline {
	return NewPipeline(nil, routerMeta, 100, 200, 16*1024*1024, zap.NewNop())
}

// bmpMessage wraps a body in the 6-byte BMP common header.
func bmpMessage(msgType uint8, body []byte) []byte {
	msg := make([]byte, 6+len(body))
	msg[0] = 3
	binary.BigEndian.PutUint32(msg[1:5], uint32(len(msg)))
	msg[5] = msgType
	copy(msg[6:], body)
	return msg
}

// perPeerHeader builds a 42-byte global-instance IPv4 per-peer header.
func perPeerHeader(addr [4]byte, as uint32) []byte {
	h := make([]byte, 42)
	copy(h[22:26], addr[:])
	binary.BigEndian.PutUint32(h[26:30], as)
	copy(h[30:34], []byte{10, 255, 0, 1})
	return h
}

// bgpMessage wraps a body in the 19-byte BGP header.
func bgpMessage(bgpType uint8, body []byte) []byte {
	msg := make([]byte, 19+len(body))
	for i := 0; i < 16; i++ {
		msg[i] = 0xFF
	}
	binary.BigEndian.PutUint16(msg[16:18], uint16(len(msg)))
	msg[18] = bgpType
	copy(msg[19:], body)
	return msg
}

// announceUpdateBody is an UPDATE announcing 10.0.0.0/24 with ORIGIN and
// NEXT_HOP attributes.
func announceUpdateBody() []byte {
	attrs := []byte{
		0x40, 1, 1, 0, // ORIGIN IGP
		0x40, 3, 4, 192, 168, 1, 1, // NEXT_HOP
	}
	body := []byte{0x00, 0x00} // no withdrawn routes
	body = append(body, byte(len(attrs)>>8), byte(len(attrs)))
	body = append(body, attrs...)
	body = append(body, 24, 10, 0, 0) // 10.0.0.0/24
	return body
}

func record(bmpMsgs ...[]byte) *kgo.Record {
	var payload []byte
	for _, m := range bmpMsgs {
		payload = append(payload, m...)
	}
	return &kgo.Record{
		Topic: "openbmp.raw",
		Value: buildOBMPv17Frame(ipv4First(10, 0, 0, 1), payload),
	}
}

func TestProcessRecord_RouteMonitoringAnnounce(t *testing.T) {
	p := testPipeline(nil)

	body := append(perPeerHeader([4]byte{192, 0, 2, 1}, 64512), bgpMessage(2, announceUpdateBody())...)
	batch := p.processRecord(record(bmpMessage(0, body)))

	if len(batch.Routes) != 1 {
		t.Fatalf("expected 1 route row, got %d", len(batch.Routes))
	}
	row := batch.Routes[0]
	if row.Prefix != "10.0.0.0/24" || row.Action != "announce" || row.AFI != 4 {
		t.Errorf("unexpected row: prefix=%s action=%s afi=%d", row.Prefix, row.Action, row.AFI)
	}
	if row.RouterIP != "10.0.0.1" {
		t.Errorf("expected router IP from OpenBMP header, got %q", row.RouterIP)
	}
	if row.Peer.Address != "192.0.2.1" || row.Peer.AS != 64512 {
		t.Errorf("unexpected peer: %s AS%d", row.Peer.Address, row.Peer.AS)
	}
	if row.Attrs.Nexthop != "192.168.1.1" {
		t.Errorf("expected nexthop 192.168.1.1, got %q", row.Attrs.Nexthop)
	}
	if len(row.EventID) != 32 {
		t.Errorf("expected 32-byte event id, got %d", len(row.EventID))
	}
}

func TestProcessRecord_MultipleMessagesPerRecord(t *testing.T) {
	p := testPipeline(nil)

	routeBody := append(perPeerHeader([4]byte{192, 0, 2, 1}, 64512), bgpMessage(2, announceUpdateBody())...)
	statsBody := append(perPeerHeader([4]byte{192, 0, 2, 1}, 64512),
		0x00, 0x00, 0x00, 0x01, // one counter
		0x00, 0x01, 0x00, 0x04, 0x00, 0x00, 0x00, 0x64, // type 1 = 100
	)

	batch := p.processRecord(record(bmpMessage(0, routeBody), bmpMessage(1, statsBody)))

	if len(batch.Routes) != 1 {
		t.Errorf("expected 1 route row, got %d", len(batch.Routes))
	}
	if len(batch.Stats) != 1 {
		t.Fatalf("expected 1 stat row, got %d", len(batch.Stats))
	}
	stat := batch.Stats[0]
	if stat.StatType != 1 || stat.Value != 100 || stat.StatName != "duplicate-prefix-advertisements" {
		t.Errorf("unexpected stat row: %+v", stat)
	}
	if stat.Unrecognized {
		t.Error("stat type 1 must not be flagged unrecognized")
	}
}

func TestProcessRecord_UnrecognizedStatFlagged(t *testing.T) {
	p := testPipeline(nil)

	statsBody := append(perPeerHeader([4]byte{192, 0, 2, 1}, 64512),
		0x00, 0x00, 0x00, 0x01,
		0x03, 0xE7, 0x00, 0x02, 0x00, 0x2A, // type 999 = 42
	)
	batch := p.processRecord(record(bmpMessage(1, statsBody)))

	if len(batch.Stats) != 1 {
		t.Fatalf("expected 1 stat row, got %d", len(batch.Stats))
	}
	if !batch.Stats[0].Unrecognized || batch.Stats[0].StatName != "" {
		t.Errorf("expected unrecognized unnamed stat, got %+v", batch.Stats[0])
	}
}

func TestProcessRecord_PeerUpDown(t *testing.T) {
	p := testPipeline(nil)

	open := bgpMessage(1, []byte{
		4,          // version
		0xFC, 0x00, // AS 64512
		0x00, 0xB4, // hold time 180
		10, 0, 0, 9, // BGP ID
		0, // no optional parameters
	})
	upBody := perPeerHeader([4]byte{192, 0, 2, 1}, 64512)
	local := make([]byte, 16)
	local[12], local[13], local[14], local[15] = 10, 0, 0, 254
	upBody = append(upBody, local...)
	upBody = append(upBody, 0x00, 0xB3, 0xA2, 0x32) // ports 179, 41522
	upBody = append(upBody, open...)
	upBody = append(upBody, open...)

	downBody := append(perPeerHeader([4]byte{192, 0, 2, 1}, 64512), 2, 0x00, 0x12)

	batch := p.processRecord(record(bmpMessage(3, upBody), bmpMessage(2, downBody)))

	if len(batch.Peers) != 2 {
		t.Fatalf("expected 2 peer rows, got %d", len(batch.Peers))
	}
	up := batch.Peers[0]
	if up.Event != "up" || up.Up == nil {
		t.Fatalf("expected first row to be a peer up, got %+v", up)
	}
	if up.Up.LocalAddress != "10.0.0.254" || up.Up.LocalPort != 179 {
		t.Errorf("unexpected peer up: local=%s:%d", up.Up.LocalAddress, up.Up.LocalPort)
	}
	if up.Up.SentOpen == nil || up.Up.SentOpen.AS != 64512 {
		t.Errorf("expected sent OPEN with AS 64512, got %+v", up.Up.SentOpen)
	}

	down := batch.Peers[1]
	if down.Event != "down" || down.Down == nil {
		t.Fatalf("expected second row to be a peer down, got %+v", down)
	}
	if down.Down.Reason != 2 || down.Down.FSMEvent != 0x12 {
		t.Errorf("unexpected peer down: reason=%d fsm=%d", down.Down.Reason, down.Down.FSMEvent)
	}
}

func TestProcessRecord_InitiationUpsertsRouter(t *testing.T) {
	meta := map[string]config.RouterMeta{
		"10.0.0.1": {Name: "edge-1", Location: "fra"},
	}
	p := testPipeline(meta)

	// sys-name (type 2) and sys-descr (type 1) TLVs.
	body := []byte{
		0x00, 0x02, 0x00, 0x03, 'r', '1', 'a',
		0x00, 0x01, 0x00, 0x06, 'J', 'u', 'n', 'o', 's', 'X',
	}
	batch := p.processRecord(record(bmpMessage(4, body)))

	if len(batch.Routers) != 1 {
		t.Fatalf("expected 1 router row, got %d", len(batch.Routers))
	}
	row := batch.Routers[0]
	if row.SysName != "r1a" || row.SysDescr != "JunosX" {
		t.Errorf("unexpected sys fields: name=%q descr=%q", row.SysName, row.SysDescr)
	}
	if row.Name != "edge-1" || row.Location != "fra" {
		t.Errorf("expected operator metadata merged, got name=%q location=%q", row.Name, row.Location)
	}
	if row.TermReason != "" {
		t.Errorf("expected empty term reason for initiation, got %q", row.TermReason)
	}
}

func TestProcessRecord_TerminationReason(t *testing.T) {
	p := testPipeline(nil)

	body := []byte{0x00, 0x01, 0x00, 0x02, 0x00, 0x00} // reason TLV, code 0
	batch := p.processRecord(record(bmpMessage(5, body)))

	if len(batch.Routers) != 1 {
		t.Fatalf("expected 1 router row, got %d", len(batch.Routers))
	}
	if batch.Routers[0].TermReason != "administratively-closed" {
		t.Errorf("expected reason 'administratively-closed', got %q", batch.Routers[0].TermReason)
	}
}

func TestProcessRecord_DecodeFailureSkipsMessage(t *testing.T) {
	p := testPipeline(nil)

	// Per-peer header with an unknown peer type; the valid initiation after
	// it must still produce a row.
	bad := perPeerHeader([4]byte{192, 0, 2, 1}, 64512)
	bad[0] = 9
	good := []byte{0x00, 0x02, 0x00, 0x02, 'r', '1'}

	batch := p.processRecord(record(bmpMessage(0, bad), bmpMessage(4, good)))

	if len(batch.Routes) != 0 {
		t.Errorf("expected no route rows from the bad message, got %d", len(batch.Routes))
	}
	if len(batch.Routers) != 1 {
		t.Errorf("expected the valid initiation to survive, got %d router rows", len(batch.Routers))
	}
}

func TestProcessRecord_GarbagePayload(t *testing.T) {
	p := testPipeline(nil)

	rec := &kgo.Record{Topic: "openbmp.raw", Value: []byte{0x01, 0x02, 0x03}}
	batch := p.processRecord(rec)
	if !batch.empty() {
		t.Errorf("expected empty batch for garbage payload, got %d rows", batch.size())
	}
}

func TestRouteRowsFromUpdate_WithdrawAndMP(t *testing.T) {
	body := append(perPeerHeader([4]byte{192, 0, 2, 1}, 64512), bgpMessage(2, func() []byte {
		// Withdraw 172.16.0.0/16, MP_UNREACH 2001:db8::/32.
		withdrawn := []byte{16, 172, 16}
		attrs := []byte{
			0x80, 15, 8, 0x00, 0x02, 0x01, 32, 0x20, 0x01, 0x0d, 0xb8,
		}
		b := []byte{0x00, byte(len(withdrawn))}
		b = append(b, withdrawn...)
		b = append(b, 0x00, byte(len(attrs)))
		b = append(b, attrs...)
		return b
	}())...)

	p := testPipeline(nil)
	batch := p.processRecord(record(bmpMessage(0, body)))

	if len(batch.Routes) != 2 {
		t.Fatalf("expected 2 route rows, got %d", len(batch.Routes))
	}
	if batch.Routes[0].Prefix != "172.16.0.0/16" || batch.Routes[0].Action != "withdraw" || batch.Routes[0].AFI != 4 {
		t.Errorf("unexpected first row: %+v", batch.Routes[0])
	}
	if batch.Routes[1].Prefix != "2001:db8::/32" || batch.Routes[1].Action != "withdraw" || batch.Routes[1].AFI != 6 {
		t.Errorf("unexpected second row: %+v", batch.Routes[1])
	}
}
