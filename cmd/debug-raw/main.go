// debug-raw consumes a few seconds of an OpenBMP topic and pretty-prints
// every BMP message it can decode. Useful when a collector feed misbehaves.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/route-beacon/bmp-station/internal/bgp"
	"github.com/route-beacon/bmp-station/internal/bmp"
	"github.com/route-beacon/bmp-station/internal/ingest"
	"github.com/twmb/franz-go/pkg/kgo"
)

func main() {
	broker := "localhost:29092"
	topic := "openbmp.raw"
	if len(os.Args) > 1 {
		broker = os.Args[1]
	}
	if len(os.Args) > 2 {
		topic = os.Args[2]
	}

	cl, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.ConsumerGroup(fmt.Sprintf("debug-raw-%d", time.Now().UnixNano())),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kafka client: %v\n", err)
		os.Exit(1)
	}
	defer cl.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msgNum := 0
	for {
		fetches := cl.PollRecords(ctx, 100)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			break
		}

		fetches.EachRecord(func(rec *kgo.Record) {
			msgNum++
			fmt.Printf("=== Kafka msg %d (partition=%d offset=%d, %d bytes) ===\n",
				msgNum, rec.Partition, rec.Offset, len(rec.Value))

			analyzeRecord(rec.Value)
			fmt.Println()
		})

		if msgNum > 0 && len(fetches.Records()) == 0 {
			break
		}
	}

	fmt.Printf("Total Kafka messages: %d\n", msgNum)
}

func analyzeRecord(data []byte) {
	raw, err := ingest.UnwrapOpenBMP(data, 16*1024*1024)
	if err != nil {
		fmt.Printf("  UnwrapOpenBMP error: %v\n", err)
		return
	}
	fmt.Printf("  BMP payload: %d bytes, router IP %q\n", len(raw.BMPBytes), raw.RouterIP)

	frames, err := bmp.SplitStream(raw.BMPBytes)
	if err != nil {
		fmt.Printf("  SplitStream error: %v\n", err)
		return
	}
	fmt.Printf("  BMP messages in payload: %d\n", len(frames))

	for i, frame := range frames {
		fmt.Printf("\n  --- BMP msg %d ---\n", i)
		fmt.Printf("    MsgType: %d\n", frame.MsgType)

		peer, body, err := bmp.Decode(frame.MsgType, frame.Body)
		if err != nil {
			fmt.Printf("    Decode error: %v\n", err)
			if len(frame.Body) <= 64 {
				fmt.Printf("    Body hex: %s\n", hex.EncodeToString(frame.Body))
			}
			continue
		}

		if peer != nil {
			fmt.Printf("    Peer: %s AS%d type=%d v6=%v post-policy=%v\n",
				peer.Address, peer.AS, peer.Type, peer.IPv6, peer.PostPolicy)
		}

		printBody(body)
	}
}

func printBody(body bmp.Body) {
	switch b := body.(type) {
	case *bmp.RouteMonitoring:
		fmt.Printf("    RouteMonitoring (embedded BGP type %d)\n", b.BGPType)
		if b.Update != nil {
			printUpdate(b.Update)
		}
		if b.RouteRefresh != nil {
			fmt.Printf("      ROUTE-REFRESH AFI=%d SAFI=%d subtype=%d\n",
				b.RouteRefresh.AFI, b.RouteRefresh.SAFI, b.RouteRefresh.Subtype)
		}

	case *bmp.StatsReport:
		fmt.Printf("    StatsReport (%d counters, %d unrecognized)\n", len(b.Counters), len(b.Unrecognized))
		for statType, value := range b.Counters {
			name := bmp.StatTypeNames[statType]
			if name == "" {
				name = "?"
			}
			fmt.Printf("      [%d] %s = %d\n", statType, name, value)
		}

	case *bmp.PeerUp:
		fmt.Printf("    PeerUp local=%s:%d remote port=%d\n", b.LocalAddress, b.LocalPort, b.RemotePort)
		if b.SentOpen != nil {
			fmt.Printf("      sent OPEN: AS%d hold=%d id=%s\n", b.SentOpen.AS, b.SentOpen.HoldTime, b.SentOpen.BGPID)
		}
		if b.ReceivedOpen != nil {
			fmt.Printf("      recv OPEN: AS%d hold=%d id=%s\n", b.ReceivedOpen.AS, b.ReceivedOpen.HoldTime, b.ReceivedOpen.BGPID)
		}

	case *bmp.PeerDown:
		fmt.Printf("    PeerDown reason=%d\n", b.Reason)
		if b.Notification != nil {
			fmt.Printf("      NOTIFICATION %s (%d/%d)\n", b.Notification.CodeName(), b.Notification.Code, b.Notification.Subcode)
		}
		if b.FSMEvent != 0 {
			fmt.Printf("      FSM event %d\n", b.FSMEvent)
		}

	case *bmp.Initiation:
		fmt.Printf("    Initiation (%d info TLVs)\n", len(b.Info))
		printInfo(b.Info)

	case *bmp.Termination:
		fmt.Printf("    Termination (%d info TLVs)\n", len(b.Info))
		printInfo(b.Info)
	}
}

func printUpdate(u *bgp.Update) {
	if u.IsEndOfRIB() {
		fmt.Printf("      End-of-RIB\n")
		return
	}
	for _, p := range u.NLRI {
		fmt.Printf("      announce %s\n", p)
	}
	for _, p := range u.Withdrawn {
		fmt.Printf("      withdraw %s\n", p)
	}
	if a := u.Attributes; a != nil {
		if a.ASPath != "" {
			fmt.Printf("      as_path %s nexthop %s origin %s\n", a.ASPath, a.Nexthop, a.Origin)
		}
		for _, p := range a.MPReachNLRI {
			fmt.Printf("      announce %s (mp, nexthop %s)\n", p, a.MPReachNexthop)
		}
		for _, p := range a.MPUnreachNLRI {
			fmt.Printf("      withdraw %s (mp)\n", p)
		}
	}
}

func printInfo(info []bmp.InfoTLV) {
	for _, tlv := range info {
		name := tlv.Name
		if name == "" {
			name = fmt.Sprintf("type-%d", tlv.Type)
		}
		fmt.Printf("      %s: %q\n", name, tlv.Value)
	}
}
