package ingest

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	"github.com/route-beacon/bmp-station/internal/bmp"
	"github.com/route-beacon/bmp-station/internal/config"
	"github.com/route-beacon/bmp-station/internal/metrics"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

var msgTypeNames = map[uint8]string{
	bmp.MsgTypeRouteMonitoring:  "route_monitoring",
	bmp.MsgTypeStatisticsReport: "stats_report",
	bmp.MsgTypePeerDown:         "peer_down",
	bmp.MsgTypePeerUp:           "peer_up",
	bmp.MsgTypeInitiation:       "initiation",
	bmp.MsgTypeTermination:      "termination",
}

type Pipeline struct {
	writer          *Writer
	routerMeta      map[string]config.RouterMeta
	batchSize       int
	flushInterval   time.Duration
	maxPayloadBytes int
	logger          *zap.Logger
}

func NewPipeline(writer *Writer, routerMeta map[string]config.RouterMeta, batchSize, flushIntervalMs, maxPayloadBytes int, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		writer:          writer,
		routerMeta:      routerMeta,
		batchSize:       batchSize,
		flushInterval:   time.Duration(flushIntervalMs) * time.Millisecond,
		maxPayloadBytes: maxPayloadBytes,
		logger:          logger,
	}
}

// Run processes records from the channel until the context is cancelled.
// Successfully flushed record slices are sent to flushed for offset commit.
func (p *Pipeline) Run(ctx context.Context, records <-chan []*kgo.Record, flushed chan<- []*kgo.Record) {
	batch := &Batch{}
	var batchRecords []*kgo.Record
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(batchRecords) > 0 {
				p.flush(ctx, batch, batchRecords, flushed)
			}
			return

		case recs, ok := <-records:
			if !ok {
				if len(batchRecords) > 0 {
					p.flush(ctx, batch, batchRecords, flushed)
				}
				return
			}

			for _, rec := range recs {
				batch.append(p.processRecord(rec))
				batchRecords = append(batchRecords, rec)
			}

			if len(batchRecords) >= p.batchSize {
				if p.flush(ctx, batch, batchRecords, flushed) {
					batch = &Batch{}
					batchRecords = nil
				}
			}

			// Cap memory: repeated flush failures must not grow the batch
			// without bound during a prolonged DB outage.
			if len(batchRecords) >= p.batchSize*10 {
				p.logger.Error("dropping oversized batch after repeated flush failures",
					zap.Int("dropped_records", len(batchRecords)),
					zap.Int("dropped_rows", batch.size()),
				)
				batch = &Batch{}
				batchRecords = nil
			}

		case <-ticker.C:
			if len(batchRecords) > 0 {
				if p.flush(ctx, batch, batchRecords, flushed) {
					batch = &Batch{}
					batchRecords = nil
				}
			}
		}
	}
}

// processRecord unwraps one Kafka record and decodes every BMP message in
// it. Decode failures never fail the record; they are counted and logged.
func (p *Pipeline) processRecord(rec *kgo.Record) *Batch {
	out := &Batch{}

	raw, err := UnwrapOpenBMP(rec.Value, p.maxPayloadBytes)
	if err != nil {
		metrics.DecodeErrorsTotal.WithLabelValues("openbmp", "unwrap").Inc()
		p.logger.Warn("failed to unwrap OpenBMP frame",
			zap.String("topic", rec.Topic),
			zap.Error(err),
		)
		return out
	}

	frames, err := bmp.SplitStream(raw.BMPBytes)
	if err != nil {
		metrics.DecodeErrorsTotal.WithLabelValues("frame", "split").Inc()
		p.logger.Warn("no BMP messages in payload",
			zap.String("topic", rec.Topic),
			zap.Error(err),
		)
		return out
	}

	for _, frame := range frames {
		p.processFrame(rec.Topic, raw.RouterIP, frame, out)
	}

	if raw.RouterIP != "" {
		metrics.LastMsgTimestamp.WithLabelValues(raw.RouterIP).SetToCurrentTime()
	}

	return out
}

func (p *Pipeline) processFrame(topic, routerIP string, frame bmp.Frame, out *Batch) {
	peer, body, err := bmp.Decode(frame.MsgType, frame.Body)
	if err != nil {
		stage, reason := classifyDecodeError(err)
		metrics.DecodeErrorsTotal.WithLabelValues(stage, reason).Inc()
		p.logger.Warn("failed to decode BMP message",
			zap.String("topic", topic),
			zap.String("router_ip", routerIP),
			zap.Uint8("msg_type", frame.MsgType),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return
	}

	metrics.MessagesTotal.WithLabelValues(topic, msgTypeNames[frame.MsgType]).Inc()

	// The id covers the full message, common header included.
	eventID := EventID(frame.Raw)

	switch b := body.(type) {
	case *bmp.RouteMonitoring:
		if b.Update != nil {
			out.Routes = append(out.Routes,
				routeRowsFromUpdate(eventID, routerIP, peer, b.Update, frame.Raw, topic)...)
		}
		// ROUTE-REFRESH carries no prefixes; counted above, nothing stored.

	case *bmp.StatsReport:
		unrec := make(map[uint16]bool, len(b.Unrecognized))
		for _, t := range b.Unrecognized {
			unrec[t] = true
			metrics.UnrecognizedTotal.WithLabelValues("stat_type").Inc()
		}
		for statType, value := range b.Counters {
			out.Stats = append(out.Stats, &StatRow{
				RouterIP:     routerIP,
				Peer:         peer,
				StatType:     statType,
				StatName:     bmp.StatTypeNames[statType],
				Value:        value,
				Unrecognized: unrec[statType],
			})
		}

	case *bmp.PeerUp:
		out.Peers = append(out.Peers, &PeerEventRow{
			RouterIP: routerIP,
			Peer:     peer,
			Event:    "up",
			Up:       b,
		})
		if routerIP != "" {
			metrics.SessionsUp.WithLabelValues(routerIP).Inc()
		}

	case *bmp.PeerDown:
		out.Peers = append(out.Peers, &PeerEventRow{
			RouterIP: routerIP,
			Peer:     peer,
			Event:    "down",
			Down:     b,
		})
		if routerIP != "" {
			metrics.SessionsUp.WithLabelValues(routerIP).Dec()
		}

	case *bmp.Initiation:
		p.countUnnamedInfo(b.Info)
		out.Routers = append(out.Routers, p.withMeta(routerRowFromInfo(routerIP, b.Info, "")))

	case *bmp.Termination:
		p.countUnnamedInfo(b.Info)
		out.Routers = append(out.Routers, p.withMeta(routerRowFromInfo(routerIP, b.Info, termReason(b.Info))))
	}
}

func (p *Pipeline) countUnnamedInfo(info []bmp.InfoTLV) {
	for _, tlv := range info {
		if tlv.Name == "" {
			metrics.UnrecognizedTotal.WithLabelValues("info_tlv").Inc()
		}
	}
}

func (p *Pipeline) withMeta(row *RouterRow) *RouterRow {
	if meta, ok := p.routerMeta[row.RouterIP]; ok {
		row.Name = meta.Name
		row.Location = meta.Location
	}
	return row
}

// termReason extracts the human-readable reason from a Termination reason
// TLV (2-byte code), if present.
func termReason(info []bmp.InfoTLV) string {
	for _, tlv := range info {
		if tlv.Name != "reason" || len(tlv.Value) < 2 {
			continue
		}
		code := binary.BigEndian.Uint16(tlv.Value[0:2])
		if name, ok := bmp.TermReasonNames[code]; ok {
			return name
		}
	}
	return ""
}

// classifyDecodeError maps the decode error taxonomy onto metric labels.
func classifyDecodeError(err error) (stage, reason string) {
	var (
		unknownType *bmp.UnknownMessageTypeError
		peerType    *bmp.UnknownPeerTypeError
		peerFlag    *bmp.UnknownPeerFlagError
		tlv         *bmp.MalformedTLVError
		trunc       *bmp.TruncatedMessageError
		unsupported *bmp.UnsupportedEmbeddedTypeError
		embedded    *bmp.EmbeddedDecodeError
	)
	switch {
	case errors.As(err, &unknownType):
		return "bmp", "unknown_message_type"
	case errors.As(err, &peerType):
		return "bmp", "unknown_peer_type"
	case errors.As(err, &peerFlag):
		return "bmp", "unknown_peer_flags"
	case errors.As(err, &tlv):
		return "bmp", "malformed_tlv"
	case errors.As(err, &trunc):
		return "bmp", "truncated"
	case errors.As(err, &unsupported):
		return "bgp", "unsupported_embedded_type"
	case errors.As(err, &embedded):
		return "bgp", "embedded_decode"
	default:
		return "bmp", "other"
	}
}

func (p *Pipeline) flush(ctx context.Context, batch *Batch, records []*kgo.Record, flushed chan<- []*kgo.Record) bool {
	inserted, err := p.writer.FlushBatch(ctx, batch)
	if err != nil {
		p.logger.Error("batch flush failed", zap.Error(err))
		return false
	}

	p.logger.Debug("batch flushed",
		zap.Int("rows", batch.size()),
		zap.Int64("inserted", inserted),
	)

	// Signal successful flush for offset commit.
	select {
	case flushed <- records:
	case <-ctx.Done():
	}

	return true
}
