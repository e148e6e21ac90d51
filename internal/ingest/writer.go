package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klauspost/compress/zstd"
	"github.com/route-beacon/bmp-station/internal/bgp"
	"github.com/route-beacon/bmp-station/internal/metrics"
	"go.uber.org/zap"
)

var zstdEncoder, _ = zstd.NewWriter(nil)

type Writer struct {
	pool          *pgxpool.Pool
	logger        *zap.Logger
	storeRawBytes bool
	compressRaw   bool
}

func NewWriter(pool *pgxpool.Pool, logger *zap.Logger, storeRawBytes, compressRaw bool) *Writer {
	return &Writer{
		pool:          pool,
		logger:        logger,
		storeRawBytes: storeRawBytes,
		compressRaw:   compressRaw,
	}
}

// FlushBatch writes a batch in one transaction: routers upserted, route
// events deduped on (event_id, ingest_time, prefix, action), peer events
// and stat samples appended. Returns the number of rows actually written.
func (w *Writer) FlushBatch(ctx context.Context, batch *Batch) (int64, error) {
	if batch.empty() {
		return 0, nil
	}

	start := time.Now()

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var total int64

	n, err := w.writeRouters(ctx, tx, batch.Routers)
	if err != nil {
		return 0, err
	}
	total += n

	n, err = w.writeRoutes(ctx, tx, batch.Routes)
	if err != nil {
		return 0, err
	}
	total += n

	n, err = w.writePeerEvents(ctx, tx, batch.Peers)
	if err != nil {
		return 0, err
	}
	total += n

	n, err = w.writeStats(ctx, tx, batch.Stats)
	if err != nil {
		return 0, err
	}
	total += n

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	metrics.DBWriteDuration.WithLabelValues("flush").Observe(time.Since(start).Seconds())
	metrics.BatchSize.Observe(float64(batch.size()))

	return total, nil
}

func (w *Writer) writeRouters(ctx context.Context, tx pgx.Tx, rows []*RouterRow) (int64, error) {
	var total int64
	for _, row := range rows {
		if row.RouterIP == "" {
			// Legacy OpenBMP frames carry no router identity.
			continue
		}

		var infoJSON []byte
		if len(row.Info) > 0 {
			type infoEntry struct {
				Type  uint16 `json:"type"`
				Name  string `json:"name,omitempty"`
				Value string `json:"value"`
			}
			entries := make([]infoEntry, 0, len(row.Info))
			for _, tlv := range row.Info {
				entries = append(entries, infoEntry{Type: tlv.Type, Name: tlv.Name, Value: string(tlv.Value)})
			}
			infoJSON, _ = json.Marshal(entries)
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO routers (router_ip, name, location, sys_name, sys_descr, info, term_reason, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now())
			ON CONFLICT (router_ip) DO UPDATE SET
				name = COALESCE(NULLIF(EXCLUDED.name, ''), routers.name),
				location = COALESCE(NULLIF(EXCLUDED.location, ''), routers.location),
				sys_name = COALESCE(NULLIF(EXCLUDED.sys_name, ''), routers.sys_name),
				sys_descr = COALESCE(NULLIF(EXCLUDED.sys_descr, ''), routers.sys_descr),
				info = COALESCE(EXCLUDED.info, routers.info),
				term_reason = NULLIF(EXCLUDED.term_reason, ''),
				updated_at = now()`,
			row.RouterIP, row.Name, row.Location, row.SysName, row.SysDescr,
			infoJSON, row.TermReason,
		)
		if err != nil {
			return 0, fmt.Errorf("upsert router: %w", err)
		}
		total += tag.RowsAffected()
	}
	if total > 0 {
		metrics.DBRowsAffectedTotal.WithLabelValues("routers").Add(float64(total))
	}
	return total, nil
}

func (w *Writer) writeRoutes(ctx context.Context, tx pgx.Tx, rows []*RouteEventRow) (int64, error) {
	var total int64
	for _, row := range rows {
		a := row.Attrs
		if a == nil {
			a = &bgp.PathAttributes{}
		}

		var attrsJSON []byte
		if len(a.Attrs) > 0 {
			attrsJSON, _ = json.Marshal(a.Attrs)
		}

		var rawBytes []byte
		if w.storeRawBytes && row.BMPRaw != nil {
			if w.compressRaw {
				rawBytes = zstdEncoder.EncodeAll(row.BMPRaw, nil)
			} else {
				rawBytes = row.BMPRaw
			}
		}

		var distinguisher any
		if row.Peer.Distinguisher != nil {
			distinguisher = int64(*row.Peer.Distinguisher)
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO route_events (event_id, ingest_time, router_ip, peer_ip, peer_as,
				peer_bgp_id, peer_type, post_policy, distinguisher, prefix, afi, action,
				nexthop, as_path, origin, origin_as, localpref, med,
				communities_std, communities_ext, communities_large, attrs, bmp_raw)
			VALUES ($1, date_trunc('day', now()), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
				$12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
			ON CONFLICT (event_id, ingest_time, prefix, action) DO NOTHING`,
			row.EventID, row.RouterIP, row.Peer.Address, int64(row.Peer.AS),
			nilIfEmpty(row.Peer.BGPID), int16(row.Peer.Type), row.Peer.PostPolicy,
			distinguisher, row.Prefix, int16(row.AFI), row.Action,
			nilIfEmpty(nexthopFor(a, row.AFI)), nilIfEmpty(a.ASPath), nilIfEmpty(a.Origin),
			originAS(a), a.LocalPref, a.MED,
			a.CommStd, a.CommExt, a.CommLarge, attrsJSON, rawBytes,
		)
		if err != nil {
			return 0, fmt.Errorf("insert route_event: %w", err)
		}

		affected := tag.RowsAffected()
		total += affected
		if affected == 0 {
			metrics.DedupConflictsTotal.WithLabelValues(row.Topic).Inc()
		}
	}
	if total > 0 {
		metrics.DBRowsAffectedTotal.WithLabelValues("route_events").Add(float64(total))
	}
	return total, nil
}

func (w *Writer) writePeerEvents(ctx context.Context, tx pgx.Tx, rows []*PeerEventRow) (int64, error) {
	var total int64
	for _, row := range rows {
		var (
			localIP               any
			localPort, remotePort any
			sentOpen, recvOpen    []byte
			reason                any
			fsmEvent              any
			notifCode, notifSub   any
		)

		if row.Up != nil {
			localIP = nilIfEmpty(row.Up.LocalAddress)
			localPort = int32(row.Up.LocalPort)
			remotePort = int32(row.Up.RemotePort)
			if row.Up.SentOpen != nil {
				sentOpen, _ = json.Marshal(row.Up.SentOpen)
			}
			if row.Up.ReceivedOpen != nil {
				recvOpen, _ = json.Marshal(row.Up.ReceivedOpen)
			}
		}
		if row.Down != nil {
			reason = int16(row.Down.Reason)
			if row.Down.FSMEvent != 0 {
				fsmEvent = int32(row.Down.FSMEvent)
			}
			if row.Down.Notification != nil {
				notifCode = int16(row.Down.Notification.Code)
				notifSub = int16(row.Down.Notification.Subcode)
			}
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO peer_events (router_ip, peer_ip, peer_as, peer_bgp_id, event,
				local_ip, local_port, remote_port, sent_open, received_open,
				reason, fsm_event, notif_code, notif_subcode)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			row.RouterIP, row.Peer.Address, int64(row.Peer.AS), nilIfEmpty(row.Peer.BGPID),
			row.Event, localIP, localPort, remotePort, sentOpen, recvOpen,
			reason, fsmEvent, notifCode, notifSub,
		)
		if err != nil {
			return 0, fmt.Errorf("insert peer_event: %w", err)
		}
		total += tag.RowsAffected()
	}
	if total > 0 {
		metrics.DBRowsAffectedTotal.WithLabelValues("peer_events").Add(float64(total))
	}
	return total, nil
}

func (w *Writer) writeStats(ctx context.Context, tx pgx.Tx, rows []*StatRow) (int64, error) {
	var total int64
	for _, row := range rows {
		// Counters are uint64; sent as text so NUMERIC keeps the full range.
		tag, err := tx.Exec(ctx, `
			INSERT INTO peer_stats (router_ip, peer_ip, peer_as, stat_type, stat_name, value, unrecognized)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			row.RouterIP, row.Peer.Address, int64(row.Peer.AS),
			int32(row.StatType), nilIfEmpty(row.StatName), strconv.FormatUint(row.Value, 10), row.Unrecognized,
		)
		if err != nil {
			return 0, fmt.Errorf("insert peer_stat: %w", err)
		}
		total += tag.RowsAffected()
	}
	if total > 0 {
		metrics.DBRowsAffectedTotal.WithLabelValues("peer_stats").Add(float64(total))
	}
	return total, nil
}

// nexthopFor prefers the MP_REACH next hop for IPv6 rows.
func nexthopFor(a *bgp.PathAttributes, afi int) string {
	if afi == 6 && a.MPReachNexthop != "" {
		return a.MPReachNexthop
	}
	return a.Nexthop
}

func originAS(a *bgp.PathAttributes) any {
	if asn := bgp.OriginASN(a.ASPath); asn != nil {
		return int64(*asn)
	}
	return nil
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
