package kafka

import (
	"context"
	"crypto/tls"
	"sync/atomic"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"go.uber.org/zap"
)

// Consumer reads OpenBMP-framed records from Kafka. Offsets are committed
// only after the ingest pipeline reports a successful database flush via
// the flushed channel.
type Consumer struct {
	client *kgo.Client
	logger *zap.Logger
	joined atomic.Bool
}

type ConsumerOpts struct {
	Brokers       []string
	GroupID       string
	Topics        []string
	ClientID      string
	FetchMaxBytes int32
	TLS           *tls.Config
	SASL          sasl.Mechanism
}

func NewConsumer(opts ConsumerOpts, logger *zap.Logger) (*Consumer, error) {
	c := &Consumer{logger: logger}

	kgoOpts := []kgo.Opt{
		kgo.SeedBrokers(opts.Brokers...),
		kgo.ConsumerGroup(opts.GroupID),
		kgo.ConsumeTopics(opts.Topics...),
		kgo.ClientID(opts.ClientID),
		kgo.FetchMaxBytes(opts.FetchMaxBytes),
		kgo.DisableAutoCommit(),
		kgo.OnPartitionsAssigned(func(_ context.Context, _ *kgo.Client, _ map[string][]int32) {
			c.joined.Store(true)
			logger.Info("consumer: partitions assigned")
		}),
		kgo.OnPartitionsRevoked(func(_ context.Context, _ *kgo.Client, _ map[string][]int32) {
			c.joined.Store(false)
			logger.Info("consumer: partitions revoked")
		}),
	}
	if opts.TLS != nil {
		kgoOpts = append(kgoOpts, kgo.DialTLSConfig(opts.TLS))
	}
	if opts.SASL != nil {
		kgoOpts = append(kgoOpts, kgo.SASL(opts.SASL))
	}

	client, err := kgo.NewClient(kgoOpts...)
	if err != nil {
		return nil, err
	}

	c.client = client
	return c, nil
}

// Run fetches records and sends them to the records channel.
// It reads from flushed to commit offsets after successful DB writes.
func (c *Consumer) Run(ctx context.Context, records chan<- []*kgo.Record, flushed <-chan []*kgo.Record) {
	// Offset commits run on their own goroutine so a slow commit cannot
	// stall fetching.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case recs, ok := <-flushed:
				if !ok {
					return
				}
				for _, r := range recs {
					c.client.MarkCommitRecords(r)
				}
				if err := c.client.CommitMarkedOffsets(ctx); err != nil {
					c.logger.Error("consumer: commit offsets failed", zap.Error(err))
				}
			}
		}
	}()

	for {
		fetches := c.client.PollFetches(ctx)
		if ctx.Err() != nil {
			return
		}

		if errs := fetches.Errors(); len(errs) > 0 {
			for _, e := range errs {
				c.logger.Error("consumer: fetch error",
					zap.String("topic", e.Topic),
					zap.Int32("partition", e.Partition),
					zap.Error(e.Err),
				)
			}
		}

		var batch []*kgo.Record
		fetches.EachRecord(func(r *kgo.Record) {
			batch = append(batch, r)
		})

		if len(batch) > 0 {
			select {
			case records <- batch:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (c *Consumer) IsJoined() bool {
	return c.joined.Load()
}

func (c *Consumer) Close() {
	c.client.Close()
}
