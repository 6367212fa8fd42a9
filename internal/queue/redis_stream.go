package queue

import (
	"context"
	"errors"
	"fmt"
	"github.com/nikolayk812/orderfan/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"log/slog"
	"strings"
	"time"
)

const (
	bodyField       = "body"
	originalIDField = "original_id"
	deliveriesField = "deliveries"
)

// RedisStream is a work queue on top of a Redis stream and one consumer group.
// The stream entry id is the receipt handle. Entries delivered but not deleted
// within VisibilityTimeout are claimed again by the next Receive, until they
// exceed MaxDeliveries and are moved to the dead letter stream.
type RedisStream struct {
	client            redis.UniversalClient
	stream            string
	deadStream        string
	group             string
	consumer          string
	visibilityTimeout time.Duration
	maxDeliveries     int64
}

type StreamConfig struct {
	Stream   string
	Group    string
	Consumer string

	// VisibilityTimeout is how long a delivered entry stays invisible.
	// Default is 30 seconds.
	VisibilityTimeout time.Duration

	// MaxDeliveries is how many times an entry is delivered before it is
	// dead-lettered. Default is 5.
	MaxDeliveries int64

	// DeadLetterStream receives entries past MaxDeliveries.
	// Default is "<Stream>:dead".
	DeadLetterStream string
}

func (c StreamConfig) applyDefaults() StreamConfig {
	if c.VisibilityTimeout <= 0 {
		c.VisibilityTimeout = 30 * time.Second
	}
	if c.MaxDeliveries <= 0 {
		c.MaxDeliveries = 5
	}
	if c.DeadLetterStream == "" {
		c.DeadLetterStream = c.Stream + ":dead"
	}
	return c
}

// NewRedisStream creates the consumer group (and the stream) if missing.
func NewRedisStream(ctx context.Context, client redis.UniversalClient, cfg StreamConfig) (*RedisStream, error) {
	if client == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if cfg.Stream == "" {
		return nil, fmt.Errorf("stream is empty")
	}
	if cfg.Group == "" {
		return nil, fmt.Errorf("group is empty")
	}
	if cfg.Consumer == "" {
		return nil, fmt.Errorf("consumer is empty")
	}

	cfg = cfg.applyDefaults()

	err := client.XGroupCreateMkStream(ctx, cfg.Stream, cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("client.XGroupCreateMkStream[%s/%s]: %w", cfg.Stream, cfg.Group, err)
	}

	return &RedisStream{
		client:            client,
		stream:            cfg.Stream,
		deadStream:        cfg.DeadLetterStream,
		group:             cfg.Group,
		consumer:          cfg.Consumer,
		visibilityTimeout: cfg.VisibilityTimeout,
		maxDeliveries:     cfg.MaxDeliveries,
	}, nil
}

// Receive returns stale entries first; only when there are none does it
// block on new entries for up to wait.
func (q *RedisStream) Receive(ctx context.Context, maxMessages int, wait time.Duration) ([]domain.QueueMessage, error) {
	if maxMessages <= 0 {
		return nil, fmt.Errorf("maxMessages must be positive")
	}

	claimed, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: q.consumer,
		MinIdle:  q.visibilityTimeout,
		Start:    "0-0",
		Count:    int64(maxMessages),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("client.XAutoClaim: %w", err)
	}

	if len(claimed) > 0 {
		claimed, err = q.dropExhausted(ctx, claimed)
		if err != nil {
			return nil, fmt.Errorf("q.dropExhausted: %w", err)
		}
	}

	if len(claimed) > 0 {
		return lo.Map(claimed, toQueueMessage), nil
	}

	block := wait
	if block <= 0 {
		// go-redis treats 0 as block forever, negative as no BLOCK argument
		block = -1
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, ">"},
		Count:    int64(maxMessages),
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("client.XReadGroup: %w", err)
	}

	var msgs []domain.QueueMessage
	for _, s := range streams {
		msgs = append(msgs, lo.Map(s.Messages, toQueueMessage)...)
	}

	return msgs, nil
}

// dropExhausted moves claimed entries delivered more than maxDeliveries times
// to the dead letter stream and returns the rest.
func (q *RedisStream) dropExhausted(ctx context.Context, claimed []redis.XMessage) ([]redis.XMessage, error) {
	cmds := make([]*redis.XPendingExtCmd, len(claimed))

	_, err := q.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, m := range claimed {
			cmds[i] = pipe.XPendingExt(ctx, &redis.XPendingExtArgs{
				Stream: q.stream,
				Group:  q.group,
				Start:  m.ID,
				End:    m.ID,
				Count:  1,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("client.Pipelined: %w", err)
	}

	live := make([]redis.XMessage, 0, len(claimed))

	for i, m := range claimed {
		pending := cmds[i].Val()
		if len(pending) == 0 || pending[0].RetryCount <= q.maxDeliveries {
			live = append(live, m)
			continue
		}

		if err := q.deadLetter(ctx, m, pending[0].RetryCount); err != nil {
			return nil, fmt.Errorf("q.deadLetter[%s]: %w", m.ID, err)
		}

		slog.Warn("Queue message dead-lettered",
			"method", "RedisStream.Receive",
			"receipt_handle", m.ID,
			"deliveries", pending[0].RetryCount,
			"dead_letter_stream", q.deadStream)
	}

	return live, nil
}

func (q *RedisStream) deadLetter(ctx context.Context, m redis.XMessage, deliveries int64) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: q.deadStream,
			Values: map[string]any{
				bodyField:       m.Values[bodyField],
				originalIDField: m.ID,
				deliveriesField: deliveries,
			},
		})
		pipe.XAck(ctx, q.stream, q.group, m.ID)
		pipe.XDel(ctx, q.stream, m.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("client.TxPipelined: %w", err)
	}

	return nil
}

// Delete acknowledges the entry and removes it from the stream.
func (q *RedisStream) Delete(ctx context.Context, receiptHandle string) error {
	if receiptHandle == "" {
		return fmt.Errorf("receiptHandle is empty")
	}

	var ack *redis.IntCmd

	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		ack = pipe.XAck(ctx, q.stream, q.group, receiptHandle)
		pipe.XDel(ctx, q.stream, receiptHandle)
		return nil
	})
	if err != nil {
		return fmt.Errorf("client.TxPipelined: %w", err)
	}

	if ack.Val() == 0 {
		return fmt.Errorf("receipt handle[%s] is not pending", receiptHandle)
	}

	return nil
}

// Send appends a message body and returns its stream id.
func (q *RedisStream) Send(ctx context.Context, body []byte) (string, error) {
	id, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{bodyField: body},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("client.XAdd[%s]: %w", q.stream, err)
	}

	return id, nil
}

func toQueueMessage(m redis.XMessage, _ int) domain.QueueMessage {
	body, _ := m.Values[bodyField].(string)

	return domain.QueueMessage{
		ReceiptHandle: m.ID,
		Body:          []byte(body),
	}
}
