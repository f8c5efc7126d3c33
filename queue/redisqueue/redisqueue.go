// Package redisqueue implements queue.Queue on Redis lists, using BRPOPLPUSH
// to move a message into a per-topic "in-flight" list atomically with
// delivery, so a worker that crashes mid-task leaves its message
// recoverable rather than lost (spec.md §4.3, §7's at-least-once delivery
// requirement).
package redisqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/brrr-dev/brrr/queue"
)

// DefaultKeyPrefix namespaces this backend's keys within a shared Redis
// instance.
const DefaultKeyPrefix = "brrr"

// Config configures the Redis-backed queue: connection URL and key prefix.
// Timeout is stored on the Queue but no call applies it; calls are bounded
// only by their ctx and, for Receive, by its wait argument.
type Config struct {
	URL       string
	KeyPrefix string
	Timeout   time.Duration
}

// Queue is the Redis-backed queue.Queue implementation.
type Queue struct {
	client    *goredis.Client
	keyPrefix string
	timeout   time.Duration
}

// New creates a Redis-backed Queue from the given config.
func New(cfg Config) (*Queue, error) {
	if cfg.URL == "" {
		return nil, errors.New("redisqueue: URL is required")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redisqueue: invalid URL: %w", err)
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return NewWithClient(goredis.NewClient(opts), cfg), nil
}

// NewWithClient builds a Queue around an already-configured client; used
// by tests against miniredis.
func NewWithClient(client *goredis.Client, cfg Config) *Queue {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	return &Queue{client: client, keyPrefix: cfg.KeyPrefix, timeout: cfg.Timeout}
}

func (q *Queue) mainKey(topic string) string {
	return q.keyPrefix + ":queue:" + topic
}

func (q *Queue) inflightKey(topic string) string {
	return q.keyPrefix + ":inflight:" + topic
}

func (q *Queue) Send(ctx context.Context, topic string, body string) error {
	if err := q.client.LPush(ctx, q.mainKey(topic), body).Err(); err != nil {
		return fmt.Errorf("redisqueue: send %q: %w", topic, err)
	}
	return nil
}

type handle struct {
	topic string
	body  string
}

// Receive uses BRPOPLPUSH to atomically move one message from the topic's
// main list to its in-flight list, blocking up to wait.
func (q *Queue) Receive(ctx context.Context, topic string, wait time.Duration) (queue.Message, error) {
	body, err := q.client.BRPopLPush(ctx, q.mainKey(topic), q.inflightKey(topic), wait).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return queue.Message{}, fmt.Errorf("redisqueue: topic %q: %w", topic, queue.ErrEmpty)
		}
		return queue.Message{}, fmt.Errorf("redisqueue: receive %q: %w", topic, err)
	}
	return queue.Message{Body: body, Handle: handle{topic: topic, body: body}}, nil
}

// Ack removes the message from its topic's in-flight list.
func (q *Queue) Ack(ctx context.Context, msg queue.Message) error {
	h, ok := msg.Handle.(handle)
	if !ok {
		return fmt.Errorf("redisqueue: ack: invalid message handle")
	}
	if err := q.client.LRem(ctx, q.inflightKey(h.topic), 1, h.body).Err(); err != nil {
		return fmt.Errorf("redisqueue: ack %q: %w", h.topic, err)
	}
	return nil
}

// Nack moves the message back from the in-flight list to the tail of the
// main list, making it immediately eligible for redelivery.
func (q *Queue) Nack(ctx context.Context, msg queue.Message) error {
	h, ok := msg.Handle.(handle)
	if !ok {
		return fmt.Errorf("redisqueue: nack: invalid message handle")
	}
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.inflightKey(h.topic), 1, h.body)
	pipe.LPush(ctx, q.mainKey(h.topic), h.body)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisqueue: nack %q: %w", h.topic, err)
	}
	return nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

var _ queue.Queue = (*Queue)(nil)
