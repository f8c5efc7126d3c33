// Package memqueue is an in-process, in-memory queue.Queue backed by one
// buffered channel per topic. Used for local development, examples, and as
// the queue every other package's unit tests exercise.
package memqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/brrr-dev/brrr/queue"
)

type handle struct {
	topic string
	body  string
}

// Queue is a topic-keyed set of channels. The zero value is not usable;
// construct with New.
type Queue struct {
	mu      sync.Mutex
	topics  map[string]chan string
	closed  bool
}

// New creates an empty Queue.
func New() *Queue {
	return &Queue{topics: make(map[string]chan string)}
}

func (q *Queue) channel(topic string) chan string {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.topics[topic]
	if !ok {
		ch = make(chan string, 4096)
		q.topics[topic] = ch
	}
	return ch
}

func (q *Queue) Send(_ context.Context, topic string, body string) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return queue.ErrClosed
	}
	select {
	case q.channel(topic) <- body:
		return nil
	default:
		return fmt.Errorf("memqueue: topic %q is full", topic)
	}
}

func (q *Queue) Receive(ctx context.Context, topic string, wait time.Duration) (queue.Message, error) {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return queue.Message{}, queue.ErrClosed
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case body := <-q.channel(topic):
		return queue.Message{Body: body, Handle: handle{topic: topic, body: body}}, nil
	case <-timer.C:
		return queue.Message{}, fmt.Errorf("memqueue: topic %q: %w", topic, queue.ErrEmpty)
	case <-ctx.Done():
		return queue.Message{}, ctx.Err()
	}
}

// Ack is a no-op: memqueue removes a message from its channel on
// Receive, so there is nothing left to acknowledge. At-least-once
// redelivery after a crash is not provided by this backend — it exists
// for local development and tests, not for durability guarantees.
func (q *Queue) Ack(_ context.Context, _ queue.Message) error {
	return nil
}

// Nack redelivers msg by pushing its body back onto its topic's channel.
func (q *Queue) Nack(ctx context.Context, msg queue.Message) error {
	h, ok := msg.Handle.(handle)
	if !ok {
		return fmt.Errorf("memqueue: nack: invalid message handle")
	}
	return q.Send(ctx, h.topic, h.body)
}

func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

var _ queue.Queue = (*Queue)(nil)
