// Package queue defines the message-delivery contract the worker loop
// polls for new call invocations on a topic (spec.md §4.3, §6).
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrEmpty is returned by Receive when no message is available within the
// requested wait window.
var ErrEmpty = errors.New("queue: empty")

// ErrClosed is returned once a Queue has been Close()d.
var ErrClosed = errors.New("queue: closed")

// Message is a single delivered item: an opaque body (spec.md §6's
// "root_id/call_hash" message body, formatted via call.FormatMessageBody)
// plus whatever handle the backend needs to Ack/Nack it.
type Message struct {
	Body   string
	Handle any
}

// Queue is a topic-scoped message queue. Whether Receive removes a message
// depends on the backend: redisqueue moves it to an in-flight list that only
// Ack clears, while memqueue and socketqueue remove it on Receive, so a
// worker that dies mid-task loses the message on those two.
type Queue interface {
	// Send enqueues body on topic.
	Send(ctx context.Context, topic string, body string) error

	// Receive waits up to wait for a message on topic. Returns ErrEmpty
	// (wrapped) if none arrives in time.
	Receive(ctx context.Context, topic string, wait time.Duration) (Message, error)

	// Ack permanently removes a delivered message.
	Ack(ctx context.Context, msg Message) error

	// Nack makes a delivered message immediately eligible for redelivery.
	// The engine's worker loop does not call it.
	Nack(ctx context.Context, msg Message) error

	Close() error
}
