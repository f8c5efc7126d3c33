// Package socketqueue implements queue.Queue over a Unix domain socket,
// using length-prefixed msgpack framing to carry queue message bodies
// between a single producer and a single consumer connected over one
// socket pair.
//
// This backend is intended for the case of a worker and client colocated
// on one host without a shared external queue service, not for
// fleet-wide delivery (spec.md §6).
package socketqueue

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/brrr-dev/brrr/queue"
)

// MaxFrameSize bounds a single frame, including its length prefix, to
// guard against a corrupt or hostile peer driving unbounded allocation.
const MaxFrameSize = 16 * 1024 * 1024

const lengthPrefixSize = 4

type wireFrame struct {
	Topic string `msgpack:"topic"`
	Body  string `msgpack:"body"`
}

func encodeFrame(f wireFrame) ([]byte, error) {
	payload, err := msgpack.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("socketqueue: encode frame: %w", err)
	}
	if len(payload)+lengthPrefixSize > MaxFrameSize {
		return nil, fmt.Errorf("socketqueue: frame of %d bytes exceeds MaxFrameSize", len(payload))
	}
	buf := make([]byte, lengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:lengthPrefixSize], uint32(len(payload)))
	copy(buf[lengthPrefixSize:], payload)
	return buf, nil
}

func readFrame(r *bufio.Reader) (wireFrame, error) {
	var lenBuf [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return wireFrame{}, err
	}
	size := binary.BigEndian.Uint32(lenBuf[:])
	if size > MaxFrameSize-lengthPrefixSize {
		return wireFrame{}, fmt.Errorf("socketqueue: incoming frame of %d bytes exceeds MaxFrameSize", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return wireFrame{}, fmt.Errorf("socketqueue: partial frame: %w", err)
	}
	var f wireFrame
	if err := msgpack.Unmarshal(payload, &f); err != nil {
		return wireFrame{}, fmt.Errorf("socketqueue: decode frame: %w", err)
	}
	return f, nil
}

// Queue carries messages over one net.Conn (e.g. a Unix socket pair). It
// has no independent in-flight tracking of its own: Ack is a no-op and
// Nack only puts the body back into the local buffer, since the only
// recovery mechanism on a single connection is reconnecting, which the
// caller owns. Received-but-unconsumed frames for
// topics the caller isn't currently waiting on are buffered in memory so a
// single shared connection can still multiplex topics.
type Queue struct {
	conn   net.Conn
	reader *bufio.Reader

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string][]string
	waiters map[string]chan struct{}
	readErr error
	closed  bool
}

// New wraps an established connection (e.g. from net.Dial("unix", path)
// or a net.Listener.Accept result) as a Queue and starts its background
// read loop.
func New(conn net.Conn) *Queue {
	q := &Queue{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		pending: make(map[string][]string),
		waiters: make(map[string]chan struct{}),
	}
	go q.readLoop()
	return q
}

func (q *Queue) readLoop() {
	for {
		f, err := readFrame(q.reader)
		q.mu.Lock()
		if err != nil {
			q.readErr = err
			q.broadcastAll()
			q.mu.Unlock()
			return
		}
		q.pending[f.Topic] = append(q.pending[f.Topic], f.Body)
		q.broadcastTopic(f.Topic)
		q.mu.Unlock()
	}
}

// broadcastTopic and broadcastAll must be called with q.mu held.
func (q *Queue) broadcastTopic(topic string) {
	if ch, ok := q.waiters[topic]; ok {
		close(ch)
		delete(q.waiters, topic)
	}
}

func (q *Queue) broadcastAll() {
	for topic, ch := range q.waiters {
		close(ch)
		delete(q.waiters, topic)
	}
}

type handle struct {
	topic string
	body  string
}

func (q *Queue) Send(ctx context.Context, topic string, body string) error {
	buf, err := encodeFrame(wireFrame{Topic: topic, Body: body})
	if err != nil {
		return err
	}
	q.writeMu.Lock()
	defer q.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = q.conn.SetWriteDeadline(deadline)
		defer q.conn.SetWriteDeadline(time.Time{})
	}
	if _, err := q.conn.Write(buf); err != nil {
		return fmt.Errorf("socketqueue: send %q: %w", topic, err)
	}
	return nil
}

func (q *Queue) Receive(ctx context.Context, topic string, wait time.Duration) (queue.Message, error) {
	deadline := time.Now().Add(wait)
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return queue.Message{}, queue.ErrClosed
		}
		if msgs := q.pending[topic]; len(msgs) > 0 {
			body := msgs[0]
			q.pending[topic] = msgs[1:]
			q.mu.Unlock()
			return queue.Message{Body: body, Handle: handle{topic: topic, body: body}}, nil
		}
		if q.readErr != nil {
			err := q.readErr
			q.mu.Unlock()
			if err == io.EOF {
				return queue.Message{}, fmt.Errorf("socketqueue: topic %q: %w", topic, queue.ErrEmpty)
			}
			return queue.Message{}, fmt.Errorf("socketqueue: connection failed: %w", err)
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			q.mu.Unlock()
			return queue.Message{}, fmt.Errorf("socketqueue: topic %q: %w", topic, queue.ErrEmpty)
		}
		ch, ok := q.waiters[topic]
		if !ok {
			ch = make(chan struct{})
			q.waiters[topic] = ch
		}
		q.mu.Unlock()

		timer := time.NewTimer(remaining)
		select {
		case <-ch:
			timer.Stop()
		case <-timer.C:
			return queue.Message{}, fmt.Errorf("socketqueue: topic %q: %w", topic, queue.ErrEmpty)
		case <-ctx.Done():
			timer.Stop()
			return queue.Message{}, ctx.Err()
		}
	}
}

// Ack is a no-op: socketqueue delivers a frame to exactly one Receive
// call and has no separate in-flight store to clear.
func (q *Queue) Ack(_ context.Context, _ queue.Message) error {
	return nil
}

// Nack re-enqueues the message body locally so the next Receive on its
// topic sees it again.
func (q *Queue) Nack(_ context.Context, msg queue.Message) error {
	h, ok := msg.Handle.(handle)
	if !ok {
		return fmt.Errorf("socketqueue: nack: invalid message handle")
	}
	q.mu.Lock()
	q.pending[h.topic] = append([]string{h.body}, q.pending[h.topic]...)
	q.broadcastTopic(h.topic)
	q.mu.Unlock()
	return nil
}

func (q *Queue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.broadcastAll()
	q.mu.Unlock()
	return q.conn.Close()
}

var _ queue.Queue = (*Queue)(nil)
