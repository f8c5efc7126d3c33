// Package call defines the identity of a single task invocation: the
// (task name, payload, hash) triple that flows through the store, the
// queue, and the pending-returns protocol.
package call

import (
	"fmt"
	"strings"
)

// Call is a task invocation, identified by a deterministic hash over its
// logical (task_name, args, kwargs) triple. Payload is opaque to everything
// except the Codec that produced it.
type Call struct {
	TaskName string
	Payload  []byte
	CallHash string
}

// ParseReturnAddress splits a return address of the form
// "root_id/parent_call_hash/topic" into its three fields. The topic is
// canonically last because it is the only field allowed to contain "/";
// splitting on the first two separators keeps any embedded "/" in the
// topic intact.
func ParseReturnAddress(addr string) (topic, rootID, parentHash string, err error) {
	first := strings.IndexByte(addr, '/')
	if first < 0 {
		return "", "", "", fmt.Errorf("call: invalid return address %q: fewer than two separators", addr)
	}
	rest := addr[first+1:]
	second := strings.IndexByte(rest, '/')
	if second < 0 {
		return "", "", "", fmt.Errorf("call: invalid return address %q: fewer than two separators", addr)
	}
	rootID = addr[:first]
	parentHash = rest[:second]
	topic = rest[second+1:]
	return topic, rootID, parentHash, nil
}

// FormatReturnAddress is the inverse of ParseReturnAddress.
func FormatReturnAddress(topic, rootID, parentHash string) string {
	return rootID + "/" + parentHash + "/" + topic
}

// ParseMessageBody splits a queue message body of the form
// "root_id/call_hash".
func ParseMessageBody(body string) (rootID, callHash string, err error) {
	idx := strings.IndexByte(body, '/')
	if idx < 0 {
		return "", "", fmt.Errorf("call: invalid message body %q: missing separator", body)
	}
	return body[:idx], body[idx+1:], nil
}

// FormatMessageBody is the inverse of ParseMessageBody.
func FormatMessageBody(rootID, callHash string) string {
	return rootID + "/" + callHash
}
