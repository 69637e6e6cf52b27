package bus

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	czmq "github.com/zeromq/goczmq"
)

// ZmqClient is the default bus.Client binding, built on ZeroMQ's PUB/SUB
// sockets (github.com/zeromq/goczmq). Each bus.Message rides as one small
// length-prefixed frame: a topic string, a key string, and the payload, so
// any of the flatbuffer-identified message kinds can share the same wire
// shape.
type ZmqClient struct {
	pub       *czmq.Channeler // outbound publisher, created on the first Send
	sub       *czmq.Channeler // inbound subscriber
	endpoints []string
	topics    []string
}

// NewZmqClient records the SUB and PUB endpoints and the topic list; no
// socket is opened here. Subscribe creates the SUB socket and the first
// Send creates the PUB socket.
func NewZmqClient(subEndpoint string, pubEndpoint string, topics []string) *ZmqClient {
	return &ZmqClient{
		endpoints: []string{subEndpoint, pubEndpoint},
		topics:    topics,
	}
}

// Subscribe switches the underlying SUB socket's active topic filter
// between "every topic" (Full) and just the continuous/control topics
// (ContinuousOnly), mirroring the run engine's subscription-mode switch.
func (z *ZmqClient) Subscribe(mode SubscriptionMode) error {
	if z.sub != nil {
		z.sub.Destroy()
	}
	filters := z.topics
	if mode == ContinuousOnly {
		filters = continuousOnlyTopics(z.topics)
	}
	z.sub = czmq.NewSubChanneler(z.endpoints[0], filters...)
	return nil
}

func continuousOnlyTopics(topics []string) []string {
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		if t == "run-control" || t == "sample-environment" || t == "alarms" {
			out = append(out, t)
		}
	}
	return out
}

// Recv blocks for the next message or until ctx is done.
func (z *ZmqClient) Recv(ctx context.Context) (Message, error) {
	if z.sub == nil {
		return Message{}, errors.New("bus: Subscribe must be called before Recv")
	}
	select {
	case frames, ok := <-z.sub.RecvChan:
		if !ok {
			return Message{}, errors.New("bus: subscriber channel closed")
		}
		return decodeFrames(frames)
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Send publishes payload under topic/key with the given headers, honoring
// the fixed dispatch timeout (DefaultSendTimeout unless ctx carries a
// shorter deadline).
func (z *ZmqClient) Send(ctx context.Context, topic string, payload []byte, key string, headers map[string][]byte) error {
	if z.pub == nil {
		z.pub = czmq.NewPubChanneler(z.endpoints[1])
	}
	deadline, ok := ctx.Deadline()
	timeout := DefaultSendTimeout
	if ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}
	frames := encodeFrames(topic, key, payload, headers)
	select {
	case z.pub.SendChan <- frames:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("bus: send to topic %q timed out after %s", topic, timeout)
	}
}

// Close releases the underlying ZeroMQ sockets.
func (z *ZmqClient) Close() error {
	if z.sub != nil {
		z.sub.Destroy()
	}
	if z.pub != nil {
		z.pub.Destroy()
	}
	return nil
}

// encodeFrames lays out [topicLen|topic|keyLen|key|headerCount|(len|k|len|v)...|payload]
// as a multi-part ZeroMQ message with a variable-length header.
func encodeFrames(topic, key string, payload []byte, headers map[string][]byte) [][]byte {
	header := make([]byte, 0, 64)
	header = appendString(header, topic)
	header = appendString(header, key)
	header = binary.LittleEndian.AppendUint32(header, uint32(len(headers)))
	for k, v := range headers {
		header = appendString(header, k)
		header = appendBytes(header, v)
	}
	return [][]byte{header, payload}
}

func decodeFrames(frames [][]byte) (Message, error) {
	if len(frames) != 2 {
		return Message{}, fmt.Errorf("bus: expected 2 frames, got %d", len(frames))
	}
	header, payload := frames[0], frames[1]
	topic, header, err := readString(header)
	if err != nil {
		return Message{}, err
	}
	key, header, err := readString(header)
	if err != nil {
		return Message{}, err
	}
	if len(header) < 4 {
		return Message{}, errors.New("bus: truncated header count")
	}
	count := binary.LittleEndian.Uint32(header)
	header = header[4:]
	headers := make(map[string][]byte, count)
	for i := uint32(0); i < count; i++ {
		var k string
		var v []byte
		k, header, err = readString(header)
		if err != nil {
			return Message{}, err
		}
		v, header, err = readBytes(header)
		if err != nil {
			return Message{}, err
		}
		headers[k] = v
	}
	return Message{Topic: topic, Key: key, Payload: payload, Headers: headers, Commit: func() error { return nil }}, nil
}

func appendString(b []byte, s string) []byte { return appendBytes(b, []byte(s)) }

func appendBytes(b []byte, v []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(len(v)))
	return append(b, v...)
}

func readString(b []byte) (string, []byte, error) {
	v, rest, err := readBytes(b)
	return string(v), rest, err
}

func readBytes(b []byte) ([]byte, []byte, error) {
	if len(b) < 4 {
		return nil, nil, errors.New("bus: truncated length prefix")
	}
	n := binary.LittleEndian.Uint32(b)
	b = b[4:]
	if uint32(len(b)) < n {
		return nil, nil, errors.New("bus: truncated frame body")
	}
	return b[:n], b[n:], nil
}
