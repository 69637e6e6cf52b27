package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/multiverse-hardware-labs/nexus-pipeline/bus"
	"github.com/multiverse-hardware-labs/nexus-pipeline/messages"
)

// fakeClient is an in-memory bus.Client: Recv drains inbox, Send appends to
// outbox, both guarded so the test goroutine can inspect them safely.
type fakeClient struct {
	inbox  chan bus.Message
	outbox chan bus.Message
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		inbox:  make(chan bus.Message, 16),
		outbox: make(chan bus.Message, 16),
	}
}

func (f *fakeClient) Subscribe(bus.SubscriptionMode) error { return nil }

func (f *fakeClient) Recv(ctx context.Context) (bus.Message, error) {
	select {
	case m := <-f.inbox:
		return m, nil
	case <-ctx.Done():
		return bus.Message{}, ctx.Err()
	}
}

func (f *fakeClient) Send(ctx context.Context, topic string, payload []byte, key string, headers map[string][]byte) error {
	f.outbox <- bus.Message{Topic: topic, Payload: payload, Key: key, Headers: headers}
	return nil
}

func (f *fakeClient) Close() error { return nil }

// encodeDigitiserEventList is the test-side inverse of
// Codec.DecodeDigitiserEventList, used to build fake bus payloads.
func encodeDigitiserEventList(del messages.DigitiserEventList) []byte {
	buf := []byte{del.DigitiserID}
	buf = append(buf, encodeUint64(uint64(del.Metadata.Timestamp.UnixNano()))...)
	buf = append(buf, encodeUint64(del.Metadata.FrameNumber)...)
	buf = append(buf, encodeUint64(del.Metadata.PeriodNumber)...)
	buf = append(buf, u32le(del.Metadata.ProtonsPerPulse)...)
	if del.Metadata.Running {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, u16le(del.Metadata.VetoFlags)...)
	buf = append(buf, u32le(uint32(del.Events.Len()))...)
	for i := 0; i < del.Events.Len(); i++ {
		buf = append(buf, encodeUint64(uint64(del.Events.Time[i]))...)
		buf = append(buf, encodeUint64(float64bits(del.Events.Intensity[i]))...)
		buf = append(buf, u32le(del.Events.Channel[i])...)
	}
	return buf
}

func u32le(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func u16le(v uint16) []byte {
	return []byte{byte(v), byte(v >> 8)}
}

func TestRuntimeAssemblesCompleteFrame(t *testing.T) {
	client := newFakeClient()
	cfg := Config{
		FrameTTL:           time.Hour,
		ExpectedDigitisers: []uint8{0, 1},
		SendFrameBufSize:   4,
		ExpiryPollInterval: 10 * time.Millisecond,
		InputTopic:         "events",
		OutputTopic:        "frames",
	}
	rt := New(cfg, client, zerolog.Nop())

	meta := messages.FrameMetadata{Timestamp: time.Unix(500, 0), FrameNumber: 7}
	for _, id := range []uint8{0, 1} {
		del := messages.DigitiserEventList{
			DigitiserID: id,
			Metadata:    meta,
			Events:      messages.EventList{Time: []int64{1, 2}, Intensity: []float64{3, 4}, Channel: []uint32{0, 0}},
		}
		client.inbox <- bus.Message{Topic: "events", Payload: encodeDigitiserEventList(del)}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	select {
	case out := <-client.outbox:
		require.Equal(t, "frames", out.Topic)
		require.NotEmpty(t, out.Payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for aggregated frame to be published")
	}

	cancel()
	<-done
}
