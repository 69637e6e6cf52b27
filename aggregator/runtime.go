// Package aggregator implements the Digitiser Aggregator component: it
// consumes per-digitiser event lists off the bus, folds them into
// framecache.Cache, and republishes whatever the cache seals off as
// complete or expired. The concurrency shape keeps a dedicated consumer
// goroutine feeding the cache separate from a bounded hand-off to the
// outbound producer goroutine, rather than doing both on one goroutine.
package aggregator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/multiverse-hardware-labs/nexus-pipeline/bus"
	"github.com/multiverse-hardware-labs/nexus-pipeline/framecache"
	"github.com/multiverse-hardware-labs/nexus-pipeline/messages"
)

// Config holds the tunables for the aggregator binary.
type Config struct {
	FrameTTL           time.Duration
	ExpectedDigitisers []uint8
	SendFrameBufSize   int           // bounded producer channel capacity
	ExpiryPollInterval time.Duration // how often to re-check the cache for TTL expiry
	InputTopic         string
	OutputTopic        string
}

// Runtime owns the frame cache and the two goroutines (consumer, producer)
// that drive it from and to the bus.
type Runtime struct {
	cfg   Config
	cache *framecache.Cache
	client bus.Client
	codec  Codec
	log    zerolog.Logger

	out chan messages.AggregatedFrame
}

// New builds a Runtime. The caller owns client's lifecycle (Run calls
// Subscribe; Close is the caller's responsibility after Run returns).
func New(cfg Config, client bus.Client, log zerolog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		cache:  framecache.New(cfg.FrameTTL, cfg.ExpectedDigitisers, log),
		client: client,
		log:    log,
		out:    make(chan messages.AggregatedFrame, cfg.SendFrameBufSize),
	}
}

// Run subscribes to the bus and drives the consumer and producer loops
// until ctx is cancelled, then waits for both to exit (graceful two-phase
// shutdown: stop intake first, drain the outbound channel second).
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.client.Subscribe(bus.Full); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		r.consume(ctx)
	}()

	go func() {
		defer wg.Done()
		r.produce(ctx)
	}()

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// consume pulls digitiser event lists off the bus, pushes them into the
// cache, and drains every frame the push makes available, feeding the
// bounded out channel (back-pressure: a full channel blocks this loop,
// which is deliberate — it is cheaper to stall ingestion than to drop a
// sealed frame). It also polls on a ticker so frames time out even during
// a lull in bus traffic.
func (r *Runtime) consume(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.ExpiryPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.drain(ctx)
		default:
		}

		recvCtx, cancel := context.WithTimeout(ctx, r.cfg.ExpiryPollInterval)
		msg, err := r.client.Recv(recvCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue // timeout or transient recv error: loop back to the ticker check
		}

		del, decodeErr := r.codec.DecodeDigitiserEventList(msg.Payload)
		if decodeErr != nil {
			r.log.Warn().Err(decodeErr).Str("topic", msg.Topic).Msg("dropping undecodable digitiser event list")
			continue
		}

		if pushErr := r.cache.Push(del.DigitiserID, del.Metadata, del.Events); pushErr != nil {
			r.log.Warn().Err(pushErr).Uint8("digitiser_id", del.DigitiserID).Msg("frame cache rejected contribution")
		}

		r.drain(ctx)
	}
}

// drain pulls every currently-dispatchable frame out of the cache onto the
// out channel.
func (r *Runtime) drain(ctx context.Context) {
	for {
		frame, ok := r.cache.Poll()
		if !ok {
			return
		}
		select {
		case r.out <- frame:
		case <-ctx.Done():
			return
		}
	}
}

// produce republishes sealed frames onto the bus under OutputTopic, using
// the fixed send timeout (bus.DefaultSendTimeout) rather than blocking
// indefinitely on a stalled downstream.
func (r *Runtime) produce(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			// Drain whatever is already queued before exiting (graceful
			// shutdown's second phase).
			for {
				select {
				case frame := <-r.out:
					r.send(ctx, frame)
				default:
					return
				}
			}
		case frame := <-r.out:
			r.send(context.Background(), frame)
		}
	}
}

func (r *Runtime) send(ctx context.Context, frame messages.AggregatedFrame) {
	sendCtx, cancel := context.WithTimeout(ctx, bus.DefaultSendTimeout)
	defer cancel()
	payload := r.codec.EncodeAggregatedFrame(frame)
	if err := r.client.Send(sendCtx, r.cfg.OutputTopic, payload, "", nil); err != nil {
		r.log.Error().Err(err).Uint64("frame_number", frame.Metadata.FrameNumber).Msg("failed to publish aggregated frame")
	}
}
