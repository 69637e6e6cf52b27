package framecache

import (
	"errors"
	"sort"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"

	"github.com/multiverse-hardware-labs/nexus-pipeline/messages"
)

// Rejection kinds for Push, surfaced to the caller rather than corrupting
// cache state.
var (
	// ErrTimestampTooEarly is returned when a pushed frame's timestamp is
	// not strictly greater than the cache's dispatch watermark.
	ErrTimestampTooEarly = errors.New("framecache: timestamp too early")
	// ErrIDAlreadyPresent is returned when a digitiser has already
	// contributed to the matching partial frame.
	ErrIDAlreadyPresent = errors.New("framecache: digitiser id already present")
)

// Cache is an insertion-ordered sequence of partial frames plus the
// monotonic dispatch watermark and the expected digitiser set. It
// preserves arrival order, which aligns with frame-number order under
// normal conditions and guarantees that every partial frame's timestamp
// exceeds the watermark, so only the front need be inspected for dispatch
// (see Poll).
type Cache struct {
	ttl                     time.Duration
	expectedDigitisers      []uint8 // sorted, deduplicated
	latestDispatchedTime    time.Time
	frames                  []*partialFrame
	log                     zerolog.Logger
	now                     func() time.Time
}

// New builds a Cache with the given TTL and expected digitiser set.
func New(ttl time.Duration, expectedDigitisers []uint8, log zerolog.Logger) *Cache {
	expected := append([]uint8{}, expectedDigitisers...)
	sort.Slice(expected, func(i, j int) bool { return expected[i] < expected[j] })
	expected = dedupSorted(expected)
	return &Cache{
		ttl:                ttl,
		expectedDigitisers: expected,
		log:                log,
		now:                time.Now,
	}
}

func dedupSorted(ids []uint8) []uint8 {
	out := ids[:0]
	var last uint8
	haveLast := false
	for _, id := range ids {
		if haveLast && id == last {
			continue
		}
		out = append(out, id)
		last, haveLast = id, true
	}
	return out
}

// Len reports the number of partial frames currently held, for
// observability.
func (c *Cache) Len() int { return len(c.frames) }

// Push adds one digitiser's contribution to the frame identified by
// metadata (ignoring VetoFlags), creating it if necessary. It never
// corrupts cache state on rejection.
func (c *Cache) Push(digitiserID uint8, metadata messages.FrameMetadata, data messages.EventList) error {
	if !metadata.Timestamp.After(c.latestDispatchedTime) {
		c.log.Warn().
			Uint8("digitiser_id", digitiserID).
			Time("timestamp", metadata.Timestamp).
			Time("watermark", c.latestDispatchedTime).
			Msg("rejecting frame contribution: timestamp not after dispatch watermark")
		return ErrTimestampTooEarly
	}

	if pf := c.find(metadata); pf != nil {
		if pf.hasDigitiser(digitiserID) {
			c.log.Warn().
				Uint8("digitiser_id", digitiserID).
				Str("frame", spew.Sdump(pf.metadata)).
				Msg("rejecting duplicate digitiser contribution to partial frame")
			return ErrIDAlreadyPresent
		}
		pf.contributions = append(pf.contributions, contribution{digitiserID: digitiserID, events: data})
		pf.metadata.VetoFlags |= metadata.VetoFlags
		pf.recomputeComplete(c.expectedDigitisers)
		return nil
	}

	pf := &partialFrame{
		metadata: metadata,
		expiry:   c.now().Add(c.ttl),
	}
	pf.contributions = append(pf.contributions, contribution{digitiserID: digitiserID, events: data})
	pf.recomputeComplete(c.expectedDigitisers)
	c.frames = append(c.frames, pf)
	return nil
}

// find returns the first partial frame whose metadata matches (ignoring
// VetoFlags), or nil.
func (c *Cache) find(metadata messages.FrameMetadata) *partialFrame {
	for _, pf := range c.frames {
		if pf.metadata.SameFrame(metadata) {
			return pf
		}
	}
	return nil
}

// Poll inspects only the front partial frame (safe because the cache
// guarantees timestamp monotonicity among held frames). If it is complete
// or has expired, it is popped, the watermark is advanced to its
// timestamp, and the sealed AggregatedFrame is returned. Otherwise Poll is
// a no-op and returns false — including when the cache is empty.
func (c *Cache) Poll() (messages.AggregatedFrame, bool) {
	if len(c.frames) == 0 {
		return messages.AggregatedFrame{}, false
	}
	front := c.frames[0]
	now := c.now()
	expired := !now.Before(front.expiry) // now >= expiry: boundary dispatches
	if !front.complete && !expired {
		return messages.AggregatedFrame{}, false
	}

	c.frames = c.frames[1:]
	c.latestDispatchedTime = front.metadata.Timestamp
	return front.seal(), true
}
