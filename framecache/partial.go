// Package framecache implements the Digitiser Aggregator's frame cache: a
// bounded, insertion-ordered sequence of partial frames that assembles
// per-frame contributions from N digitisers into a single dispatchable
// AggregatedFrame, enforcing at-most-once per (frame, digitiser), a
// completeness policy, TTL-based dispatch, and timestamp monotonicity.
package framecache

import (
	"sort"
	"time"

	"github.com/multiverse-hardware-labs/nexus-pipeline/messages"
)

// contribution is one digitiser's event-list contribution to a partial
// frame, kept in insertion order.
type contribution struct {
	digitiserID uint8
	events      messages.EventList
}

// partialFrame is a frame under construction. Its identifying metadata is
// immutable once created; VetoFlags accumulates the OR of every
// contribution's veto flags.
type partialFrame struct {
	metadata      messages.FrameMetadata // VetoFlags here is the running OR
	contributions []contribution
	expiry        time.Time
	complete      bool
}

// hasDigitiser reports whether id has already contributed.
func (p *partialFrame) hasDigitiser(id uint8) bool {
	for _, c := range p.contributions {
		if c.digitiserID == id {
			return true
		}
	}
	return false
}

// recomputeComplete sets p.complete from the current contributor set
// against expected: both sets are sorted and compared element-wise.
func (p *partialFrame) recomputeComplete(expected []uint8) {
	ids := p.sortedDigitiserIDs()
	if len(ids) != len(expected) {
		p.complete = false
		return
	}
	for i := range ids {
		if ids[i] != expected[i] {
			p.complete = false
			return
		}
	}
	p.complete = true
}

func (p *partialFrame) sortedDigitiserIDs() []uint8 {
	ids := make([]uint8, len(p.contributions))
	for i, c := range p.contributions {
		ids[i] = c.digitiserID
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// seal concatenates all contributions preserving insertion order and
// returns the AggregatedFrame.
func (p *partialFrame) seal() messages.AggregatedFrame {
	var events messages.EventList
	for _, c := range p.contributions {
		events = events.Append(c.events)
	}
	return messages.AggregatedFrame{
		Metadata:     p.metadata,
		Complete:     p.complete,
		DigitiserIDs: p.sortedDigitiserIDs(),
		Events:       events,
	}
}
