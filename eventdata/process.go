// Package eventdata implements the per-channel processor: for each
// incoming digitiser trace, fan out over channels in parallel, apply
// polarity and baseline correction, run the configured detector, and
// concatenate the per-channel results into one digitiser-event-list
// message. One goroutine is launched per channel processor and the
// results are gathered with a sync.WaitGroup.
package eventdata

import (
	"runtime"
	"sort"
	"sync"

	"github.com/multiverse-hardware-labs/nexus-pipeline/messages"
	"github.com/multiverse-hardware-labs/nexus-pipeline/window"
)

// ChannelConfig controls how one channel's raw samples are conditioned
// before detection.
type ChannelConfig struct {
	Polarity       float64 // +1 (positive-going pulses) or -1
	BaselineWindow int     // 0 disables baseline subtraction
	NewDetector    func() SampleDetector
}

// ProcessorConfig maps channel IDs to their ChannelConfig, falling back to
// Default for any channel without an explicit entry.
type ProcessorConfig struct {
	Channels map[uint32]ChannelConfig
	Default  ChannelConfig
}

func (c ProcessorConfig) configFor(channel uint32) ChannelConfig {
	if cc, ok := c.Channels[channel]; ok {
		return cc
	}
	return c.Default
}

type channelResult struct {
	events messages.EventList
}

// ProcessTrace fans out over every channel in trace concurrently (bounded
// to GOMAXPROCS workers, since channel counts arrive per bus message
// rather than being fixed at process startup), applies polarity/baseline
// conditioning and the configured detector, and concatenates the results
// into one DigitiserEventList. Metadata is copied unchanged from trace.
// Ordering between channels is not guaranteed; within a channel, ordering
// is strictly time-ascending because each channel's detector only ever
// emits in the order it consumes samples.
func ProcessTrace(trace messages.DigitiserTrace, cfg ProcessorConfig) messages.DigitiserEventList {
	results := make([]channelResult, len(trace.Channels))

	sem := make(chan struct{}, maxInt(1, runtime.GOMAXPROCS(0)))
	var wg sync.WaitGroup
	for i, ch := range trace.Channels {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, ch messages.ChannelTrace) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = processChannel(ch, cfg.configFor(ch.Channel))
		}(i, ch)
	}
	wg.Wait()

	var combined messages.EventList
	for _, r := range results {
		combined = combined.Append(r.events)
	}

	return messages.DigitiserEventList{
		DigitiserID: trace.DigitiserID,
		Metadata:    trace.Metadata,
		Events:      combined,
	}
}

func processChannel(trace messages.ChannelTrace, cfg ChannelConfig) channelResult {
	var baseline *window.Baseline
	if cfg.BaselineWindow > 0 {
		baseline = window.NewBaseline(cfg.BaselineWindow)
	}
	detector := cfg.NewDetector()

	period := trace.NanosPerSample()
	polarity := cfg.Polarity
	if polarity == 0 {
		polarity = 1
	}

	var list messages.EventList
	for i, raw := range trace.Samples {
		t := int64(float64(i) * period)
		x := polarity * float64(raw)
		if baseline != nil {
			_, x = baseline.Push(t, x)
		}
		if ev, ok := detector.PushSample(t, x); ok {
			list.Time = append(list.Time, ev.Time)
			list.Intensity = append(list.Intensity, ev.Intensity)
			list.Channel = append(list.Channel, trace.Channel)
		}
	}
	if ev, ok := detector.Finish(); ok {
		list.Time = append(list.Time, ev.Time)
		list.Intensity = append(list.Intensity, ev.Intensity)
		list.Channel = append(list.Channel, trace.Channel)
	}
	// Events within one channel are already time-ascending by construction;
	// this sort is a defensive no-op that guards the invariant cheaply.
	sort.Sort(byTime(list))
	return channelResult{events: list}
}

type byTime messages.EventList

func (b byTime) Len() int      { return len(b.Time) }
func (b byTime) Swap(i, j int) {
	b.Time[i], b.Time[j] = b.Time[j], b.Time[i]
	b.Intensity[i], b.Intensity[j] = b.Intensity[j], b.Intensity[i]
	b.Channel[i], b.Channel[j] = b.Channel[j], b.Channel[i]
}
func (b byTime) Less(i, j int) bool { return b.Time[i] < b.Time[j] }

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
