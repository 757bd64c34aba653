package conv

import "github.com/samcharles93/qconv/internal/tensor"

// channelSpan says which input channels feed one output channel and which
// slice of the filter's leading dimension holds their weights.
type channelSpan struct {
	first       int
	count       int
	filterSlice int
}

// channelMapping resolves an output channel to its channelSpan. It is
// queried once per output channel, outside the kernel-window loops.
type channelMapping interface {
	span(outChannel int) channelSpan
}

func newMapping(depthwise bool, inChannels, depthMultiplier int) channelMapping {
	if depthwise {
		return depthwiseMapping{multiplier: depthMultiplier}
	}
	return standardMapping{inChannels: inChannels}
}

// standardMapping sums every input channel with filter row outChannel.
type standardMapping struct {
	inChannels int
}

func (m standardMapping) span(outChannel int) channelSpan {
	return channelSpan{first: 0, count: m.inChannels, filterSlice: outChannel}
}

// depthwiseMapping reads exactly one input channel, outChannel / multiplier,
// with filter slice outChannel % multiplier.
type depthwiseMapping struct {
	multiplier int
}

func (m depthwiseMapping) span(outChannel int) channelSpan {
	return channelSpan{
		first:       outChannel / m.multiplier,
		count:       1,
		filterSlice: outChannel % m.multiplier,
	}
}

// ChannelSpan is the exported form of a channel mapping entry: output
// channel OutChannel sums input channels [First, First+Count) against
// filter slice FilterSlice.
type ChannelSpan struct {
	OutChannel  int `json:"out_channel"`
	First       int `json:"first"`
	Count       int `json:"count"`
	FilterSlice int `json:"filter_slice"`
}

// ChannelSpans lists the mapping Convolve uses for every output channel of
// a filter. The filter shape must be 4-D.
func ChannelSpans(filter tensor.Shape, depthwise bool) []ChannelSpan {
	m := newMapping(depthwise, filter[1], filter[0])
	spans := make([]ChannelSpan, OutputChannels(filter, depthwise))
	for oc := range spans {
		s := m.span(oc)
		spans[oc] = ChannelSpan{OutChannel: oc, First: s.first, Count: s.count, FilterSlice: s.filterSlice}
	}
	return spans
}
