package stream

import (
	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/types"
)

// StreamSamples is one stream's contiguous decoded samples with its native
// rate and the timestamp of the first sample.
type StreamSamples struct {
	StreamID   string
	Domain     types.Domain
	SampleRate uint32
	Start      int64 // unix ns of Values[0]
	Values     []float64
}

// AlignedSample is one resampled value together with the original timestamp
// of the source sample it was taken from, kept for provenance.
type AlignedSample struct {
	Value     float64
	Timestamp int64 // unix ns of the source sample
}

// AlignedStream is one stream resampled onto the common timeline.
type AlignedStream struct {
	StreamID string
	Domain   types.Domain
	Samples  []AlignedSample
}

// AlignedBundle holds N streams resampled to the lowest common rate over
// their overlapping time window. All streams have equal length; index i
// across streams refers to the same virtual-timeline instant.
type AlignedBundle struct {
	SampleRate uint32 // common rate, the minimum of the inputs
	Start      int64  // unix ns of the first aligned instant
	Streams    []AlignedStream
}

// Values extracts the plain sample values of stream i.
func (b *AlignedBundle) Values(i int) []float64 {
	out := make([]float64, len(b.Streams[i].Samples))
	for j, s := range b.Streams[i].Samples {
		out[j] = s.Value
	}
	return out
}

// Align resamples heterogeneous-rate streams onto a common virtual timeline:
// the common rate is the lowest input rate, the window is the overlap of all
// input windows, and each output sample carries the original timestamp of
// the nearest source sample. Alignment is by timestamp, never arrival order.
func Align(inputs []StreamSamples) (*AlignedBundle, error) {
	if len(inputs) < 2 {
		return nil, errors.WrapInvalid(errors.ErrInsufficientData, "stream", "Align",
			"need at least two streams")
	}

	commonRate := inputs[0].SampleRate
	for _, in := range inputs {
		if in.SampleRate == 0 || len(in.Values) == 0 {
			return nil, errors.WithContext(
				errors.WrapInvalid(errors.ErrInsufficientData, "stream", "Align",
					"empty stream or zero rate"),
				errors.Context{StreamID: in.StreamID})
		}
		if in.SampleRate < commonRate {
			commonRate = in.SampleRate
		}
	}

	// Overlapping window across all inputs.
	start := inputs[0].Start
	end := inputs[0].end()
	for _, in := range inputs[1:] {
		if in.Start > start {
			start = in.Start
		}
		if e := in.end(); e < end {
			end = e
		}
	}
	if end <= start {
		return nil, errors.WrapInvalid(errors.ErrInsufficientData, "stream", "Align",
			"streams do not overlap in time")
	}

	step := int64(1e9) / int64(commonRate)
	count := int((end-start)/step) + 1

	bundle := &AlignedBundle{
		SampleRate: commonRate,
		Start:      start,
		Streams:    make([]AlignedStream, len(inputs)),
	}

	for i, in := range inputs {
		samples := make([]AlignedSample, count)
		srcStep := float64(1e9) / float64(in.SampleRate)
		for j := 0; j < count; j++ {
			t := start + int64(j)*step
			// Nearest source sample to the virtual instant.
			idx := int(float64(t-in.Start)/srcStep + 0.5)
			if idx < 0 {
				idx = 0
			}
			if idx >= len(in.Values) {
				idx = len(in.Values) - 1
			}
			samples[j] = AlignedSample{
				Value:     in.Values[idx],
				Timestamp: in.Start + int64(float64(idx)*srcStep),
			}
		}
		bundle.Streams[i] = AlignedStream{
			StreamID: in.StreamID,
			Domain:   in.Domain,
			Samples:  samples,
		}
	}

	return bundle, nil
}

// CollectSamples decodes a run of packets from one session into a contiguous
// StreamSamples, validating sequence continuity was already enforced
// upstream. Packets must share rate and format.
func CollectSamples(streamID string, domain types.Domain, packets []*types.SensorPacket) (*StreamSamples, error) {
	if len(packets) == 0 {
		return nil, errors.WrapInvalid(errors.ErrInsufficientData, "stream", "CollectSamples",
			"no packets")
	}

	out := &StreamSamples{
		StreamID:   streamID,
		Domain:     domain,
		SampleRate: packets[0].SampleRate,
		Start:      packets[0].Timestamp,
	}
	for _, pkt := range packets {
		if pkt.SampleRate != out.SampleRate {
			return nil, errors.WrapInvalid(errors.ErrInvalidData, "stream", "CollectSamples",
				"sample rate changed mid-run")
		}
		values, err := pkt.Samples()
		if err != nil {
			return nil, err
		}
		out.Values = append(out.Values, values...)
	}
	return out, nil
}

func (s StreamSamples) end() int64 {
	return s.Start + int64(float64(len(s.Values)-1)*1e9/float64(s.SampleRate))
}
