package types

import (
	"encoding/binary"
	"math"

	"github.com/c360/bridgekit/errors"
)

// SensorPacket is the unit of streamed data: one sampling interval of raw
// samples plus provenance. Packets are append-only; never mutated after
// creation.
type SensorPacket struct {
	StreamID       string
	Timestamp      int64 // unix ns, UTC
	TimeSource     TimeSource
	SyncConfidence uint8 // 0-100
	Domain         Domain
	SampleRate     uint32
	SampleCount    uint16
	Format         SampleFormat
	Channels       uint8
	Sequence       uint64
	Payload        []byte // little-endian samples
}

// Validate checks internal consistency of a packet.
func (p *SensorPacket) Validate() error {
	if p.StreamID == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "SensorPacket", "Validate", "stream id empty")
	}
	if p.SampleRate == 0 {
		return errors.WrapInvalid(errors.ErrInvalidData, "SensorPacket", "Validate", "sample rate zero")
	}
	if p.SyncConfidence > 100 {
		return errors.WrapInvalid(errors.ErrInvalidData, "SensorPacket", "Validate", "sync confidence above 100")
	}
	if p.Channels == 0 {
		return errors.WrapInvalid(errors.ErrInvalidData, "SensorPacket", "Validate", "channel count zero")
	}
	want := int(p.SampleCount) * int(p.Channels) * p.Format.BytesPerSample()
	if want != len(p.Payload) {
		return errors.WrapInvalid(errors.ErrInvalidData, "SensorPacket", "Validate", "payload length mismatch")
	}
	return nil
}

// Samples decodes the payload into float64 values, interleaved by channel.
// Int16 and Uint8 formats are scaled into [-1, 1].
func (p *SensorPacket) Samples() ([]float64, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	n := int(p.SampleCount) * int(p.Channels)
	out := make([]float64, n)

	switch p.Format {
	case FormatFloat32:
		for i := 0; i < n; i++ {
			bits := binary.LittleEndian.Uint32(p.Payload[i*4:])
			out[i] = float64(math.Float32frombits(bits))
		}
	case FormatInt16:
		for i := 0; i < n; i++ {
			v := int16(binary.LittleEndian.Uint16(p.Payload[i*2:]))
			out[i] = float64(v) / 32768.0
		}
	case FormatUint8:
		for i := 0; i < n; i++ {
			out[i] = (float64(p.Payload[i]) - 128.0) / 128.0
		}
	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "SensorPacket", "Samples", "unknown sample format")
	}

	return out, nil
}

// EncodeSamplesFloat32 packs float64 samples into a little-endian float32
// payload. The inverse of Samples for FormatFloat32.
func EncodeSamplesFloat32(samples []float64) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(float32(s)))
	}
	return out
}
