// Package wire implements the binary sensor-packet codec shared by all
// stream transports.
package wire

import (
	"encoding/binary"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/types"
)

// Wire layout, fixed field order, little-endian numerics:
//
//	magic        u32  "BKWP"
//	version      u8
//	id length    u16  followed by stream-id bytes
//	timestamp    u64  unix ns, UTC
//	time source  u8
//	sync conf    u8   0-100
//	domain       u8
//	sample rate  u32
//	sample count u16
//	format       u8
//	channels     u8
//	sequence     u64
//	payload len  u32  followed by payload bytes
const (
	wireMagic   uint32 = 0x50574B42 // "BKWP" little-endian on the wire
	wireVersion uint8  = 1

	// Fixed part of the header, excluding stream id and payload bytes.
	wireHeaderSize = 4 + 1 + 2 + 8 + 1 + 1 + 1 + 4 + 2 + 1 + 1 + 8 + 4

	maxStreamIDLen = 255
	maxPayloadLen  = 1 << 24
)

// domainTags maps sensing domains to wire tags. Tags are append-only: new
// domains take the next free value, existing values never change.
var domainTags = map[types.Domain]uint8{
	types.DomainAcoustic:   0,
	types.DomainVibration:  1,
	types.DomainOptical:    2,
	types.DomainInfrared:   3,
	types.DomainRF:         4,
	types.DomainMMWave:     5,
	types.DomainMagnetic:   6,
	types.DomainCapacitive: 7,
	types.DomainThermal:    8,
	types.DomainOther:      9,
}

var domainFromTag = func() map[uint8]types.Domain {
	m := make(map[uint8]types.Domain, len(domainTags))
	for d, tag := range domainTags {
		m[tag] = d
	}
	return m
}()

// EncodePacket serializes a packet into the wire layout. The packet is
// validated first; invalid packets are never put on the wire.
func EncodePacket(p *types.SensorPacket) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(p.StreamID) > maxStreamIDLen {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "wire", "EncodePacket",
			"stream id too long")
	}
	tag, ok := domainTags[p.Domain]
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "wire", "EncodePacket",
			"unknown domain "+string(p.Domain))
	}

	buf := make([]byte, 0, wireHeaderSize+len(p.StreamID)+len(p.Payload))

	buf = binary.LittleEndian.AppendUint32(buf, wireMagic)
	buf = append(buf, wireVersion)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(p.StreamID)))
	buf = append(buf, p.StreamID...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(p.Timestamp))
	buf = append(buf, uint8(p.TimeSource))
	buf = append(buf, p.SyncConfidence)
	buf = append(buf, tag)
	buf = binary.LittleEndian.AppendUint32(buf, p.SampleRate)
	buf = binary.LittleEndian.AppendUint16(buf, p.SampleCount)
	buf = append(buf, uint8(p.Format))
	buf = append(buf, p.Channels)
	buf = binary.LittleEndian.AppendUint64(buf, p.Sequence)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(p.Payload)))
	buf = append(buf, p.Payload...)

	return buf, nil
}

// DecodePacket parses a wire frame back into a packet. Truncated or
// inconsistent frames are rejected with ErrInvalidData.
func DecodePacket(data []byte) (*types.SensorPacket, error) {
	r := wireReader{data: data}

	magic, err := r.uint32()
	if err != nil {
		return nil, err
	}
	if magic != wireMagic {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "wire", "DecodePacket",
			"bad magic marker")
	}
	version, err := r.uint8()
	if err != nil {
		return nil, err
	}
	if version != wireVersion {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "wire", "DecodePacket",
			"unsupported wire version")
	}

	idLen, err := r.uint16()
	if err != nil {
		return nil, err
	}
	if idLen == 0 || idLen > maxStreamIDLen {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "wire", "DecodePacket",
			"stream id length out of range")
	}
	idBytes, err := r.bytes(int(idLen))
	if err != nil {
		return nil, err
	}

	p := &types.SensorPacket{StreamID: string(idBytes)}

	ts, err := r.uint64()
	if err != nil {
		return nil, err
	}
	p.Timestamp = int64(ts)

	source, err := r.uint8()
	if err != nil {
		return nil, err
	}
	p.TimeSource = types.TimeSource(source)

	if p.SyncConfidence, err = r.uint8(); err != nil {
		return nil, err
	}

	tag, err := r.uint8()
	if err != nil {
		return nil, err
	}
	domain, ok := domainFromTag[tag]
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "wire", "DecodePacket",
			"unknown domain tag")
	}
	p.Domain = domain

	if p.SampleRate, err = r.uint32(); err != nil {
		return nil, err
	}
	if p.SampleCount, err = r.uint16(); err != nil {
		return nil, err
	}

	format, err := r.uint8()
	if err != nil {
		return nil, err
	}
	p.Format = types.SampleFormat(format)

	if p.Channels, err = r.uint8(); err != nil {
		return nil, err
	}
	if p.Sequence, err = r.uint64(); err != nil {
		return nil, err
	}

	payloadLen, err := r.uint32()
	if err != nil {
		return nil, err
	}
	if payloadLen > maxPayloadLen {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "wire", "DecodePacket",
			"payload length out of range")
	}
	if p.Payload, err = r.bytes(int(payloadLen)); err != nil {
		return nil, err
	}
	if r.remaining() != 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "wire", "DecodePacket",
			"trailing bytes after payload")
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// wireReader is a bounds-checked cursor over a frame.
type wireReader struct {
	data []byte
	off  int
}

func (r *wireReader) remaining() int { return len(r.data) - r.off }

func (r *wireReader) need(n int) error {
	if r.remaining() < n {
		return errors.WrapInvalid(errors.ErrInvalidData, "wire", "DecodePacket",
			"truncated frame")
	}
	return nil
}

func (r *wireReader) uint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.data[r.off]
	r.off++
	return v, nil
}

func (r *wireReader) uint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v, nil
}

func (r *wireReader) uint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v, nil
}

func (r *wireReader) uint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.data[r.off:])
	r.off += 8
	return v, nil
}

func (r *wireReader) bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.data[r.off:r.off+n])
	r.off += n
	return out, nil
}
