package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCapability() BridgeCapability {
	return BridgeCapability{
		BridgeID:      "acoustic-001",
		Owner:         "agent-a",
		Domain:        DomainAcoustic,
		FreqMinHz:     20,
		FreqMaxHz:     20000,
		MaxSampleRate: 48000,
		BitDepth:      16,
		Channels:      2,
		Transports:    []Transport{TransportNATS, TransportInproc},
		MixingOps:     []Operation{OpCrossCorr},
		Reputation:    500,
	}
}

func TestBridgeCapability_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*BridgeCapability)
		wantErr bool
	}{
		{"valid", func(*BridgeCapability) {}, false},
		{"zero sample rate", func(c *BridgeCapability) { c.MaxSampleRate = 0 }, true},
		{"missing id", func(c *BridgeCapability) { c.BridgeID = "" }, true},
		{"missing owner", func(c *BridgeCapability) { c.Owner = "" }, true},
		{"bad domain", func(c *BridgeCapability) { c.Domain = "telepathy" }, true},
		{"negative reputation", func(c *BridgeCapability) { c.Reputation = -1 }, true},
		{"reputation above 1000", func(c *BridgeCapability) { c.Reputation = 1001 }, true},
		{"inverted frequency range", func(c *BridgeCapability) { c.FreqMinHz, c.FreqMaxHz = 100, 10 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCapability()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSensorPacket_SamplesRoundTrip(t *testing.T) {
	samples := []float64{0.5, -0.25, 0.125, 1.0}
	pkt := SensorPacket{
		StreamID:    "s-1",
		Timestamp:   time.Now().UnixNano(),
		Domain:      DomainAcoustic,
		SampleRate:  48000,
		SampleCount: 4,
		Format:      FormatFloat32,
		Channels:    1,
		Payload:     EncodeSamplesFloat32(samples),
	}

	got, err := pkt.Samples()
	require.NoError(t, err)
	require.Len(t, got, 4)
	for i := range samples {
		assert.InDelta(t, samples[i], got[i], 1e-6)
	}
}

func TestSensorPacket_Int16Scaling(t *testing.T) {
	pkt := SensorPacket{
		StreamID:    "s-1",
		SampleRate:  1000,
		SampleCount: 2,
		Format:      FormatInt16,
		Channels:    1,
		Payload:     []byte{0x00, 0x40, 0x00, 0xc0}, // 16384, -16384
	}

	got, err := pkt.Samples()
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got[0], 1e-6)
	assert.InDelta(t, -0.5, got[1], 1e-6)
}

func TestSensorPacket_PayloadLengthMismatch(t *testing.T) {
	pkt := SensorPacket{
		StreamID:    "s-1",
		SampleRate:  1000,
		SampleCount: 4,
		Format:      FormatFloat32,
		Channels:    1,
		Payload:     make([]byte, 7),
	}
	assert.Error(t, pkt.Validate())
}

func TestCorrelationRequest_SameSource(t *testing.T) {
	req := CorrelationRequest{
		Streams: []StreamRef{
			{StreamID: "a", SourceGroup: "rig-1"},
			{StreamID: "b", SourceGroup: "rig-1"},
		},
		Op: OpCrossCorr,
	}
	assert.True(t, req.SameSource())

	req.Streams[1].SourceGroup = "rig-2"
	assert.False(t, req.SameSource())

	req.Streams[0].SourceGroup = ""
	req.Streams[1].SourceGroup = ""
	assert.False(t, req.SameSource())
}

func TestCorrelationRequest_Validate(t *testing.T) {
	req := CorrelationRequest{Streams: []StreamRef{{StreamID: "a"}}, Op: OpCrossCorr}
	assert.Error(t, req.Validate())

	req.Streams = append(req.Streams, StreamRef{StreamID: "b"})
	assert.NoError(t, req.Validate())

	req.Op = ""
	assert.Error(t, req.Validate())
}

func TestCorrelationResult_PeakLagDuration(t *testing.T) {
	r := CorrelationResult{PeakLag: 48, SampleRate: 48000}
	assert.Equal(t, time.Millisecond, r.PeakLagDuration())

	r.PeakLag = -48
	assert.Equal(t, -time.Millisecond, r.PeakLagDuration())
}

func TestPattern_Confirmations(t *testing.T) {
	p := Pattern{
		PatternID: "pat-1",
		DomainA:   DomainAcoustic,
		DomainB:   DomainVibration,
		Op:        OpCrossCorr,
	}

	assert.True(t, p.AddConfirmation("agent-b"))
	assert.True(t, p.AddConfirmation("agent-a"))
	assert.False(t, p.AddConfirmation("agent-a")) // idempotent per agent
	assert.Equal(t, []string{"agent-a", "agent-b"}, p.ConfirmedBy)
	assert.True(t, p.Confirmed("agent-b"))
	assert.False(t, p.Confirmed("agent-c"))
}

func TestPattern_MatchesDomains(t *testing.T) {
	p := Pattern{DomainA: DomainAcoustic, DomainB: DomainVibration}
	assert.True(t, p.MatchesDomains(DomainAcoustic, DomainVibration))
	assert.True(t, p.MatchesDomains(DomainVibration, DomainAcoustic))
	assert.False(t, p.MatchesDomains(DomainAcoustic, DomainThermal))
}
