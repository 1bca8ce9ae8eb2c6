package engine

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/bridgekit/correlation"
	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/metric"
	"github.com/c360/bridgekit/natsclient"
	"github.com/c360/bridgekit/pattern"
	"github.com/c360/bridgekit/registry"
	"github.com/c360/bridgekit/significance"
	"github.com/c360/bridgekit/stream"
	"github.com/c360/bridgekit/stream/transport"
	"github.com/c360/bridgekit/types"
)

const testEpoch = int64(1_700_000_000_000_000_000)

type pipeline struct {
	hub *transport.Hub
	reg *registry.Registry
	lib *pattern.Library
	eng *Engine
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()

	mr := metric.NewMetricsRegistry()
	core := mr.CoreMetrics()

	reg, err := registry.New(natsclient.NewStore(natsclient.NewMemoryKV()),
		registry.DefaultConfig(), nil, mr)
	require.NoError(t, err)

	mgr, err := stream.NewManager(reg, stream.DefaultConfig(), nil, core)
	require.NoError(t, err)
	hub := transport.NewHub()
	mgr.RegisterTransport(hub)

	corr, err := correlation.NewEngine(correlation.DefaultConfig(), nil, core)
	require.NoError(t, err)

	lib, err := pattern.NewLibrary(natsclient.NewStore(natsclient.NewMemoryKV()),
		pattern.DefaultConfig(), nil)
	require.NoError(t, err)

	eval, err := significance.NewEvaluator(significance.DefaultConfig(), nil, core, lib)
	require.NoError(t, err)

	eng, err := New(Options{
		AgentID:    "agent-1",
		Registry:   reg,
		Streams:    mgr,
		Correlator: corr,
		Evaluator:  eval,
		Library:    lib,
		Metrics:    core,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	return &pipeline{hub: hub, reg: reg, lib: lib, eng: eng}
}

func (p *pipeline) registerBridge(t *testing.T, id string, domain types.Domain, rate uint32, endpoint string) {
	t.Helper()
	err := p.reg.Register(context.Background(), types.BridgeCapability{
		BridgeID:      id,
		Owner:         "owner-" + id,
		Domain:        domain,
		FreqMinHz:     1,
		FreqMaxHz:     float64(rate) / 2,
		MaxSampleRate: rate,
		BitDepth:      32,
		Channels:      1,
		Transports:    []types.Transport{types.TransportInproc},
		MixingOps:     []types.Operation{types.OpCrossCorr, types.OpMultiply},
		Endpoint:      endpoint,
	}, "owner-"+id)
	require.NoError(t, err)
}

// publishSignal feeds one second-scale signal into the hub as a run of
// packets, a tenth of a second each.
func (p *pipeline) publishSignal(t *testing.T, streamID string, domain types.Domain, rate uint32, values []float64) {
	t.Helper()

	chunk := int(rate) / 10
	seq := uint64(1)
	for off := 0; off < len(values); off += chunk {
		end := off + chunk
		if end > len(values) {
			end = len(values)
		}
		samples := values[off:end]
		pkt := &types.SensorPacket{
			StreamID:    streamID,
			Timestamp:   testEpoch + int64(off)*int64(time.Second)/int64(rate),
			Domain:      domain,
			SampleRate:  rate,
			SampleCount: uint16(len(samples)),
			Format:      types.FormatFloat32,
			Channels:    1,
			Sequence:    seq,
			Payload:     types.EncodeSamplesFloat32(samples),
		}
		require.NoError(t, p.hub.Publish(context.Background(), pkt))
		seq++
	}
}

func noise(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.NormFloat64()
	}
	return out
}

// coupledSignals models a sound source and a vibration pickup on the same
// machine: the high-rate acoustic signal, and its decimation plus sensor
// noise at the low rate.
func coupledSignals(highRate, lowRate uint32, seed int64) ([]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	step := int(highRate / lowRate)

	acoustic := make([]float64, int(highRate))
	for i := range acoustic {
		acoustic[i] = math.Sin(2*math.Pi*float64(i)/float64(step*10)) + 0.2*rng.NormFloat64()
	}
	vibration := make([]float64, int(lowRate))
	for j := range vibration {
		vibration[j] = acoustic[step*j] + 0.05*rng.NormFloat64()
	}
	return acoustic, vibration
}

func TestCorrelate_CoLocatedAcousticVibration(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	// Both bridges hang off the same machine, so local mode can satisfy a
	// hard latency bound.
	p.registerBridge(t, "mic-1", types.DomainAcoustic, 48000, "site-1")
	p.registerBridge(t, "vibe-1", types.DomainVibration, 1000, "site-1")

	acoustic, vibration := coupledSignals(48000, 1000, 1)
	p.publishSignal(t, "mic-1.ch0", types.DomainAcoustic, 48000, acoustic)
	p.publishSignal(t, "vibe-1.ch0", types.DomainVibration, 1000, vibration)

	out, err := p.eng.Correlate(ctx, Request{
		URIA:       "bridge://mic-1/stream/ch0",
		URIB:       "bridge://vibe-1/stream/ch0",
		Op:         types.OpCrossCorr,
		Window:     time.Second,
		MaxLatency: 5 * time.Millisecond,
	})
	require.NoError(t, err)

	// Hard latency + co-location resolves to local execution.
	assert.Equal(t, types.ModeLocal, out.Result.Mode)
	assert.Equal(t, uint32(1000), out.Result.SampleRate)
	assert.Greater(t, out.Result.Peak, 0.8)

	// Mechanical coupling is effectively instantaneous at a 1 kHz timeline.
	lag := out.Result.PeakLagDuration()
	if lag < 0 {
		lag = -lag
	}
	assert.LessOrEqual(t, lag, time.Millisecond)

	require.True(t, out.Score.Meaningful)
	assert.True(t, out.Score.Causation.Passed)
	assert.GreaterOrEqual(t, out.Score.PassCount, 2)

	// The discovery landed in the pattern library under this agent's name.
	require.NotNil(t, out.Pattern)
	assert.Equal(t, "mechanical coupling", out.Pattern.Mechanism)
	assert.Equal(t, "agent-1", out.Pattern.Originator)

	stored, err := p.lib.Get(ctx, types.DomainAcoustic, types.DomainVibration, types.OpCrossCorr)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ReplicationCount)
}

func TestCorrelate_CrossSourceNoiseIsCoincidence(t *testing.T) {
	p := newPipeline(t)

	// Independent sites, unrelated signals.
	p.registerBridge(t, "mic-2", types.DomainAcoustic, 48000, "site-1")
	p.registerBridge(t, "vibe-2", types.DomainVibration, 1000, "site-2")

	p.publishSignal(t, "mic-2.ch0", types.DomainAcoustic, 48000, noise(48000, 77))
	p.publishSignal(t, "vibe-2.ch0", types.DomainVibration, 1000, noise(1000, 99))

	out, err := p.eng.Correlate(context.Background(), Request{
		URIA:   "bridge://mic-2/stream/ch0",
		URIB:   "bridge://vibe-2/stream/ch0",
		Op:     types.OpCrossCorr,
		Window: time.Second,
	})
	require.NoError(t, err)

	// No constraints and cross-source streams route remote.
	assert.Equal(t, types.ModeRemote, out.Result.Mode)
	assert.Less(t, out.Result.Peak, 0.3)

	assert.False(t, out.Score.Meaningful)
	assert.LessOrEqual(t, out.Score.PassCount, 1)
	assert.Nil(t, out.Pattern)

	_, err = p.lib.Get(context.Background(), types.DomainAcoustic, types.DomainVibration, types.OpCrossCorr)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestCorrelate_HardLatencyAcrossSitesFails(t *testing.T) {
	p := newPipeline(t)

	p.registerBridge(t, "mic-3", types.DomainAcoustic, 48000, "site-1")
	p.registerBridge(t, "vibe-3", types.DomainVibration, 1000, "site-2")

	acoustic, vibration := coupledSignals(48000, 1000, 2)
	p.publishSignal(t, "mic-3.ch0", types.DomainAcoustic, 48000, acoustic)
	p.publishSignal(t, "vibe-3.ch0", types.DomainVibration, 1000, vibration)

	// A sub-threshold latency bound cannot be met across sites; the pipeline
	// fails loudly instead of silently picking another mode.
	_, err := p.eng.Correlate(context.Background(), Request{
		URIA:       "bridge://mic-3/stream/ch0",
		URIB:       "bridge://vibe-3/stream/ch0",
		Op:         types.OpCrossCorr,
		Window:     time.Second,
		MaxLatency: 5 * time.Millisecond,
	})
	assert.ErrorIs(t, err, errors.ErrConstraintUnsatisfiable)
}

func TestCorrelate_UnknownBridge(t *testing.T) {
	p := newPipeline(t)

	_, err := p.eng.Correlate(context.Background(), Request{
		URIA: "bridge://ghost/stream/ch0",
		URIB: "bridge://ghost/stream/ch1",
		Op:   types.OpCrossCorr,
	})
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestCorrelate_CollectTimeout(t *testing.T) {
	p := newPipeline(t)
	p.registerBridge(t, "mic-4", types.DomainAcoustic, 48000, "site-1")
	p.registerBridge(t, "vibe-4", types.DomainVibration, 1000, "site-1")

	// No packets ever arrive; the observation window must respect the caller's
	// deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.eng.Correlate(ctx, Request{
		URIA:   "bridge://mic-4/stream/ch0",
		URIB:   "bridge://vibe-4/stream/ch0",
		Op:     types.OpCrossCorr,
		Window: time.Second,
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, errors.ErrStreamTimeout)
}

func TestDiscover_DelegatesToRegistry(t *testing.T) {
	p := newPipeline(t)
	p.registerBridge(t, "mic-5", types.DomainAcoustic, 48000, "site-1")
	p.registerBridge(t, "vibe-5", types.DomainVibration, 1000, "site-1")

	found, err := p.eng.Discover(context.Background(), types.DiscoveryQuery{
		Domains: []types.Domain{types.DomainAcoustic},
	})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "mic-5", found[0].Capability.BridgeID)
}
