package stream

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/natsclient"
	"github.com/c360/bridgekit/pkg/retry"
	"github.com/c360/bridgekit/registry"
	"github.com/c360/bridgekit/stream/transport"
	"github.com/c360/bridgekit/types"
)

func testManager(t *testing.T, config Config) (*Manager, *transport.Hub) {
	t.Helper()

	store := natsclient.NewStore(natsclient.NewMemoryKV())
	reg, err := registry.New(store, registry.DefaultConfig(), nil, nil)
	require.NoError(t, err)

	cap := types.BridgeCapability{
		BridgeID:      "b-1",
		Owner:         "agent-a",
		Domain:        types.DomainAcoustic,
		FreqMinHz:     20,
		FreqMaxHz:     20000,
		MaxSampleRate: 48000,
		BitDepth:      16,
		Channels:      2,
		Transports:    []types.Transport{types.TransportInproc},
		Reputation:    500,
	}
	require.NoError(t, reg.Register(context.Background(), cap, "agent-a"))

	m, err := NewManager(reg, config, nil, nil)
	require.NoError(t, err)

	hub := transport.NewHub()
	m.RegisterTransport(hub)
	t.Cleanup(func() { _ = m.Close() })
	return m, hub
}

func fastReconnect() retry.Config {
	return retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func makePacket(seq uint64) *types.SensorPacket {
	return &types.SensorPacket{
		StreamID:       "b-1.mic0",
		Timestamp:      time.Now().UnixNano(),
		TimeSource:     types.TimeSourceNTP,
		SyncConfidence: 90,
		Domain:         types.DomainAcoustic,
		SampleRate:     48000,
		SampleCount:    2,
		Format:         types.FormatInt16,
		Channels:       1,
		Sequence:       seq,
		Payload:        []byte{0x00, 0x10, 0x00, 0x20},
	}
}

func TestSubscribe_DeliversPacketsInOrder(t *testing.T) {
	m, hub := testManager(t, DefaultConfig())
	ctx := context.Background()

	s, err := m.Subscribe(ctx, "bridge://b-1/stream/mic0?rate=48000", SubscribeOptions{})
	require.NoError(t, err)
	assert.Equal(t, StateOpen, s.State())
	assert.Equal(t, types.TransportInproc, s.Transport)

	for seq := uint64(1); seq <= 3; seq++ {
		require.NoError(t, hub.Publish(ctx, makePacket(seq)))
	}

	require.Eventually(t, func() bool { return s.Buffered() == 3 },
		time.Second, 5*time.Millisecond)

	pkts := s.ReadBatch(10)
	require.Len(t, pkts, 3)
	for i, pkt := range pkts {
		assert.Equal(t, uint64(i+1), pkt.Sequence)
	}
}

func TestSubscribe_RejectsExcessiveRate(t *testing.T) {
	m, _ := testManager(t, DefaultConfig())

	_, err := m.Subscribe(context.Background(),
		"bridge://b-1/stream/mic0?rate=96000", SubscribeOptions{})
	assert.ErrorIs(t, err, errors.ErrRejectedParams)
}

func TestSubscribe_RejectsUnknownBridge(t *testing.T) {
	m, _ := testManager(t, DefaultConfig())

	_, err := m.Subscribe(context.Background(),
		"bridge://ghost/stream/mic0", SubscribeOptions{})
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestSubscribe_SyncSourcePreference(t *testing.T) {
	m, _ := testManager(t, DefaultConfig())

	s, err := m.Subscribe(context.Background(), "bridge://b-1/stream/mic0",
		SubscribeOptions{SyncSources: []types.TimeSource{
			types.TimeSourceLocal, types.TimeSourceNTP, types.TimeSourcePeerClock,
		}})
	require.NoError(t, err)
	assert.Equal(t, types.TimeSourceNTP, s.SyncQuality().Source)
}

func TestSession_DropsDuplicatesAndReorders(t *testing.T) {
	m, hub := testManager(t, DefaultConfig())
	ctx := context.Background()

	s, err := m.Subscribe(ctx, "bridge://b-1/stream/mic0", SubscribeOptions{})
	require.NoError(t, err)

	require.NoError(t, hub.Publish(ctx, makePacket(1)))
	require.NoError(t, hub.Publish(ctx, makePacket(2)))
	require.NoError(t, hub.Publish(ctx, makePacket(2))) // duplicate
	require.NoError(t, hub.Publish(ctx, makePacket(1))) // reorder
	require.NoError(t, hub.Publish(ctx, makePacket(3)))

	require.Eventually(t, func() bool { return s.Buffered() == 3 },
		time.Second, 5*time.Millisecond)

	pkts := s.ReadBatch(10)
	require.Len(t, pkts, 3)
	assert.Equal(t, uint64(3), pkts[2].Sequence)
}

// failOnReopen hands out one working connection, then fails every reconnect.
type failOnReopen struct {
	hub   *transport.Hub
	opens atomic.Int32
}

func (f *failOnReopen) Kind() types.Transport { return types.TransportInproc }

func (f *failOnReopen) Open(ctx context.Context, endpoint, streamID string) (transport.Conn, error) {
	if f.opens.Add(1) > 1 {
		return nil, errors.ErrNoConnection
	}
	return f.hub.Open(ctx, endpoint, streamID)
}

func TestSession_SequenceGapExhaustsToSyncLost(t *testing.T) {
	config := DefaultConfig()
	config.GapTolerance = 2
	config.Reconnect = fastReconnect()
	m, hub := testManager(t, config)
	ctx := context.Background()

	// Replace the working hub transport with one whose reconnects fail.
	m.RegisterTransport(&failOnReopen{hub: hub})

	s, err := m.Subscribe(ctx, "bridge://b-1/stream/mic0", SubscribeOptions{})
	require.NoError(t, err)

	require.NoError(t, hub.Publish(ctx, makePacket(1)))
	require.NoError(t, hub.Publish(ctx, makePacket(10))) // gap of 8 > tolerance 2

	require.Eventually(t, func() bool { return s.State() == StateError },
		2*time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, s.Err(), errors.ErrSyncLost)
}

// failingConn wraps a working connection but errors every Receive, pushing
// the session straight into its reconnect path.
type failingConn struct {
	transport.Conn
}

func (c *failingConn) Receive(context.Context) (*types.SensorPacket, error) {
	return nil, errors.ErrNoConnection
}

// slowReopen dials successfully after a short delay, leaving a window where
// a concurrent Close lands mid-reconnect.
type slowReopen struct {
	hub *transport.Hub
}

func (f *slowReopen) Kind() types.Transport { return types.TransportInproc }

func (f *slowReopen) Open(ctx context.Context, endpoint, streamID string) (transport.Conn, error) {
	time.Sleep(200 * time.Microsecond)
	conn, err := f.hub.Open(ctx, endpoint, streamID)
	if err != nil {
		return nil, err
	}
	return &failingConn{Conn: conn}, nil
}

func TestSession_CloseDuringReconnect(t *testing.T) {
	config := DefaultConfig()
	config.Reconnect = fastReconnect()

	for i := 0; i < 50; i++ {
		m, hub := testManager(t, config)
		m.RegisterTransport(&slowReopen{hub: hub})

		s, err := m.Subscribe(context.Background(), "bridge://b-1/stream/mic0", SubscribeOptions{})
		require.NoError(t, err)

		// Stagger the close across the dial window so it lands before,
		// during and after the connection swap.
		time.Sleep(time.Duration(i%8) * 50 * time.Microsecond)
		_ = s.Close()
		assert.Equal(t, StateClosed, s.State())
	}
}

func TestSession_GapWithinToleranceIsAccepted(t *testing.T) {
	config := DefaultConfig()
	config.GapTolerance = 4
	m, hub := testManager(t, config)
	ctx := context.Background()

	s, err := m.Subscribe(ctx, "bridge://b-1/stream/mic0", SubscribeOptions{})
	require.NoError(t, err)

	require.NoError(t, hub.Publish(ctx, makePacket(1)))
	require.NoError(t, hub.Publish(ctx, makePacket(4))) // gap of 2 <= tolerance

	require.Eventually(t, func() bool { return s.Buffered() == 2 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, StateOpen, s.State())
}

func TestSession_BackpressurePausesAndResumes(t *testing.T) {
	config := DefaultConfig()
	config.BufferCapacity = 8
	config.HighWater = 0.5
	config.LowWater = 0.25
	m, hub := testManager(t, config)
	ctx := context.Background()

	s, err := m.Subscribe(ctx, "bridge://b-1/stream/mic0", SubscribeOptions{})
	require.NoError(t, err)

	controls := hub.Controls("b-1.mic0")

	for seq := uint64(1); seq <= 6; seq++ {
		require.NoError(t, hub.Publish(ctx, makePacket(seq)))
	}

	require.Eventually(t, func() bool { return s.State() == StatePaused },
		time.Second, 5*time.Millisecond)

	select {
	case msg := <-controls:
		assert.Equal(t, transport.ControlPause, msg.Control)
	case <-time.After(time.Second):
		t.Fatal("no pause control message")
	}

	// Draining below the low-water mark resumes the stream.
	s.ReadBatch(10)
	require.Eventually(t, func() bool { return s.State() == StateOpen },
		time.Second, 5*time.Millisecond)

	select {
	case msg := <-controls:
		assert.Equal(t, transport.ControlResume, msg.Control)
	case <-time.After(time.Second):
		t.Fatal("no resume control message")
	}
}

func TestUnsubscribe_ClosesSession(t *testing.T) {
	m, _ := testManager(t, DefaultConfig())

	s, err := m.Subscribe(context.Background(), "bridge://b-1/stream/mic0", SubscribeOptions{})
	require.NoError(t, err)

	require.NoError(t, m.Unsubscribe(s.ID))
	assert.Equal(t, StateClosed, s.State())

	_, ok := m.Session(s.ID)
	assert.False(t, ok)

	err = m.Unsubscribe(s.ID)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}
