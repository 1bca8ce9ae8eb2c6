package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/natsclient"
	"github.com/c360/bridgekit/types"
)

func newTestRegistry(t *testing.T) (*Registry, *int64) {
	t.Helper()

	store := natsclient.NewStore(natsclient.NewMemoryKV())
	reg, err := New(store, DefaultConfig(), nil, nil)
	require.NoError(t, err)

	// Controllable clock
	now := time.Now().UnixNano()
	reg.now = func() int64 { return now }
	reg.auth.now = reg.now
	return reg, &now
}

func acousticBridge(id, owner string) types.BridgeCapability {
	return types.BridgeCapability{
		BridgeID:      id,
		Owner:         owner,
		Domain:        types.DomainAcoustic,
		FreqMinHz:     20,
		FreqMaxHz:     20000,
		MaxSampleRate: 48000,
		BitDepth:      16,
		Channels:      1,
		Transports:    []types.Transport{types.TransportInproc, types.TransportNATS},
		Reputation:    500,
	}
}

func TestRegister_RejectsZeroSampleRate(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	cap := acousticBridge("b-1", "agent-a")
	cap.MaxSampleRate = 0

	err := reg.Register(ctx, cap, "agent-a")
	assert.Error(t, err)

	// Nothing persisted
	_, err = reg.Get(ctx, "b-1")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestRegister_RejectsNonOwner(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	err := reg.Register(ctx, acousticBridge("b-1", "agent-a"), "agent-b")
	assert.ErrorIs(t, err, errors.ErrAuthFailed)
}

func TestDiscover_FiltersAndSorts(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	high := acousticBridge("high-rep", "agent-a")
	high.Reputation = 900
	low := acousticBridge("low-rep", "agent-a")
	low.Reputation = 100
	vib := acousticBridge("vib-1", "agent-a")
	vib.Domain = types.DomainVibration
	vib.FreqMaxHz = 1000
	vib.MaxSampleRate = 1000

	require.NoError(t, reg.Register(ctx, high, "agent-a"))
	require.NoError(t, reg.Register(ctx, low, "agent-a"))
	require.NoError(t, reg.Register(ctx, vib, "agent-a"))

	got, err := reg.Discover(ctx, types.DiscoveryQuery{
		Domains: []types.Domain{types.DomainAcoustic},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "high-rep", got[0].Capability.BridgeID)
	assert.Equal(t, "low-rep", got[1].Capability.BridgeID)
	assert.GreaterOrEqual(t, got[0].Score, got[1].Score)

	// OR-filter over two domains finds all three
	got, err = reg.Discover(ctx, types.DiscoveryQuery{
		Domains: []types.Domain{types.DomainAcoustic, types.DomainVibration},
	})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestDiscover_RecentEntryScoresHigher(t *testing.T) {
	reg, now := newTestRegistry(t)
	ctx := context.Background()

	older := acousticBridge("older", "agent-a")
	require.NoError(t, reg.Register(ctx, older, "agent-a"))

	// Second registration 30s later, all else equal
	*now += int64(30 * time.Second)
	newer := acousticBridge("newer", "agent-a")
	require.NoError(t, reg.Register(ctx, newer, "agent-a"))

	got, err := reg.Discover(ctx, types.DiscoveryQuery{Domains: []types.Domain{types.DomainAcoustic}})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "newer", got[0].Capability.BridgeID)
	assert.GreaterOrEqual(t, got[0].Score, got[1].Score)
}

func TestDiscover_ExcludesStaleEntries(t *testing.T) {
	reg, now := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, acousticBridge("b-1", "agent-a"), "agent-a"))

	*now += int64(2 * time.Minute) // beyond the 60s heartbeat window
	_, err := reg.Discover(ctx, types.DiscoveryQuery{Domains: []types.Domain{types.DomainAcoustic}})
	assert.ErrorIs(t, err, errors.ErrNotFound)

	// A heartbeat revives it without re-registration
	require.NoError(t, reg.Heartbeat(ctx, "b-1"))
	got, err := reg.Discover(ctx, types.DiscoveryQuery{Domains: []types.Domain{types.DomainAcoustic}})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestHeartbeat_UnknownBridge(t *testing.T) {
	reg, _ := newTestRegistry(t)
	err := reg.Heartbeat(context.Background(), "ghost")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestRate_UpdatesReputationAndLimits(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, acousticBridge("b-1", "agent-a"), "agent-a"))

	require.NoError(t, reg.Rate(ctx, "b-1", "rater-1", 80))
	cap, err := reg.Get(ctx, "b-1")
	require.NoError(t, err)
	assert.InDelta(t, 800.0, cap.Reputation, 0.01)

	// Second vote from the same rater inside the interval is rejected
	err = reg.Rate(ctx, "b-1", "rater-1", 100)
	assert.ErrorIs(t, err, errors.ErrRateLimited)

	// A different rater is allowed; reputation becomes the mean
	require.NoError(t, reg.Rate(ctx, "b-1", "rater-2", 40))
	cap, err = reg.Get(ctx, "b-1")
	require.NoError(t, err)
	assert.InDelta(t, 600.0, cap.Reputation, 0.01)
}

func TestRate_ScoreOutOfRange(t *testing.T) {
	reg, _ := newTestRegistry(t)
	err := reg.Rate(context.Background(), "b-1", "rater-1", 101)
	assert.Error(t, err)
}

func TestDiscover_TransportAndCostFilters(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	cheap := acousticBridge("cheap", "agent-a")
	cheap.CostPerKS = 10
	pricey := acousticBridge("pricey", "agent-a")
	pricey.CostPerKS = 5000
	require.NoError(t, reg.Register(ctx, cheap, "agent-a"))
	require.NoError(t, reg.Register(ctx, pricey, "agent-a"))

	got, err := reg.Discover(ctx, types.DiscoveryQuery{
		Domains:      []types.Domain{types.DomainAcoustic},
		MaxCostPerKS: 100,
		Transports:   []types.Transport{types.TransportNATS},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "cheap", got[0].Capability.BridgeID)
}
