// Package stream implements the stream session manager: it negotiates,
// synchronizes and multiplexes live sample streams from bridges, with
// explicit flow control and sequence-gap recovery.
package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/metric"
	"github.com/c360/bridgekit/pkg/buffer"
	"github.com/c360/bridgekit/pkg/retry"
	"github.com/c360/bridgekit/registry"
	"github.com/c360/bridgekit/stream/transport"
	"github.com/c360/bridgekit/types"
)

// transportPreference is the deterministic order transports are chosen in
// when a bridge supports more than one.
var transportPreference = []types.Transport{
	types.TransportInproc,
	types.TransportNATS,
	types.TransportWebSocket,
	types.TransportMQTT,
}

// Config holds session manager tuning parameters.
type Config struct {
	// BufferCapacity is the per-session packet buffer size.
	BufferCapacity int `json:"buffer_capacity"`

	// GapTolerance is the largest acceptable sequence gap before the session
	// transitions to ERROR and reconnects.
	GapTolerance uint64 `json:"gap_tolerance"`

	// HighWater and LowWater are buffer occupancy fractions for entering and
	// leaving PAUSED.
	HighWater float64 `json:"high_water"`
	LowWater  float64 `json:"low_water"`

	// Reconnect configures the backoff for gap and connection recovery.
	Reconnect retry.Config `json:"reconnect"`
}

// DefaultConfig returns the session manager defaults.
func DefaultConfig() Config {
	return Config{
		BufferCapacity: 1024,
		GapTolerance:   8,
		HighWater:      0.9,
		LowWater:       0.5,
		Reconnect: retry.Config{
			MaxAttempts:  5,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Multiplier:   2.0,
			AddJitter:    true,
		},
	}
}

// Validate checks config sanity.
func (c Config) Validate() error {
	if c.BufferCapacity <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "stream.Config", "Validate",
			"buffer capacity must be positive")
	}
	if c.HighWater <= 0 || c.HighWater > 1 || c.LowWater < 0 || c.LowWater >= c.HighWater {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "stream.Config", "Validate",
			"water marks must satisfy 0 <= low < high <= 1")
	}
	return nil
}

// SubscribeOptions tune one subscription.
type SubscribeOptions struct {
	// RealTime selects the documented drop-oldest ring buffer instead of
	// blocking backpressure. Only hard-real-time local-mode feeds should set
	// this; dropped packets are counted, never silent.
	RealTime bool

	// SyncSources lists the time sources the bridge offers, as learned during
	// negotiation. Empty means local clock only.
	SyncSources []types.TimeSource
}

// Manager negotiates and tracks stream sessions.
type Manager struct {
	registry   *registry.Registry
	transports map[types.Transport]transport.Transport
	config     Config
	logger     *slog.Logger
	core       *metric.Metrics

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager. Transports are registered separately
// so deployments can enable only what they carry.
func NewManager(reg *registry.Registry, config Config, logger *slog.Logger, core *metric.Metrics) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		registry:   reg,
		transports: make(map[types.Transport]transport.Transport),
		config:     config,
		logger:     logger.With("component", "stream"),
		core:       core,
		sessions:   make(map[string]*Session),
	}, nil
}

// RegisterTransport makes a transport available for session negotiation.
func (m *Manager) RegisterTransport(t transport.Transport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transports[t.Kind()] = t
}

// Subscribe parses the bridge URI, validates the requested parameters against
// the bridge's advertised capability, negotiates transport and sync source,
// and returns an OPEN session.
func (m *Manager) Subscribe(ctx context.Context, rawURI string, opts SubscribeOptions) (*Session, error) {
	uri, err := ParseURI(rawURI)
	if err != nil {
		return nil, err
	}

	cap, err := m.registry.Get(ctx, uri.BridgeID)
	if err != nil {
		return nil, err
	}
	if err := m.validateParams(uri, cap); err != nil {
		return nil, err
	}

	tr, err := m.chooseTransport(cap)
	if err != nil {
		return nil, err
	}

	rate := uri.Rate
	if rate == 0 {
		rate = cap.MaxSampleRate
	}
	channels := uri.Channels
	if channels == 0 {
		channels = cap.Channels
	}
	format := uri.Format
	if !uri.HasFormat {
		format = formatForBitDepth(cap.BitDepth)
	}

	streamID := uri.BridgeID + "." + uri.StreamSpec

	s := &Session{
		ID:           uuid.NewString(),
		URI:          uri,
		BridgeID:     uri.BridgeID,
		StreamID:     streamID,
		Domain:       cap.Domain,
		SampleRate:   rate,
		Format:       format,
		Channels:     channels,
		Transport:    tr.Kind(),
		sourceGroup:  cap.Endpoint,
		state:        newStateMachine(),
		logger:       m.logger,
		core:         m.core,
		gapTolerance: m.config.GapTolerance,
		reconnect:    m.config.Reconnect,
		highWater:    m.config.HighWater,
		lowWater:     m.config.LowWater,
		sync:         types.SyncQuality{Source: chooseSyncSource(opts.SyncSources)},
		done:         make(chan struct{}),
	}
	s.opener = func(ctx context.Context) (transport.Conn, error) {
		return tr.Open(ctx, cap.Endpoint, streamID)
	}

	bufOpts := []buffer.Option[*types.SensorPacket]{}
	if opts.RealTime {
		bufOpts = append(bufOpts,
			buffer.WithOverflowPolicy[*types.SensorPacket](buffer.DropOldest),
			buffer.WithDropCallback[*types.SensorPacket](func(pkt *types.SensorPacket) {
				if m.core != nil {
					m.core.PacketsDropped.WithLabelValues(s.ID, string(pkt.Domain)).Inc()
				}
			}))
	}
	s.buf, err = buffer.NewRing[*types.SensorPacket](m.config.BufferCapacity, bufOpts...)
	if err != nil {
		return nil, err
	}

	if err := s.state.transition(StateNegotiating); err != nil {
		return nil, err
	}

	conn, err := tr.Open(ctx, cap.Endpoint, streamID)
	if err != nil {
		_ = s.state.transition(StateError)
		return nil, errors.WithContext(
			errors.WrapTransient(err, "Manager", "Subscribe", "transport open"),
			errors.Context{BridgeID: uri.BridgeID, StreamID: streamID})
	}
	s.conn = conn

	if err := s.state.transition(StateOpen); err != nil {
		_ = conn.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.run(runCtx)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.logger.Info("session open",
		"session", s.ID, "bridge", uri.BridgeID, "stream", streamID,
		"transport", tr.Kind(), "rate", rate, "sync", s.sync.Source)
	return s, nil
}

// Unsubscribe closes a session and releases its resources.
func (m *Manager) Unsubscribe(sessionID string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if !ok {
		return errors.WithContext(errors.ErrNotFound, errors.Context{StreamID: sessionID})
	}
	return s.Close()
}

// Session returns a tracked session by id.
func (m *Manager) Session(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// Close shuts down all sessions.
func (m *Manager) Close() error {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var firstErr error
	for _, s := range sessions {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// validateParams checks the requested rate, format and channel count against
// the advertised capability. Violations are ErrRejectedParams, surfaced
// before any transport work happens.
func (m *Manager) validateParams(uri *StreamURI, cap *types.BridgeCapability) error {
	reject := func(action string) error {
		return errors.WithContext(
			errors.WrapInvalid(errors.ErrRejectedParams, "Manager", "Subscribe", action),
			errors.Context{BridgeID: uri.BridgeID})
	}

	if uri.Rate > cap.MaxSampleRate {
		return reject("requested rate above advertised maximum")
	}
	if uri.Channels > cap.Channels {
		return reject("requested channels above advertised count")
	}
	if uri.HasFormat && uri.Format.BytesPerSample()*8 > int(cap.BitDepth) {
		return reject("requested format wider than advertised bit depth")
	}
	return nil
}

// formatForBitDepth picks the narrowest sample format that carries the
// bridge's advertised bit depth.
func formatForBitDepth(bits uint8) types.SampleFormat {
	switch {
	case bits > 16:
		return types.FormatFloat32
	case bits > 8:
		return types.FormatInt16
	default:
		return types.FormatUint8
	}
}

// chooseTransport picks the first mutually supported transport in preference
// order.
func (m *Manager) chooseTransport(cap *types.BridgeCapability) (transport.Transport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, kind := range transportPreference {
		if !cap.SupportsTransport(kind) {
			continue
		}
		if tr, ok := m.transports[kind]; ok {
			return tr, nil
		}
	}
	return nil, errors.WithContext(
		errors.WrapInvalid(errors.ErrRejectedParams, "Manager", "Subscribe",
			"no mutually supported transport"),
		errors.Context{BridgeID: cap.BridgeID})
}

// chooseSyncSource picks the best offered time source. TimeSource values are
// already ordered by preference: hardware pulse, then NTP, then peer clock,
// then local.
func chooseSyncSource(offered []types.TimeSource) types.TimeSource {
	best := types.TimeSourceLocal
	for _, src := range offered {
		if src < best {
			best = src
		}
	}
	return best
}
