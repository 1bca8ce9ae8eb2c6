// Package engine wires the subsystems into one correlation pipeline: discover
// bridges, open stream sessions, align samples onto a common timeline, run the
// correlation, judge significance, and publish meaningful discoveries to the
// pattern library.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/c360/bridgekit/correlation"
	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/metric"
	"github.com/c360/bridgekit/pattern"
	"github.com/c360/bridgekit/registry"
	"github.com/c360/bridgekit/significance"
	"github.com/c360/bridgekit/stream"
	"github.com/c360/bridgekit/types"
)

// Options holds the engine's collaborators. Registry, stream manager,
// correlator and evaluator are required; the pattern library is optional and
// disables publishing when absent.
type Options struct {
	AgentID    string
	Registry   *registry.Registry
	Streams    *stream.Manager
	Correlator *correlation.Engine
	Evaluator  *significance.Evaluator
	Library    *pattern.Library
	Logger     *slog.Logger
	Metrics    *metric.Metrics
}

// Engine is the top-level pipeline orchestrator.
type Engine struct {
	agentID    string
	registry   *registry.Registry
	streams    *stream.Manager
	correlator *correlation.Engine
	evaluator  *significance.Evaluator
	library    *pattern.Library
	logger     *slog.Logger
	core       *metric.Metrics
}

// New creates an engine from its collaborators.
func New(opts Options) (*Engine, error) {
	if opts.AgentID == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Engine", "New",
			"agent id is required")
	}
	if opts.Registry == nil || opts.Streams == nil || opts.Correlator == nil || opts.Evaluator == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Engine", "New",
			"registry, stream manager, correlator and evaluator are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		agentID:    opts.AgentID,
		registry:   opts.Registry,
		streams:    opts.Streams,
		correlator: opts.Correlator,
		evaluator:  opts.Evaluator,
		library:    opts.Library,
		logger:     logger.With("component", "engine"),
		core:       opts.Metrics,
	}, nil
}

// Discover delegates to the capability registry.
func (e *Engine) Discover(ctx context.Context, query types.DiscoveryQuery) ([]types.Candidate, error) {
	return e.registry.Discover(ctx, query)
}

// Request describes one end-to-end correlation: two bridge stream URIs, the
// mixing operation, and the execution constraints passed through to the
// correlator.
type Request struct {
	URIA string
	URIB string
	Op   types.Operation

	// Window is the observation length collected from each stream before
	// alignment.
	Window time.Duration

	Mode          types.ExecutionMode
	MaxLatency    time.Duration
	Privacy       types.PrivacyLevel
	ComputeBudget types.ComputeBudget

	// Subscribe options applied to both sessions.
	RealTime    bool
	SyncSources []types.TimeSource
}

// Outcome is the result of one pipeline run.
type Outcome struct {
	Result *types.CorrelationResult
	Score  *types.SignificanceScore

	// Pattern is set when the verdict was meaningful and the discovery was
	// published to the pattern library.
	Pattern *types.Pattern
}

// Correlate runs the full pipeline for one stream pair. Sessions are opened
// for the duration of the call and closed before it returns.
func (e *Engine) Correlate(ctx context.Context, req Request) (*Outcome, error) {
	if req.Op == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "Engine", "Correlate",
			"operation is required")
	}
	window := req.Window
	if window <= 0 {
		window = time.Second
	}

	opts := stream.SubscribeOptions{RealTime: req.RealTime, SyncSources: req.SyncSources}
	sessA, err := e.streams.Subscribe(ctx, req.URIA, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = e.streams.Unsubscribe(sessA.ID) }()

	sessB, err := e.streams.Subscribe(ctx, req.URIB, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = e.streams.Unsubscribe(sessB.ID) }()

	samplesA, err := e.collect(ctx, sessA, window)
	if err != nil {
		return nil, err
	}
	samplesB, err := e.collect(ctx, sessB, window)
	if err != nil {
		return nil, err
	}

	bundle, err := stream.Align([]stream.StreamSamples{*samplesA, *samplesB})
	if err != nil {
		return nil, err
	}

	creq := &types.CorrelationRequest{
		RequestID:     uuid.NewString(),
		Streams:       []types.StreamRef{streamRef(sessA), streamRef(sessB)},
		Op:            req.Op,
		Mode:          req.Mode,
		MaxLatency:    req.MaxLatency,
		Privacy:       req.Privacy,
		ComputeBudget: req.ComputeBudget,
	}

	result, err := e.correlator.Compute(ctx, creq, [][]float64{bundle.Values(0), bundle.Values(1)})
	if err != nil {
		return nil, err
	}

	score, err := e.evaluator.Evaluate(significance.Input{
		Result:  result,
		DomainA: sessA.Domain,
		DomainB: sessB.Domain,
		SignalA: bundle.Values(0),
		SignalB: bundle.Values(1),
	})
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{Result: result, Score: score}
	if score.Meaningful && e.library != nil {
		outcome.Pattern = e.publish(ctx, sessA.Domain, sessB.Domain, req.Op, score)
	}

	e.logger.Info("correlation complete",
		"request", creq.RequestID, "op", req.Op, "mode", result.Mode,
		"peak", result.Peak, "lag", result.PeakLag, "meaningful", score.Meaningful)
	return outcome, nil
}

// collect drains a session until it has one observation window of samples.
// A session dropping into ERROR surfaces its cause instead of blocking.
func (e *Engine) collect(ctx context.Context, s *stream.Session, window time.Duration) (*stream.StreamSamples, error) {
	target := int(int64(s.SampleRate) * int64(window) / int64(time.Second))
	if target < 1 {
		target = 1
	}

	var packets []*types.SensorPacket
	have := 0
	for have < target {
		batch := s.ReadBatch(64)
		for _, pkt := range batch {
			packets = append(packets, pkt)
			have += int(pkt.SampleCount)
		}
		if have >= target {
			break
		}
		if len(batch) == 0 {
			if s.State() == stream.StateError {
				return nil, s.Err()
			}
			select {
			case <-ctx.Done():
				return nil, errors.WithContext(
					errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrStreamTimeout, ctx.Err()),
						"Engine", "collect", "observation window"),
					errors.Context{StreamID: s.StreamID})
			case <-time.After(time.Millisecond):
			}
		}
	}

	return stream.CollectSamples(s.StreamID, s.Domain, packets)
}

// streamRef derives the correlator's view of a session. Sessions served from
// the same endpoint share a source group and count as co-located for routing.
func streamRef(s *stream.Session) types.StreamRef {
	return types.StreamRef{
		StreamID:    s.StreamID,
		BridgeID:    s.BridgeID,
		Domain:      s.Domain,
		SampleRate:  s.SampleRate,
		SourceGroup: s.SourceGroup(),
	}
}

// publish records a meaningful discovery in the pattern library. Publishing is
// best-effort: a library failure never fails the correlation itself.
func (e *Engine) publish(ctx context.Context, a, b types.Domain, op types.Operation, score *types.SignificanceScore) *types.Pattern {
	mechanism, _ := significance.MechanismFor(a, b)
	p := types.Pattern{
		PatternID:  uuid.NewString(),
		DomainA:    a,
		DomainB:    b,
		Op:         op,
		Mechanism:  mechanism,
		Confidence: score.Confidence,
	}

	published, err := e.library.Publish(ctx, p, score, e.agentID)
	if err != nil {
		e.logger.Warn("pattern publish failed", "error", err)
		return nil
	}
	return published
}

// Close shuts down all live sessions.
func (e *Engine) Close() error {
	return e.streams.Close()
}
