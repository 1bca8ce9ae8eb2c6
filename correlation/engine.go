// Package correlation implements the correlation engine: four interchangeable
// execution strategies (local, remote, privacy-preserving, adaptive) behind a
// single Compute interface, operating on time-aligned sample vectors.
package correlation

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/metric"
	"github.com/c360/bridgekit/types"
)

// Computer is the single interface all execution strategies sit behind.
// Inputs are the streams' aligned sample vectors, in the same order as
// req.Streams.
type Computer interface {
	Compute(ctx context.Context, req *types.CorrelationRequest, inputs [][]float64) (*types.CorrelationResult, error)
}

// CustomFunc is a caller-registered operation for OpCustom, available in
// remote mode only.
type CustomFunc func(a, b []float64) ([]float64, error)

// Config holds correlation engine tuning parameters.
type Config struct {
	// LocalLatencyThreshold is the hard-latency bound below which the router
	// considers only local execution.
	LocalLatencyThreshold time.Duration `json:"local_latency_threshold"`

	// CoherenceSegments is the number of Welch segments for coherence
	// estimation.
	CoherenceSegments int `json:"coherence_segments"`

	// PrivacyParties is the number of independent share-holders; must be at
	// least two for threshold reconstruction.
	PrivacyParties int `json:"privacy_parties"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		LocalLatencyThreshold: 10 * time.Millisecond,
		CoherenceSegments:     8,
		PrivacyParties:        2,
	}
}

// Validate checks config sanity.
func (c Config) Validate() error {
	if c.LocalLatencyThreshold <= 0 || c.CoherenceSegments < 1 || c.PrivacyParties < 2 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "correlation.Config", "Validate",
			"threshold must be positive, segments >= 1, privacy parties >= 2")
	}
	return nil
}

// Engine routes correlation requests to the four execution strategies.
type Engine struct {
	config Config
	logger *slog.Logger
	core   *metric.Metrics
	custom CustomFunc

	// inspectShares, when set, observes every share batch handed to the
	// privacy-mode coordinator. Test hook for the no-plaintext property.
	inspectShares func(shares [][]float64)
}

// NewEngine creates a correlation engine.
func NewEngine(config Config, logger *slog.Logger, core *metric.Metrics) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		config: config,
		logger: logger.With("component", "correlation"),
		core:   core,
	}, nil
}

// RegisterCustom installs the function backing OpCustom.
func (e *Engine) RegisterCustom(fn CustomFunc) {
	e.custom = fn
}

// Compute validates the request, resolves adaptive mode through the router,
// and dispatches to the selected strategy. The mode actually used is recorded
// on the result.
func (e *Engine) Compute(ctx context.Context, req *types.CorrelationRequest, inputs [][]float64) (*types.CorrelationResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := validateInputs(req, inputs); err != nil {
		return nil, err
	}

	mode := req.Mode
	if mode == "" {
		mode = types.ModeAdaptive
	}
	if mode == types.ModeAdaptive {
		routed, err := e.route(req)
		if err != nil {
			return nil, err
		}
		mode = routed
	}

	start := time.Now()
	var (
		result *types.CorrelationResult
		err    error
	)
	switch mode {
	case types.ModeLocal:
		result, err = e.computeLocal(ctx, req, inputs)
	case types.ModeRemote:
		result, err = e.computeRemote(ctx, req, inputs)
	case types.ModePrivacy:
		result, err = e.computePrivacy(ctx, req, inputs)
	default:
		err = errors.WrapInvalid(errors.ErrModeUnavailable, "Engine", "Compute",
			"unknown execution mode "+string(mode))
	}

	elapsed := time.Since(start)
	if e.core != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		e.core.CorrelationsComputed.WithLabelValues(string(mode), status).Inc()
		e.core.CorrelationDuration.WithLabelValues(string(mode)).Observe(elapsed.Seconds())
	}
	if err != nil {
		return nil, errors.WithContext(err, errors.Context{RequestID: req.RequestID})
	}

	result.RequestID = req.RequestID
	result.Op = req.Op
	result.Mode = mode
	result.SampleRate = commonRate(req)
	result.Latency = elapsed
	return result, nil
}

// validateInputs requires one equal-length, non-trivial sample vector per
// stream.
func validateInputs(req *types.CorrelationRequest, inputs [][]float64) error {
	if len(inputs) != len(req.Streams) {
		return errors.WrapInvalid(errors.ErrInsufficientData, "Engine", "Compute",
			"one sample vector required per stream")
	}
	n := len(inputs[0])
	if n < 2 {
		return errors.WrapInvalid(errors.ErrInsufficientData, "Engine", "Compute",
			"streams too short to correlate")
	}
	for _, in := range inputs[1:] {
		if len(in) != n {
			return errors.WrapInvalid(errors.ErrInsufficientData, "Engine", "Compute",
				"sample vectors must be aligned to equal length")
		}
	}
	return nil
}

// commonRate is the rate of the aligned timeline: the minimum of the stream
// rates.
func commonRate(req *types.CorrelationRequest) uint32 {
	rate := req.Streams[0].SampleRate
	for _, s := range req.Streams[1:] {
		if s.SampleRate < rate {
			rate = s.SampleRate
		}
	}
	return rate
}
