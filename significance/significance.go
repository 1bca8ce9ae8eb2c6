// Package significance implements the five-test battery that separates
// physically meaningful correlations from numerical coincidence: causation
// mechanism lookup, information gain, predictive power, temporal stability
// and compressibility. A correlation is meaningful iff at least two tests
// pass.
package significance

import (
	"log/slog"

	"github.com/klauspost/compress/zstd"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/metric"
	"github.com/c360/bridgekit/types"
)

// Config holds the battery thresholds. The source material gives no
// principled justification for these numbers, so every one of them is a
// tunable, not a constant.
type Config struct {
	// MinSamples is the minimum signal length the battery accepts.
	MinSamples int `json:"min_samples"`

	// GainFraction is the information-gain cutoff as a fraction of the
	// larger input entropy.
	GainFraction float64 `json:"gain_fraction"`

	// PredictiveZ is the z-score a lagged predictor must reach (1.96
	// approximates p < 0.05 two-sided).
	PredictiveZ float64 `json:"predictive_z"`

	// PredictiveMaxLag bounds the lag window searched by the predictive test.
	PredictiveMaxLag int `json:"predictive_max_lag"`

	// StabilityCoV is the maximum coefficient of variation of windowed
	// correlations for "stable".
	StabilityCoV float64 `json:"stability_cov"`

	// StabilityWindows is the number of windows the observation is split into.
	StabilityWindows int `json:"stability_windows"`

	// CompressionRatio is the compressed-size fraction below which shared
	// structure is assumed.
	CompressionRatio float64 `json:"compression_ratio"`

	// HistogramBins is the bin count for entropy estimation.
	HistogramBins int `json:"histogram_bins"`
}

// DefaultConfig returns the battery defaults carried over from the source
// material.
func DefaultConfig() Config {
	return Config{
		MinSamples:       64,
		GainFraction:     0.10,
		PredictiveZ:      1.96,
		PredictiveMaxLag: 32,
		StabilityCoV:     0.3,
		StabilityWindows: 8,
		CompressionRatio: 0.90,
		HistogramBins:    32,
	}
}

// Validate checks config sanity.
func (c Config) Validate() error {
	if c.MinSamples < 8 || c.GainFraction <= 0 || c.PredictiveZ <= 0 ||
		c.PredictiveMaxLag < 1 || c.StabilityCoV <= 0 || c.StabilityWindows < 2 ||
		c.CompressionRatio <= 0 || c.CompressionRatio >= 1 || c.HistogramBins < 2 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "significance.Config", "Validate",
			"threshold out of range")
	}
	return nil
}

// PatternMatcher looks up known patterns for a domain pair and operation.
// The pattern library implements it; nil disables pattern matching.
type PatternMatcher interface {
	Match(domainA, domainB types.Domain, op types.Operation) ([]types.Pattern, error)
}

// Input is one correlation plus the source signals it was computed from.
type Input struct {
	Result  *types.CorrelationResult
	DomainA types.Domain
	DomainB types.Domain
	SignalA []float64
	SignalB []float64
}

// Evaluator applies the battery.
type Evaluator struct {
	config  Config
	logger  *slog.Logger
	core    *metric.Metrics
	matcher PatternMatcher

	mechanisms []Mechanism
	encoder    *zstd.Encoder
}

// NewEvaluator creates an evaluator with the built-in mechanism table.
func NewEvaluator(config Config, logger *slog.Logger, core *metric.Metrics, matcher PatternMatcher) (*Evaluator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, errors.WrapFatal(err, "Evaluator", "NewEvaluator", "zstd encoder")
	}

	return &Evaluator{
		config:     config,
		logger:     logger.With("component", "significance"),
		core:       core,
		matcher:    matcher,
		mechanisms: knownMechanisms(),
		encoder:    encoder,
	}, nil
}

// Evaluate runs the five tests and renders the verdict. The score is
// immutable once computed.
func (e *Evaluator) Evaluate(in Input) (*types.SignificanceScore, error) {
	if len(in.SignalA) < e.config.MinSamples || len(in.SignalB) < e.config.MinSamples {
		return nil, errors.Wrap(errors.ErrInsufficientSamples, "Evaluator", "Evaluate",
			"battery input")
	}
	if len(in.SignalA) != len(in.SignalB) {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "Evaluator", "Evaluate",
			"signals must be aligned to equal length")
	}

	score := &types.SignificanceScore{
		Causation:         e.testCausation(in),
		InformationGain:   e.testInformationGain(in.SignalA, in.SignalB),
		PredictivePower:   e.testPredictivePower(in.SignalA, in.SignalB),
		TemporalStability: e.testTemporalStability(in.SignalA, in.SignalB),
		Compressibility:   e.testCompressibility(in.SignalA, in.SignalB),
	}

	for _, r := range score.Results() {
		if r.Passed {
			score.PassCount++
		}
	}
	score.Meaningful = score.PassCount >= 2

	patternMatched := e.attachPattern(in, score)
	score.Confidence = confidence(score, patternMatched)

	if e.core != nil {
		verdict := "coincidence"
		if score.Meaningful {
			verdict = "meaningful"
		}
		e.core.SignificanceVerdicts.WithLabelValues(verdict).Inc()
	}
	e.logger.Debug("significance verdict",
		"meaningful", score.Meaningful, "passed", score.PassCount,
		"domains", string(in.DomainA)+"/"+string(in.DomainB))

	return score, nil
}

// attachPattern consults the pattern library; a reference is attached only
// when at least two known patterns corroborate the domain pair.
func (e *Evaluator) attachPattern(in Input, score *types.SignificanceScore) bool {
	if e.matcher == nil {
		return false
	}
	patterns, err := e.matcher.Match(in.DomainA, in.DomainB, in.Result.Op)
	if err != nil {
		e.logger.Warn("pattern lookup failed", "error", err)
		return false
	}
	if len(patterns) < 2 {
		return false
	}

	best := patterns[0]
	for _, p := range patterns[1:] {
		if p.Confidence > best.Confidence {
			best = p
		}
	}
	score.PatternID = best.PatternID
	return true
}

// confidence blends the pass fraction with causation and pattern-match
// bonuses, clamped to [0,1].
func confidence(score *types.SignificanceScore, patternMatched bool) float64 {
	conf := 0.6 * float64(score.PassCount) / 5.0
	if score.Causation.Passed {
		conf += 0.25
	}
	if patternMatched {
		conf += 0.15
	}
	if conf > 1 {
		conf = 1
	}
	return conf
}
