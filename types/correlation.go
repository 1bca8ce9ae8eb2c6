package types

import (
	"time"

	"github.com/c360/bridgekit/errors"
)

// StreamRef identifies one source stream feeding a correlation.
//
// SourceGroup marks co-location: two refs with the same non-empty SourceGroup
// are served by the same physical source and can be correlated locally.
type StreamRef struct {
	StreamID    string `json:"stream_id"`
	BridgeID    string `json:"bridge_id"`
	Domain      Domain `json:"domain"`
	SampleRate  uint32 `json:"sample_rate"`
	SourceGroup string `json:"source_group,omitempty"`
}

// CorrelationRequest asks for one correlation computation across two or more
// streams. Ephemeral; exists only for the duration of one computation.
type CorrelationRequest struct {
	RequestID     string        `json:"request_id"`
	Streams       []StreamRef   `json:"streams"`
	Op            Operation     `json:"operation"`
	Mode          ExecutionMode `json:"mode"`
	MaxLatency    time.Duration `json:"max_latency,omitempty"` // hard bound when set
	Privacy       PrivacyLevel  `json:"privacy,omitempty"`
	ComputeBudget ComputeBudget `json:"compute_budget,omitempty"`
}

// Validate checks the request shape.
func (r *CorrelationRequest) Validate() error {
	if len(r.Streams) < 2 {
		return errors.WrapInvalid(errors.ErrInsufficientData, "CorrelationRequest", "Validate",
			"at least two source streams required")
	}
	if r.Op == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "CorrelationRequest", "Validate",
			"operation cannot be empty")
	}
	return nil
}

// SameSource reports whether all streams share one non-empty source group.
func (r *CorrelationRequest) SameSource() bool {
	if len(r.Streams) == 0 {
		return false
	}
	group := r.Streams[0].SourceGroup
	if group == "" {
		return false
	}
	for _, s := range r.Streams[1:] {
		if s.SourceGroup != group {
			return false
		}
	}
	return true
}

// CorrelationResult is the output of one correlation computation.
//
// Peak is normalized to [0, 1] by the product of input norms so results are
// comparable across operations and sample counts. PeakLag is in samples of the
// common timeline; negative lags mean the second stream leads.
type CorrelationResult struct {
	RequestID  string        `json:"request_id"`
	Op         Operation     `json:"operation"`
	Mode       ExecutionMode `json:"mode"` // mode actually used
	Output     []float64     `json:"output,omitempty"`
	Peak       float64       `json:"peak"`
	PeakLag    int           `json:"peak_lag"`
	SampleRate uint32        `json:"sample_rate"` // rate of the common timeline
	Latency    time.Duration `json:"latency"`
}

// PeakLagDuration converts the peak lag from samples to wall time.
func (r *CorrelationResult) PeakLagDuration() time.Duration {
	if r.SampleRate == 0 {
		return 0
	}
	return time.Duration(int64(r.PeakLag) * int64(time.Second) / int64(r.SampleRate))
}
