// Package types contains shared domain types used across the bridgekit
// subsystem: sensing domains, bridge capabilities, sensor packets, correlation
// requests/results, significance scores and patterns.
package types

// Domain represents a sensing modality.
type Domain string

// Sensing domain constants.
const (
	DomainAcoustic   Domain = "acoustic"
	DomainVibration  Domain = "vibration"
	DomainOptical    Domain = "optical"
	DomainInfrared   Domain = "infrared"
	DomainRF         Domain = "radio-frequency"
	DomainMMWave     Domain = "millimeter-wave"
	DomainMagnetic   Domain = "magnetic"
	DomainCapacitive Domain = "capacitive"
	DomainThermal    Domain = "thermal"
	DomainOther      Domain = "other"
)

// String implements fmt.Stringer.
func (d Domain) String() string {
	return string(d)
}

// Valid reports whether d is a known sensing domain.
func (d Domain) Valid() bool {
	switch d {
	case DomainAcoustic, DomainVibration, DomainOptical, DomainInfrared,
		DomainRF, DomainMMWave, DomainMagnetic, DomainCapacitive,
		DomainThermal, DomainOther:
		return true
	default:
		return false
	}
}

// Transport identifies a stream transport protocol.
type Transport string

// Transport constants.
const (
	TransportInproc    Transport = "inproc"
	TransportNATS      Transport = "nats"
	TransportWebSocket Transport = "websocket"
	TransportMQTT      Transport = "mqtt"
)

// TimeSource identifies the clock a packet timestamp came from.
type TimeSource uint8

// Time source tags, ordered by preference: hardware pulse first, local clock
// last. Sync selection picks the best source both ends support.
const (
	TimeSourceGPSPulse TimeSource = iota
	TimeSourceNTP
	TimeSourcePeerClock
	TimeSourceLocal
)

// String implements fmt.Stringer.
func (ts TimeSource) String() string {
	switch ts {
	case TimeSourceGPSPulse:
		return "gps-pulse"
	case TimeSourceNTP:
		return "ntp"
	case TimeSourcePeerClock:
		return "peer-clock"
	case TimeSourceLocal:
		return "local"
	default:
		return "unknown"
	}
}

// SyncQuality describes how well a stream's clock is aligned.
type SyncQuality struct {
	Source     TimeSource `json:"source"`
	Confidence uint8      `json:"confidence"` // 0-100
	DriftNs    int64      `json:"drift_ns"`   // instantaneous drift estimate
}

// Acceptable reports whether the sync quality meets the given bounds.
func (q SyncQuality) Acceptable(minConfidence uint8, maxDriftNs int64) bool {
	drift := q.DriftNs
	if drift < 0 {
		drift = -drift
	}
	return q.Confidence >= minConfidence && drift <= maxDriftNs
}

// SampleFormat identifies the binary encoding of payload samples.
type SampleFormat uint8

// Sample format tags.
const (
	FormatFloat32 SampleFormat = iota
	FormatInt16
	FormatUint8
)

// String implements fmt.Stringer.
func (f SampleFormat) String() string {
	switch f {
	case FormatFloat32:
		return "float32"
	case FormatInt16:
		return "int16"
	case FormatUint8:
		return "uint8"
	default:
		return "unknown"
	}
}

// BytesPerSample returns the encoded size of one sample.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case FormatFloat32:
		return 4
	case FormatInt16:
		return 2
	case FormatUint8:
		return 1
	default:
		return 0
	}
}

// Operation identifies a correlation/mixing operation.
type Operation string

// Correlation operations.
const (
	OpMultiply    Operation = "multiplication"
	OpConvolution Operation = "convolution"
	OpCrossCorr   Operation = "cross-correlation"
	OpCoherence   Operation = "coherence"
	OpEnvelope    Operation = "hilbert-envelope"
	OpSpectral    Operation = "spectral-transform"
	OpCustom      Operation = "custom"
)

// ExecutionMode selects the correlation strategy.
type ExecutionMode string

// Execution modes. ModeAdaptive routes to one of the other three.
const (
	ModeLocal    ExecutionMode = "local"
	ModeRemote   ExecutionMode = "remote"
	ModePrivacy  ExecutionMode = "privacy-preserving"
	ModeAdaptive ExecutionMode = "adaptive"
)

// PrivacyLevel states how sensitive raw samples are.
type PrivacyLevel string

// Privacy levels. PrivacyCritical is a hard constraint: raw samples must never
// leave their trust domain.
const (
	PrivacyNone     PrivacyLevel = "none"
	PrivacyStandard PrivacyLevel = "standard"
	PrivacyCritical PrivacyLevel = "critical"
)

// ComputeBudget states how much compute the caller can spend.
type ComputeBudget string

// Compute budgets. BudgetMicro models microcontroller-class co-located compute.
const (
	BudgetMicro    ComputeBudget = "micro"
	BudgetStandard ComputeBudget = "standard"
)
