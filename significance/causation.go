package significance

import (
	"time"

	"github.com/c360/bridgekit/types"
)

// Mechanism is one known physical coupling between two sensing domains,
// applicable when the observed peak lag falls within its bound.
type Mechanism struct {
	DomainA types.Domain
	DomainB types.Domain
	Label   string
	MaxLag  time.Duration
}

// Applies reports whether the mechanism covers the domain pair, in either
// order.
func (m Mechanism) Applies(a, b types.Domain) bool {
	return (m.DomainA == a && m.DomainB == b) || (m.DomainA == b && m.DomainB == a)
}

// knownMechanisms is the seed table of domain-pair couplings with their lag
// bounds. Sound and structural vibration couple mechanically within a
// millisecond; thermal processes are orders of magnitude slower.
func knownMechanisms() []Mechanism {
	return []Mechanism{
		{types.DomainAcoustic, types.DomainVibration, "mechanical coupling", time.Millisecond},
		{types.DomainAcoustic, types.DomainCapacitive, "diaphragm displacement", time.Millisecond},
		{types.DomainVibration, types.DomainMagnetic, "magnetostriction", 10 * time.Millisecond},
		{types.DomainMagnetic, types.DomainRF, "electromagnetic induction", time.Millisecond},
		{types.DomainThermal, types.DomainInfrared, "thermal radiation", time.Second},
		{types.DomainOptical, types.DomainThermal, "radiative heating", 5 * time.Second},
		{types.DomainOptical, types.DomainInfrared, "blackbody emission", 100 * time.Millisecond},
		{types.DomainRF, types.DomainMMWave, "harmonic emission", time.Millisecond},
	}
}

// MechanismFor returns the label of the known physical coupling for a domain
// pair, if one exists.
func MechanismFor(a, b types.Domain) (string, bool) {
	for _, m := range knownMechanisms() {
		if m.Applies(a, b) {
			return m.Label, true
		}
	}
	return "", false
}

// testCausation looks the domain pair up in the mechanism table and checks
// the mechanism's applicability predicate: the observed peak lag must fall
// within the known coupling delay.
func (e *Evaluator) testCausation(in Input) types.TestResult {
	lag := in.Result.PeakLagDuration()
	if lag < 0 {
		lag = -lag
	}

	for _, m := range e.mechanisms {
		if !m.Applies(in.DomainA, in.DomainB) {
			continue
		}
		if lag <= m.MaxLag {
			return types.TestResult{Passed: true, Score: 1}
		}
	}
	return types.TestResult{Passed: false, Score: 0}
}
