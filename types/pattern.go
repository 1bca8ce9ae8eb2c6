package types

import (
	"sort"

	"github.com/c360/bridgekit/errors"
)

// Pattern is a validated, replicated correlation structure for one domain
// pair and operation. Created on first significant discovery; mutated only by
// merging independent confirmations; never deleted, only deprecated by
// confidence decay.
type Pattern struct {
	PatternID    string    `json:"pattern_id"`
	DomainA      Domain    `json:"domain_a"`
	DomainB      Domain    `json:"domain_b"`
	Op           Operation `json:"operation"`
	Mechanism    string    `json:"mechanism"` // physical-mechanism label
	Originator   string    `json:"originator"`
	DiscoveredAt int64     `json:"discovered_at"` // unix ns

	ReplicationCount   int     `json:"replication_count"`
	FalsePositiveCount int     `json:"false_positive_count"`
	Confidence         float64 `json:"confidence"` // rolling, 0-1

	// ConfirmedBy lists distinct agents that replicated the pattern, kept
	// sorted so the merge is deterministic. Publish is idempotent per agent.
	ConfirmedBy []string `json:"confirmed_by"`
}

// Validate checks the pattern shape.
func (p *Pattern) Validate() error {
	if p.PatternID == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "Pattern", "Validate", "pattern id empty")
	}
	if !p.DomainA.Valid() || !p.DomainB.Valid() {
		return errors.WrapInvalid(errors.ErrInvalidData, "Pattern", "Validate", "unknown domain")
	}
	if p.Op == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "Pattern", "Validate", "operation empty")
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return errors.WrapInvalid(errors.ErrInvalidData, "Pattern", "Validate", "confidence outside [0,1]")
	}
	return nil
}

// MatchesDomains reports whether the pattern covers the domain pair, in
// either order.
func (p *Pattern) MatchesDomains(a, b Domain) bool {
	return (p.DomainA == a && p.DomainB == b) || (p.DomainA == b && p.DomainB == a)
}

// Confirmed reports whether agent already confirmed this pattern.
func (p *Pattern) Confirmed(agent string) bool {
	i := sort.SearchStrings(p.ConfirmedBy, agent)
	return i < len(p.ConfirmedBy) && p.ConfirmedBy[i] == agent
}

// AddConfirmation records a confirming agent, keeping ConfirmedBy sorted.
// Returns false if the agent was already present.
func (p *Pattern) AddConfirmation(agent string) bool {
	i := sort.SearchStrings(p.ConfirmedBy, agent)
	if i < len(p.ConfirmedBy) && p.ConfirmedBy[i] == agent {
		return false
	}
	p.ConfirmedBy = append(p.ConfirmedBy, "")
	copy(p.ConfirmedBy[i+1:], p.ConfirmedBy[i:])
	p.ConfirmedBy[i] = agent
	return true
}
