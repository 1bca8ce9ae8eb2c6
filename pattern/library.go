// Package pattern implements the pattern library: validated correlation
// structures replicated through the key-value substrate, merged commutatively
// so concurrent confirmations from independent agents are never lost.
package pattern

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/natsclient"
	"github.com/c360/bridgekit/pkg/timestamp"
	"github.com/c360/bridgekit/types"
)

const patternKeyPrefix = "pattern."

// Config holds pattern library tuning parameters.
type Config struct {
	// PromotionThreshold is the number of distinct confirming agents that
	// makes a pattern established.
	PromotionThreshold int `json:"promotion_threshold"`

	// RetireFraction retires a pattern once false-positive reports exceed
	// this fraction of its replications.
	RetireFraction float64 `json:"retire_fraction"`

	// FalsePositiveDecay is the multiplicative confidence decay applied per
	// false-positive report.
	FalsePositiveDecay float64 `json:"false_positive_decay"`
}

// DefaultConfig returns the library defaults.
func DefaultConfig() Config {
	return Config{
		PromotionThreshold: 10,
		RetireFraction:     0.3,
		FalsePositiveDecay: 0.85,
	}
}

// Validate checks config sanity.
func (c Config) Validate() error {
	if c.PromotionThreshold < 1 || c.RetireFraction <= 0 ||
		c.FalsePositiveDecay <= 0 || c.FalsePositiveDecay >= 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "pattern.Config", "Validate",
			"threshold out of range")
	}
	return nil
}

// Library stores patterns in the replicated KV substrate, one key per
// domain-pair and operation. All mutations go through compare-and-set
// merges; concurrent publishes commute.
type Library struct {
	store  *natsclient.Store
	config Config
	logger *slog.Logger

	now func() int64
}

// NewLibrary creates a pattern library over the given KV store.
func NewLibrary(store *natsclient.Store, config Config, logger *slog.Logger) (*Library, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Library{
		store:  store,
		config: config,
		logger: logger.With("component", "pattern"),
		now:    timestamp.Now,
	}, nil
}

// pairKey normalizes a domain pair and operation into the storage key; the
// pair is order-insensitive.
func pairKey(a, b types.Domain, op types.Operation) string {
	da, db := string(a), string(b)
	if db < da {
		da, db = db, da
	}
	return patternKeyPrefix + da + "|" + db + "." + string(op)
}

// Publish inserts a pattern for a domain pair and operation, or merges into
// the existing entry: the calling agent joins the confirmation set (at most
// once, so replication counts are per-agent idempotent) and confidence is
// blended as a replication-weighted average. The merge is commutative;
// concurrent publishes from independent agents never lose confirmations.
func (l *Library) Publish(ctx context.Context, p types.Pattern, evidence *types.SignificanceScore, agentID string) (*types.Pattern, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if agentID == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "Library", "Publish",
			"agent id empty")
	}
	if evidence == nil || !evidence.Meaningful {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "Library", "Publish",
			"evidence must be a meaningful significance verdict")
	}

	key := pairKey(p.DomainA, p.DomainB, p.Op)
	var merged types.Pattern

	err := l.store.UpdateWithRetry(ctx, key, func(current []byte) ([]byte, error) {
		merged = types.Pattern{}
		if current == nil {
			merged = p
			merged.Originator = agentID
			merged.DiscoveredAt = l.now()
			merged.ConfirmedBy = nil
			merged.AddConfirmation(agentID)
			merged.ReplicationCount = 1
			merged.Confidence = evidence.Confidence
			return json.Marshal(&merged)
		}

		if err := json.Unmarshal(current, &merged); err != nil {
			return nil, err
		}
		if merged.AddConfirmation(agentID) {
			n := float64(merged.ReplicationCount)
			merged.Confidence = (merged.Confidence*n + evidence.Confidence) / (n + 1)
			merged.ReplicationCount = len(merged.ConfirmedBy)
		}
		return json.Marshal(&merged)
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "Library", "Publish", "pattern merge")
	}

	l.logger.Info("pattern published",
		"pattern", merged.PatternID, "replications", merged.ReplicationCount,
		"established", l.Established(&merged))
	return &merged, nil
}

// ReportFalsePositive counts a disputed observation against a pattern and
// decays its confidence. Patterns are never deleted; they retire once
// disputes outweigh replications.
func (l *Library) ReportFalsePositive(ctx context.Context, domainA, domainB types.Domain, op types.Operation) (*types.Pattern, error) {
	key := pairKey(domainA, domainB, op)
	var merged types.Pattern

	err := l.store.UpdateWithRetry(ctx, key, func(current []byte) ([]byte, error) {
		merged = types.Pattern{}
		if current == nil {
			return nil, errors.Wrap(errors.ErrNotFound, "Library", "ReportFalsePositive",
				"pattern lookup")
		}
		if err := json.Unmarshal(current, &merged); err != nil {
			return nil, err
		}
		merged.FalsePositiveCount++
		merged.Confidence *= l.config.FalsePositiveDecay
		return json.Marshal(&merged)
	})
	if err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			return nil, err
		}
		return nil, errors.WrapTransient(err, "Library", "ReportFalsePositive", "pattern merge")
	}
	return &merged, nil
}

// Get returns the pattern for a domain pair and operation.
func (l *Library) Get(ctx context.Context, domainA, domainB types.Domain, op types.Operation) (*types.Pattern, error) {
	entry, err := l.store.Get(ctx, pairKey(domainA, domainB, op))
	if err != nil {
		if stderrors.Is(err, errors.ErrKeyNotFound) {
			return nil, errors.Wrap(errors.ErrNotFound, "Library", "Get", "pattern lookup")
		}
		return nil, errors.WrapTransient(err, "Library", "Get", "kv read")
	}
	var p types.Pattern
	if err := json.Unmarshal(entry.Value, &p); err != nil {
		return nil, errors.WrapInvalid(err, "Library", "Get", "pattern decode")
	}
	return &p, nil
}

// Match returns the active (non-retired) patterns covering a domain pair,
// across all operations, patterns for the requested operation first. It
// implements significance.PatternMatcher.
func (l *Library) Match(domainA, domainB types.Domain, op types.Operation) ([]types.Pattern, error) {
	ctx := context.Background()

	da, db := string(domainA), string(domainB)
	if db < da {
		da, db = db, da
	}
	prefix := patternKeyPrefix + da + "|" + db + "."

	keys, err := l.store.Keys(ctx)
	if err != nil {
		return nil, errors.WrapTransient(err, "Library", "Match", "key listing")
	}

	var out []types.Pattern
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		entry, err := l.store.Get(ctx, key)
		if err != nil {
			continue
		}
		var p types.Pattern
		if err := json.Unmarshal(entry.Value, &p); err != nil {
			continue
		}
		if l.Retired(&p) {
			continue
		}
		out = append(out, p)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if (out[i].Op == op) != (out[j].Op == op) {
			return out[i].Op == op
		}
		return out[i].Confidence > out[j].Confidence
	})
	return out, nil
}

// Established reports whether a pattern has enough independent confirmations
// to be promoted.
func (l *Library) Established(p *types.Pattern) bool {
	return p.ReplicationCount >= l.config.PromotionThreshold
}

// Retired reports whether false-positive reports have outweighed the
// pattern's replications.
func (l *Library) Retired(p *types.Pattern) bool {
	return float64(p.FalsePositiveCount) > l.config.RetireFraction*float64(p.ReplicationCount)
}

// Seed inserts the starter patterns derived from the known-mechanism table,
// skipping any pair already present. Existing entries are never overwritten.
func (l *Library) Seed(ctx context.Context) error {
	seeds := []types.Pattern{
		{DomainA: types.DomainAcoustic, DomainB: types.DomainVibration, Op: types.OpCrossCorr,
			Mechanism: "mechanical coupling", Confidence: 0.8},
		{DomainA: types.DomainAcoustic, DomainB: types.DomainVibration, Op: types.OpCoherence,
			Mechanism: "mechanical coupling", Confidence: 0.7},
		{DomainA: types.DomainThermal, DomainB: types.DomainInfrared, Op: types.OpCrossCorr,
			Mechanism: "thermal radiation", Confidence: 0.8},
		{DomainA: types.DomainMagnetic, DomainB: types.DomainRF, Op: types.OpCoherence,
			Mechanism: "electromagnetic induction", Confidence: 0.7},
		{DomainA: types.DomainOptical, DomainB: types.DomainThermal, Op: types.OpCrossCorr,
			Mechanism: "radiative heating", Confidence: 0.6},
	}

	for _, seed := range seeds {
		seed.PatternID = uuid.NewString()
		seed.Originator = "seed"
		seed.DiscoveredAt = l.now()
		seed.ReplicationCount = 1
		seed.ConfirmedBy = []string{"seed"}

		data, err := json.Marshal(&seed)
		if err != nil {
			return errors.WrapInvalid(err, "Library", "Seed", "pattern encode")
		}
		_, err = l.store.KV().Create(ctx, pairKey(seed.DomainA, seed.DomainB, seed.Op), data)
		if err != nil && !stderrors.Is(err, natsclient.ErrKeyExists) {
			return errors.WrapTransient(err, "Library", "Seed", "pattern create")
		}
	}

	l.logger.Info("pattern library seeded", "patterns", len(seeds))
	return nil
}
