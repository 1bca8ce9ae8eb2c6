// Package registry implements the capability registry: bridges advertise
// their sensing capabilities into a replicated key-value store and agents
// discover, authenticate and rate them.
//
// Each bridge is one KV key holding the materialized capability plus its
// append-only rating log; heartbeats and ratings are applied with
// compare-and-set merges so concurrent writers never lose events. Domain and
// frequency-bucket indexes are maintained under separate keys. Readers never
// take a global lock.
package registry

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/metric"
	"github.com/c360/bridgekit/natsclient"
	"github.com/c360/bridgekit/pkg/timestamp"
	"github.com/c360/bridgekit/types"
)

const (
	bridgeKeyPrefix = "bridge."
	domainKeyPrefix = "index.domain."
	freqKeyPrefix   = "index.freq."
)

// Config holds registry tuning parameters.
type Config struct {
	// HeartbeatWindow excludes entries not seen within this window from
	// discovery results. Stale entries are never deleted.
	HeartbeatWindow time.Duration `json:"heartbeat_window"`

	// RecencyHalfLife controls the exponential recency decay in scoring.
	RecencyHalfLife time.Duration `json:"recency_half_life"`

	// RatingInterval is the minimum spacing between ratings from one rater
	// for one bridge.
	RatingInterval time.Duration `json:"rating_interval"`

	// AuthTimeout bounds the challenge-response handshake.
	AuthTimeout time.Duration `json:"auth_timeout"`
}

// DefaultConfig returns the registry defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatWindow: 60 * time.Second,
		RecencyHalfLife: time.Hour,
		RatingInterval:  10 * time.Minute,
		AuthTimeout:     10 * time.Second,
	}
}

// Validate checks config sanity.
func (c Config) Validate() error {
	if c.HeartbeatWindow <= 0 || c.RecencyHalfLife <= 0 || c.RatingInterval <= 0 || c.AuthTimeout <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "registry.Config", "Validate",
			"all durations must be positive")
	}
	return nil
}

// record is the persisted per-bridge document: the materialized capability
// plus the rating event log it is recomputed from.
type record struct {
	Capability types.BridgeCapability `json:"capability"`
	Ratings    []ratingEvent          `json:"ratings,omitempty"`
}

type ratingEvent struct {
	Rater string `json:"rater"`
	Score uint8  `json:"score"` // 0-100
	At    int64  `json:"at"`    // unix ns
}

// Registry is the capability registry.
type Registry struct {
	store   *natsclient.Store
	config  Config
	logger  *slog.Logger
	metrics *registryMetrics
	auth    *authenticator
	raters  *raterLimits

	// now is swappable for tests.
	now func() int64
}

// New creates a registry over the given KV store.
func New(store *natsclient.Store, config Config, logger *slog.Logger, registry *metric.MetricsRegistry) (*Registry, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	metrics, err := newRegistryMetrics(registry)
	if err != nil {
		return nil, err
	}

	return &Registry{
		store:   store,
		config:  config,
		logger:  logger.With("component", "registry"),
		metrics: metrics,
		auth:    newAuthenticator(config.AuthTimeout),
		raters:  newRaterLimits(rate.Every(config.RatingInterval)),
		now:     timestamp.Now,
	}, nil
}

// Register writes a capability entry and updates the domain and frequency
// indexes. The caller must be the declared owner; entries with a zero sample
// rate are rejected and nothing is persisted.
func (r *Registry) Register(ctx context.Context, cap types.BridgeCapability, callerID string) error {
	if err := cap.Validate(); err != nil {
		return err
	}
	if callerID != cap.Owner {
		return errors.WithContext(
			errors.WrapInvalid(errors.ErrAuthFailed, "Registry", "Register", "caller is not the declared owner"),
			errors.Context{BridgeID: cap.BridgeID})
	}

	cap.LastSeen = r.now()

	err := r.store.UpdateWithRetry(ctx, bridgeKeyPrefix+cap.BridgeID, func(current []byte) ([]byte, error) {
		rec := record{Capability: cap}
		if current != nil {
			var existing record
			if err := json.Unmarshal(current, &existing); err == nil {
				// Re-registration replaces capability fields but keeps the
				// rating log; reputation is recomputed from it.
				rec.Ratings = existing.Ratings
			}
		}
		rec.Capability.Reputation = reputationFromLog(rec.Ratings, cap.Reputation)
		return json.Marshal(rec)
	})
	if err != nil {
		return errors.WrapTransient(err, "Registry", "Register", "capability write")
	}

	if err := r.indexAdd(ctx, domainKeyPrefix+string(cap.Domain), cap.BridgeID); err != nil {
		return err
	}
	for _, bucket := range freqBuckets(cap.FreqMinHz, cap.FreqMaxHz) {
		if err := r.indexAdd(ctx, fmt.Sprintf("%s%d", freqKeyPrefix, bucket), cap.BridgeID); err != nil {
			return err
		}
	}

	r.metrics.registrations.Inc()
	r.logger.Info("bridge registered", "bridge", cap.BridgeID, "domain", cap.Domain)
	return nil
}

// Heartbeat refreshes the entry's last-seen timestamp. Unknown bridges return
// ErrNotFound. Safe to retry; idempotent within clock resolution.
func (r *Registry) Heartbeat(ctx context.Context, bridgeID string) error {
	now := r.now()
	err := r.store.UpdateWithRetry(ctx, bridgeKeyPrefix+bridgeID, func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, errors.WithContext(errors.ErrNotFound, errors.Context{BridgeID: bridgeID})
		}
		var rec record
		if err := json.Unmarshal(current, &rec); err != nil {
			return nil, err
		}
		if now > rec.Capability.LastSeen {
			rec.Capability.LastSeen = now
		}
		return json.Marshal(rec)
	})
	if err != nil {
		return err
	}
	r.metrics.heartbeats.Inc()
	return nil
}

// Get returns a single capability by bridge id.
func (r *Registry) Get(ctx context.Context, bridgeID string) (*types.BridgeCapability, error) {
	entry, err := r.store.Get(ctx, bridgeKeyPrefix+bridgeID)
	if err != nil {
		if stderrors.Is(err, errors.ErrKeyNotFound) {
			return nil, errors.WithContext(errors.ErrNotFound, errors.Context{BridgeID: bridgeID})
		}
		return nil, errors.WrapTransient(err, "Registry", "Get", "kv read")
	}
	var rec record
	if err := json.Unmarshal(entry.Value, &rec); err != nil {
		return nil, errors.WrapInvalid(err, "Registry", "Get", "record decode")
	}
	return &rec.Capability, nil
}

// Discover runs the filter-then-score pipeline and returns candidates sorted
// by descending score. Entries outside the heartbeat window are excluded but
// not deleted.
func (r *Registry) Discover(ctx context.Context, query types.DiscoveryQuery) ([]types.Candidate, error) {
	start := time.Now()
	defer func() {
		r.metrics.discoveryDuration.Observe(time.Since(start).Seconds())
	}()

	ids, err := r.candidateIDs(ctx, query)
	if err != nil {
		return nil, err
	}

	now := r.now()
	var out []types.Candidate
	for _, id := range ids {
		cap, err := r.Get(ctx, id)
		if err != nil {
			continue // entry vanished between index read and fetch
		}
		if !matches(cap, query, now, r.config.HeartbeatWindow) {
			continue
		}
		out = append(out, types.Candidate{
			Capability: *cap,
			Score:      score(cap, now, r.config.RecencyHalfLife),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})

	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	if len(out) == 0 {
		return nil, errors.Wrap(errors.ErrNotFound, "Registry", "Discover", "candidate search")
	}
	return out, nil
}

// Rate records a quality score (0-100) from raterID for a bridge. Ratings are
// rate-limited per rater per bridge; reputation is the mean of the log scaled
// to 0-1000.
func (r *Registry) Rate(ctx context.Context, bridgeID, raterID string, score uint8) error {
	if score > 100 {
		return errors.WrapInvalid(errors.ErrInvalidData, "Registry", "Rate", "score above 100")
	}
	if !r.raters.allow(raterID, bridgeID) {
		r.metrics.ratingsRejected.Inc()
		return errors.WithContext(errors.ErrRateLimited, errors.Context{BridgeID: bridgeID})
	}

	now := r.now()
	return r.store.UpdateWithRetry(ctx, bridgeKeyPrefix+bridgeID, func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, errors.WithContext(errors.ErrNotFound, errors.Context{BridgeID: bridgeID})
		}
		var rec record
		if err := json.Unmarshal(current, &rec); err != nil {
			return nil, err
		}
		rec.Ratings = append(rec.Ratings, ratingEvent{Rater: raterID, Score: score, At: now})
		rec.Capability.Reputation = reputationFromLog(rec.Ratings, rec.Capability.Reputation)
		return json.Marshal(rec)
	})
}

// candidateIDs narrows the scan using the domain index when the query names
// domains, otherwise lists all bridge keys.
func (r *Registry) candidateIDs(ctx context.Context, query types.DiscoveryQuery) ([]string, error) {
	if len(query.Domains) > 0 {
		seen := make(map[string]struct{})
		var ids []string
		for _, d := range query.Domains {
			indexed, err := r.indexGet(ctx, domainKeyPrefix+string(d))
			if err != nil {
				continue
			}
			for _, id := range indexed {
				if _, dup := seen[id]; !dup {
					seen[id] = struct{}{}
					ids = append(ids, id)
				}
			}
		}
		return ids, nil
	}

	keys, err := r.store.Keys(ctx)
	if err != nil {
		return nil, errors.WrapTransient(err, "Registry", "Discover", "key listing")
	}
	var ids []string
	for _, k := range keys {
		if len(k) > len(bridgeKeyPrefix) && k[:len(bridgeKeyPrefix)] == bridgeKeyPrefix {
			ids = append(ids, k[len(bridgeKeyPrefix):])
		}
	}
	return ids, nil
}

func (r *Registry) indexAdd(ctx context.Context, key, bridgeID string) error {
	err := r.store.UpdateWithRetry(ctx, key, func(current []byte) ([]byte, error) {
		var ids []string
		if current != nil {
			if err := json.Unmarshal(current, &ids); err != nil {
				return nil, err
			}
		}
		for _, id := range ids {
			if id == bridgeID {
				return json.Marshal(ids) // already indexed
			}
		}
		ids = append(ids, bridgeID)
		sort.Strings(ids)
		return json.Marshal(ids)
	})
	if err != nil {
		return errors.WrapTransient(err, "Registry", "Register", "index update")
	}
	return nil
}

func (r *Registry) indexGet(ctx context.Context, key string) ([]string, error) {
	entry, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(entry.Value, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// reputationFromLog recomputes reputation as the mean of logged scores scaled
// to 0-1000. With an empty log the prior reputation is kept.
func reputationFromLog(ratings []ratingEvent, prior float64) float64 {
	if len(ratings) == 0 {
		return prior
	}
	sum := 0.0
	for _, ev := range ratings {
		sum += float64(ev.Score)
	}
	return sum / float64(len(ratings)) * 10.0
}
