package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/pkg/retry"
)

// KV sentinel errors.
var (
	ErrKeyExists        = stderrors.New("kv key already exists")
	ErrRevisionMismatch = stderrors.New("kv revision mismatch")
)

// Entry wraps a KV value with its revision for CAS operations.
type Entry struct {
	Key      string
	Value    []byte
	Revision uint64
}

// KV is the minimal revisioned key-value contract the registry and pattern
// library build on. Implemented by JetStream KV and by the in-memory store.
type KV interface {
	// Get retrieves a value with its revision. Missing keys return
	// errors.ErrKeyNotFound.
	Get(ctx context.Context, key string) (*Entry, error)

	// Put creates or replaces a key (last writer wins).
	Put(ctx context.Context, key string, value []byte) (uint64, error)

	// Create writes a key only if it does not exist, else ErrKeyExists.
	Create(ctx context.Context, key string, value []byte) (uint64, error)

	// Update performs a CAS write; a stale revision returns
	// ErrRevisionMismatch.
	Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error)

	// Keys lists all keys in the bucket.
	Keys(ctx context.Context) ([]string, error)
}

// StoreOptions configures CAS retry behavior.
type StoreOptions struct {
	MaxRetries int
	RetryDelay time.Duration
	MaxDelay   time.Duration
	Timeout    time.Duration
}

// DefaultStoreOptions returns defaults tuned for contended merges: many cheap
// retries with jittered backoff.
func DefaultStoreOptions() StoreOptions {
	return StoreOptions{
		MaxRetries: 10,
		RetryDelay: 10 * time.Millisecond,
		MaxDelay:   time.Second,
		Timeout:    5 * time.Second,
	}
}

// Store layers merge-with-retry semantics over a KV. Concurrent writers to
// the same key converge as long as their merge function is commutative.
type Store struct {
	kv      KV
	options StoreOptions
}

// NewStore wraps a KV with CAS retry support.
func NewStore(kv KV, opts ...func(*StoreOptions)) *Store {
	options := DefaultStoreOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &Store{kv: kv, options: options}
}

// KV returns the underlying key-value bucket.
func (s *Store) KV() KV {
	return s.kv
}

func (s *Store) applyTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.options.Timeout > 0 {
		return context.WithTimeout(ctx, s.options.Timeout)
	}
	return ctx, func() {}
}

// Get retrieves a value with its revision.
func (s *Store) Get(ctx context.Context, key string) (*Entry, error) {
	ctx, cancel := s.applyTimeout(ctx)
	defer cancel()
	return s.kv.Get(ctx, key)
}

// Keys lists all keys.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	ctx, cancel := s.applyTimeout(ctx)
	defer cancel()
	return s.kv.Keys(ctx)
}

// UpdateWithRetry applies updateFn to the current value under CAS, retrying
// on revision conflicts with jittered backoff. A missing key passes nil to
// updateFn and the result is created. updateFn must be pure: it may run more
// than once.
func (s *Store) UpdateWithRetry(ctx context.Context, key string,
	updateFn func(current []byte) ([]byte, error)) error {

	ctx, cancel := s.applyTimeout(ctx)
	defer cancel()

	cfg := retry.Config{
		MaxAttempts:  s.options.MaxRetries + 1,
		InitialDelay: s.options.RetryDelay,
		MaxDelay:     s.options.MaxDelay,
		Multiplier:   2.0,
		AddJitter:    true,
	}

	return retry.Do(ctx, cfg, func() error {
		entry, err := s.kv.Get(ctx, key)
		switch {
		case err == nil:
			next, ferr := updateFn(entry.Value)
			if ferr != nil {
				return retry.NonRetryable(ferr)
			}
			if _, uerr := s.kv.Update(ctx, key, next, entry.Revision); uerr != nil {
				if stderrors.Is(uerr, ErrRevisionMismatch) {
					return uerr // retry with fresh revision
				}
				return retry.NonRetryable(uerr)
			}
			return nil

		case stderrors.Is(err, errors.ErrKeyNotFound):
			next, ferr := updateFn(nil)
			if ferr != nil {
				return retry.NonRetryable(ferr)
			}
			if _, cerr := s.kv.Create(ctx, key, next); cerr != nil {
				if stderrors.Is(cerr, ErrKeyExists) {
					return cerr // lost the create race, retry as update
				}
				return retry.NonRetryable(cerr)
			}
			return nil

		default:
			return err
		}
	})
}

// jetstreamKV adapts a JetStream KV bucket to the KV interface.
type jetstreamKV struct {
	bucket jetstream.KeyValue
}

func (j *jetstreamKV) Get(ctx context.Context, key string) (*Entry, error) {
	entry, err := j.bucket.Get(ctx, key)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, errors.ErrKeyNotFound
		}
		return nil, fmt.Errorf("kv get %s: %w", key, err)
	}
	return &Entry{Key: key, Value: entry.Value(), Revision: entry.Revision()}, nil
}

func (j *jetstreamKV) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	rev, err := j.bucket.Put(ctx, key, value)
	if err != nil {
		return 0, fmt.Errorf("kv put %s: %w", key, err)
	}
	return rev, nil
}

func (j *jetstreamKV) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	rev, err := j.bucket.Create(ctx, key, value)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrKeyExists) {
			return 0, ErrKeyExists
		}
		return 0, fmt.Errorf("kv create %s: %w", key, err)
	}
	return rev, nil
}

func (j *jetstreamKV) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	rev, err := j.bucket.Update(ctx, key, value, revision)
	if err != nil {
		var apiErr *jetstream.APIError
		if stderrors.As(err, &apiErr) || stderrors.Is(err, jetstream.ErrKeyExists) {
			return 0, ErrRevisionMismatch
		}
		return 0, fmt.Errorf("kv update %s: %w", key, err)
	}
	return rev, nil
}

func (j *jetstreamKV) Keys(ctx context.Context) ([]string, error) {
	lister, err := j.bucket.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("kv list keys: %w", err)
	}
	var keys []string
	for key := range lister.Keys() {
		keys = append(keys, key)
	}
	return keys, nil
}
