package registry

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/pkg/timestamp"
)

// Challenge is a pending authentication handshake: a random nonce bound to
// an issue timestamp and the requesting agent.
type Challenge struct {
	BridgeID    string
	RequesterID string
	Nonce       []byte
	IssuedAt    int64 // unix ns
}

// SigningPayload is the byte string the bridge must sign:
// nonce || timestamp (little-endian u64 ns) || requester id.
func (c *Challenge) SigningPayload() []byte {
	payload := make([]byte, 0, len(c.Nonce)+8+len(c.RequesterID))
	payload = append(payload, c.Nonce...)
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(c.IssuedAt))
	payload = append(payload, ts[:]...)
	payload = append(payload, []byte(c.RequesterID)...)
	return payload
}

// authenticator tracks outstanding challenges. Challenges expire after the
// configured timeout; expired or unknown challenges fail verification.
type authenticator struct {
	mu      sync.Mutex
	pending map[string]*Challenge // keyed by bridge id + requester id
	timeout time.Duration
	now     func() int64
}

func newAuthenticator(timeout time.Duration) *authenticator {
	return &authenticator{
		pending: make(map[string]*Challenge),
		timeout: timeout,
		now:     timestamp.Now,
	}
}

func challengeKey(bridgeID, requesterID string) string {
	return bridgeID + "\x00" + requesterID
}

// Authenticate begins a handshake with a bridge: it issues a nonce the bridge
// must sign together with the issue timestamp and the requester's identity.
func (r *Registry) Authenticate(ctx context.Context, bridgeID, requesterID string) (*Challenge, error) {
	if _, err := r.Get(ctx, bridgeID); err != nil {
		return nil, err
	}

	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.WrapFatal(err, "Registry", "Authenticate", "nonce generation")
	}

	ch := &Challenge{
		BridgeID:    bridgeID,
		RequesterID: requesterID,
		Nonce:       nonce,
		IssuedAt:    r.auth.now(),
	}

	r.auth.mu.Lock()
	r.auth.pending[challengeKey(bridgeID, requesterID)] = ch
	r.auth.mu.Unlock()

	return ch, nil
}

// VerifyAuthentication completes the handshake: the signature must verify
// against the owner's public key within the auth timeout. Failure returns
// ErrAuthFailed; it is never retried internally.
func (r *Registry) VerifyAuthentication(ctx context.Context, bridgeID, requesterID string, signature []byte) error {
	r.auth.mu.Lock()
	key := challengeKey(bridgeID, requesterID)
	ch, ok := r.auth.pending[key]
	delete(r.auth.pending, key) // single use either way
	r.auth.mu.Unlock()

	authErr := errors.WithContext(errors.ErrAuthFailed, errors.Context{BridgeID: bridgeID})

	if !ok {
		return authErr
	}
	if time.Duration(r.auth.now()-ch.IssuedAt) > r.auth.timeout {
		return authErr
	}

	cap, err := r.Get(ctx, bridgeID)
	if err != nil {
		return err
	}
	if len(cap.OwnerPublicKey) != ed25519.PublicKeySize {
		return authErr
	}
	if !ed25519.Verify(ed25519.PublicKey(cap.OwnerPublicKey), ch.SigningPayload(), signature) {
		r.metrics.authFailures.Inc()
		return authErr
	}
	return nil
}
