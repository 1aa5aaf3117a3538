/*
Package pow implements the Proof-of-Work (PoW) mechanism that guards anonymous entry
against scripted abuse.

It manages the generation and validation of nonces and the issuance of single-use
Proof Tokens upon successful validation.
*/
package pow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	// TokenHeaderKey is the HTTP header key used by the client to send the Proof Token.
	TokenHeaderKey = "X-PoW-Token"

	// ProofTokenDuration is the validity period for the Proof Token issued after successful PoW validation.
	ProofTokenDuration = 30 * time.Second

	// NonceExpiryDuration is the validity period for the challenge Nonce.
	NonceExpiryDuration = 5 * time.Minute
)

var (
	ErrNonceInvalid  = errors.New("nonce expired or invalid")
	ErrProofTooWeak  = errors.New("proof does not meet difficulty requirement")
	ErrNonceConsumed = errors.New("nonce consumed by concurrent request")
)

// PoWManager is responsible for managing the lifecycle of PoW challenges and Proof Tokens.
// It is concurrent-safe, using internal maps to store active nonces and tokens.
type PoWManager struct {
	// difficulty is the required number of leading zeros for the PoW challenge hash.
	difficulty int

	clock clockwork.Clock

	// nonceStore stores active nonces and their expiration times.
	nonceStore map[string]time.Time

	// tokenStore stores issued Proof Tokens and their expiration times.
	tokenStore map[string]time.Time

	// mu protects concurrent access to nonceStore and tokenStore.
	mu sync.Mutex
}

// NewPoWManager creates and initializes a new PoWManager instance.
// It starts a background goroutine that cleans up expired entries until ctx is cancelled.
func NewPoWManager(ctx context.Context, difficulty int, clock clockwork.Clock) *PoWManager {
	mgr := &PoWManager{
		difficulty: difficulty,
		clock:      clock,
		nonceStore: make(map[string]time.Time),
		tokenStore: make(map[string]time.Time),
	}

	go mgr.cleanupExpiredEntries(ctx)

	return mgr
}

// Difficulty returns the number of leading hex zeros a proof must have.
func (m *PoWManager) Difficulty() int {
	return m.difficulty
}

// GenerateNonce generates a unique Nonce string for the PoW challenge and stores it for validation.
func (m *PoWManager) GenerateNonce() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	nonce := uuid.New().String()
	m.nonceStore[nonce] = m.clock.Now().Add(NonceExpiryDuration)
	return nonce
}

// ValidateProof validates the PoW proof provided by the client.
// It checks that the Nonce is valid and unexpired and that the SHA256 hash of
// Nonce + Counter has the required number of leading zeros. On success the nonce is
// consumed and a temporary Proof Token is returned.
func (m *PoWManager) ValidateProof(nonce, counter string) (string, error) {
	hash := sha256.Sum256([]byte(nonce + counter))
	if !strings.HasPrefix(hex.EncodeToString(hash[:]), strings.Repeat("0", m.difficulty)) {
		return "", ErrProofTooWeak
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	expiryTime, ok := m.nonceStore[nonce]
	if !ok {
		return "", ErrNonceConsumed
	}
	delete(m.nonceStore, nonce)

	if m.clock.Now().After(expiryTime) {
		return "", ErrNonceInvalid
	}

	token := uuid.New().String()
	m.tokenStore[token] = m.clock.Now().Add(ProofTokenDuration)
	return token, nil
}

// ConsumeProofToken reports whether the request carries a valid Proof Token and spends it.
// The Proof Token can be located in the HTTP header (X-PoW-Token) or the URL query parameter (pow_token).
func (m *PoWManager) ConsumeProofToken(r *http.Request) bool {
	token := r.Header.Get(TokenHeaderKey)
	if token == "" {
		token = r.URL.Query().Get("pow_token")
	}

	if token == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	expiryTime, ok := m.tokenStore[token]
	if !ok {
		return false
	}
	delete(m.tokenStore, token)

	return !m.clock.Now().After(expiryTime)
}

// cleanupExpiredEntries periodically drops expired nonces and tokens.
func (m *PoWManager) cleanupExpiredEntries(ctx context.Context) {
	ticker := m.clock.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}

		m.mu.Lock()
		now := m.clock.Now()

		for nonce, expiry := range m.nonceStore {
			if now.After(expiry) {
				delete(m.nonceStore, nonce)
			}
		}

		for token, expiry := range m.tokenStore {
			if now.After(expiry) {
				delete(m.tokenStore, token)
			}
		}
		m.mu.Unlock()
	}
}
