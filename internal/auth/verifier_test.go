package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// authority is a fake OIDC issuer: discovery document plus a JWKS endpoint
// whose key set can be swapped to simulate rotation.
type authority struct {
	srv      *httptest.Server
	jwksHits atomic.Int32

	mu   sync.Mutex
	keys jose.JSONWebKeySet
}

func newAuthority(t *testing.T) *authority {
	t.Helper()
	a := &authority{}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"issuer":   a.srv.URL,
			"jwks_uri": a.srv.URL + "/jwks",
		})
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, r *http.Request) {
		a.jwksHits.Add(1)
		a.mu.Lock()
		defer a.mu.Unlock()
		json.NewEncoder(w).Encode(a.keys)
	})
	a.srv = httptest.NewServer(mux)
	t.Cleanup(a.srv.Close)
	return a
}

func (a *authority) publish(kid string, key *rsa.PrivateKey) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys = jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       &key.PublicKey,
		KeyID:     kid,
		Algorithm: "RS256",
		Use:       "sig",
	}}}
}

func newSigningKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func mintToken(t *testing.T, key *rsa.PrivateKey, kid string, claims Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, &claims)
	tok.Header["kid"] = kid
	signed, err := tok.SignedString(key)
	require.NoError(t, err)
	return signed
}

func baseClaims(issuer string) Claims {
	now := time.Now()
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "user-123",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		ClientID: "test-client",
		Username: "ann",
	}
}

func TestVerifyTokenValid(t *testing.T) {
	a := newAuthority(t)
	key := newSigningKey(t)
	a.publish("k1", key)

	v := NewKeySetVerifier(a.srv.URL, "test-client", nil)
	token := mintToken(t, key, "k1", baseClaims(a.srv.URL))

	claims, err := v.VerifyToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "ann", claims.Username)
	assert.Equal(t, "user-123", claims.Subject)
	assert.Equal(t, "ann", claims.Attribution())
}

func TestVerifyTokenCachesClaims(t *testing.T) {
	a := newAuthority(t)
	key := newSigningKey(t)
	a.publish("k1", key)

	v := NewKeySetVerifier(a.srv.URL, "test-client", nil)
	token := mintToken(t, key, "k1", baseClaims(a.srv.URL))

	_, err := v.VerifyToken(context.Background(), token)
	require.NoError(t, err)
	hits := a.jwksHits.Load()

	// Same token again: served from the claims cache, no remote traffic.
	// Drop the cached key set to prove even a key lookup is skipped.
	v.mu.Lock()
	v.keys = nil
	v.mu.Unlock()

	claims, err := v.VerifyToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "ann", claims.Username)
	assert.Equal(t, hits, a.jwksHits.Load())
}

func TestVerifyTokenCacheExpiryReverifies(t *testing.T) {
	a := newAuthority(t)
	key := newSigningKey(t)
	a.publish("k1", key)

	v := NewKeySetVerifier(a.srv.URL, "test-client", nil)
	clock := time.Now()
	v.cache.now = func() time.Time { return clock }

	claims := baseClaims(a.srv.URL)
	token := mintToken(t, key, "k1", claims)

	_, err := v.VerifyToken(context.Background(), token)
	require.NoError(t, err)

	// Past the cache deadline the token goes through full verification
	// again. Dropping the cached key set makes the remote fetch observable.
	clock = clock.Add(2 * time.Hour)
	v.mu.Lock()
	v.keys = nil
	v.mu.Unlock()
	hits := a.jwksHits.Load()

	_, err = v.VerifyToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, hits+1, a.jwksHits.Load())
}

func TestVerifyTokenExpired(t *testing.T) {
	a := newAuthority(t)
	key := newSigningKey(t)
	a.publish("k1", key)

	v := NewKeySetVerifier(a.srv.URL, "test-client", nil)
	claims := baseClaims(a.srv.URL)
	claims.IssuedAt = jwt.NewNumericDate(time.Now().Add(-2 * time.Hour))
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	token := mintToken(t, key, "k1", claims)

	_, err := v.VerifyToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyTokenWrongKey(t *testing.T) {
	a := newAuthority(t)
	a.publish("k1", newSigningKey(t))

	v := NewKeySetVerifier(a.srv.URL, "test-client", nil)
	// Signed with a key the authority never published, under the same kid.
	token := mintToken(t, newSigningKey(t), "k1", baseClaims(a.srv.URL))

	_, err := v.VerifyToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyTokenMalformed(t *testing.T) {
	a := newAuthority(t)
	a.publish("k1", newSigningKey(t))

	v := NewKeySetVerifier(a.srv.URL, "test-client", nil)

	_, err := v.VerifyToken(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, ErrMalformedToken)
}

func TestVerifyTokenWrongClient(t *testing.T) {
	a := newAuthority(t)
	key := newSigningKey(t)
	a.publish("k1", key)

	v := NewKeySetVerifier(a.srv.URL, "test-client", nil)
	claims := baseClaims(a.srv.URL)
	claims.ClientID = "someone-else"
	token := mintToken(t, key, "k1", claims)

	_, err := v.VerifyToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrMalformedToken)
}

func TestVerifyTokenAudienceMatchesClient(t *testing.T) {
	a := newAuthority(t)
	key := newSigningKey(t)
	a.publish("k1", key)

	v := NewKeySetVerifier(a.srv.URL, "test-client", nil)
	claims := baseClaims(a.srv.URL)
	claims.ClientID = ""
	claims.Audience = jwt.ClaimStrings{"other", "test-client"}
	token := mintToken(t, key, "k1", claims)

	_, err := v.VerifyToken(context.Background(), token)
	assert.NoError(t, err)
}

func TestVerifyTokenUnreachableAuthority(t *testing.T) {
	a := newAuthority(t)
	a.srv.Close()

	v := NewKeySetVerifier(a.srv.URL, "test-client", nil)

	_, err := v.VerifyToken(context.Background(), "whatever")
	assert.ErrorIs(t, err, ErrVerifierUnavailable)
}

func TestVerifyTokenKeyRotation(t *testing.T) {
	a := newAuthority(t)
	oldKey := newSigningKey(t)
	a.publish("k1", oldKey)

	v := NewKeySetVerifier(a.srv.URL, "test-client", nil)
	_, err := v.VerifyToken(context.Background(), mintToken(t, oldKey, "k1", baseClaims(a.srv.URL)))
	require.NoError(t, err)

	// Authority rotates; a token under the new kid must trigger one
	// key set refresh and then verify.
	newKey := newSigningKey(t)
	a.publish("k2", newKey)
	hits := a.jwksHits.Load()

	claims, err := v.VerifyToken(context.Background(), mintToken(t, newKey, "k2", baseClaims(a.srv.URL)))
	require.NoError(t, err)
	assert.Equal(t, "ann", claims.Username)
	assert.Equal(t, hits+1, a.jwksHits.Load())
}

func TestCacheDeadline(t *testing.T) {
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		iat    *jwt.NumericDate
		exp    time.Time
		expect time.Time
	}{
		{
			name:   "capped at absolute expiry",
			iat:    jwt.NewNumericDate(now.Add(-10 * time.Minute)),
			exp:    now.Add(50 * time.Minute),
			expect: now.Add(50 * time.Minute),
		},
		{
			name:   "skewed issued-at keeps relative lifetime",
			iat:    jwt.NewNumericDate(now.Add(10 * time.Minute)),
			exp:    now.Add(30 * time.Minute),
			expect: now.Add(20 * time.Minute),
		},
		{
			name:   "no issued-at falls back to expiry",
			iat:    nil,
			exp:    now.Add(45 * time.Minute),
			expect: now.Add(45 * time.Minute),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
				IssuedAt:  tt.iat,
				ExpiresAt: jwt.NewNumericDate(tt.exp),
			}}
			assert.Equal(t, tt.expect, cacheDeadline(now, claims))
		})
	}
}
