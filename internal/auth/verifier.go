package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/zitadel/oidc/v3/pkg/client"
)

// Claims is the verified identity extracted from a bearer access token.
// Username carries the attribution identity used for soft deletes.
type Claims struct {
	jwt.RegisteredClaims
	ClientID string `json:"client_id,omitempty"`
	Username string `json:"username,omitempty"`
	TokenUse string `json:"token_use,omitempty"`
	Scope    string `json:"scope,omitempty"`
}

// Attribution returns the identity string recorded on soft deletes: the
// username when present, the subject otherwise.
func (c *Claims) Attribution() string {
	if c.Username != "" {
		return c.Username
	}
	return c.Subject
}

// Verifier turns an opaque bearer token into trusted claims.
type Verifier interface {
	VerifyToken(ctx context.Context, token string) (*Claims, error)
}

// KeySetVerifier validates tokens against a remote authority's published
// JSON Web Key Set, located through OIDC discovery of the issuer. Verified
// claims are cached by the raw token string for the token's own validity
// window, so repeat verifications of the same token skip the remote path
// entirely.
//
// Two concurrent first verifications of the same token may both hit the
// remote authority; the redundant call is cheaper than a per-key in-flight
// lock.
type KeySetVerifier struct {
	issuer     string
	clientID   string
	httpClient *http.Client

	mu      sync.RWMutex
	jwksURI string
	keys    *jose.JSONWebKeySet

	cache *claimsCache
}

// errUnknownKey signals a kid absent from the cached key set; the verifier
// refreshes once and retries before giving up, which covers authority-side
// key rotation.
var errUnknownKey = errors.New("no matching key in key set")

// NewKeySetVerifier builds a verifier for tokens issued by issuer to
// clientID. httpClient may be nil.
func NewKeySetVerifier(issuer, clientID string, httpClient *http.Client) *KeySetVerifier {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &KeySetVerifier{
		issuer:     issuer,
		clientID:   clientID,
		httpClient: httpClient,
		cache:      newClaimsCache(),
	}
}

func (v *KeySetVerifier) VerifyToken(ctx context.Context, token string) (*Claims, error) {
	if claims, ok := v.cache.Get(token); ok {
		return claims, nil
	}

	keys, err := v.keySet(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerifierUnavailable, err)
	}

	claims, err := v.parse(token, keys)
	if errors.Is(err, errUnknownKey) {
		// Possibly rotated keys; refresh once and retry.
		keys, err = v.keySet(ctx, true)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrVerifierUnavailable, err)
		}
		claims, err = v.parse(token, keys)
	}
	if err != nil {
		return nil, v.mapParseError(err)
	}

	if claims.ClientID != v.clientID && !audienceContains(claims.Audience, v.clientID) {
		return nil, fmt.Errorf("%w: token issued for a different client", ErrMalformedToken)
	}

	v.cache.Put(token, *claims, cacheDeadline(time.Now(), claims))
	return claims, nil
}

func (v *KeySetVerifier) parse(token string, keys *jose.JSONWebKeySet) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, keyfuncFor(keys),
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (v *KeySetVerifier) mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, errUnknownKey):
		return ErrInvalidSignature
	default:
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
}

// keySet returns the cached key set, resolving jwks_uri through OIDC
// discovery and fetching the set on first use or when force is set. The
// lock only guards the cached pointer; no network call happens under it.
func (v *KeySetVerifier) keySet(ctx context.Context, force bool) (*jose.JSONWebKeySet, error) {
	if !force {
		v.mu.RLock()
		keys := v.keys
		v.mu.RUnlock()
		if keys != nil {
			return keys, nil
		}
	}

	v.mu.RLock()
	jwksURI := v.jwksURI
	v.mu.RUnlock()

	if jwksURI == "" {
		disco, err := client.Discover(ctx, v.issuer, v.httpClient)
		if err != nil {
			return nil, fmt.Errorf("discover issuer %q: %w", v.issuer, err)
		}
		jwksURI = disco.JwksURI
	}

	keys, err := v.fetchKeySet(ctx, jwksURI)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	v.jwksURI = jwksURI
	v.keys = keys
	v.mu.Unlock()
	return keys, nil
}

func (v *KeySetVerifier) fetchKeySet(ctx context.Context, jwksURI string) (*jose.JSONWebKeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURI, nil)
	if err != nil {
		return nil, fmt.Errorf("build jwks request: %w", err)
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch jwks: unexpected status %d", resp.StatusCode)
	}
	keys := &jose.JSONWebKeySet{}
	if err := json.NewDecoder(resp.Body).Decode(keys); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}
	return keys, nil
}

func keyfuncFor(keys *jose.JSONWebKeySet) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		matches := keys.Key(kid)
		if len(matches) == 0 {
			return nil, errUnknownKey
		}
		return matches[0].Key, nil
	}
}

// cacheDeadline tracks the token's own validity window: now + (exp - iat),
// never beyond the absolute expiry.
func cacheDeadline(now time.Time, claims *Claims) time.Time {
	exp := claims.ExpiresAt.Time
	deadline := exp
	if claims.IssuedAt != nil {
		deadline = now.Add(exp.Sub(claims.IssuedAt.Time))
		if deadline.After(exp) {
			deadline = exp
		}
	}
	return deadline
}

func audienceContains(aud jwt.ClaimStrings, clientID string) bool {
	for _, a := range aud {
		if a == clientID {
			return true
		}
	}
	return false
}
