package auth

import "errors"

var (
	// ErrInvalidSignature: the token's signature did not verify against the
	// authority's published keys.
	ErrInvalidSignature = errors.New("invalid token signature")

	// ErrTokenExpired: the token is past its exp claim.
	ErrTokenExpired = errors.New("token has expired")

	// ErrMalformedToken: the token or its claim set could not be parsed
	// into the expected shape, or carries the wrong issuer/client.
	ErrMalformedToken = errors.New("malformed token")

	// ErrVerifierUnavailable: discovery or key-set retrieval failed, so no
	// verification could be attempted. A server-side condition, unlike the
	// client errors above.
	ErrVerifierUnavailable = errors.New("token verifier unavailable")
)
