package oidc

import (
	"encoding/json"
	"time"
)

// AccessToken is an oauth access_token
type AccessToken string

// RedactedAccessToken is the redacted string or json for an oauth access_token
const RedactedAccessToken = "[REDACTED: access_token]"

// String will redact the token
func (t AccessToken) String() string {
	return RedactedAccessToken
}

// MarshalJSON will redact the token
func (t AccessToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedAccessToken)
}

// RefreshToken is an oauth refresh_token
type RefreshToken string

// RedactedRefreshToken is the redacted string or json for an oauth refresh_token
const RedactedRefreshToken = "[REDACTED: refresh_token]"

// String will redact the token
func (t RefreshToken) String() string {
	return RedactedRefreshToken
}

// MarshalJSON will redact the token
func (t RefreshToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedRefreshToken)
}

// IDToken is an oidc id_token
type IDToken string

// RedactedIDToken is the redacted string or json for an oidc id_token
const RedactedIDToken = "[REDACTED: id_token]"

// String will redact the token
func (t IDToken) String() string {
	return RedactedIDToken
}

// MarshalJSON will redact the token
func (t IDToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedIDToken)
}

// RawTokens are tokens as received from a callback or the token endpoint,
// before their claims are decoded.
type RawTokens struct {
	AccessToken  string
	RefreshToken string
	IDToken      string

	// ReceivedAt is the local time the tokens were issued at, as best known:
	// the midpoint of the token endpoint round-trip, or the arrival time of a
	// callback. The zero value leaves the current clock skew untouched.
	ReceivedAt time.Time
}

// TokenSet is a committed set of tokens with their decoded claims. The zero
// value holds no tokens.
type TokenSet struct {
	AccessToken        AccessToken
	AccessTokenClaims  *Claims
	RefreshToken       RefreshToken
	RefreshTokenClaims *Claims
	IDToken            IDToken
	IDTokenClaims      *Claims
}

// Empty reports whether the set holds no token at all.
func (t TokenSet) Empty() bool {
	return t.AccessToken == "" && t.RefreshToken == "" && t.IDToken == ""
}
