// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// TokenStore holds the current TokenSet, the roles it grants and the
// estimated clock skew between the local clock and the provider's. A set is
// always committed or cleared as a whole.
//
// Every commit or clear bumps a generation counter; ApplyIf lets a completing
// refresh drop its result when the store changed underneath it.
type TokenStore struct {
	mu        sync.RWMutex
	tokens    TokenSet
	roles     RoleSet
	skew      int64
	skewKnown bool
	gen       uint64
	timer     *time.Timer

	decoder   ClaimsDecoder
	now       func() time.Time
	onExpired func()
}

// NewTokenStore creates an empty TokenStore. onExpired, when not nil, is
// called on its own goroutine when the committed access token expires.
func NewTokenStore(d ClaimsDecoder, now func() time.Time, onExpired func()) *TokenStore {
	if d == nil {
		d = UnverifiedDecoder{}
	}
	if now == nil {
		now = time.Now
	}
	return &TokenStore{
		decoder:   d,
		now:       now,
		onExpired: onExpired,
		roles:     newRoleSet(nil),
	}
}

// Decode decodes the claims of raw without touching the store. An access
// token must carry an exp claim. Refresh tokens that are not JWTs are kept
// without claims.
func (s *TokenStore) Decode(ctx context.Context, raw RawTokens) (TokenSet, error) {
	const op = "TokenStore.Decode"
	ts := TokenSet{
		AccessToken:  AccessToken(raw.AccessToken),
		RefreshToken: RefreshToken(raw.RefreshToken),
		IDToken:      IDToken(raw.IDToken),
	}
	var err error
	if raw.AccessToken != "" {
		if ts.AccessTokenClaims, err = s.decoder.Decode(ctx, KindAccessToken, raw.AccessToken); err != nil {
			return TokenSet{}, fmt.Errorf("%s: %w", op, err)
		}
		if ts.AccessTokenClaims.Expiry == nil {
			return TokenSet{}, fmt.Errorf("%s: %w", op, ErrMissingExpiry)
		}
	}
	if raw.RefreshToken != "" && looksLikeJWT(raw.RefreshToken) {
		if ts.RefreshTokenClaims, err = s.decoder.Decode(ctx, KindRefreshToken, raw.RefreshToken); err != nil {
			return TokenSet{}, fmt.Errorf("%s: %w", op, err)
		}
	}
	if raw.IDToken != "" {
		if ts.IDTokenClaims, err = s.decoder.Decode(ctx, KindIDToken, raw.IDToken); err != nil {
			return TokenSet{}, fmt.Errorf("%s: %w", op, err)
		}
	}
	return ts, nil
}

// Apply commits ts, replacing every token field, and returns the new
// generation. A non-zero receivedAt re-estimates the clock skew from the
// access token's iat claim. Without iat, a previously known skew is kept and
// an unknown one becomes zero.
func (s *TokenStore) Apply(ts TokenSet, receivedAt time.Time) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(ts, receivedAt)
}

// ApplyIf commits ts only if the store is still at generation gen.
func (s *TokenStore) ApplyIf(gen uint64, ts TokenSet, receivedAt time.Time) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return s.gen, false
	}
	return s.applyLocked(ts, receivedAt), true
}

func (s *TokenStore) applyLocked(ts TokenSet, receivedAt time.Time) uint64 {
	s.stopTimerLocked()
	s.tokens = ts
	s.roles = newRoleSet(ts.AccessTokenClaims)
	s.gen++
	switch {
	case receivedAt.IsZero() || ts.AccessTokenClaims == nil:
	case ts.AccessTokenClaims.IssuedAt != nil:
		s.skew = int64(math.Floor(float64(receivedAt.UnixNano())/1e9)) - int64(*ts.AccessTokenClaims.IssuedAt)
		s.skewKnown = true
	case !s.skewKnown:
		// no iat to estimate from: trust the local clock
		s.skew = 0
		s.skewKnown = true
	}
	s.scheduleLocked()
	return s.gen
}

func (s *TokenStore) scheduleLocked() {
	if s.onExpired == nil || !s.skewKnown || s.tokens.AccessTokenClaims == nil || s.tokens.AccessTokenClaims.Expiry == nil {
		return
	}
	exp := int64(*s.tokens.AccessTokenClaims.Expiry)
	in := time.Duration(float64(exp+s.skew)*1e9 - float64(s.now().UnixNano()))
	if in < 0 {
		in = 0
	}
	gen := s.gen
	s.timer = time.AfterFunc(in, func() {
		s.mu.RLock()
		current := s.gen == gen
		s.mu.RUnlock()
		if current {
			s.onExpired()
		}
	})
}

func (s *TokenStore) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Clear wipes every token and reports whether a token was present.
func (s *TokenStore) Clear() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	had := !s.tokens.Empty()
	s.stopTimerLocked()
	s.tokens = TokenSet{}
	s.roles = newRoleSet(nil)
	s.gen++
	return had
}

// ClearIf clears the store only if it is still at generation gen.
func (s *TokenStore) ClearIf(gen uint64) (had, cleared bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false, false
	}
	had = !s.tokens.Empty()
	s.stopTimerLocked()
	s.tokens = TokenSet{}
	s.roles = newRoleSet(nil)
	s.gen++
	return had, true
}

// Stop cancels the expiry timer, leaving the tokens in place.
func (s *TokenStore) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
}

// Generation returns the number of commits and clears so far.
func (s *TokenStore) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// SetTimeSkew sets the skew (local minus provider time), truncated to
// seconds.
func (s *TokenStore) SetTimeSkew(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skew = int64(d / time.Second)
	s.skewKnown = true
}

// TimeSkew returns the estimated skew and whether it is known.
func (s *TokenStore) TimeSkew() (time.Duration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Duration(s.skew) * time.Second, s.skewKnown
}

// IsExpired reports whether the access token expires within minValidity,
// correcting for the clock skew. It is true when there is no access token
// or the skew is not known yet.
func (s *TokenStore) IsExpired(minValidity time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.tokens.AccessTokenClaims
	if s.tokens.AccessToken == "" || c == nil || c.Expiry == nil || !s.skewKnown {
		return true
	}
	now := int64(math.Ceil(float64(s.now().UnixNano()) / 1e9))
	expiresIn := float64(int64(*c.Expiry)-now+s.skew) - minValidity.Seconds()
	return expiresIn < 0
}

// Tokens returns a copy of the committed set.
func (s *TokenStore) Tokens() TokenSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens
}

// Roles returns the roles granted by the committed access token.
func (s *TokenStore) Roles() RoleSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roles
}

// Authenticated reports whether an access token is committed.
func (s *TokenStore) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens.AccessToken != ""
}
