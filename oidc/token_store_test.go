// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenStore_Decode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, priv := TestGenerateKeys(t)
	now := time.Now()
	valid := testToken(t, priv, now, now.Add(time.Minute), map[string]interface{}{
		"nonce":         "n_1",
		"session_state": "s1",
		"realm_access":  map[string]interface{}{"roles": []string{"admin"}},
	})
	tests := []struct {
		name    string
		raw     RawTokens
		wantErr error
	}{
		{name: "valid", raw: RawTokens{AccessToken: valid, RefreshToken: valid, IDToken: valid}},
		{name: "opaque-refresh", raw: RawTokens{AccessToken: valid, RefreshToken: "opaque-refresh-token"}},
		{name: "malformed-access", raw: RawTokens{AccessToken: "not.a.jwt"}, wantErr: ErrTokenDecode},
		{name: "bad-base64", raw: RawTokens{AccessToken: "e30.@@@.sig"}, wantErr: ErrTokenDecode},
		{name: "malformed-id", raw: RawTokens{AccessToken: valid, IDToken: "garbage"}, wantErr: ErrTokenDecode},
		{name: "missing-exp", raw: RawTokens{AccessToken: testToken(t, priv, now, time.Time{}, nil)}, wantErr: ErrMissingExpiry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			s := NewTokenStore(nil, nil, nil)
			got, err := s.Decode(ctx, tt.raw)
			if tt.wantErr != nil {
				require.Error(err)
				assert.ErrorIs(err, tt.wantErr)
				assert.True(got.Empty())
				return
			}
			require.NoError(err)
			require.NotNil(got.AccessTokenClaims)
			assert.Equal("n_1", got.AccessTokenClaims.Nonce)
			assert.Equal("s1", got.AccessTokenClaims.session())
			assert.Equal(now.Add(time.Minute).Unix(), got.AccessTokenClaims.Expiry.Time().Unix())
			assert.Equal("alice", got.AccessTokenClaims.Raw["sub"])
		})
	}
}

func TestTokenStore_IsExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, priv := TestGenerateKeys(t)
	now := time.Now().Truncate(time.Second)
	clock := func() time.Time { return now }

	apply := func(t *testing.T, s *TokenStore, iat, exp time.Time, receivedAt time.Time) {
		t.Helper()
		ts, err := s.Decode(ctx, RawTokens{AccessToken: testToken(t, priv, iat, exp, nil)})
		require.NoError(t, err)
		s.Apply(ts, receivedAt)
	}

	t.Run("no-token", func(t *testing.T) {
		assert := assert.New(t)
		s := NewTokenStore(nil, clock, nil)
		assert.True(s.IsExpired(0))
	})
	t.Run("fresh-token", func(t *testing.T) {
		assert := assert.New(t)
		s := NewTokenStore(nil, clock, nil)
		apply(t, s, now, now.Add(300*time.Second), now)
		skew, known := s.TimeSkew()
		assert.True(known)
		assert.Equal(time.Duration(0), skew)
		assert.False(s.IsExpired(0))
		assert.False(s.IsExpired(299 * time.Second))
		assert.True(s.IsExpired(301 * time.Second))
	})
	t.Run("cleared", func(t *testing.T) {
		assert := assert.New(t)
		s := NewTokenStore(nil, clock, nil)
		apply(t, s, now, now.Add(300*time.Second), now)
		assert.True(s.Clear())
		assert.True(s.IsExpired(0))
		assert.False(s.Authenticated())
		assert.False(s.Clear())
	})
	t.Run("dead-on-arrival-is-stored", func(t *testing.T) {
		assert := assert.New(t)
		s := NewTokenStore(nil, clock, nil)
		apply(t, s, now.Add(-time.Hour), now.Add(-time.Minute), now.Add(-time.Hour))
		assert.True(s.Authenticated())
		assert.True(s.IsExpired(0))
	})
	t.Run("skew", func(t *testing.T) {
		assert := assert.New(t)
		s := NewTokenStore(nil, clock, nil)
		// the provider's clock runs 100s ahead of ours
		apply(t, s, now.Add(100*time.Second), now.Add(160*time.Second), now)
		skew, known := s.TimeSkew()
		assert.True(known)
		assert.Equal(-100*time.Second, skew)
		assert.False(s.IsExpired(30 * time.Second))
		assert.True(s.IsExpired(120 * time.Second))
	})
	t.Run("unknown-skew", func(t *testing.T) {
		assert := assert.New(t)
		s := NewTokenStore(nil, clock, nil)
		apply(t, s, now, now.Add(time.Hour), time.Time{})
		assert.True(s.IsExpired(0))
		s.SetTimeSkew(0)
		assert.False(s.IsExpired(0))
	})
	t.Run("no-iat", func(t *testing.T) {
		assert := assert.New(t)
		s := NewTokenStore(nil, clock, nil)
		apply(t, s, time.Time{}, now.Add(300*time.Second), now)
		skew, known := s.TimeSkew()
		assert.True(known)
		assert.Equal(time.Duration(0), skew)
		assert.False(s.IsExpired(0))
		assert.True(s.IsExpired(301 * time.Second))
	})
	t.Run("no-iat-keeps-skew", func(t *testing.T) {
		assert := assert.New(t)
		s := NewTokenStore(nil, clock, nil)
		apply(t, s, now.Add(100*time.Second), now.Add(160*time.Second), now)
		apply(t, s, time.Time{}, now.Add(400*time.Second), now)
		skew, known := s.TimeSkew()
		assert.True(known)
		assert.Equal(-100*time.Second, skew)
		assert.False(s.IsExpired(200 * time.Second))
		assert.True(s.IsExpired(301 * time.Second))
	})
}

func TestTokenStore_generation(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	_, priv := TestGenerateKeys(t)
	now := time.Now()
	s := NewTokenStore(nil, nil, nil)
	ts, err := s.Decode(context.Background(), RawTokens{AccessToken: testToken(t, priv, now, now.Add(time.Minute), nil)})
	require.NoError(t, err)

	gen := s.Generation()
	s.Clear()
	_, ok := s.ApplyIf(gen, ts, now)
	assert.False(ok)
	assert.False(s.Authenticated())

	gen = s.Generation()
	next, ok := s.ApplyIf(gen, ts, now)
	assert.True(ok)
	assert.Equal(gen+1, next)
	assert.True(s.Authenticated())

	_, cleared := s.ClearIf(gen)
	assert.False(cleared)
	had, cleared := s.ClearIf(next)
	assert.True(cleared)
	assert.True(had)
}

func TestTokenStore_roles(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	_, priv := TestGenerateKeys(t)
	now := time.Now()
	s := NewTokenStore(nil, nil, nil)
	assert.False(s.Roles().HasRealmRole("admin"))

	ts, err := s.Decode(context.Background(), RawTokens{AccessToken: testToken(t, priv, now, now.Add(time.Minute), map[string]interface{}{
		"realm_access":    map[string]interface{}{"roles": []string{"admin", "user"}},
		"resource_access": map[string]interface{}{"web-app": map[string]interface{}{"roles": []string{"editor"}}},
	})})
	require.NoError(t, err)
	s.Apply(ts, now)

	rs := s.Roles()
	assert.True(rs.HasRealmRole("admin"))
	assert.False(rs.HasRealmRole("editor"))
	assert.True(rs.HasResourceRole("editor", "web-app"))
	assert.False(rs.HasResourceRole("editor", "other-app"))
	assert.False(rs.HasResourceRole("admin", "web-app"))

	s.Clear()
	assert.False(s.Roles().HasRealmRole("admin"))
}

func TestTokenStore_expiryTimer(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	_, priv := TestGenerateKeys(t)
	now := time.Now()
	fired := make(chan struct{}, 1)
	s := NewTokenStore(nil, nil, func() { fired <- struct{}{} })

	ts, err := s.Decode(context.Background(), RawTokens{AccessToken: testToken(t, priv, now.Add(-time.Minute), now.Add(-time.Second), nil)})
	require.NoError(t, err)
	s.Apply(ts, now.Add(-time.Minute))

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		assert.Fail("token expired event not fired")
	}

	// a cleared store never fires
	ts, err = s.Decode(context.Background(), RawTokens{AccessToken: testToken(t, priv, now, now.Add(time.Hour), nil)})
	require.NoError(t, err)
	s.Apply(ts, now)
	s.Clear()
	select {
	case <-fired:
		assert.Fail("unexpected token expired event")
	case <-time.After(50 * time.Millisecond):
	}

	// without iat the timer is still scheduled from exp alone
	noIAT := NewTokenStore(nil, nil, func() { fired <- struct{}{} })
	ts, err = noIAT.Decode(context.Background(), RawTokens{AccessToken: testToken(t, priv, time.Time{}, now.Add(-time.Second), nil)})
	require.NoError(t, err)
	noIAT.Apply(ts, now)
	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		assert.Fail("token expired event not fired for a token without iat")
	}
}
