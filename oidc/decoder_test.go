// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"testing"
	"time"

	capjwt "github.com/hashicorp/capsession/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnverifiedDecoder_Decode(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	_, priv := TestGenerateKeys(t)
	now := time.Now()
	token := testToken(t, priv, now, now.Add(time.Minute), map[string]interface{}{
		"session_state": "s1",
		"realm_access":  map[string]interface{}{"roles": []string{"user"}},
		"custom":        "value",
	})

	c, err := UnverifiedDecoder{}.Decode(context.Background(), KindAccessToken, token)
	require.NoError(err)
	assert.Equal("alice", c.Subject)
	assert.Equal(now.Unix(), int64(*c.IssuedAt))
	assert.Equal("s1", c.session())
	assert.Equal([]string{"user"}, c.RealmAccess.Roles)
	assert.Equal("value", c.Raw["custom"])

	_, err = UnverifiedDecoder{}.Decode(context.Background(), KindAccessToken, "opaque")
	assert.ErrorIs(err, ErrTokenDecode)
}

func TestKeySetDecoder_Decode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pub, priv := TestGenerateKeys(t)
	_, otherPriv := TestGenerateKeys(t)
	ks, err := capjwt.NewStaticKeySet([]string{pub})
	require.NoError(t, err)
	d, err := NewKeySetDecoder(ks)
	require.NoError(t, err)

	now := time.Now()
	trusted := testToken(t, priv, now, now.Add(time.Minute), nil)
	forged := testToken(t, otherPriv, now, now.Add(time.Minute), nil)

	tests := []struct {
		name    string
		kind    TokenKind
		token   string
		wantErr bool
	}{
		{name: "trusted-access", kind: KindAccessToken, token: trusted},
		{name: "trusted-id", kind: KindIDToken, token: trusted},
		{name: "forged-access", kind: KindAccessToken, token: forged, wantErr: true},
		{name: "forged-id", kind: KindIDToken, token: forged, wantErr: true},
		// refresh tokens are signed with a key the client never sees
		{name: "forged-refresh", kind: KindRefreshToken, token: forged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			c, err := d.Decode(ctx, tt.kind, tt.token)
			if tt.wantErr {
				require.Error(err)
				assert.ErrorIs(err, ErrTokenDecode)
				return
			}
			require.NoError(err)
			assert.Equal("alice", c.Subject)
		})
	}

	_, err = NewKeySetDecoder(nil)
	assert.ErrorIs(t, err, ErrNilParameter)
}

func TestClient_verifiedTokens(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	env := newTestEnv(t)
	ks, err := capjwt.NewJSONWebKeySet(ctx, env.provider.RealmURL()+"/protocol/openid-connect/certs", env.provider.CACert())
	require.NoError(err)
	d, err := NewKeySetDecoder(ks)
	require.NoError(err)

	c := env.client(t, WithClaimsDecoder(d))
	a := &testAdapter{}
	_, err = c.Init(ctx, InitOptions{Adapter: a, CheckLoginIframe: Bool(false)})
	require.NoError(err)
	env.login(t, c, a)
	assert.True(c.Session().Authenticated)

	refreshed, err := c.UpdateToken(ctx, -1)
	require.NoError(err)
	assert.True(refreshed)
}
