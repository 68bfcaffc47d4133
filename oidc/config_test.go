// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	t.Parallel()
	testCA := TestGenerateCA(t, []string{"localhost"})

	tests := []struct {
		name          string
		authServerURL string
		realm         string
		clientID      string
		opt           []Option
		want          *Config
		wantErrs      []string
	}{
		{
			name:          "realm",
			authServerURL: "https://sso.example.com/",
			realm:         "demo",
			clientID:      "web-app",
			opt:           []Option{WithRedirectURI("https://app.example.com/cb"), WithScopes("email"), WithProviderCA(testCA)},
			want: &Config{
				AuthServerURL: "https://sso.example.com/",
				Realm:         "demo",
				ClientID:      "web-app",
				RedirectURI:   "https://app.example.com/cb",
				Scopes:        []string{"email"},
				ProviderCA:    testCA,
			},
		},
		{
			name:     "endpoints",
			clientID: "web-app",
			opt:      []Option{WithEndpoints(&Endpoints{Authorize: "https://idp.example.com/authorize", Token: "https://idp.example.com/token"})},
			want: &Config{
				ClientID:  "web-app",
				Endpoints: &Endpoints{Authorize: "https://idp.example.com/authorize", Token: "https://idp.example.com/token"},
			},
		},
		{
			name:     "missing-everything",
			wantErrs: []string{"client id is empty", "auth server URL is empty", "realm is empty"},
		},
		{
			name:          "bad-scheme",
			authServerURL: "ftp://sso.example.com",
			realm:         "demo",
			clientID:      "web-app",
			wantErrs:      []string{"schema is not http or https"},
		},
		{
			name:     "incomplete-endpoints",
			clientID: "web-app",
			opt:      []Option{WithEndpoints(&Endpoints{Logout: "mailto:logout"})},
			wantErrs: []string{"authorize endpoint is empty", "token endpoint is empty", "schema is not http or https"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := NewConfig(tt.authServerURL, tt.realm, tt.clientID, tt.opt...)
			if len(tt.wantErrs) > 0 {
				require.Error(err)
				assert.ErrorIs(err, ErrInvalidParameter)
				for _, want := range tt.wantErrs {
					assert.Contains(err.Error(), want)
				}
				return
			}
			require.NoError(err)
			assert.Equal(tt.want, got)
		})
	}

	var nilConfig *Config
	assert.ErrorIs(t, nilConfig.Validate(), ErrNilParameter)
}

func TestConfig_ResolvedEndpoints(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	c, err := NewConfig("https://sso.example.com/", "my realm", "web-app")
	require.NoError(err)
	assert.Equal("https://sso.example.com/realms/my%20realm", c.RealmURL())

	base := "https://sso.example.com/realms/my%20realm/protocol/openid-connect"
	assert.Equal(Endpoints{
		Authorize:          base + "/auth",
		Token:              base + "/token",
		Logout:             base + "/logout",
		UserInfo:           base + "/userinfo",
		CheckSessionIframe: base + "/login-status-iframe.html",
		Certs:              base + "/certs",
		Account:            "https://sso.example.com/realms/my%20realm/account",
	}, c.ResolvedEndpoints())

	override := &Endpoints{Authorize: "https://idp.example.com/a", Token: "https://idp.example.com/t"}
	c, err = NewConfig("", "", "web-app", WithEndpoints(override))
	require.NoError(err)
	assert.Equal("", c.RealmURL())
	assert.Equal(*override, c.ResolvedEndpoints())
}

func TestConfig_HTTPClient(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	c := &Config{ProviderCA: "not a pem"}
	_, err := c.HTTPClient()
	assert.ErrorIs(err, ErrInvalidCACert)

	c.ProviderCA = TestGenerateCA(t, []string{"localhost"})
	client, err := c.HTTPClient()
	require.NoError(err)
	assert.NotNil(client.Transport)
}

func TestDiscoverEndpoints(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	p := StartTestProvider(t, "web-app")

	got, err := DiscoverEndpoints(ctx, p.RealmURL(), p.CACert())
	require.NoError(err)
	cfg := p.Config(t)
	want := cfg.ResolvedEndpoints()
	want.Account = ""
	assert.Equal(&want, got)

	_, err = DiscoverEndpoints(ctx, "", "")
	assert.ErrorIs(err, ErrInvalidParameter)
	_, err = DiscoverEndpoints(ctx, p.RealmURL(), "")
	assert.Error(err)
}
