// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func testBuilder(t *testing.T, flow Flow, mode ResponseMode) URLBuilder {
	t.Helper()
	fc, err := InitOptions{Flow: flow, ResponseMode: mode}.flowConfig()
	require.NoError(t, err)
	c, err := NewConfig("https://sso.example.com/auth", "demo", "web-app")
	require.NoError(t, err)
	return URLBuilder{Endpoints: c.ResolvedEndpoints(), ClientID: "web-app", Flow: fc}
}

func testRequest(t *testing.T, opt ...Option) *AuthRequest {
	t.Helper()
	r, err := NewAuthRequest(DefaultRequestExpiry, "https://app.example.com/cb", opt...)
	require.NoError(t, err)
	return r
}

func TestURLBuilder_AuthURL(t *testing.T) {
	t.Parallel()
	req := testRequest(t)
	tests := []struct {
		name       string
		builder    URLBuilder
		req        *AuthRequest
		opts       LoginOptions
		wantParams map[string]string
		wantAbsent []string
		wantErr    error
	}{
		{
			name:    "standard",
			builder: testBuilder(t, FlowStandard, ResponseModeFragment),
			req:     req,
			wantParams: map[string]string{
				"client_id":     "web-app",
				"redirect_uri":  "https://app.example.com/cb",
				"state":         req.State,
				"nonce":         req.Nonce,
				"response_mode": "fragment",
				"response_type": "code",
				"scope":         "openid",
			},
			wantAbsent: []string{"prompt", "max_age", "login_hint", "kc_idp_hint", "action", "ui_locales", "code_challenge"},
		},
		{
			name:       "implicit",
			builder:    testBuilder(t, FlowImplicit, ResponseModeFragment),
			req:        req,
			wantParams: map[string]string{"response_type": "id_token token"},
		},
		{
			name:       "hybrid-query-override",
			builder:    testBuilder(t, FlowHybrid, ResponseModeFragment),
			req:        req,
			opts:       LoginOptions{ResponseType: ResponseTypeCode},
			wantParams: map[string]string{"response_type": "code"},
		},
		{
			name:    "all-options",
			builder: testBuilder(t, FlowStandard, ResponseModeQuery),
			req:     req,
			opts: LoginOptions{
				Scope:     "profile email",
				Prompt:    PromptLogin,
				MaxAge:    Uint(300),
				LoginHint: "alice",
				IdpHint:   "github",
				Locale:    "en-us de",
				KcLocale:  "fr",
			},
			wantParams: map[string]string{
				"response_mode": "query",
				"scope":         "openid profile email",
				"prompt":        "login",
				"max_age":       "300",
				"login_hint":    "alice",
				"kc_idp_hint":   "github",
				"ui_locales":    "en-US de",
				"kc_locale":     "fr",
			},
		},
		{
			name:       "scope-keeps-openid-once",
			builder:    testBuilder(t, FlowStandard, ResponseModeFragment),
			req:        req,
			opts:       LoginOptions{Scope: "email openid"},
			wantParams: map[string]string{"scope": "email openid"},
		},
		{
			name:       "register",
			builder:    testBuilder(t, FlowStandard, ResponseModeFragment),
			req:        req,
			opts:       LoginOptions{Action: ActionRegister},
			wantParams: map[string]string{"action": "register"},
			wantAbsent: []string{"kc_action"},
		},
		{
			name:       "kc-action",
			builder:    testBuilder(t, FlowStandard, ResponseModeFragment),
			req:        req,
			opts:       LoginOptions{Action: "UPDATE_PASSWORD"},
			wantParams: map[string]string{"kc_action": "UPDATE_PASSWORD"},
			wantAbsent: []string{"action"},
		},
		{
			name: "no-nonce",
			builder: func() URLBuilder {
				b := testBuilder(t, FlowStandard, ResponseModeFragment)
				b.Flow.UseNonce = false
				return b
			}(),
			req:        req,
			wantAbsent: []string{"nonce"},
		},
		{
			name:    "invalid-prompt",
			builder: testBuilder(t, FlowStandard, ResponseModeFragment),
			req:     req,
			opts:    LoginOptions{Prompt: "consent"},
			wantErr: ErrInvalidPrompt,
		},
		{
			name:    "invalid-locale",
			builder: testBuilder(t, FlowStandard, ResponseModeFragment),
			req:     req,
			opts:    LoginOptions{Locale: "not a_locale!"},
			wantErr: ErrInvalidParameter,
		},
		{
			name:    "no-redirect",
			builder: testBuilder(t, FlowStandard, ResponseModeFragment),
			req:     &AuthRequest{State: "st", Nonce: "n"},
			wantErr: ErrConfiguration,
		},
		{
			name:    "nil-request",
			builder: testBuilder(t, FlowStandard, ResponseModeFragment),
			wantErr: ErrNilParameter,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := tt.builder.AuthURL(tt.req, tt.opts)
			if tt.wantErr != nil {
				require.Error(err)
				assert.ErrorIs(err, tt.wantErr)
				return
			}
			require.NoError(err)
			u, err := url.Parse(got)
			require.NoError(err)
			assert.Equal("/auth/realms/demo/protocol/openid-connect/auth", u.Path)
			q := u.Query()
			for k, v := range tt.wantParams {
				assert.Equalf(v, q.Get(k), "param %s", k)
			}
			for _, k := range tt.wantAbsent {
				assert.NotContainsf(q, k, "param %s", k)
			}
		})
	}
}

func TestURLBuilder_AuthURL_pkce(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	req := testRequest(t, WithPKCE())
	require.NotEmpty(req.PKCEVerifier)

	got, err := testBuilder(t, FlowStandard, ResponseModeFragment).AuthURL(req, LoginOptions{})
	require.NoError(err)
	u, err := url.Parse(got)
	require.NoError(err)
	assert.Equal(oauth2.S256ChallengeFromVerifier(req.PKCEVerifier), u.Query().Get("code_challenge"))
	assert.Equal("S256", u.Query().Get("code_challenge_method"))
}

func TestURLBuilder_LogoutURL(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	b := testBuilder(t, FlowStandard, ResponseModeFragment)

	got, err := b.LogoutURL("https://app.example.com/")
	require.NoError(err)
	assert.Equal("https://sso.example.com/auth/realms/demo/protocol/openid-connect/logout?redirect_uri=https%3A%2F%2Fapp.example.com%2F", got)

	// deterministic
	again, err := b.LogoutURL("https://app.example.com/")
	require.NoError(err)
	assert.Equal(got, again)

	_, err = b.LogoutURL("")
	assert.ErrorIs(err, ErrConfiguration)
}

func TestURLBuilder_AccountURL(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	b := testBuilder(t, FlowStandard, ResponseModeFragment)

	got, err := b.AccountURL("https://app.example.com/")
	require.NoError(err)
	assert.Equal("https://sso.example.com/auth/realms/demo/account?referrer=web-app&referrer_uri=https%3A%2F%2Fapp.example.com%2F", got)

	b.Endpoints.Account = ""
	_, err = b.AccountURL("https://app.example.com/")
	assert.ErrorIs(err, ErrConfiguration)
}
