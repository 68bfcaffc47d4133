// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"

	sdkHttp "github.com/hashicorp/capsession/sdk/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_StartTestProvider(t *testing.T) {
	t.Parallel()
	p := StartTestProvider(t, "test-client")
	realm := p.RealmURL()
	oidcPrefix := realm + "/protocol/openid-connect"

	browser, _, err := sdkHttp.NewBrowserClient(p.CACert(), 0)
	require.NoError(t, err)

	authorize := func(t *testing.T, params url.Values) *url.URL {
		t.Helper()
		resp, err := browser.Get(oidcPrefix + "/auth?" + params.Encode())
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusFound, resp.StatusCode)
		loc, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)
		return loc
	}
	authParams := func(extra ...string) url.Values {
		v := url.Values{
			"client_id":     {"test-client"},
			"redirect_uri":  {"https://app.example.com/cb"},
			"state":         {"s1"},
			"scope":         {"openid"},
			"response_type": {"code"},
		}
		for i := 0; i+1 < len(extra); i += 2 {
			v.Set(extra[i], extra[i+1])
		}
		return v
	}
	tokenReq := func(t *testing.T, form url.Values) (int, map[string]interface{}) {
		t.Helper()
		resp, err := browser.PostForm(oidcPrefix+"/token", form)
		require.NoError(t, err)
		defer resp.Body.Close()
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		return resp.StatusCode, body
	}

	t.Run("discovery", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		resp, err := browser.Get(realm + "/.well-known/openid-configuration")
		require.NoError(err)
		defer resp.Body.Close()
		var doc map[string]string
		require.NoError(json.NewDecoder(resp.Body).Decode(&doc))
		assert.Equal(realm, doc["issuer"])
		assert.Equal(oidcPrefix+"/certs", doc["jwks_uri"])
		assert.Equal(oidcPrefix+"/login-status-iframe.html", doc["check_session_iframe"])
	})
	t.Run("prompt-none-without-session", func(t *testing.T) {
		loc := authorize(t, authParams("prompt", "none"))
		frag, err := url.ParseQuery(loc.Fragment)
		require.NoError(t, err)
		assert.Equal(t, "login_required", frag.Get("error"))
		assert.Equal(t, "s1", frag.Get("state"))
	})
	t.Run("code-exchange", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		loc := authorize(t, authParams("response_mode", "query"))
		assert.Equal("/cb", loc.Path)
		code := loc.Query().Get("code")
		require.NotEmpty(code)
		assert.NotEmpty(loc.Query().Get("session_state"))

		// a session now exists, so prompt=none succeeds
		silent := authorize(t, authParams("prompt", "none"))
		frag, err := url.ParseQuery(silent.Fragment)
		require.NoError(err)
		assert.NotEmpty(frag.Get("code"))

		status, body := tokenReq(t, url.Values{
			"grant_type":   {"authorization_code"},
			"client_id":    {"test-client"},
			"code":         {code},
			"redirect_uri": {"https://app.example.com/cb"},
		})
		assert.Equal(http.StatusOK, status)
		assert.NotEmpty(body["access_token"])
		assert.NotEmpty(body["refresh_token"])
		assert.NotEmpty(body["id_token"])
		assert.Equal(1, p.TokenCalls("authorization_code"))

		// codes are single use
		status, body = tokenReq(t, url.Values{
			"grant_type":   {"authorization_code"},
			"client_id":    {"test-client"},
			"code":         {code},
			"redirect_uri": {"https://app.example.com/cb"},
		})
		assert.Equal(http.StatusBadRequest, status)
		assert.Equal("invalid_grant", body["error"])
	})
	t.Run("token-errors", func(t *testing.T) {
		assert := assert.New(t)
		status, body := tokenReq(t, url.Values{"grant_type": {"refresh_token"}, "client_id": {"other"}})
		assert.Equal(http.StatusUnauthorized, status)
		assert.Equal("unauthorized_client", body["error"])

		_, body = tokenReq(t, url.Values{"grant_type": {"password"}, "client_id": {"test-client"}})
		assert.Equal("unsupported_grant_type", body["error"])

		_, body = tokenReq(t, url.Values{"grant_type": {"refresh_token"}, "client_id": {"test-client"}, "refresh_token": {"junk"}})
		assert.Equal("invalid_grant", body["error"])
	})
	t.Run("endpoints", func(t *testing.T) {
		tests := []struct {
			name   string
			method string
			url    string
			accept string
			want   int
		}{
			{name: "token-get", method: http.MethodGet, url: oidcPrefix + "/token", want: http.StatusMethodNotAllowed},
			{name: "userinfo-no-bearer", method: http.MethodGet, url: oidcPrefix + "/userinfo", want: http.StatusUnauthorized},
			{name: "account-no-bearer", method: http.MethodGet, url: realm + "/account", accept: "application/json", want: http.StatusUnauthorized},
			{name: "certs", method: http.MethodGet, url: oidcPrefix + "/certs", want: http.StatusOK},
			{name: "status-frame", method: http.MethodGet, url: oidcPrefix + "/login-status-iframe.html", want: http.StatusOK},
			{name: "unknown", method: http.MethodGet, url: realm + "/nope", want: http.StatusNotFound},
			{name: "bad-client", method: http.MethodGet, url: oidcPrefix + "/auth?client_id=other&redirect_uri=https%3A%2F%2Fapp.example.com%2F", want: http.StatusBadRequest},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				req, err := http.NewRequest(tt.method, tt.url, nil)
				require.NoError(t, err)
				if tt.accept != "" {
					req.Header.Set("Accept", tt.accept)
				}
				resp, err := browser.Do(req)
				require.NoError(t, err)
				defer resp.Body.Close()
				assert.Equal(t, tt.want, resp.StatusCode)
			})
		}
	})
	t.Run("allowed-redirects", func(t *testing.T) {
		p.SetAllowedRedirectURIs([]string{"https://app.example.com/only"})
		t.Cleanup(func() { p.SetAllowedRedirectURIs(nil) })
		resp, err := browser.Get(oidcPrefix + "/auth?" + authParams().Encode())
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.False(t, strings.Contains(resp.Header.Get("Location"), "code="))
	})
}
