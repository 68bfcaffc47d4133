// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/text/language"
)

const scopeOpenID = "openid"

// URLBuilder renders the provider URLs a client navigates to. It holds no
// mutable state and every method is deterministic for the same inputs.
type URLBuilder struct {
	Endpoints Endpoints
	ClientID  string
	Flow      FlowConfig

	// Scope is the default scope used when LoginOptions.Scope is empty.
	Scope string
}

// AuthURL returns the authorization URL for req. The request supplies the
// state, nonce, redirect URI and PKCE verifier, the options supply everything
// else. When opts.Action is ActionRegister the URL opens the registration page.
func (b URLBuilder) AuthURL(req *AuthRequest, opts LoginOptions) (string, error) {
	const op = "URLBuilder.AuthURL"
	if req == nil {
		return "", fmt.Errorf("%s: auth request is nil: %w", op, ErrNilParameter)
	}
	if req.RedirectURI == "" {
		return "", fmt.Errorf("%s: redirect URI cannot be resolved: %w", op, ErrConfiguration)
	}
	if !opts.Prompt.Valid() {
		return "", fmt.Errorf("%s: %w: %q (supported: none, login)", op, ErrInvalidPrompt, opts.Prompt)
	}
	if b.Endpoints.Authorize == "" {
		return "", fmt.Errorf("%s: authorize endpoint is empty: %w", op, ErrConfiguration)
	}

	responseType := b.Flow.ResponseType
	if opts.ResponseType != "" {
		responseType = opts.ResponseType
	}
	if responseType == "" {
		responseType = b.Flow.Flow.ResponseType()
	}
	responseMode := b.Flow.ResponseMode
	if responseMode == "" {
		responseMode = ResponseModeFragment
	}

	v := url.Values{}
	v.Set("client_id", b.ClientID)
	v.Set("redirect_uri", req.RedirectURI)
	v.Set("state", req.State)
	v.Set("response_mode", string(responseMode))
	v.Set("response_type", string(responseType))
	v.Set("scope", scopeFor(opts.Scope, b.Scope))
	if b.Flow.UseNonce && req.Nonce != "" {
		v.Set("nonce", req.Nonce)
	}
	if opts.Prompt != "" {
		v.Set("prompt", string(opts.Prompt))
	}
	if opts.MaxAge != nil {
		v.Set("max_age", strconv.FormatUint(uint64(*opts.MaxAge), 10))
	}
	if opts.LoginHint != "" {
		v.Set("login_hint", opts.LoginHint)
	}
	if opts.IdpHint != "" {
		v.Set("kc_idp_hint", opts.IdpHint)
	}
	switch {
	case opts.Action == ActionRegister:
		v.Set("action", ActionRegister)
	case opts.Action != "":
		v.Set("kc_action", opts.Action)
	}
	if opts.Locale != "" {
		l, err := canonicalLocales(opts.Locale)
		if err != nil {
			return "", fmt.Errorf("%s: invalid locale: %w", op, err)
		}
		v.Set("ui_locales", l)
	}
	if opts.KcLocale != "" {
		l, err := canonicalLocales(opts.KcLocale)
		if err != nil {
			return "", fmt.Errorf("%s: invalid kc locale: %w", op, err)
		}
		v.Set("kc_locale", l)
	}
	if req.PKCEVerifier != "" {
		v.Set("code_challenge", oauth2.S256ChallengeFromVerifier(req.PKCEVerifier))
		v.Set("code_challenge_method", PKCEMethodS256)
	}
	return withQuery(b.Endpoints.Authorize, v)
}

// LogoutURL returns the end session URL which sends the user to redirectURI
// afterwards.
func (b URLBuilder) LogoutURL(redirectURI string) (string, error) {
	const op = "URLBuilder.LogoutURL"
	if b.Endpoints.Logout == "" {
		return "", fmt.Errorf("%s: logout endpoint is empty: %w", op, ErrConfiguration)
	}
	if redirectURI == "" {
		return "", fmt.Errorf("%s: redirect URI cannot be resolved: %w", op, ErrConfiguration)
	}
	v := url.Values{}
	v.Set("redirect_uri", redirectURI)
	return withQuery(b.Endpoints.Logout, v)
}

// AccountURL returns the account management URL, with referrerURI as the
// link back to the application.
func (b URLBuilder) AccountURL(referrerURI string) (string, error) {
	const op = "URLBuilder.AccountURL"
	if b.Endpoints.Account == "" {
		return "", fmt.Errorf("%s: provider has no account management endpoint: %w", op, ErrConfiguration)
	}
	if referrerURI == "" {
		return "", fmt.Errorf("%s: redirect URI cannot be resolved: %w", op, ErrConfiguration)
	}
	v := url.Values{}
	v.Set("referrer", b.ClientID)
	v.Set("referrer_uri", referrerURI)
	return withQuery(b.Endpoints.Account, v)
}

// scopeFor returns the scope parameter: "openid" followed by the requested or
// default scope, without repeating openid.
func scopeFor(requested, fallback string) string {
	s := requested
	if s == "" {
		s = fallback
	}
	fields := strings.Fields(s)
	for _, f := range fields {
		if f == scopeOpenID {
			return strings.Join(fields, " ")
		}
	}
	return strings.Join(append([]string{scopeOpenID}, fields...), " ")
}

func canonicalLocales(s string) (string, error) {
	fields := strings.Fields(s)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		tag, err := language.Parse(f)
		if err != nil {
			return "", fmt.Errorf("%q: %w", f, ErrInvalidParameter)
		}
		out = append(out, tag.String())
	}
	return strings.Join(out, " "), nil
}

// withQuery merges v into the query of endpoint.
func withQuery(endpoint string, v url.Values) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("endpoint %q is invalid: %w", endpoint, ErrConfiguration)
	}
	q := u.Query()
	for k, vals := range v {
		q[k] = vals
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
