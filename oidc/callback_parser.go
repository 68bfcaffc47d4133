// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

// CallbackResult is the outcome of parsing a redirect: NoCallback,
// *CallbackError, *AuthorizationCode or *TokenResponse.
type CallbackResult interface {
	callbackResult()
}

// NoCallback means the URL carried no recognized callback parameters.
type NoCallback struct{}

// CallbackError is an error returned by the provider in the redirect.
type CallbackError struct {
	AuthError
	State   string
	Request *AuthRequest
}

// AuthorizationCode is a standard or hybrid flow callback. For the hybrid
// flow FrontChannel holds the tokens that came with the code; they are
// superseded by the result of the code exchange.
type AuthorizationCode struct {
	Code           string
	State          string
	SessionState   string
	KcActionStatus string
	FrontChannel   RawTokens
	Request        *AuthRequest
}

// TokenResponse is an implicit flow callback.
type TokenResponse struct {
	AccessToken    string
	IDToken        string
	TokenType      string
	ExpiresIn      string
	State          string
	SessionState   string
	KcActionStatus string
	Request        *AuthRequest
}

func (NoCallback) callbackResult()         {}
func (*CallbackError) callbackResult()     {}
func (*AuthorizationCode) callbackResult() {}
func (*TokenResponse) callbackResult()     {}

// CallbackParser recognizes callbacks for one flow and response mode and
// binds them to the pending AuthRequest with the same state.
type CallbackParser struct {
	flow  Flow
	mode  ResponseMode
	store *requestStore
}

// Parse parses rawURL. cleanURL is rawURL with the callback parameters
// removed and is returned whenever a callback was recognized, even if it was
// rejected, so the caller can strip it from the visible location. A callback
// whose state has no pending request fails with ErrStateMismatch.
func (p *CallbackParser) Parse(ctx context.Context, rawURL string) (result CallbackResult, cleanURL string, err error) {
	const op = "CallbackParser.Parse"
	params, cleanURL, found, err := ParseCallbackURL(rawURL, p.flow, p.mode)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}
	if !found {
		return NoCallback{}, "", nil
	}
	state := params.Get("state")
	req, err := p.store.Take(ctx, state)
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrExpiredRequest):
		return nil, cleanURL, fmt.Errorf("%s: %w", op, ErrStateMismatch)
	case err != nil:
		return nil, cleanURL, fmt.Errorf("%s: %w", op, err)
	}

	if code := params.Get("error"); code != "" {
		return &CallbackError{
			AuthError: AuthError{
				Code:        code,
				Description: params.Get("error_description"),
				URI:         params.Get("error_uri"),
			},
			State:   state,
			Request: req,
		}, cleanURL, nil
	}
	if p.flow == FlowImplicit {
		return &TokenResponse{
			AccessToken:    params.Get("access_token"),
			IDToken:        params.Get("id_token"),
			TokenType:      params.Get("token_type"),
			ExpiresIn:      params.Get("expires_in"),
			State:          state,
			SessionState:   params.Get("session_state"),
			KcActionStatus: params.Get("kc_action_status"),
			Request:        req,
		}, cleanURL, nil
	}
	return &AuthorizationCode{
		Code:           params.Get("code"),
		State:          state,
		SessionState:   params.Get("session_state"),
		KcActionStatus: params.Get("kc_action_status"),
		FrontChannel: RawTokens{
			AccessToken: params.Get("access_token"),
			IDToken:     params.Get("id_token"),
		},
		Request: req,
	}, cleanURL, nil
}

// ParseCallbackURL extracts the callback parameters of flow from the query
// or the fragment of rawURL, as selected by mode; the other location is not
// consulted. It reports whether a callback is present and returns the URL
// without the callback parameters. A redirect_fragment query parameter is
// restored as the fragment of the clean URL.
func ParseCallbackURL(rawURL string, flow Flow, mode ResponseMode) (params url.Values, cleanURL string, found bool, err error) {
	const op = "ParseCallbackURL"
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", false, fmt.Errorf("%s: unable to parse %q: %w", op, rawURL, ErrInvalidParameter)
	}
	query := u.Query()
	var source url.Values
	switch mode {
	case ResponseModeQuery:
		source = query
	case ResponseModeFragment:
		if source, err = url.ParseQuery(u.EscapedFragment()); err != nil {
			return nil, "", false, nil
		}
	default:
		return nil, "", false, fmt.Errorf("%s: invalid response mode %q: %w", op, mode, ErrConfiguration)
	}

	params = url.Values{}
	for _, name := range flow.callbackParams() {
		if v, ok := source[name]; ok {
			params[name] = v
			delete(source, name)
		}
	}
	if !callbackPresent(flow, params) {
		return nil, "", false, nil
	}

	fragment, hasRedirectFragment := query["redirect_fragment"]
	delete(query, "redirect_fragment")
	clean := *u
	clean.RawQuery = query.Encode()
	clean.Fragment, clean.RawFragment = "", ""
	cleanURL = clean.String()
	switch {
	case mode == ResponseModeFragment && len(source) > 0:
		cleanURL += "#" + source.Encode()
	case hasRedirectFragment && len(fragment) > 0:
		cleanURL += "#" + fragment[0]
	case mode == ResponseModeQuery && u.Fragment != "":
		cleanURL += "#" + u.EscapedFragment()
	}
	return params, cleanURL, true, nil
}

func callbackPresent(flow Flow, p url.Values) bool {
	if p.Get("state") == "" {
		return false
	}
	if p.Get("error") != "" {
		return true
	}
	if flow == FlowImplicit {
		return p.Get("access_token") != "" || p.Get("id_token") != ""
	}
	return p.Get("code") != ""
}
