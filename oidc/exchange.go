// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/capsession/oidc/clientassertion"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/oauth2"
)

// DefaultExchangeTimeout bounds a token endpoint round-trip when no other
// timeout is configured.
const DefaultExchangeTimeout = 30 * time.Second

// TokenExchanger performs single round-trips to the token endpoint. It never
// retries. Failures wrap ErrTimeout, ErrNetwork or ErrTokenEndpoint; the
// latter also wraps an *AuthError when the endpoint returned an OAuth2
// error body.
type TokenExchanger interface {
	// ExchangeCode redeems an authorization code.
	ExchangeCode(ctx context.Context, code, redirectURI, pkceVerifier string) (RawTokens, error)

	// Refresh runs the refresh_token grant.
	Refresh(ctx context.Context, refreshToken string) (RawTokens, error)
}

// JWTSerializer produces a signed client assertion per token request. See
// clientassertion.JWT.
type JWTSerializer interface {
	Serialize() (string, error)
}

// OAuth2Exchanger is the TokenExchanger built on golang.org/x/oauth2. A public
// client sends client_id in the request body. A confidential client
// authenticates with a client secret (HTTP basic auth) or a signed JWT client
// assertion.
type OAuth2Exchanger struct {
	clientID     string
	clientSecret string
	tokenURL     string
	client       *http.Client
	timeout      time.Duration
	now          func() time.Time
	logger       hclog.Logger
}

var _ TokenExchanger = (*OAuth2Exchanger)(nil)

// NewOAuth2Exchanger creates an exchanger for the token endpoint tokenURL.
// Supported options: WithHTTPClient, WithExchangeTimeout, WithNow, WithLogger,
// WithClientSecret, WithClientAssertionJWT
func NewOAuth2Exchanger(clientID, tokenURL string, opt ...Option) (*OAuth2Exchanger, error) {
	const op = "NewOAuth2Exchanger"
	switch {
	case clientID == "":
		return nil, fmt.Errorf("%s: client id is empty: %w", op, ErrInvalidParameter)
	case tokenURL == "":
		return nil, fmt.Errorf("%s: token endpoint is empty: %w", op, ErrConfiguration)
	}
	opts := getClientOpts(opt...)
	if opts.withClientSecret != "" && opts.withClientAssertion != nil {
		return nil, fmt.Errorf("%s: client secret and client assertion are mutually exclusive: %w", op, ErrInvalidParameter)
	}
	client := opts.withHTTPClient
	if opts.withClientAssertion != nil {
		client = withAssertions(client, tokenURL, opts.withClientAssertion)
	}
	return &OAuth2Exchanger{
		clientID:     clientID,
		clientSecret: opts.withClientSecret,
		tokenURL:     tokenURL,
		client:       client,
		timeout:      opts.withExchangeTimeout,
		now:          opts.withNowFunc,
		logger:       opts.withLogger.Named("exchange"),
	}, nil
}

func (e *OAuth2Exchanger) config(redirectURI string) *oauth2.Config {
	style := oauth2.AuthStyleInParams
	if e.clientSecret != "" {
		style = oauth2.AuthStyleInHeader
	}
	return &oauth2.Config{
		ClientID:     e.clientID,
		ClientSecret: e.clientSecret,
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			TokenURL:  e.tokenURL,
			AuthStyle: style,
		},
	}
}

func (e *OAuth2Exchanger) context(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, e.client)
	}
	return context.WithTimeout(ctx, e.timeout)
}

// ExchangeCode implements TokenExchanger.
func (e *OAuth2Exchanger) ExchangeCode(ctx context.Context, code, redirectURI, pkceVerifier string) (RawTokens, error) {
	const op = "OAuth2Exchanger.ExchangeCode"
	if code == "" {
		return RawTokens{}, fmt.Errorf("%s: code is empty: %w", op, ErrInvalidParameter)
	}
	var authOpts []oauth2.AuthCodeOption
	if pkceVerifier != "" {
		authOpts = append(authOpts, oauth2.VerifierOption(pkceVerifier))
	}
	ctx, cancel := e.context(ctx)
	defer cancel()

	start := e.now()
	tok, err := e.config(redirectURI).Exchange(ctx, code, authOpts...)
	if err != nil {
		return RawTokens{}, fmt.Errorf("%s: %w", op, classifyExchangeError(ctx, err))
	}
	e.logger.Debug("exchanged authorization code")
	return rawTokens(tok, midpoint(start, e.now())), nil
}

// Refresh implements TokenExchanger.
func (e *OAuth2Exchanger) Refresh(ctx context.Context, refreshToken string) (RawTokens, error) {
	const op = "OAuth2Exchanger.Refresh"
	if refreshToken == "" {
		return RawTokens{}, fmt.Errorf("%s: refresh token is empty: %w", op, ErrNotAuthenticated)
	}
	ctx, cancel := e.context(ctx)
	defer cancel()

	start := e.now()
	// a token with only a refresh token is never valid, so the source refreshes
	tok, err := e.config("").TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return RawTokens{}, fmt.Errorf("%s: %w", op, classifyExchangeError(ctx, err))
	}
	e.logger.Debug("refreshed tokens")
	return rawTokens(tok, midpoint(start, e.now())), nil
}

func rawTokens(tok *oauth2.Token, receivedAt time.Time) RawTokens {
	r := RawTokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ReceivedAt:   receivedAt,
	}
	if id, ok := tok.Extra("id_token").(string); ok {
		r.IDToken = id
	}
	return r
}

func midpoint(start, end time.Time) time.Time {
	return start.Add(end.Sub(start) / 2)
}

func classifyExchangeError(ctx context.Context, err error) error {
	var retrieveErr *oauth2.RetrieveError
	var netErr net.Error
	switch {
	case errors.As(err, &retrieveErr):
		if retrieveErr.ErrorCode != "" {
			return fmt.Errorf("%w: %w", ErrTokenEndpoint, &AuthError{
				Code:        retrieveErr.ErrorCode,
				Description: retrieveErr.ErrorDescription,
				URI:         retrieveErr.ErrorURI,
			})
		}
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		return fmt.Errorf("%w: status %d", ErrTokenEndpoint, status)
	case errors.Is(err, context.DeadlineExceeded), ctx.Err() == context.DeadlineExceeded:
		return fmt.Errorf("%w: %s", ErrTimeout, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %s", ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %s", ErrNetwork, err)
	}
}

// assertionTransport adds a fresh client assertion to every form POST sent to
// the token endpoint.
type assertionTransport struct {
	base      http.RoundTripper
	tokenURL  string
	assertion JWTSerializer
}

func withAssertions(c *http.Client, tokenURL string, j JWTSerializer) *http.Client {
	out := &http.Client{}
	if c != nil {
		*out = *c
	}
	base := out.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	out.Transport = &assertionTransport{base: base, tokenURL: tokenURL, assertion: j}
	return out
}

func (t *assertionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	const op = "assertionTransport.RoundTrip"
	if req.Method != http.MethodPost || req.Body == nil || req.URL.String() != t.tokenURL {
		return t.base.RoundTrip(req)
	}
	body, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to read request body: %w", op, err)
	}
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to parse request body: %w", op, err)
	}
	assertion, err := t.assertion.Serialize()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to sign client assertion: %w: %w", op, ErrConfiguration, err)
	}
	form.Set("client_assertion_type", clientassertion.JWTTypeParam)
	form.Set("client_assertion", assertion)
	encoded := form.Encode()

	// RoundTrippers must not modify the caller's request
	r := req.Clone(req.Context())
	r.Body = io.NopCloser(strings.NewReader(encoded))
	r.ContentLength = int64(len(encoded))
	r.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader([]byte(encoded))), nil
	}
	return t.base.RoundTrip(r)
}
