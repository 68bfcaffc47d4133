// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/capsession/storage"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/singleflight"
)

// Client tracks one authentication session against a provider: it builds
// the redirects, consumes their callbacks, keeps the tokens fresh and
// watches the provider session. A Client is safe for concurrent use.
type Client struct {
	config     *Config
	endpoints  Endpoints
	logger     hclog.Logger
	now        func() time.Time
	httpClient *http.Client
	exchanger  TokenExchanger
	silent     SilentChecker
	frame      StatusFrame
	requests   *requestStore
	tokens     *TokenStore
	events     *events

	refreshGroup singleflight.Group

	mu            sync.RWMutex
	state         FlowState
	flow          FlowConfig
	onLoad        OnLoad
	loginRequired bool
	adapter       Adapter
	parser        *CallbackParser
	monitor       *SessionMonitor
}

// clientOptions is the set of available options for the Client
type clientOptions struct {
	withNowFunc         func() time.Time
	withLogger          hclog.Logger
	withStorage         storage.Storage
	withExchanger       TokenExchanger
	withDecoder         ClaimsDecoder
	withSilentChecker   SilentChecker
	withStatusFrame     StatusFrame
	withHTTPClient      *http.Client
	withExchangeTimeout time.Duration
	withClientSecret    string
	withClientAssertion JWTSerializer
}

// clientDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func clientDefaults() clientOptions {
	return clientOptions{
		withNowFunc:         time.Now,
		withLogger:          hclog.NewNullLogger(),
		withExchangeTimeout: DefaultExchangeTimeout,
	}
}

// getClientOpts gets the client defaults and applies the opt overrides passed
// in
func getClientOpts(opt ...Option) clientOptions {
	opts := clientDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// NewClient creates a Client for c. The client is Uninitialized until Init.
//
// Supported options: WithNow, WithLogger, WithStorage, WithTokenExchanger,
// WithClaimsDecoder, WithSilentChecker, WithStatusFrame, WithHTTPClient,
// WithExchangeTimeout, WithClientSecret, WithClientAssertionJWT
func NewClient(c *Config, opt ...Option) (*Client, error) {
	const op = "NewClient"
	if c == nil {
		return nil, fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	opts := getClientOpts(opt...)
	logger := opts.withLogger.Named("client")

	hc := opts.withHTTPClient
	if hc == nil {
		var err error
		if hc, err = c.HTTPClient(); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	endpoints := c.ResolvedEndpoints()
	exchanger := opts.withExchanger
	if exchanger == nil {
		var err error
		exchanger, err = NewOAuth2Exchanger(c.ClientID, endpoints.Token,
			WithHTTPClient(hc),
			WithExchangeTimeout(opts.withExchangeTimeout),
			WithNow(opts.withNowFunc),
			WithLogger(opts.withLogger),
			WithClientSecret(opts.withClientSecret),
			WithClientAssertionJWT(opts.withClientAssertion),
		)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	store := opts.withStorage
	if store == nil {
		store = storage.NewMemory()
	}

	client := &Client{
		config:     c,
		endpoints:  endpoints,
		logger:     logger,
		now:        opts.withNowFunc,
		httpClient: hc,
		exchanger:  exchanger,
		silent:     opts.withSilentChecker,
		frame:      opts.withStatusFrame,
		requests:   newRequestStore(store, opts.withNowFunc, logger),
		events:     newEvents(),
		state:      StateUninitialized,
	}
	client.tokens = NewTokenStore(opts.withDecoder, opts.withNowFunc, func() {
		client.events.emit(Event{Type: EventTokenExpired})
	})
	return client, nil
}

// On subscribes fn to events of type t and returns a func which removes the
// subscription.
func (c *Client) On(t EventType, fn EventHandler) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	return c.events.subscribe(t, fn)
}

// Session is a point in time view of the client's session.
type Session struct {
	State         FlowState
	Authenticated bool
	Subject       string
	SessionID     string
	Flow          Flow
	ResponseMode  ResponseMode
	ResponseType  ResponseType
	TimeSkew      time.Duration
	TimeSkewKnown bool
	LoginRequired bool
}

// Session returns the current session.
func (c *Client) Session() Session {
	c.mu.RLock()
	s := Session{
		State:         c.state,
		Flow:          c.flow.Flow,
		ResponseMode:  c.flow.ResponseMode,
		ResponseType:  c.flow.ResponseType,
		LoginRequired: c.loginRequired,
	}
	c.mu.RUnlock()
	ts := c.tokens.Tokens()
	s.Authenticated = ts.AccessToken != ""
	if ts.AccessTokenClaims != nil {
		s.Subject = ts.AccessTokenClaims.Subject
		s.SessionID = ts.AccessTokenClaims.session()
	}
	s.TimeSkew, s.TimeSkewKnown = c.tokens.TimeSkew()
	return s
}

// Tokens returns the committed tokens.
func (c *Client) Tokens() TokenSet {
	return c.tokens.Tokens()
}

// Endpoints returns the provider endpoints in use.
func (c *Client) Endpoints() Endpoints {
	return c.endpoints
}

// IsTokenExpired reports whether the access token expires within
// minValidity. It is true when there is no access token.
func (c *Client) IsTokenExpired(minValidity time.Duration) bool {
	return c.tokens.IsExpired(minValidity)
}

// HasRealmRole reports whether the access token grants the realm role.
func (c *Client) HasRealmRole(role string) bool {
	return c.tokens.Roles().HasRealmRole(role)
}

// HasResourceRole reports whether the access token grants role for
// resource. An empty resource means the client itself.
func (c *Client) HasResourceRole(role, resource string) bool {
	if resource == "" {
		resource = c.config.ClientID
	}
	return c.tokens.Roles().HasResourceRole(role, resource)
}

// Login starts an interactive login through the adapter.
func (c *Client) Login(ctx context.Context, opts LoginOptions) error {
	const op = "Client.Login"
	_, adapter, err := c.usable()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	u, err := c.createLoginURL(ctx, opts)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := adapter.Login(ctx, u, opts); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Register starts a registration through the adapter.
func (c *Client) Register(ctx context.Context, opts LoginOptions) error {
	const op = "Client.Register"
	_, adapter, err := c.usable()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	opts.Action = ActionRegister
	u, err := c.createLoginURL(ctx, opts)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := adapter.Register(ctx, u, opts); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Logout ends the provider session through the adapter, then clears the
// local tokens and stops the session monitor. A refresh still in flight
// is discarded when it completes.
func (c *Client) Logout(ctx context.Context, opts LogoutOptions) error {
	const op = "Client.Logout"
	_, adapter, err := c.usable()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	u, err := c.CreateLogoutURL(opts)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := adapter.Logout(ctx, u, opts); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	c.stopMonitor()
	c.clearLocal()
	c.setState(StateUnauthenticated)
	return nil
}

// AccountManagement opens the account console through the adapter.
func (c *Client) AccountManagement(ctx context.Context) error {
	const op = "Client.AccountManagement"
	_, adapter, err := c.usable()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	u, err := c.CreateAccountURL()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := adapter.AccountManagement(ctx, u); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CreateLoginURL returns an authorization URL and records the pending
// request it belongs to.
func (c *Client) CreateLoginURL(ctx context.Context, opts LoginOptions) (string, error) {
	const op = "Client.CreateLoginURL"
	u, err := c.createLoginURL(ctx, opts)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// CreateRegisterURL returns a registration URL and records the pending
// request it belongs to.
func (c *Client) CreateRegisterURL(ctx context.Context, opts LoginOptions) (string, error) {
	const op = "Client.CreateRegisterURL"
	opts.Action = ActionRegister
	u, err := c.createLoginURL(ctx, opts)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// CreateLogoutURL returns the provider's logout URL.
func (c *Client) CreateLogoutURL(opts LogoutOptions) (string, error) {
	const op = "Client.CreateLogoutURL"
	fc, adapter, err := c.usable()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	redirect, err := adapter.RedirectURI(c.requestedRedirect(opts.RedirectURI, fc), false)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	u, err := c.builder(fc).LogoutURL(redirect)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// CreateAccountURL returns the account console URL.
func (c *Client) CreateAccountURL() (string, error) {
	const op = "Client.CreateAccountURL"
	fc, adapter, err := c.usable()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	redirect, err := adapter.RedirectURI(c.requestedRedirect("", fc), false)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	u, err := c.builder(fc).AccountURL(redirect)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// ClearToken clears the tokens. When the client was initialized with
// OnLoadLoginRequired, a new login is started.
func (c *Client) ClearToken(ctx context.Context) error {
	const op = "Client.ClearToken"
	c.clearLocal()
	c.mu.RLock()
	loginRequired := c.loginRequired && c.state != StateDestroyed
	c.mu.RUnlock()
	if loginRequired {
		if err := c.Login(ctx, LoginOptions{}); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

// Destroy stops every background activity. The client cannot be used
// afterwards.
func (c *Client) Destroy() {
	c.mu.Lock()
	c.state = StateDestroyed
	c.mu.Unlock()
	c.stopMonitor()
	c.tokens.Stop()
	c.logger.Debug("client destroyed")
}

func (c *Client) createLoginURL(ctx context.Context, opts LoginOptions) (string, error) {
	fc, adapter, err := c.usable()
	if err != nil {
		return "", err
	}
	redirect, err := adapter.RedirectURI(c.requestedRedirect(opts.RedirectURI, fc), true)
	if err != nil {
		return "", err
	}
	reqOpts := []Option{WithNow(c.now), WithPrompt(opts.Prompt)}
	if fc.PKCEMethod != "" {
		reqOpts = append(reqOpts, WithPKCE())
	}
	req, err := NewAuthRequest(DefaultRequestExpiry, redirect, reqOpts...)
	if err != nil {
		return "", err
	}
	u, err := c.builder(fc).AuthURL(req, opts)
	if err != nil {
		return "", err
	}
	if err := c.requests.Add(ctx, req); err != nil {
		return "", err
	}
	return u, nil
}

func (c *Client) requestedRedirect(requested string, fc FlowConfig) string {
	switch {
	case requested != "":
		return requested
	case fc.RedirectURI != "":
		return fc.RedirectURI
	default:
		return c.config.RedirectURI
	}
}

func (c *Client) builder(fc FlowConfig) URLBuilder {
	return URLBuilder{
		Endpoints: c.endpoints,
		ClientID:  c.config.ClientID,
		Flow:      fc,
		Scope:     strings.Join(c.config.Scopes, " "),
	}
}

// usable returns the flow configuration and adapter of an initialized,
// not destroyed client.
func (c *Client) usable() (FlowConfig, Adapter, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch c.state {
	case StateDestroyed:
		return FlowConfig{}, nil, ErrDestroyed
	case StateUninitialized:
		return FlowConfig{}, nil, ErrNotInitialized
	}
	return c.flow, c.adapter, nil
}

func (c *Client) setState(s FlowState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDestroyed || c.state == s {
		return
	}
	c.logger.Debug("state transition", "from", c.state, "to", s)
	c.state = s
}

// swapState moves the client to s when it is in one of from.
func (c *Client) swapState(s FlowState, from ...FlowState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range from {
		if c.state == f {
			c.logger.Debug("state transition", "from", c.state, "to", s)
			c.state = s
			return true
		}
	}
	return false
}

// clearLocal clears the tokens, settles an authenticated client as
// Unauthenticated and emits EventAuthLogout when a token was present.
func (c *Client) clearLocal() bool {
	had := c.tokens.Clear()
	c.swapState(StateUnauthenticated, StateAuthenticated, StateRefreshing)
	if had {
		c.events.emit(Event{Type: EventAuthLogout})
	}
	return had
}
