// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Init fixes the flow configuration and establishes the session, in order:
// a callback carried by opts.Location, then cached tokens, then the OnLoad
// action. It returns whether the client is authenticated and emits
// EventReady once it settles.
//
// When OnLoad requires a visible redirect, Init returns false with a nil
// error after the adapter navigated away; the client stays Initializing
// until the callback is handled.
func (c *Client) Init(ctx context.Context, opts InitOptions) (bool, error) {
	const op = "Client.Init"
	fc, err := opts.flowConfig()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	c.mu.Lock()
	switch c.state {
	case StateDestroyed:
		c.mu.Unlock()
		return false, fmt.Errorf("%s: %w", op, ErrDestroyed)
	case StateUninitialized:
	default:
		c.mu.Unlock()
		return false, fmt.Errorf("%s: %w", op, ErrAlreadyInitialized)
	}
	c.flow = fc
	c.onLoad = opts.OnLoad
	c.loginRequired = opts.OnLoad == OnLoadLoginRequired
	c.adapter = opts.Adapter
	if c.adapter == nil {
		c.adapter = staticAdapter{}
	}
	c.parser = &CallbackParser{flow: fc.Flow, mode: fc.ResponseMode, store: c.requests}
	if fc.CheckLoginIframe && c.frame != nil && c.endpoints.CheckSessionIframe != "" {
		c.monitor, err = NewSessionMonitor(MonitorConfig{
			Frame:    c.frame,
			Interval: fc.CheckLoginIframeInterval,
			Timeout:  fc.MessageReceiveTimeout,
			Logger:   c.logger.Named("monitor"),
			Message:  c.statusMessage,
			Recheck:  c.recheckSession,
			OnLogout: c.sessionLost,
		})
		if err != nil {
			c.mu.Unlock()
			return false, fmt.Errorf("%s: %w", op, err)
		}
	}
	c.state = StateInitializing
	c.mu.Unlock()
	c.logger.Debug("initializing", "flow", fc.Flow, "response_mode", fc.ResponseMode, "on_load", opts.OnLoad)

	authenticated, settled, err := c.initialize(ctx, opts)
	switch {
	case err != nil:
		c.swapState(StateUnauthenticated, StateInitializing)
		return false, fmt.Errorf("%s: %w", op, err)
	case !settled:
		return false, nil
	}
	if authenticated {
		c.swapState(StateAuthenticated, StateInitializing)
	} else {
		c.swapState(StateUnauthenticated, StateInitializing)
	}
	c.events.emit(Event{Type: EventReady, Authenticated: authenticated})
	return authenticated, nil
}

func (c *Client) initialize(ctx context.Context, opts InitOptions) (authenticated, settled bool, err error) {
	if opts.Location != "" {
		result, err := c.parseLocation(ctx, opts.Location)
		if err != nil {
			c.events.emit(Event{Type: EventAuthError, Err: err})
			return false, true, err
		}
		if _, none := result.(NoCallback); !none {
			authenticated, err := c.completeCallback(ctx, result)
			return authenticated, true, err
		}
	}

	if opts.Token != "" && opts.RefreshToken != "" {
		if ok := c.restoreTokens(ctx, opts); ok {
			return true, true, nil
		}
	}

	switch opts.OnLoad {
	case OnLoadCheckSSO:
		if c.silent != nil {
			authenticated, err := c.silentCheck(ctx)
			return authenticated, true, err
		}
		if err := c.Login(ctx, LoginOptions{Prompt: PromptNone}); err != nil {
			return false, true, err
		}
		return false, false, nil
	case OnLoadLoginRequired:
		if err := c.Login(ctx, LoginOptions{}); err != nil {
			return false, true, err
		}
		return false, false, nil
	default:
		return false, true, nil
	}
}

// restoreTokens applies cached tokens and validates them, through the
// session monitor when there is one, otherwise with a forced refresh.
func (c *Client) restoreTokens(ctx context.Context, opts InitOptions) bool {
	if opts.TimeSkew != nil {
		c.tokens.SetTimeSkew(*opts.TimeSkew)
	}
	ts, err := c.tokens.Decode(ctx, RawTokens{
		AccessToken:  opts.Token,
		RefreshToken: opts.RefreshToken,
		IDToken:      opts.IDToken,
	})
	if err != nil {
		c.logger.Debug("ignoring cached tokens", "error", err)
		return false
	}
	// cached tokens say nothing about the current skew
	c.tokens.Apply(ts, time.Time{})

	if c.monitor != nil {
		c.startMonitor(ctx)
		status, err := c.monitor.Status(ctx)
		if err == nil && status == StatusUnchanged {
			c.events.emit(Event{Type: EventAuthSuccess})
			return true
		}
		c.logger.Debug("cached tokens rejected by session status", "status", status, "error", err)
		c.tokens.Clear()
		return false
	}

	if _, err := c.UpdateToken(ctx, -1); err != nil {
		c.events.emit(Event{Type: EventAuthError, Err: err})
		return false
	}
	c.events.emit(Event{Type: EventAuthSuccess})
	return true
}

// HandleCallback consumes a callback delivered after Init, such as a
// request received by a loopback redirect server. It returns whether the
// client is authenticated afterwards.
func (c *Client) HandleCallback(ctx context.Context, rawURL string) (bool, error) {
	const op = "Client.HandleCallback"
	if _, _, err := c.usable(); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	result, err := c.parseLocation(ctx, rawURL)
	if err != nil {
		c.swapState(StateUnauthenticated, StateInitializing)
		c.events.emit(Event{Type: EventAuthError, Err: err})
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if _, none := result.(NoCallback); none {
		return false, fmt.Errorf("%s: no callback parameters: %w", op, ErrInvalidParameter)
	}
	initializing := c.Session().State == StateInitializing
	authenticated, err := c.completeCallback(ctx, result)
	if err != nil {
		c.swapState(StateUnauthenticated, StateInitializing)
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if initializing {
		if authenticated {
			c.swapState(StateAuthenticated, StateInitializing)
		} else {
			c.swapState(StateUnauthenticated, StateInitializing)
		}
		c.events.emit(Event{Type: EventReady, Authenticated: authenticated})
	}
	return authenticated, nil
}

// parseLocation parses rawURL and strips the callback from the visible
// location.
func (c *Client) parseLocation(ctx context.Context, rawURL string) (CallbackResult, error) {
	c.mu.RLock()
	parser, adapter := c.parser, c.adapter
	c.mu.RUnlock()
	result, cleanURL, err := parser.Parse(ctx, rawURL)
	if cleanURL != "" {
		if r, ok := adapter.(LocationReplacer); ok {
			if rerr := r.ReplaceLocation(ctx, cleanURL); rerr != nil {
				c.logger.Warn("unable to replace location", "error", rerr)
			}
		}
	}
	return result, err
}

// completeCallback turns a parsed callback into a committed session.
func (c *Client) completeCallback(ctx context.Context, result CallbackResult) (bool, error) {
	switch r := result.(type) {
	case *CallbackError:
		if r.Request.Prompt == PromptNone {
			c.logger.Debug("silent authentication declined", "error", r.Code)
			return false, nil
		}
		err := &AuthError{Code: r.Code, Description: r.Description, URI: r.URI}
		c.events.emit(Event{Type: EventAuthError, Err: err})
		return false, err

	case *AuthorizationCode:
		raw, err := c.exchanger.ExchangeCode(ctx, r.Code, r.Request.RedirectURI, r.Request.PKCEVerifier)
		if err != nil {
			c.events.emit(Event{Type: EventAuthError, Err: err})
			return false, err
		}
		return c.authSuccess(ctx, raw, r.Request)

	case *TokenResponse:
		raw := RawTokens{AccessToken: r.AccessToken, IDToken: r.IDToken, ReceivedAt: c.now()}
		return c.authSuccess(ctx, raw, r.Request)

	default:
		return false, fmt.Errorf("unexpected callback result %T: %w", result, ErrInvalidParameter)
	}
}

func (c *Client) authSuccess(ctx context.Context, raw RawTokens, req *AuthRequest) (bool, error) {
	ts, err := c.tokens.Decode(ctx, raw)
	if err != nil {
		c.events.emit(Event{Type: EventAuthError, Err: err})
		return false, err
	}
	c.mu.RLock()
	useNonce := c.flow.UseNonce
	c.mu.RUnlock()
	if useNonce && !nonceMatches(ts, req.Nonce) {
		c.clearLocal()
		err := fmt.Errorf("token nonce does not match the request: %w", ErrInvalidNonce)
		c.events.emit(Event{Type: EventAuthError, Err: err})
		return false, err
	}
	c.tokens.Apply(ts, raw.ReceivedAt)
	c.swapState(StateAuthenticated, StateUnauthenticated, StateRefreshing)
	c.startMonitor(ctx)
	c.events.emit(Event{Type: EventAuthSuccess})
	return true, nil
}

// nonceMatches checks the ID token nonce, and the nonce of the other tokens
// when they carry one.
func nonceMatches(ts TokenSet, nonce string) bool {
	if ts.IDTokenClaims != nil && ts.IDTokenClaims.Nonce != nonce {
		return false
	}
	for _, claims := range []*Claims{ts.AccessTokenClaims, ts.RefreshTokenClaims} {
		if claims != nil && claims.Nonce != "" && claims.Nonce != nonce {
			return false
		}
	}
	return true
}

// silentCheck asks the provider for a session without showing any UI.
func (c *Client) silentCheck(ctx context.Context) (bool, error) {
	const op = "Client.silentCheck"
	fc, _, err := c.usable()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	redirect := fc.SilentCheckSSORedirectURI
	if redirect == "" {
		redirect = c.requestedRedirect("", fc)
	}
	authURL, err := c.createLoginURL(ctx, LoginOptions{Prompt: PromptNone, RedirectURI: redirect})
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	checkCtx, cancel := context.WithTimeout(ctx, fc.MessageReceiveTimeout)
	defer cancel()
	callbackURL, err := c.silent.Check(checkCtx, authURL, redirect)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	result, _, err := c.parser.Parse(ctx, callbackURL)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if _, none := result.(NoCallback); none {
		return false, fmt.Errorf("%s: provider redirected without a callback: %w", op, ErrSilentCheckFailed)
	}
	return c.completeCallback(ctx, result)
}

func (c *Client) statusMessage() (string, bool) {
	ts := c.tokens.Tokens()
	if ts.AccessToken == "" {
		return "", false
	}
	sid := ts.AccessTokenClaims.session()
	if sid == "" {
		sid = ts.IDTokenClaims.session()
	}
	if sid == "" {
		return "", false
	}
	return c.config.ClientID + " " + sid, true
}

// recheckSession confirms a change reported by the session monitor. Without
// a silent checker the report cannot be verified and is taken as final.
func (c *Client) recheckSession(ctx context.Context) (bool, error) {
	if c.silent == nil {
		return true, nil
	}
	authenticated, err := c.silentCheck(ctx)
	if err != nil {
		if errors.Is(err, ErrDestroyed) {
			return false, nil
		}
		return false, err
	}
	return !authenticated, nil
}

func (c *Client) sessionLost() {
	c.logger.Debug("provider session ended")
	c.clearLocal()
}

func (c *Client) startMonitor(ctx context.Context) {
	c.mu.RLock()
	m := c.monitor
	c.mu.RUnlock()
	if m == nil || m.Running() {
		return
	}
	if err := m.Start(ctx, c.endpoints.CheckSessionIframe); err != nil {
		c.logger.Warn("unable to start session monitor", "error", err)
	}
}

func (c *Client) stopMonitor() {
	c.mu.RLock()
	m := c.monitor
	c.mu.RUnlock()
	if m != nil {
		m.Stop()
	}
}
