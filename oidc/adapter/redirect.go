// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package adapter

import (
	"context"
	"fmt"
	"net/url"

	"github.com/hashicorp/capsession/oidc"
	"github.com/hashicorp/go-hclog"
)

// Navigator is the user agent a Redirect drives.
type Navigator interface {
	// Navigate leaves the current location for u.
	Navigate(ctx context.Context, u string) error

	// Replace rewrites the current location to u without navigating.
	Replace(ctx context.Context, u string) error

	// Location is the current location, or "" when there is none.
	Location() string
}

// Redirect is the default adapter: every navigation is a redirect of the
// current user agent.
type Redirect struct {
	nav             Navigator
	defaultRedirect string
	logger          hclog.Logger
}

var (
	_ oidc.Adapter          = (*Redirect)(nil)
	_ oidc.LocationReplacer = (*Redirect)(nil)
)

// NewRedirect creates a Redirect adapter for nav.
// Supported options:
//
//	WithDefaultRedirectURI
//	WithLogger
func NewRedirect(nav Navigator, opt ...oidc.Option) (*Redirect, error) {
	const op = "adapter.NewRedirect"
	if nav == nil {
		return nil, fmt.Errorf("%s: navigator is nil: %w", op, oidc.ErrNilParameter)
	}
	opts := getAdapterOpts(opt...)
	return &Redirect{
		nav:             nav,
		defaultRedirect: opts.withRedirectURI,
		logger:          opts.withLogger,
	}, nil
}

func (r *Redirect) navigate(ctx context.Context, op, u string) error {
	r.logger.Debug("redirecting", "op", op)
	if err := r.nav.Navigate(ctx, u); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Login redirects to the authorization URL.
func (r *Redirect) Login(ctx context.Context, authURL string, _ oidc.LoginOptions) error {
	return r.navigate(ctx, "Redirect.Login", authURL)
}

// Register redirects to the registration URL.
func (r *Redirect) Register(ctx context.Context, registerURL string, _ oidc.LoginOptions) error {
	return r.navigate(ctx, "Redirect.Register", registerURL)
}

// Logout redirects to the end session URL.
func (r *Redirect) Logout(ctx context.Context, logoutURL string, _ oidc.LogoutOptions) error {
	return r.navigate(ctx, "Redirect.Logout", logoutURL)
}

// AccountManagement redirects to the account console.
func (r *Redirect) AccountManagement(ctx context.Context, accountURL string) error {
	if accountURL == "" {
		return fmt.Errorf("Redirect.AccountManagement: no account URL: %w", oidc.ErrConfiguration)
	}
	return r.navigate(ctx, "Redirect.AccountManagement", accountURL)
}

// ReplaceLocation implements oidc.LocationReplacer.
func (r *Redirect) ReplaceLocation(ctx context.Context, cleanURL string) error {
	return r.nav.Replace(ctx, cleanURL)
}

// RedirectURI returns requested, then the default redirect URI, then the
// current location. When the current location is used and encodeHash is
// set, its fragment moves into a redirect_fragment query parameter, which
// the provider would otherwise overwrite.
func (r *Redirect) RedirectURI(requested string, encodeHash bool) (string, error) {
	const op = "Redirect.RedirectURI"
	switch {
	case requested != "":
		return requested, nil
	case r.defaultRedirect != "":
		return r.defaultRedirect, nil
	}
	loc := r.nav.Location()
	if loc == "" {
		return "", fmt.Errorf("%s: redirect URI cannot be resolved: %w", op, oidc.ErrConfiguration)
	}
	if !encodeHash {
		return loc, nil
	}
	u, err := url.Parse(loc)
	if err != nil {
		return "", fmt.Errorf("%s: current location %q is invalid: %s: %w", op, loc, err, oidc.ErrConfiguration)
	}
	if u.Fragment == "" {
		return loc, nil
	}
	q := u.Query()
	q.Set("redirect_fragment", u.Fragment)
	u.RawQuery = q.Encode()
	u.Fragment, u.RawFragment = "", ""
	return u.String(), nil
}
