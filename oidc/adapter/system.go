// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package adapter

import (
	"context"
	"fmt"
	"net"
	"net/url"

	"github.com/hashicorp/capsession/oidc"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/browser"
)

// System opens every URL in the operating system's browser. The provider
// redirects back to a loopback listener, so the redirect URI must be an
// explicit http loopback address.
type System struct {
	redirect string
	open     func(string) error
	logger   hclog.Logger
}

var _ oidc.Adapter = (*System)(nil)

// NewSystem creates a System adapter for the loopback redirectURI.
// Supported options:
//
//	WithOpener
//	WithLogger
func NewSystem(redirectURI string, opt ...oidc.Option) (*System, error) {
	const op = "adapter.NewSystem"
	if err := checkLoopback(redirectURI); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	opts := getAdapterOpts(opt...)
	s := &System{
		redirect: redirectURI,
		open:     opts.withOpener,
		logger:   opts.withLogger,
	}
	if s.open == nil {
		s.open = browser.OpenURL
	}
	return s, nil
}

func checkLoopback(redirectURI string) error {
	u, err := url.Parse(redirectURI)
	if err != nil || redirectURI == "" {
		return fmt.Errorf("redirect URI %q is invalid: %w", redirectURI, oidc.ErrConfiguration)
	}
	if u.Scheme != "http" {
		return fmt.Errorf("redirect URI %q is not http: %w", redirectURI, oidc.ErrConfiguration)
	}
	host := u.Hostname()
	if ip := net.ParseIP(host); (ip == nil || !ip.IsLoopback()) && host != "localhost" {
		return fmt.Errorf("redirect URI %q is not a loopback address: %w", redirectURI, oidc.ErrConfiguration)
	}
	return nil
}

func (s *System) openURL(_ context.Context, op, u string) error {
	if u == "" {
		return fmt.Errorf("%s: nothing to open: %w", op, oidc.ErrConfiguration)
	}
	s.logger.Debug("opening browser", "op", op)
	if err := s.open(u); err != nil {
		return fmt.Errorf("%s: unable to open browser: %w", op, err)
	}
	return nil
}

// Login opens the authorization URL.
func (s *System) Login(ctx context.Context, authURL string, _ oidc.LoginOptions) error {
	return s.openURL(ctx, "System.Login", authURL)
}

// Register opens the registration URL.
func (s *System) Register(ctx context.Context, registerURL string, _ oidc.LoginOptions) error {
	return s.openURL(ctx, "System.Register", registerURL)
}

// Logout opens the end session URL, ending the browser's provider session.
func (s *System) Logout(ctx context.Context, logoutURL string, _ oidc.LogoutOptions) error {
	return s.openURL(ctx, "System.Logout", logoutURL)
}

// AccountManagement opens the account console.
func (s *System) AccountManagement(ctx context.Context, accountURL string) error {
	return s.openURL(ctx, "System.AccountManagement", accountURL)
}

// RedirectURI returns requested when set, otherwise the loopback redirect.
// A native application has no location with a fragment to preserve.
func (s *System) RedirectURI(requested string, _ bool) (string, error) {
	if requested != "" {
		return requested, nil
	}
	return s.redirect, nil
}
