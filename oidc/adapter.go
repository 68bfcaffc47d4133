// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
)

// Adapter performs the navigation a Client cannot do itself. The Client
// builds every URL; the adapter only takes the user agent there.
//
// See the adapter package for a browser redirect and a system browser
// implementation.
type Adapter interface {
	Login(ctx context.Context, authURL string, opts LoginOptions) error
	Logout(ctx context.Context, logoutURL string, opts LogoutOptions) error
	Register(ctx context.Context, registerURL string, opts LoginOptions) error
	AccountManagement(ctx context.Context, accountURL string) error

	// RedirectURI resolves the redirect URI for a request. requested is the
	// caller's or configured URI and may be empty, in which case the adapter
	// may fall back to its current location. encodeHash asks for the
	// current fragment to be carried in a redirect_fragment parameter.
	RedirectURI(requested string, encodeHash bool) (string, error)
}

// LocationReplacer is implemented by adapters that can rewrite the visible
// location without navigating. After a callback is parsed the Client
// replaces the location with the URL stripped of callback parameters.
type LocationReplacer interface {
	ReplaceLocation(ctx context.Context, cleanURL string) error
}

// staticAdapter never navigates. It only resolves explicitly requested
// redirect URIs.
type staticAdapter struct{}

var _ Adapter = staticAdapter{}

func (staticAdapter) Login(context.Context, string, LoginOptions) error {
	return fmt.Errorf("staticAdapter.Login: no adapter to navigate with: %w", ErrConfiguration)
}

func (staticAdapter) Logout(context.Context, string, LogoutOptions) error {
	return fmt.Errorf("staticAdapter.Logout: no adapter to navigate with: %w", ErrConfiguration)
}

func (staticAdapter) Register(context.Context, string, LoginOptions) error {
	return fmt.Errorf("staticAdapter.Register: no adapter to navigate with: %w", ErrConfiguration)
}

func (staticAdapter) AccountManagement(context.Context, string) error {
	return fmt.Errorf("staticAdapter.AccountManagement: no adapter to navigate with: %w", ErrConfiguration)
}

func (staticAdapter) RedirectURI(requested string, _ bool) (string, error) {
	if requested == "" {
		return "", fmt.Errorf("staticAdapter.RedirectURI: redirect URI cannot be resolved: %w", ErrConfiguration)
	}
	return requested, nil
}
