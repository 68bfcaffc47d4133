// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	sdkHttp "github.com/hashicorp/capsession/sdk/http"
)

// SilentChecker performs a navigation to an authorization URL that must not
// show any UI (prompt=none) and returns the callback URL the provider
// redirected to. It stands in for the hidden iframe of a browser.
type SilentChecker interface {
	Check(ctx context.Context, authURL, redirectURI string) (callbackURL string, err error)
}

// defaultMaxSilentRedirects bounds the redirect chain of a silent check.
const defaultMaxSilentRedirects = 10

// HTTPSilentChecker follows the provider's redirects with an http client
// that keeps the provider's cookies, until it is sent to the redirect URI.
type HTTPSilentChecker struct {
	client       *http.Client
	maxRedirects int
}

var _ SilentChecker = (*HTTPSilentChecker)(nil)

// NewHTTPSilentChecker creates a checker. The client must not follow
// redirects on its own and should carry the cookie jar of the user agent
// that logged in.
func NewHTTPSilentChecker(client *http.Client) (*HTTPSilentChecker, error) {
	const op = "NewHTTPSilentChecker"
	if client == nil {
		return nil, fmt.Errorf("%s: http client is nil: %w", op, ErrNilParameter)
	}
	return &HTTPSilentChecker{client: client, maxRedirects: defaultMaxSilentRedirects}, nil
}

// Check implements SilentChecker.
func (c *HTTPSilentChecker) Check(ctx context.Context, authURL, redirectURI string) (string, error) {
	const op = "HTTPSilentChecker.Check"
	if redirectURI == "" {
		return "", fmt.Errorf("%s: redirect URI is empty: %w", op, ErrConfiguration)
	}
	next := authURL
	for i := 0; i <= c.maxRedirects; i++ {
		if strings.HasPrefix(next, redirectURI) {
			return next, nil
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, next, nil)
		if err != nil {
			return "", fmt.Errorf("%s: unable to create request: %w", op, err)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("%s: %w: %s", op, ErrTimeout, err)
			}
			return "", fmt.Errorf("%s: %w: %s", op, ErrNetwork, err)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		loc, err := resp.Location()
		if err != nil {
			return "", fmt.Errorf("%s: provider answered %d without redirecting: %w", op, resp.StatusCode, ErrSilentCheckFailed)
		}
		next = loc.String()
	}
	return "", fmt.Errorf("%s: too many redirects: %w", op, ErrSilentCheckFailed)
}

// NewBrowserContext creates a silent checker and a cookie based status frame
// sharing one cookie jar, the way a hidden iframe shares the cookies of the
// page that loaded it.
func NewBrowserContext(caPEM string) (*HTTPSilentChecker, *CookieFrame, error) {
	const op = "NewBrowserContext"
	client, jar, err := sdkHttp.NewBrowserClient(caPEM, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	checker, err := NewHTTPSilentChecker(client)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	frame, err := NewCookieFrame(client, jar)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	return checker, frame, nil
}
