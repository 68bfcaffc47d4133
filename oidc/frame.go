// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// SessionStatus is the answer of the provider's session status frame.
type SessionStatus string

const (
	StatusUnchanged SessionStatus = "unchanged"
	StatusChanged   SessionStatus = "changed"
	StatusError     SessionStatus = "error"
)

// StatusFrame is the session status endpoint loaded once by the session
// monitor and then asked, with a "<client id> <session id>" message, whether
// the provider session is still the one the tokens were issued for.
type StatusFrame interface {
	Load(ctx context.Context, checkSessionURL string) error
	Post(ctx context.Context, message string) (SessionStatus, error)
	Close() error
}

// SessionCookieNames are the provider cookies that carry the session id as
// their last "/" separated segment.
var SessionCookieNames = []string{"KEYCLOAK_SESSION", "KEYCLOAK_SESSION_LEGACY"}

// CookieFrame answers status requests by comparing the session id with the
// session cookie the provider set in a shared cookie jar.
type CookieFrame struct {
	client *http.Client
	jar    http.CookieJar

	mu     sync.Mutex
	origin *url.URL
}

var _ StatusFrame = (*CookieFrame)(nil)

// NewCookieFrame creates a frame reading cookies from jar.
func NewCookieFrame(client *http.Client, jar http.CookieJar) (*CookieFrame, error) {
	const op = "NewCookieFrame"
	switch {
	case client == nil:
		return nil, fmt.Errorf("%s: http client is nil: %w", op, ErrNilParameter)
	case jar == nil:
		return nil, fmt.Errorf("%s: cookie jar is nil: %w", op, ErrNilParameter)
	}
	return &CookieFrame{client: client, jar: jar}, nil
}

// Load fetches the status endpoint once and remembers its origin.
func (f *CookieFrame) Load(ctx context.Context, checkSessionURL string) error {
	const op = "CookieFrame.Load"
	u, err := url.Parse(checkSessionURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%s: invalid check session URL %q: %w", op, checkSessionURL, ErrConfiguration)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, checkSessionURL, nil)
	if err != nil {
		return fmt.Errorf("%s: unable to create request: %w", op, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w: %s", op, ErrNetwork, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: status endpoint answered %d: %w", op, resp.StatusCode, ErrSessionMonitor)
	}
	f.mu.Lock()
	f.origin = u
	f.mu.Unlock()
	return nil
}

// Post answers message.
func (f *CookieFrame) Post(_ context.Context, message string) (SessionStatus, error) {
	const op = "CookieFrame.Post"
	f.mu.Lock()
	origin := f.origin
	f.mu.Unlock()
	if origin == nil {
		return "", fmt.Errorf("%s: frame is not loaded: %w", op, ErrSessionMonitor)
	}
	parts := strings.Fields(message)
	if len(parts) != 2 {
		return StatusError, nil
	}
	sessionID := parts[1]
	for _, c := range f.jar.Cookies(origin) {
		for _, name := range SessionCookieNames {
			if c.Name != name {
				continue
			}
			if c.Value[strings.LastIndex(c.Value, "/")+1:] == sessionID {
				return StatusUnchanged, nil
			}
			return StatusChanged, nil
		}
	}
	return StatusChanged, nil
}

// Close forgets the loaded endpoint.
func (f *CookieFrame) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.origin = nil
	return nil
}
