// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"time"

	"github.com/hashicorp/capsession/sdk/id"
	"golang.org/x/oauth2"
)

// DefaultRequestExpiry is how long a pending authentication request stays
// valid in storage.
const DefaultRequestExpiry = 60 * time.Minute

// AuthRequest represents one login or registration attempt. It is persisted
// across the redirect round-trip and consumed exactly once when the callback
// for its State arrives.
type AuthRequest struct {
	// State is the anti-CSRF value echoed back by the provider. It cannot equal
	// the Nonce.
	State string `json:"state"`

	// Nonce associates the session with the ID token and mitigates replay
	// attacks.
	Nonce string `json:"nonce"`

	// RedirectURI is the redirect_uri sent with the request; the code exchange
	// must repeat it.
	RedirectURI string `json:"redirectUri"`

	// Prompt is the prompt sent with the request. A failed PromptNone
	// attempt is not reported as an authentication error.
	Prompt Prompt `json:"prompt,omitempty"`

	// PKCEVerifier is the PKCE code verifier, when PKCE is used.
	PKCEVerifier string `json:"pkceCodeVerifier,omitempty"`

	// Expires is when the request can no longer be consumed.
	Expires time.Time `json:"expires"`
}

// NewAuthRequest creates a new AuthRequest with a fresh state and nonce.
// Supported options: WithNow, WithPrompt, WithPKCE
func NewAuthRequest(expireIn time.Duration, redirectURI string, opt ...Option) (*AuthRequest, error) {
	const op = "oidc.NewAuthRequest"
	if expireIn <= 0 {
		return nil, fmt.Errorf("%s: expireIn not greater than zero: %w", op, ErrInvalidParameter)
	}
	if redirectURI == "" {
		return nil, fmt.Errorf("%s: redirect URI cannot be resolved: %w", op, ErrConfiguration)
	}
	opts := getRequestOpts(opt...)
	if !opts.withPrompt.Valid() {
		return nil, fmt.Errorf("%s: %w: %q", op, ErrInvalidPrompt, opts.withPrompt)
	}
	state, err := id.New("st")
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a request's state: %s: %w", op, err, ErrIdGeneratorFailed)
	}
	nonce, err := id.New("n")
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a request's nonce: %s: %w", op, err, ErrIdGeneratorFailed)
	}
	r := &AuthRequest{
		State:       state,
		Nonce:       nonce,
		RedirectURI: redirectURI,
		Prompt:      opts.withPrompt,
		Expires:     opts.withNowFunc().Add(expireIn),
	}
	if opts.withPKCE {
		r.PKCEVerifier = oauth2.GenerateVerifier()
	}
	return r, nil
}

// IsExpired returns true if the request can no longer be consumed.
func (r *AuthRequest) IsExpired(now time.Time) bool {
	return !r.Expires.After(now)
}

// requestOptions is the set of available options for AuthRequest functions
type requestOptions struct {
	withNowFunc func() time.Time
	withPrompt  Prompt
	withPKCE    bool
}

func requestDefaults() requestOptions {
	return requestOptions{withNowFunc: time.Now}
}

func getRequestOpts(opt ...Option) requestOptions {
	opts := requestDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithPrompt records the prompt of the request, for: AuthRequest
func WithPrompt(p Prompt) Option {
	return func(o interface{}) {
		if v, ok := o.(*requestOptions); ok {
			v.withPrompt = p
		}
	}
}

// WithPKCE generates a PKCE code verifier for the request, for: AuthRequest
func WithPKCE() Option {
	return func(o interface{}) {
		if v, ok := o.(*requestOptions); ok {
			v.withPKCE = true
		}
	}
}
