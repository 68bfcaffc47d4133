// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"net/http"
	"time"

	"github.com/hashicorp/capsession/storage"
	"github.com/hashicorp/go-hclog"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

// WithNow provides an optional func for determining what the current time it
// is, for: Client, AuthRequest
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if now == nil {
			return
		}
		switch v := o.(type) {
		case *clientOptions:
			v.withNowFunc = now
		case *requestOptions:
			v.withNowFunc = now
		}
	}
}

// WithLogger provides an optional logger for: Client
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if v, ok := o.(*clientOptions); ok && l != nil {
			v.withLogger = l
		}
	}
}

// WithStorage provides the key-value capability used to keep pending
// authentication requests across a redirect, for: Client
func WithStorage(s storage.Storage) Option {
	return func(o interface{}) {
		if v, ok := o.(*clientOptions); ok && s != nil {
			v.withStorage = s
		}
	}
}

// WithTokenExchanger replaces the default x/oauth2 based token endpoint
// client, for: Client
func WithTokenExchanger(e TokenExchanger) Option {
	return func(o interface{}) {
		if v, ok := o.(*clientOptions); ok && e != nil {
			v.withExchanger = e
		}
	}
}

// WithClaimsDecoder replaces the default (signature unverified) claims
// decoder, for: Client
func WithClaimsDecoder(d ClaimsDecoder) Option {
	return func(o interface{}) {
		if v, ok := o.(*clientOptions); ok && d != nil {
			v.withDecoder = d
		}
	}
}

// WithSilentChecker provides the hidden navigation used by check-sso and by
// the session monitor's re-check, for: Client
func WithSilentChecker(s SilentChecker) Option {
	return func(o interface{}) {
		if v, ok := o.(*clientOptions); ok && s != nil {
			v.withSilentChecker = s
		}
	}
}

// WithStatusFrame provides the session status frame polled by the session
// monitor, for: Client
func WithStatusFrame(f StatusFrame) Option {
	return func(o interface{}) {
		if v, ok := o.(*clientOptions); ok && f != nil {
			v.withStatusFrame = f
		}
	}
}

// WithHTTPClient provides the http client used for token, user info and
// profile requests, for: Client
func WithHTTPClient(c *http.Client) Option {
	return func(o interface{}) {
		if v, ok := o.(*clientOptions); ok && c != nil {
			v.withHTTPClient = c
		}
	}
}

// WithExchangeTimeout bounds every token endpoint round-trip, for: Client
func WithExchangeTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if v, ok := o.(*clientOptions); ok && d > 0 {
			v.withExchangeTimeout = d
		}
	}
}

// WithClientSecret authenticates a confidential client to the token endpoint
// with HTTP basic auth, for: Client
func WithClientSecret(secret string) Option {
	return func(o interface{}) {
		if v, ok := o.(*clientOptions); ok && secret != "" {
			v.withClientSecret = secret
		}
	}
}

// WithClientAssertionJWT authenticates a confidential client to the token
// endpoint with a signed JWT (private_key_jwt or client_secret_jwt), for:
// Client
func WithClientAssertionJWT(j JWTSerializer) Option {
	return func(o interface{}) {
		if v, ok := o.(*clientOptions); ok && j != nil {
			v.withClientAssertion = j
		}
	}
}
