// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package clientassertion

import "time"

// Option configures a JWT at construction.
type Option func(*JWT)

// WithKeyID sets the "kid" header, which Keycloak matches against the keys
// registered for the client (or its JWKS URL) to pick a verification key.
func WithKeyID(keyID string) Option {
	return func(j *JWT) {
		j.keyID = keyID
	}
}

// WithLifetime overrides DefaultLifetime. Keycloak rejects an assertion
// whose exp is too far past its iat, so keep it short.
func WithLifetime(d time.Duration) Option {
	return func(j *JWT) {
		j.lifetime = d
	}
}
