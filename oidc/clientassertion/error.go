// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package clientassertion

import "errors"

// Construction errors. validate joins every one that applies.
var (
	ErrMissingClientID    = errors.New("missing client ID")
	ErrMissingAudience    = errors.New("missing audience")
	ErrMissingAlgorithm   = errors.New("missing signing algorithm")
	ErrMissingKeyOrSecret = errors.New("missing private key or client secret")
	ErrInvalidLifetime    = errors.New("assertion lifetime must be positive")

	// ErrNotConstructed means the JWT was declared directly rather than
	// built by one of the NewJWTWith functions.
	ErrNotConstructed = errors.New("JWT not built by a NewJWTWith function")
)

// Key and algorithm errors, returned by the Validate methods.
var (
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	ErrInvalidSecretLength  = errors.New("invalid secret length for algorithm")
	ErrNilPrivateKey        = errors.New("nil private key")
	ErrInvalidKey           = errors.New("invalid key for algorithm")
)
