// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParameter   = errors.New("invalid parameter")
	ErrNilParameter       = errors.New("nil parameter")
	ErrInvalidCACert      = errors.New("invalid CA certificate")
	ErrIdGeneratorFailed  = errors.New("id generation failed")
	ErrNotFound           = errors.New("not found")
	ErrConfiguration      = errors.New("invalid configuration")
	ErrInvalidPrompt      = errors.New("invalid prompt")
	ErrExpiredRequest     = errors.New("authentication request is expired")
	ErrStateMismatch      = errors.New("callback state does not match a pending request")
	ErrTokenDecode        = errors.New("unable to decode token")
	ErrMissingExpiry      = errors.New("access_token has no exp claim")
	ErrInvalidNonce       = errors.New("invalid nonce")
	ErrNetwork            = errors.New("network error")
	ErrTimeout            = errors.New("request timed out")
	ErrTokenEndpoint      = errors.New("token endpoint rejected the request")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrRefreshDiscarded   = errors.New("refresh result discarded")
	ErrSessionMonitor     = errors.New("session monitor check failed")
	ErrSilentCheckFailed  = errors.New("silent check failed")
	ErrAlreadyInitialized = errors.New("client already initialized")
	ErrNotInitialized     = errors.New("client not initialized")
	ErrDestroyed          = errors.New("client destroyed")
	ErrUserInfoFailed     = errors.New("user info failed")
)

// AuthError is an error response returned by the identity provider in a
// redirect callback. See:
// https://openid.net/specs/openid-connect-core-1_0.html#AuthError
type AuthError struct {
	// Code is the provider's "error" parameter (for example: login_required)
	Code string

	// Description is the optional "error_description" parameter
	Description string

	// URI is the optional "error_uri" parameter
	URI string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("identity provider error: %s", e.Code)
	}
	return fmt.Sprintf("identity provider error: %s: %s", e.Code, e.Description)
}
