// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

const (
	// DefaultCheckLoginIframeInterval is the session monitor's poll interval.
	DefaultCheckLoginIframeInterval = 5 * time.Second

	// DefaultMessageReceiveTimeout bounds a session monitor round-trip and a
	// silent check.
	DefaultMessageReceiveTimeout = 10 * time.Second
)

// InitOptions configure Client.Init.
type InitOptions struct {
	// UseNonce adds a nonce to authorization requests and validates it on the
	// tokens received. Defaults to true.
	UseNonce *bool

	// Adapter performs navigation. When nil, a non-navigating adapter is used:
	// URLs can still be created but Login, Logout, Register and
	// AccountManagement fail with ErrConfiguration.
	Adapter Adapter

	// OnLoad is the action taken when Init finds neither a callback nor
	// cached tokens.
	OnLoad OnLoad

	// TimeSkew is an initial estimate of local time minus provider time,
	// only used together with Token and RefreshToken.
	TimeSkew *time.Duration

	// CheckLoginIframe enables the session monitor. Defaults to true; it
	// stays inactive when the client has no StatusFrame.
	CheckLoginIframe *bool

	// CheckLoginIframeInterval defaults to DefaultCheckLoginIframeInterval.
	CheckLoginIframeInterval time.Duration

	// ResponseMode defaults to ResponseModeFragment.
	ResponseMode ResponseMode

	// Flow defaults to FlowStandard.
	Flow Flow

	// ResponseType overrides the response_type derived from Flow.
	ResponseType ResponseType

	// PKCEMethod enables PKCE. Only PKCEMethodS256 is supported.
	PKCEMethod string

	// RedirectURI overrides the configured default redirect URI.
	RedirectURI string

	// SilentCheckSSORedirectURI is the redirect target of a check-sso silent
	// check. When empty, the config's redirect URI is used.
	SilentCheckSSORedirectURI string

	// MessageReceiveTimeout defaults to DefaultMessageReceiveTimeout.
	MessageReceiveTimeout time.Duration

	// Token, RefreshToken and IDToken are previously obtained tokens.
	Token        string
	RefreshToken string
	IDToken      string

	// Location is the URL the application was loaded with. When it carries
	// callback parameters they are processed before anything else.
	Location string
}

// Bool returns a pointer to b, for the optional InitOptions fields.
func Bool(b bool) *bool { return &b }

// flowConfig validates the options and resolves their defaults.
func (o InitOptions) flowConfig() (FlowConfig, error) {
	const op = "InitOptions.flowConfig"
	fc := FlowConfig{
		Flow:                      o.Flow,
		ResponseType:              o.ResponseType,
		ResponseMode:              o.ResponseMode,
		UseNonce:                  true,
		PKCEMethod:                o.PKCEMethod,
		RedirectURI:               o.RedirectURI,
		SilentCheckSSORedirectURI: o.SilentCheckSSORedirectURI,
		CheckLoginIframe:          true,
		CheckLoginIframeInterval:  o.CheckLoginIframeInterval,
		MessageReceiveTimeout:     o.MessageReceiveTimeout,
	}
	if o.UseNonce != nil {
		fc.UseNonce = *o.UseNonce
	}
	if o.CheckLoginIframe != nil {
		fc.CheckLoginIframe = *o.CheckLoginIframe
	}
	if fc.Flow == "" {
		fc.Flow = FlowStandard
	}
	if fc.ResponseMode == "" {
		fc.ResponseMode = ResponseModeFragment
	}
	if fc.CheckLoginIframeInterval == 0 {
		fc.CheckLoginIframeInterval = DefaultCheckLoginIframeInterval
	}
	if fc.MessageReceiveTimeout == 0 {
		fc.MessageReceiveTimeout = DefaultMessageReceiveTimeout
	}

	var errs *multierror.Error
	if !fc.Flow.Valid() {
		errs = multierror.Append(errs, fmt.Errorf("invalid value for flow %q", fc.Flow))
	}
	if !fc.ResponseMode.Valid() {
		errs = multierror.Append(errs, fmt.Errorf("invalid value for responseMode %q", fc.ResponseMode))
	}
	if fc.Flow.Valid() && fc.Flow != FlowStandard && fc.ResponseMode == ResponseModeQuery {
		errs = multierror.Append(errs, fmt.Errorf("%s flow returns tokens and cannot use the query response mode", fc.Flow))
	}
	if !o.OnLoad.Valid() {
		errs = multierror.Append(errs, fmt.Errorf("invalid value for onLoad %q", o.OnLoad))
	}
	if fc.PKCEMethod != "" && fc.PKCEMethod != PKCEMethodS256 {
		errs = multierror.Append(errs, fmt.Errorf("invalid value for pkceMethod %q", fc.PKCEMethod))
	}
	if fc.PKCEMethod != "" && fc.Flow == FlowImplicit {
		errs = multierror.Append(errs, fmt.Errorf("pkce cannot be used with the implicit flow"))
	}
	if fc.CheckLoginIframeInterval < 0 {
		errs = multierror.Append(errs, fmt.Errorf("checkLoginIframeInterval must be positive"))
	}
	if fc.MessageReceiveTimeout < 0 {
		errs = multierror.Append(errs, fmt.Errorf("messageReceiveTimeout must be positive"))
	}
	if err := errs.ErrorOrNil(); err != nil {
		return FlowConfig{}, fmt.Errorf("%s: %w: %s", op, ErrConfiguration, err)
	}
	if fc.ResponseType == "" {
		fc.ResponseType = fc.Flow.ResponseType()
	}
	return fc, nil
}
