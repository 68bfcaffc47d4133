// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

// ActionRegister sends the user to the registration page instead of the login
// page.
const ActionRegister = "register"

// LoginOptions are the per call options of Login, Register and
// CreateLoginURL.
type LoginOptions struct {
	// Scope is added to "openid"; it replaces the config's scopes.
	Scope string

	// RedirectURI is where the provider sends the user back to.
	RedirectURI string

	// Prompt is PromptNone (only succeed with an existing session) or
	// PromptLogin (always re-authenticate).
	Prompt Prompt

	// Action is ActionRegister, or an application initiated action which is
	// sent as kc_action.
	Action string

	// MaxAge is the allowed elapsed time in seconds since the user last
	// actively authenticated.
	MaxAge *uint

	// LoginHint pre-fills the username/email field.
	LoginHint string

	// IdpHint selects the identity provider to authenticate with.
	IdpHint string

	// Locale is sent as ui_locales (space separated BCP 47 tags).
	Locale string

	// KcLocale sets the provider's preferred locale for the user.
	KcLocale string

	// ResponseType overrides the flow's response_type for this request.
	ResponseType ResponseType
}

// LogoutOptions are the per call options of Logout and CreateLogoutURL.
type LogoutOptions struct {
	// RedirectURI is where the provider sends the user after logout.
	RedirectURI string
}

// Uint returns a pointer to u, for LoginOptions.MaxAge.
func Uint(u uint) *uint { return &u }
