// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import "time"

// Flow is the sequence of redirects and parameters used to obtain tokens.
type Flow string

const (
	// FlowStandard is the authorization code flow.
	FlowStandard Flow = "standard"

	// FlowImplicit delivers tokens directly in the redirect.
	FlowImplicit Flow = "implicit"

	// FlowHybrid delivers an authorization code and tokens in the redirect.
	FlowHybrid Flow = "hybrid"
)

// Valid reports whether f is a supported flow.
func (f Flow) Valid() bool {
	switch f {
	case FlowStandard, FlowImplicit, FlowHybrid:
		return true
	default:
		return false
	}
}

// ResponseType returns the OAuth2 response_type which goes with the flow.
func (f Flow) ResponseType() ResponseType {
	switch f {
	case FlowImplicit:
		return ResponseTypeIDTokenToken
	case FlowHybrid:
		return ResponseTypeCodeIDTokenToken
	default:
		return ResponseTypeCode
	}
}

// callbackParams are the redirect parameters recognized for the flow.
func (f Flow) callbackParams() []string {
	var p []string
	switch f {
	case FlowImplicit:
		p = []string{"access_token", "token_type", "id_token", "state", "session_state", "expires_in", "kc_action_status"}
	case FlowHybrid:
		p = []string{"access_token", "token_type", "id_token", "code", "state", "session_state", "expires_in", "kc_action_status"}
	default:
		p = []string{"code", "state", "session_state", "kc_action_status"}
	}
	return append(p, "error", "error_description", "error_uri")
}

// ResponseType is the OAuth2 response_type sent with authorization requests.
// The values are the space separated wire forms.
type ResponseType string

const (
	ResponseTypeCode             ResponseType = "code"
	ResponseTypeIDTokenToken     ResponseType = "id_token token"
	ResponseTypeCodeIDTokenToken ResponseType = "code id_token token"
)

// ResponseMode is where the provider puts the callback parameters.
type ResponseMode string

const (
	ResponseModeQuery    ResponseMode = "query"
	ResponseModeFragment ResponseMode = "fragment"
)

// Valid reports whether m is a supported response mode.
func (m ResponseMode) Valid() bool {
	return m == ResponseModeQuery || m == ResponseModeFragment
}

// OnLoad is the action Init takes when no callback or cached tokens are
// present.
type OnLoad string

const (
	OnLoadLoginRequired OnLoad = "login-required"
	OnLoadCheckSSO      OnLoad = "check-sso"
)

// Valid reports whether o is empty or a supported action.
func (o OnLoad) Valid() bool {
	switch o {
	case "", OnLoadLoginRequired, OnLoadCheckSSO:
		return true
	default:
		return false
	}
}

// Prompt is the OIDC prompt parameter. Only none and login are supported.
type Prompt string

const (
	PromptNone  Prompt = "none"
	PromptLogin Prompt = "login"
)

// Valid reports whether p is empty or a supported prompt.
func (p Prompt) Valid() bool {
	switch p {
	case "", PromptNone, PromptLogin:
		return true
	default:
		return false
	}
}

// PKCEMethodS256 is the only supported PKCE code challenge method.
const PKCEMethodS256 = "S256"

// FlowConfig is the protocol configuration fixed by Init.
type FlowConfig struct {
	Flow                      Flow
	ResponseType              ResponseType
	ResponseMode              ResponseMode
	UseNonce                  bool
	PKCEMethod                string
	RedirectURI               string
	SilentCheckSSORedirectURI string
	CheckLoginIframe          bool
	CheckLoginIframeInterval  time.Duration
	MessageReceiveTimeout     time.Duration
}
