// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlow_ResponseType(t *testing.T) {
	t.Parallel()
	tests := []struct {
		flow Flow
		want ResponseType
	}{
		{FlowStandard, "code"},
		{FlowImplicit, "id_token token"},
		{FlowHybrid, "code id_token token"},
	}
	for _, tt := range tests {
		t.Run(string(tt.flow), func(t *testing.T) {
			assert := assert.New(t)
			assert.True(tt.flow.Valid())
			assert.Equal(tt.want, tt.flow.ResponseType())
		})
	}
	assert.False(t, Flow("device").Valid())
}

func TestInitOptions_flowConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		opts    InitOptions
		want    FlowConfig
		wantErr bool
	}{
		{
			name: "defaults",
			opts: InitOptions{},
			want: FlowConfig{
				Flow:                     FlowStandard,
				ResponseType:             ResponseTypeCode,
				ResponseMode:             ResponseModeFragment,
				UseNonce:                 true,
				CheckLoginIframe:         true,
				CheckLoginIframeInterval: DefaultCheckLoginIframeInterval,
				MessageReceiveTimeout:    DefaultMessageReceiveTimeout,
			},
		},
		{
			name: "overrides",
			opts: InitOptions{
				Flow:                     FlowHybrid,
				ResponseMode:             ResponseModeFragment,
				UseNonce:                 Bool(false),
				CheckLoginIframe:         Bool(false),
				CheckLoginIframeInterval: time.Minute,
				MessageReceiveTimeout:    time.Second,
				PKCEMethod:               PKCEMethodS256,
				RedirectURI:              "https://app.example.com/",
			},
			want: FlowConfig{
				Flow:                     FlowHybrid,
				ResponseType:             ResponseTypeCodeIDTokenToken,
				ResponseMode:             ResponseModeFragment,
				PKCEMethod:               PKCEMethodS256,
				RedirectURI:              "https://app.example.com/",
				CheckLoginIframeInterval: time.Minute,
				MessageReceiveTimeout:    time.Second,
			},
		},
		{
			name: "explicit-response-type",
			opts: InitOptions{ResponseType: ResponseTypeCode, ResponseMode: ResponseModeQuery},
			want: FlowConfig{
				Flow:                     FlowStandard,
				ResponseType:             ResponseTypeCode,
				ResponseMode:             ResponseModeQuery,
				UseNonce:                 true,
				CheckLoginIframe:         true,
				CheckLoginIframeInterval: DefaultCheckLoginIframeInterval,
				MessageReceiveTimeout:    DefaultMessageReceiveTimeout,
			},
		},
		{name: "implicit-query", opts: InitOptions{Flow: FlowImplicit, ResponseMode: ResponseModeQuery}, wantErr: true},
		{name: "hybrid-query", opts: InitOptions{Flow: FlowHybrid, ResponseMode: ResponseModeQuery}, wantErr: true},
		{name: "bad-flow", opts: InitOptions{Flow: "device"}, wantErr: true},
		{name: "bad-mode", opts: InitOptions{ResponseMode: "form_post"}, wantErr: true},
		{name: "bad-onload", opts: InitOptions{OnLoad: "always"}, wantErr: true},
		{name: "bad-pkce", opts: InitOptions{PKCEMethod: "plain"}, wantErr: true},
		{name: "implicit-pkce", opts: InitOptions{Flow: FlowImplicit, PKCEMethod: PKCEMethodS256}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := tt.opts.flowConfig()
			if tt.wantErr {
				require.Error(err)
				assert.ErrorIs(err, ErrConfiguration)
				return
			}
			require.NoError(err)
			assert.Equal(tt.want, got)
		})
	}
}

func TestPrompt_Valid(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	assert.True(Prompt("").Valid())
	assert.True(PromptNone.Valid())
	assert.True(PromptLogin.Valid())
	assert.False(Prompt("consent").Valid())
	assert.False(Prompt("select_account").Valid())
}
