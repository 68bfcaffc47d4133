// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package adapter

import (
	"github.com/hashicorp/capsession/oidc"
	"github.com/hashicorp/go-hclog"
)

type adapterOptions struct {
	withRedirectURI string
	withOpener      func(url string) error
	withLogger      hclog.Logger
}

func adapterDefaults() adapterOptions {
	return adapterOptions{
		withLogger: hclog.NewNullLogger(),
	}
}

func getAdapterOpts(opt ...oidc.Option) adapterOptions {
	opts := adapterDefaults()
	oidc.ApplyOpts(&opts, opt...)
	return opts
}

// WithDefaultRedirectURI provides the redirect URI used when a request
// names none.
func WithDefaultRedirectURI(uri string) oidc.Option {
	return func(o interface{}) {
		if o, ok := o.(*adapterOptions); ok {
			o.withRedirectURI = uri
		}
	}
}

// WithOpener replaces the function System uses to open the browser.
func WithOpener(fn func(url string) error) oidc.Option {
	return func(o interface{}) {
		if o, ok := o.(*adapterOptions); ok {
			o.withOpener = fn
		}
	}
}

// WithLogger provides an optional logger.
func WithLogger(l hclog.Logger) oidc.Option {
	return func(o interface{}) {
		if o, ok := o.(*adapterOptions); ok && l != nil {
			o.withLogger = l
		}
	}
}
