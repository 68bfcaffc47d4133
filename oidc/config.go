// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	sdkHttp "github.com/hashicorp/capsession/sdk/http"
	"github.com/hashicorp/go-multierror"
)

// Config represents the relying party configuration of a session client.
// Either AuthServerURL and Realm, or Endpoints, must be provided.
type Config struct {
	// AuthServerURL is the base URL of a Keycloak style server, for example
	// https://auth.example.com
	AuthServerURL string

	// Realm is the realm name under AuthServerURL
	Realm string

	// ClientID is the relying party id
	ClientID string

	// RedirectURI is the default redirect URI. Per call login options and the
	// adapter's current location are used when it is empty.
	RedirectURI string

	// Scopes is a list of additional oidc scopes to request of the provider.
	// The required "openid" scope is always requested.
	Scopes []string

	// Endpoints overrides the endpoints derived from AuthServerURL and Realm,
	// for generic OIDC providers (see DiscoverEndpoints).
	Endpoints *Endpoints

	// ProviderCA is an optional CA cert to use when sending requests to the provider.
	ProviderCA string
}

// Endpoints are the provider URLs used by the client.
type Endpoints struct {
	Authorize          string
	Token              string
	Logout             string
	UserInfo           string
	CheckSessionIframe string
	Certs              string

	// Account is the account management console, also used to load the
	// user's profile. Generic providers do not have one.
	Account string
}

// NewConfig composes a new config for a Keycloak style realm.
// Supported options:
//
//	WithRedirectURI
//	WithScopes
//	WithProviderCA
//	WithEndpoints
func NewConfig(authServerURL, realm, clientID string, opt ...Option) (*Config, error) {
	const op = "NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		AuthServerURL: authServerURL,
		Realm:         realm,
		ClientID:      clientID,
		RedirectURI:   opts.withRedirectURI,
		Scopes:        opts.withScopes,
		Endpoints:     opts.withEndpoints,
		ProviderCA:    opts.withProviderCA,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid provider config: %w", op, err)
	}
	return c, nil
}

// Validate the configuration. Every problem found is reported.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	var errs *multierror.Error
	if c.ClientID == "" {
		errs = multierror.Append(errs, errors.New("client id is empty"))
	}
	switch {
	case c.Endpoints != nil:
		if c.Endpoints.Authorize == "" {
			errs = multierror.Append(errs, errors.New("authorize endpoint is empty"))
		}
		if c.Endpoints.Token == "" {
			errs = multierror.Append(errs, errors.New("token endpoint is empty"))
		}
		for _, u := range []string{c.Endpoints.Authorize, c.Endpoints.Token, c.Endpoints.Logout, c.Endpoints.UserInfo, c.Endpoints.CheckSessionIframe, c.Endpoints.Account} {
			if err := validateHTTPURL(u); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
	default:
		if c.AuthServerURL == "" {
			errs = multierror.Append(errs, errors.New("auth server URL is empty"))
		} else if err := validateHTTPURL(c.AuthServerURL); err != nil {
			errs = multierror.Append(errs, err)
		}
		if c.Realm == "" {
			errs = multierror.Append(errs, errors.New("realm is empty"))
		}
	}
	if c.RedirectURI != "" {
		if _, err := url.Parse(c.RedirectURI); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("redirect URI %q is invalid: %w", c.RedirectURI, err))
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return fmt.Errorf("%s: %w: %s", op, ErrInvalidParameter, err)
	}
	return nil
}

func validateHTTPURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("URL %q is invalid: %w", raw, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("URL %q schema is not http or https", raw)
	}
	return nil
}

// RealmURL is the base URL of the realm, or "" for generic providers.
func (c *Config) RealmURL() string {
	if c.AuthServerURL == "" || c.Realm == "" {
		return ""
	}
	return strings.TrimSuffix(c.AuthServerURL, "/") + "/realms/" + url.PathEscape(c.Realm)
}

// ResolvedEndpoints returns the configured endpoints, deriving them from the
// realm when no override is set.
func (c *Config) ResolvedEndpoints() Endpoints {
	if c.Endpoints != nil {
		return *c.Endpoints
	}
	realm := c.RealmURL()
	base := realm + "/protocol/openid-connect"
	return Endpoints{
		Authorize:          base + "/auth",
		Token:              base + "/token",
		Logout:             base + "/logout",
		UserInfo:           base + "/userinfo",
		CheckSessionIframe: base + "/login-status-iframe.html",
		Certs:              base + "/certs",
		Account:            realm + "/account",
	}
}

// HTTPClient is a helper function that creates a new http client for the
// provider configured
func (c *Config) HTTPClient() (*http.Client, error) {
	const op = "Config.HTTPClient"
	client, err := sdkHttp.NewClient(c.ProviderCA, 0)
	if err != nil {
		if errors.Is(err, sdkHttp.ErrInvalidCertificatePem) {
			return nil, fmt.Errorf("%s: could not parse CA PEM value: %w", op, ErrInvalidCACert)
		}
		return nil, fmt.Errorf("%s: could not get an http client: %w", op, err)
	}
	return client, nil
}

// HTTPClientContext is a helper function that returns a new Context that
// carries the provided HTTP client. This method sets the same context key used
// by the github.com/coreos/go-oidc and golang.org/x/oauth2 packages, so the
// returned context works for those packages as well.
func HTTPClientContext(ctx context.Context, client *http.Client) context.Context {
	return sdkHttp.OidcClientContext(ctx, client)
}

// DiscoverEndpoints reads the issuer's discovery document and returns the
// endpoints it publishes. The optional caPEM is used to verify the issuer's
// certificate.
func DiscoverEndpoints(ctx context.Context, issuer, caPEM string) (*Endpoints, error) {
	const op = "DiscoverEndpoints"
	if issuer == "" {
		return nil, fmt.Errorf("%s: issuer is empty: %w", op, ErrInvalidParameter)
	}
	client, err := (&Config{ProviderCA: caPEM}).HTTPClient()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	p, err := oidc.NewProvider(HTTPClientContext(ctx, client), issuer) // makes http req to issuer for discovery
	if err != nil {
		return nil, fmt.Errorf("%s: unable to discover provider: %w", op, err)
	}
	var extra struct {
		EndSession   string `json:"end_session_endpoint"`
		UserInfo     string `json:"userinfo_endpoint"`
		CheckSession string `json:"check_session_iframe"`
		JWKS         string `json:"jwks_uri"`
	}
	if err := p.Claims(&extra); err != nil {
		return nil, fmt.Errorf("%s: unable to read discovery document: %w", op, err)
	}
	ep := p.Endpoint()
	return &Endpoints{
		Authorize:          ep.AuthURL,
		Token:              ep.TokenURL,
		Logout:             extra.EndSession,
		UserInfo:           extra.UserInfo,
		CheckSessionIframe: extra.CheckSession,
		Certs:              extra.JWKS,
	}, nil
}

// configOptions is the set of available options
type configOptions struct {
	withRedirectURI string
	withScopes      []string
	withEndpoints   *Endpoints
	withProviderCA  string
}

func configDefaults() configOptions {
	return configOptions{}
}

func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithRedirectURI provides an optional default redirect URI for the config
func WithRedirectURI(uri string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withRedirectURI = uri
		}
	}
}

// WithScopes provides an optional list of scopes for the config
func WithScopes(scopes ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withScopes = scopes
		}
	}
}

// WithEndpoints provides optional endpoints which replace the realm derived
// ones.
func WithEndpoints(e *Endpoints) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withEndpoints = e
		}
	}
}

// WithProviderCA provides an optional CA cert for the provider's config
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}
