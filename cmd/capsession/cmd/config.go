// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/hashicorp/capsession/oidc"
	"github.com/hashicorp/capsession/oidc/clientassertion"
	"gopkg.in/yaml.v3"
)

// realmConfig is the keycloak.json adapter configuration. JSON is valid
// YAML, so the file may be either.
type realmConfig struct {
	AuthServerURL    string   `yaml:"auth-server-url"`
	Realm            string   `yaml:"realm"`
	Resource         string   `yaml:"resource"`
	PublicClient     bool     `yaml:"public-client"`
	SSLRequired      string   `yaml:"ssl-required"`
	ConfidentialPort int      `yaml:"confidential-port"`
	Scopes           []string `yaml:"scopes"`
	CAFile           string   `yaml:"ca-file"`
	Credentials      *struct {
		Secret string `yaml:"secret"`
		// signed JWT authentication
		KeyFile string `yaml:"key-file"`
		KeyID   string `yaml:"key-id"`
	} `yaml:"credentials"`
}

func loadRealmConfig(path string) (*realmConfig, error) {
	const op = "loadRealmConfig"
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var c realmConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("%s: unable to parse %s: %w", op, path, err)
	}
	return &c, nil
}

// clientConfig converts c into an oidc.Config redirecting to redirectURI.
func (c *realmConfig) clientConfig(redirectURI string) (*oidc.Config, error) {
	opts := []oidc.Option{oidc.WithRedirectURI(redirectURI)}
	if len(c.Scopes) > 0 {
		opts = append(opts, oidc.WithScopes(c.Scopes...))
	}
	if c.CAFile != "" {
		ca, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, fmt.Errorf("unable to read CA file: %w", err)
		}
		opts = append(opts, oidc.WithProviderCA(string(ca)))
	}
	return oidc.NewConfig(c.AuthServerURL, c.Realm, c.Resource, opts...)
}

// authOptions returns the token endpoint authentication of a confidential
// client. Public clients need none.
func (c *realmConfig) authOptions(cfg *oidc.Config) ([]oidc.Option, error) {
	const op = "realmConfig.authOptions"
	if c.PublicClient || c.Credentials == nil {
		return nil, nil
	}
	switch {
	case c.Credentials.KeyFile != "":
		raw, err := os.ReadFile(c.Credentials.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		key, err := parsePrivateKey(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", op, c.Credentials.KeyFile, err)
		}
		// Keycloak accepts the realm issuer as the assertion audience
		aud := []string{cfg.RealmURL()}
		var j *clientassertion.JWT
		switch k := key.(type) {
		case *rsa.PrivateKey:
			j, err = clientassertion.NewJWTWithRSAKey(cfg.ClientID, aud, clientassertion.RS256, k, clientassertion.WithKeyID(c.Credentials.KeyID))
		case *ecdsa.PrivateKey:
			j, err = clientassertion.NewJWTWithECDSAKey(cfg.ClientID, aud, clientassertion.ES256, k, clientassertion.WithKeyID(c.Credentials.KeyID))
		default:
			err = fmt.Errorf("unsupported key type %T", key)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return []oidc.Option{oidc.WithClientAssertionJWT(j)}, nil
	case c.Credentials.Secret != "":
		return []oidc.Option{oidc.WithClientSecret(c.Credentials.Secret)}, nil
	default:
		return nil, nil
	}
}

func parsePrivateKey(raw []byte) (interface{}, error) {
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	default:
		return x509.ParsePKCS8PrivateKey(block.Bytes)
	}
}
