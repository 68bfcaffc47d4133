// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import (
	"context"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"gopkg.in/square/go-jose.v2/jwt"

	caphttp "github.com/hashicorp/capsession/sdk/http"
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidPublicKey = errors.New("invalid public key")
)

// KeySet represents a set of keys that can be used to verify the signatures of JWTs.
// A KeySet is expected to be backed by a set of local or remote keys.
type KeySet interface {
	// VerifySignature parses the given JWT, verifies its signature, and returns the claims in its payload.
	VerifySignature(ctx context.Context, token string) (claims map[string]interface{}, err error)
}

// keyFetchTimeout bounds the requests made to fetch remote keys.
const keyFetchTimeout = 30 * time.Second

// RealmKeySet verifies JWT signatures using the keys a realm publishes in its
// discovery document.
type RealmKeySet struct {
	verifier *oidc.IDTokenVerifier
}

// NewRealmKeySet discovers the realm at issuer and returns a KeySet backed by
// its published JWKS. The client used to obtain the keys verifies server
// certificates with caPEM when it is set.
func NewRealmKeySet(ctx context.Context, issuer, caPEM string) (*RealmKeySet, error) {
	const op = "jwt.NewRealmKeySet"
	if issuer == "" {
		return nil, fmt.Errorf("%s: issuer must not be empty: %w", op, ErrInvalidParameter)
	}
	caCtx, err := caContext(ctx, caPEM)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	provider, err := oidc.NewProvider(caCtx, issuer)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to discover realm: %w", op, err)
	}
	// only the signature is checked here; claims are validated by their
	// consumer
	return &RealmKeySet{
		verifier: provider.Verifier(&oidc.Config{
			SkipClientIDCheck:    true,
			SkipExpiryCheck:      true,
			SkipIssuerCheck:      true,
			SupportedSigningAlgs: []string{
				oidc.RS256, oidc.RS384, oidc.RS512,
				oidc.ES256, oidc.ES384, oidc.ES512,
				oidc.PS256, oidc.PS384, oidc.PS512,
			},
		}),
	}, nil
}

// VerifySignature verifies token using the discovered JWKS keys and returns
// its claims. The token must be of the JWS compact serialization form.
func (ks *RealmKeySet) VerifySignature(ctx context.Context, token string) (map[string]interface{}, error) {
	const op = "RealmKeySet.VerifySignature"
	idToken, err := ks.verifier.Verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, err, ErrInvalidSignature)
	}
	claims := map[string]interface{}{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%s: unable to decode claims: %w", op, err)
	}
	return claims, nil
}

// JSONWebKeySet verifies JWT signatures using keys obtained from a JWKS URL,
// such as a realm's certs endpoint.
type JSONWebKeySet struct {
	remote *oidc.RemoteKeySet
}

// NewJSONWebKeySet returns a KeySet backed by the JWKS at jwksURL. Keys are
// fetched lazily and refetched when a token names an unknown key id.
func NewJSONWebKeySet(ctx context.Context, jwksURL, caPEM string) (*JSONWebKeySet, error) {
	const op = "jwt.NewJSONWebKeySet"
	if jwksURL == "" {
		return nil, fmt.Errorf("%s: jwks url must not be empty: %w", op, ErrInvalidParameter)
	}
	caCtx, err := caContext(ctx, caPEM)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &JSONWebKeySet{remote: oidc.NewRemoteKeySet(caCtx, jwksURL)}, nil
}

// VerifySignature verifies token using the remote keys and returns its claims.
func (ks *JSONWebKeySet) VerifySignature(ctx context.Context, token string) (map[string]interface{}, error) {
	const op = "JSONWebKeySet.VerifySignature"
	payload, err := ks.remote.VerifySignature(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, err, ErrInvalidSignature)
	}
	claims := map[string]interface{}{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%s: unable to decode claims: %w", op, err)
	}
	return claims, nil
}

// StaticKeySet verifies JWT signatures using local public keys.
type StaticKeySet struct {
	publicKeys []interface{}
}

// NewStaticKeySet returns a KeySet backed by PEM-encoded public keys, in x509
// certificate or PKIX public key form.
func NewStaticKeySet(publicKeys []string) (*StaticKeySet, error) {
	const op = "jwt.NewStaticKeySet"
	if len(publicKeys) == 0 {
		return nil, fmt.Errorf("%s: no public keys: %w", op, ErrInvalidParameter)
	}
	parsed := make([]interface{}, 0, len(publicKeys))
	for _, k := range publicKeys {
		key, err := ParsePublicKeyPEM([]byte(k))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		parsed = append(parsed, key)
	}
	return &StaticKeySet{publicKeys: parsed}, nil
}

// VerifySignature verifies token with each local key in turn and returns its
// claims once one of them validates the signature.
func (ks *StaticKeySet) VerifySignature(_ context.Context, token string) (map[string]interface{}, error) {
	const op = "StaticKeySet.VerifySignature"
	parsed, err := jwt.ParseSigned(token)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to parse token: %s: %w", op, err, ErrInvalidParameter)
	}
	claims := map[string]interface{}{}
	for _, key := range ks.publicKeys {
		if err := parsed.Claims(key, &claims); err == nil {
			return claims, nil
		}
	}
	return nil, fmt.Errorf("%s: no known key validated the token: %w", op, ErrInvalidSignature)
}

// ParsePublicKeyPEM parses an RSA or ECDSA public key from a PEM block
// holding either a PKIX public key or a certificate.
func ParsePublicKeyPEM(data []byte) (interface{}, error) {
	const op = "jwt.ParsePublicKeyPEM"
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%s: no PEM block: %w", op, ErrInvalidPublicKey)
	}
	rawKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		cert, certErr := x509.ParseCertificate(block.Bytes)
		if certErr != nil {
			return nil, fmt.Errorf("%s: %s: %w", op, err, ErrInvalidPublicKey)
		}
		rawKey = cert.PublicKey
	}
	switch k := rawKey.(type) {
	case *rsa.PublicKey:
		return k, nil
	case *ecdsa.PublicKey:
		return k, nil
	default:
		return nil, fmt.Errorf("%s: unsupported key type %T: %w", op, rawKey, ErrInvalidPublicKey)
	}
}

// caContext returns a context carrying an http client that trusts caPEM, or
// ctx itself when caPEM is empty.
func caContext(ctx context.Context, caPEM string) (context.Context, error) {
	if caPEM == "" {
		return ctx, nil
	}
	c, err := caphttp.NewClient(caPEM, keyFetchTimeout)
	if err != nil {
		return nil, err
	}
	return oidc.ClientContext(ctx, c), nil
}
