// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package clientassertion signs JWTs with a private key or client secret for
// use as OAuth 2.0 client_assertion values, A.K.A. private_key_jwt. Keycloak
// calls these the "Signed JWT" and "Signed JWT with client secret" client
// authenticators.
// reference: https://www.rfc-editor.org/rfc/rfc7523.html
//
// Example usage:
//
//	j, err := clientassertion.NewJWTWithRSAKey("client-id", []string{"https://sso.example.com/realms/demo"},
//		clientassertion.RS256, rsaPrivateKey,
//		clientassertion.WithKeyID("jwks-key-id"),
//	)
//	assertion, err := j.Serialize()
package clientassertion

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-uuid"
	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

const (
	// JWTTypeParam is the proper value for client_assertion_type.
	// https://www.rfc-editor.org/rfc/rfc7523.html#section-2.2
	JWTTypeParam = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

	// DefaultLifetime is how long a serialized assertion is valid for.
	DefaultLifetime = 5 * time.Minute
)

// NewJWTWithHMAC creates a JWT signed with a client secret.
//
// Supported Options:
// * WithKeyID
// * WithLifetime
func NewJWTWithHMAC(clientID string, audience []string, alg HSAlgorithm, secret string, opts ...Option) (*JWT, error) {
	const op = "NewJWTWithHMAC"
	if err := alg.Validate(secret); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return newJWT(op, clientID, audience, jose.SignatureAlgorithm(alg), []byte(secret), opts...)
}

// NewJWTWithRSAKey creates a JWT signed with an RSA private key.
//
// Supported Options:
// * WithKeyID
// * WithLifetime
func NewJWTWithRSAKey(clientID string, audience []string, alg RSAlgorithm, key *rsa.PrivateKey, opts ...Option) (*JWT, error) {
	const op = "NewJWTWithRSAKey"
	if err := alg.Validate(key); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return newJWT(op, clientID, audience, jose.SignatureAlgorithm(alg), key, opts...)
}

// NewJWTWithECDSAKey creates a JWT signed with an ECDSA private key.
//
// Supported Options:
// * WithKeyID
// * WithLifetime
func NewJWTWithECDSAKey(clientID string, audience []string, alg ESAlgorithm, key *ecdsa.PrivateKey, opts ...Option) (*JWT, error) {
	const op = "NewJWTWithECDSAKey"
	if err := alg.Validate(key); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return newJWT(op, clientID, audience, jose.SignatureAlgorithm(alg), key, opts...)
}

func newJWT(op, clientID string, audience []string, alg jose.SignatureAlgorithm, key interface{}, opts ...Option) (*JWT, error) {
	j := &JWT{
		clientID: clientID,
		audience: audience,
		alg:      alg,
		key:      key,
		lifetime: DefaultLifetime,
		genID:    uuid.GenerateUUID,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(j)
		}
	}
	if err := j.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	// make sure Serialize() works; the key cannot be fully checked any
	// other way
	if _, err := j.Serialize(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return j, nil
}

// JWT is used to create a client assertion JWT, a special JWT used by an OAuth
// 2.0 or OIDC client to authenticate themselves to an authorization server.
// Every Serialize call produces a new assertion with a fresh jti.
type JWT struct {
	clientID string
	audience []string
	keyID    string
	lifetime time.Duration

	alg jose.SignatureAlgorithm
	// key is any key type jose.SigningKey accepts
	key interface{}

	// these are overwritten for testing
	genID func() (string, error)
	now   func() time.Time
}

// Serialize returns a signed client assertion.
func (j *JWT) Serialize() (string, error) {
	const op = "JWT.Serialize"
	if err := j.validate(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	signer, err := j.signer()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	id, err := j.genID()
	if err != nil {
		return "", fmt.Errorf("%s: failed to generate token id: %w", op, err)
	}
	token, err := jwt.Signed(signer).Claims(j.claims(id)).CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("%s: failed to serialize token: %w", op, err)
	}
	return token, nil
}

func (j *JWT) validate() error {
	var errs *multierror.Error
	if j.genID == nil || j.now == nil {
		errs = multierror.Append(errs, ErrNotConstructed)
	}
	if j.clientID == "" {
		errs = multierror.Append(errs, ErrMissingClientID)
	}
	if len(j.audience) == 0 {
		errs = multierror.Append(errs, ErrMissingAudience)
	}
	if j.alg == "" {
		errs = multierror.Append(errs, ErrMissingAlgorithm)
	}
	if j.key == nil {
		errs = multierror.Append(errs, ErrMissingKeyOrSecret)
	}
	if j.lifetime <= 0 {
		errs = multierror.Append(errs, ErrInvalidLifetime)
	}
	return errs.ErrorOrNil()
}

func (j *JWT) signer() (jose.Signer, error) {
	sOpts := (&jose.SignerOptions{}).WithType("JWT")
	if j.keyID != "" {
		sOpts = sOpts.WithHeader("kid", j.keyID)
	}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: j.alg, Key: j.key}, sOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create signer: %w", err)
	}
	return signer, nil
}

func (j *JWT) claims(id string) *jwt.Claims {
	now := j.now().UTC()
	return &jwt.Claims{
		Issuer:    j.clientID,
		Subject:   j.clientID,
		Audience:  j.audience,
		Expiry:    jwt.NewNumericDate(now.Add(j.lifetime)),
		NotBefore: jwt.NewNumericDate(now.Add(-1 * time.Second)),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        id,
	}
}
