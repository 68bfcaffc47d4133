// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
	"strings"

	capjwt "github.com/hashicorp/capsession/jwt"
	"gopkg.in/square/go-jose.v2/jwt"
)

// TokenKind identifies which token is being decoded.
type TokenKind string

const (
	KindAccessToken  TokenKind = "access_token"
	KindRefreshToken TokenKind = "refresh_token"
	KindIDToken      TokenKind = "id_token"
)

// ClaimsDecoder turns a raw token into its claims. Implementations fail with
// ErrTokenDecode when the token is malformed or cannot be trusted.
type ClaimsDecoder interface {
	Decode(ctx context.Context, kind TokenKind, token string) (*Claims, error)
}

// UnverifiedDecoder decodes JWT claims without checking their signature.
// The tokens it decodes arrived over TLS from the token endpoint, or in a
// redirect bound to a stored state and nonce.
type UnverifiedDecoder struct{}

var _ ClaimsDecoder = UnverifiedDecoder{}

// Decode implements ClaimsDecoder.
func (UnverifiedDecoder) Decode(_ context.Context, kind TokenKind, token string) (*Claims, error) {
	const op = "UnverifiedDecoder.Decode"
	tok, err := jwt.ParseSigned(token)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to parse %s: %s: %w", op, kind, err, ErrTokenDecode)
	}
	var c Claims
	raw := map[string]interface{}{}
	if err := tok.UnsafeClaimsWithoutVerification(&c, &raw); err != nil {
		return nil, fmt.Errorf("%s: unable to decode %s claims: %s: %w", op, kind, err, ErrTokenDecode)
	}
	c.Raw = raw
	return &c, nil
}

// KeySetDecoder verifies the signature of access and ID tokens with a
// KeySet before decoding them. Refresh tokens are opaque to the client and
// are signed with a key only the provider holds, so they are decoded
// unverified.
type KeySetDecoder struct {
	KeySet capjwt.KeySet
}

var _ ClaimsDecoder = (*KeySetDecoder)(nil)

// NewKeySetDecoder creates a KeySetDecoder.
func NewKeySetDecoder(ks capjwt.KeySet) (*KeySetDecoder, error) {
	const op = "NewKeySetDecoder"
	if ks == nil {
		return nil, fmt.Errorf("%s: key set is nil: %w", op, ErrNilParameter)
	}
	return &KeySetDecoder{KeySet: ks}, nil
}

// Decode implements ClaimsDecoder.
func (d *KeySetDecoder) Decode(ctx context.Context, kind TokenKind, token string) (*Claims, error) {
	const op = "KeySetDecoder.Decode"
	if kind == KindRefreshToken {
		return UnverifiedDecoder{}.Decode(ctx, kind, token)
	}
	m, err := d.KeySet.VerifySignature(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to verify %s: %s: %w", op, kind, err, ErrTokenDecode)
	}
	c, err := claimsFromMap(m)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

// looksLikeJWT reports whether token has the shape of a compact JWS.
func looksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2
}
