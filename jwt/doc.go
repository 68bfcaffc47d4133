// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package jwt provides key sets used to verify the signatures of tokens issued
by a realm: the keys published by its discovery document, a JWKS url, or
locally configured PEM public keys.

	ks, err := jwt.NewJSONWebKeySet(ctx, "https://sso.example.com/realms/demo/protocol/openid-connect/certs", "")
	if err != nil {
		// handle error
	}
	claims, err := ks.VerifySignature(ctx, token)
*/
package jwt
