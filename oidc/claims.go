// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"fmt"

	"gopkg.in/square/go-jose.v2/jwt"
)

// Access is a list of roles granted for the realm or for one resource.
type Access struct {
	Roles []string `json:"roles,omitempty"`
}

// Claims are the decoded claims of an access, refresh or ID token. Only the
// claims the client acts on are typed; Raw keeps all of them.
type Claims struct {
	Subject           string            `json:"sub,omitempty"`
	Issuer            string            `json:"iss,omitempty"`
	Expiry            *jwt.NumericDate  `json:"exp,omitempty"`
	IssuedAt          *jwt.NumericDate  `json:"iat,omitempty"`
	Nonce             string            `json:"nonce,omitempty"`
	SessionState      string            `json:"session_state,omitempty"`
	SessionID         string            `json:"sid,omitempty"`
	PreferredUsername string            `json:"preferred_username,omitempty"`
	RealmAccess       *Access           `json:"realm_access,omitempty"`
	ResourceAccess    map[string]Access `json:"resource_access,omitempty"`

	Raw map[string]interface{} `json:"-"`
}

// claimsFromMap builds Claims from an already verified claims map.
func claimsFromMap(m map[string]interface{}) (*Claims, error) {
	const op = "claimsFromMap"
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, err, ErrTokenDecode)
	}
	var c Claims
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, err, ErrTokenDecode)
	}
	c.Raw = m
	return &c, nil
}

// session returns the provider session id, preferring the Keycloak
// session_state claim over the standard sid.
func (c *Claims) session() string {
	if c == nil {
		return ""
	}
	if c.SessionState != "" {
		return c.SessionState
	}
	return c.SessionID
}
