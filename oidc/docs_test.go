// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc_test

import (
	"context"
	"fmt"
	"net/url"

	"github.com/hashicorp/capsession/oidc"
)

func ExampleNewConfig() {
	pc, err := oidc.NewConfig(
		"https://sso.example.com",
		"demo",
		"web-app",
		oidc.WithRedirectURI("https://app.example.com/"),
		oidc.WithScopes("email", "roles"),
	)
	if err != nil {
		// handle error
	}
	e := pc.ResolvedEndpoints()
	fmt.Println(e.Authorize)
	fmt.Println(e.Token)
	fmt.Println(e.Account)

	// Output:
	// https://sso.example.com/realms/demo/protocol/openid-connect/auth
	// https://sso.example.com/realms/demo/protocol/openid-connect/token
	// https://sso.example.com/realms/demo/account
}

func ExampleClient_CreateLoginURL() {
	ctx := context.Background()
	pc, err := oidc.NewConfig("https://sso.example.com", "demo", "web-app",
		oidc.WithRedirectURI("https://app.example.com/"),
		oidc.WithScopes("email"),
	)
	if err != nil {
		// handle error
	}
	c, err := oidc.NewClient(pc)
	if err != nil {
		// handle error
	}
	defer c.Destroy()

	// Without an OnLoad action Init settles immediately. A browser adapter and
	// the current location would normally be passed here as well.
	authenticated, err := c.Init(ctx, oidc.InitOptions{
		PKCEMethod: oidc.PKCEMethodS256,
	})
	if err != nil {
		// handle error
	}
	fmt.Println("authenticated:", authenticated)

	loginURL, err := c.CreateLoginURL(ctx, oidc.LoginOptions{LoginHint: "alice"})
	if err != nil {
		// handle error
	}
	u, _ := url.Parse(loginURL)
	q := u.Query()
	fmt.Println(u.Path)
	fmt.Println(q.Get("response_type"), q.Get("response_mode"))
	fmt.Println(q.Get("scope"))
	fmt.Println(q.Get("login_hint"), q.Get("code_challenge_method"))

	logoutURL, err := c.CreateLogoutURL(oidc.LogoutOptions{})
	if err != nil {
		// handle error
	}
	fmt.Println(logoutURL)

	// Output:
	// authenticated: false
	// /realms/demo/protocol/openid-connect/auth
	// code fragment
	// openid email
	// alice S256
	// https://sso.example.com/realms/demo/protocol/openid-connect/logout?redirect_uri=https%3A%2F%2Fapp.example.com%2F
}
