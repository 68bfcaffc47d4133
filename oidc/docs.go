// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
oidc is a package for keeping a user's OIDC session with a Keycloak style
realm: signing in, holding and refreshing tokens, and noticing when the
provider side session ends.

Primary types provided by the package

* Config: the realm (auth server URL and realm name) and client id, from which
the provider endpoints are derived. Generic providers can supply Endpoints
directly or via DiscoverEndpoints.

* Client: the session itself. Init processes a callback found in the current
location, restores cached tokens, or runs the configured OnLoad action. After
that the client offers Login, Logout, Register, AccountManagement, UpdateToken,
LoadUserProfile, LoadUserInfo and role checks. Lifecycle events are delivered to
handlers registered with On.

* Adapter: takes the user agent to URLs the client builds. See the adapter
package for an application redirect and a system browser implementation.

* TokenExchanger: the token endpoint. OAuth2Exchanger is built on
golang.org/x/oauth2 and supports public clients as well as client secret and
signed JWT client authentication (see the clientassertion package).

* ClaimsDecoder: decodes token claims, with or without signature verification
(see the jwt package for key sets).

* SessionMonitor: polls a StatusFrame on an interval and reports a changed
provider session.

The oidc.callback package

The callback package includes http.HandlerFuncs for a loopback redirect
listener, which hand the authentication response to a Client.

Example apps

cmd/capsession is a complete command line application which signs in with the
system browser and caches its session in a bbolt database.
*/
package oidc
