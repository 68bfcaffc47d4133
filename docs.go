// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

// capsession provides the packages needed to keep an OIDC session with a
// Keycloak style realm from a Go application: the session client (oidc), its
// adapters and callback handlers, JWT key sets (jwt), and persistent storage
// for pending requests and tokens (storage).
//
// See cmd/capsession for a command line application built on them.
package capsession
