// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
callback is a package that provides http.HandlerFunc callbacks which deliver
provider redirects to an oidc.Client, typically from a loopback listener
started by a native application. Query mode callbacks are handled directly;
fragment mode callbacks are relayed back to the listener by a small page
served to the browser.
*/
package callback
