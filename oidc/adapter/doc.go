// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
adapter is a package of oidc.Adapter implementations.

Redirect drives a user agent through a Navigator, the way a browser page
redirects itself. System opens the operating system's browser and expects the
provider to redirect back to a loopback listener, see the callback package.
*/
package adapter
