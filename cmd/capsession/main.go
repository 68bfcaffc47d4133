// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// capsession signs a command line user in to a Keycloak realm and keeps the
// resulting tokens fresh.
package main

import "github.com/hashicorp/capsession/cmd/capsession/cmd"

func main() {
	cmd.Execute()
}
