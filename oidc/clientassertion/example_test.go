// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package clientassertion_test

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"log"

	"github.com/hashicorp/capsession/oidc/clientassertion"
)

func ExampleNewJWTWithRSAKey() {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		log.Fatal(err)
	}
	j, err := clientassertion.NewJWTWithRSAKey(
		"backend",
		[]string{"https://sso.example.com/realms/demo"},
		clientassertion.RS256,
		key,
		clientassertion.WithKeyID("backend-key"),
	)
	if err != nil {
		log.Fatal(err)
	}
	assertion, err := j.Serialize()
	if err != nil {
		log.Fatal(err)
	}
	// send these as form parameters of the token request
	fmt.Println("client_assertion_type:", clientassertion.JWTTypeParam)
	fmt.Println("client_assertion is set:", assertion != "")
	// Output:
	// client_assertion_type: urn:ietf:params:oauth:client-assertion-type:jwt-bearer
	// client_assertion is set: true
}
