// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

// FlowState is the state of a Client's flow engine.
//
//	Uninitialized -> Initializing -> {Unauthenticated, Authenticated}
//	Authenticated <-> Refreshing -> Unauthenticated
//	any -> Destroyed
type FlowState int

const (
	StateUninitialized FlowState = iota
	StateInitializing
	StateUnauthenticated
	StateAuthenticated
	StateRefreshing
	StateDestroyed
)

func (s FlowState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}
