// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
	"time"
)

// DefaultMinValidity is the minValidity used by UpdateTokenDefault.
const DefaultMinValidity = 5 * time.Second

// UpdateTokenDefault is UpdateToken with DefaultMinValidity.
func (c *Client) UpdateTokenDefault(ctx context.Context) (bool, error) {
	return c.UpdateToken(ctx, DefaultMinValidity)
}

// UpdateToken refreshes the tokens when the access token expires within
// minValidity; a negative minValidity always refreshes. It reports whether
// a refresh happened.
//
// Calls made while a refresh is in flight share its outcome and do not
// cause another request. A failed refresh clears the tokens and emits
// EventAuthRefreshError; it is never retried. A refresh that completes after
// Logout or ClearToken is discarded with ErrRefreshDiscarded.
func (c *Client) UpdateToken(ctx context.Context, minValidity time.Duration) (bool, error) {
	const op = "Client.UpdateToken"
	if _, _, err := c.usable(); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if c.tokens.Tokens().RefreshToken == "" {
		return false, fmt.Errorf("%s: no refresh token: %w", op, ErrNotAuthenticated)
	}
	if minValidity >= 0 && !c.tokens.IsExpired(minValidity) {
		return false, nil
	}

	// the flight outlives any single caller's cancellation
	flightCtx := context.WithoutCancel(ctx)
	ch := c.refreshGroup.DoChan(refreshFlight, func() (interface{}, error) {
		evs, err := c.refresh(flightCtx)
		// handlers that refresh again must start a new flight, not wait on
		// this one
		c.refreshGroup.Forget(refreshFlight)
		for _, ev := range evs {
			c.events.emit(ev)
		}
		return nil, err
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return false, fmt.Errorf("%s: %w", op, res.Err)
		}
		return true, nil
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w: %s", op, ErrTimeout, ctx.Err())
	}
}

const refreshFlight = "refresh"

// refresh runs one refresh_token grant and returns the events to emit once
// the flight is over.
func (c *Client) refresh(ctx context.Context) ([]Event, error) {
	const op = "Client.refresh"
	ts := c.tokens.Tokens()
	if ts.RefreshToken == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrNotAuthenticated)
	}
	gen := c.tokens.Generation()

	c.mu.RLock()
	m := c.monitor
	c.mu.RUnlock()
	if m != nil {
		m.Pause()
		defer m.Resume()
	}
	c.swapState(StateRefreshing, StateAuthenticated)

	raw, err := c.exchanger.Refresh(ctx, string(ts.RefreshToken))
	if err != nil {
		return c.refreshFailed(gen, err)
	}
	next, err := c.tokens.Decode(ctx, raw)
	if err != nil {
		return c.refreshFailed(gen, err)
	}
	if _, ok := c.tokens.ApplyIf(gen, next, raw.ReceivedAt); !ok {
		c.logger.Debug("discarding refresh result, tokens changed while refreshing")
		return nil, fmt.Errorf("%s: %w", op, ErrRefreshDiscarded)
	}
	c.swapState(StateAuthenticated, StateRefreshing)
	return []Event{{Type: EventAuthRefreshSuccess}}, nil
}

func (c *Client) refreshFailed(gen uint64, err error) ([]Event, error) {
	had, cleared := c.tokens.ClearIf(gen)
	if !cleared {
		c.logger.Debug("discarding refresh failure, tokens changed while refreshing", "error", err)
		return nil, fmt.Errorf("%w: %s", ErrRefreshDiscarded, err)
	}
	c.swapState(StateUnauthenticated, StateRefreshing, StateAuthenticated)
	var evs []Event
	if had {
		evs = append(evs, Event{Type: EventAuthLogout})
	}
	return append(evs, Event{Type: EventAuthRefreshError, Err: err}), err
}
