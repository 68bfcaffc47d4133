// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/capsession/storage"
	"github.com/hashicorp/go-hclog"
)

const callbackKeyPrefix = "kc-callback-"

// requestStore keeps pending AuthRequests in the injected storage, keyed by
// their state. Expired entries are swept on every Add and Take.
// mu serializes the read-then-delete of Take and sweep, so one state is
// consumed at most once.
type requestStore struct {
	mu      sync.Mutex
	storage storage.Storage
	now     func() time.Time
	logger  hclog.Logger
}

func newRequestStore(s storage.Storage, now func() time.Time, l hclog.Logger) *requestStore {
	return &requestStore{storage: s, now: now, logger: l}
}

// Add persists r until its callback arrives.
func (s *requestStore) Add(ctx context.Context, r *AuthRequest) error {
	const op = "requestStore.Add"
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep(ctx)
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("%s: unable to encode request: %w", op, err)
	}
	if err := s.storage.Set(ctx, callbackKeyPrefix+r.State, b); err != nil {
		return fmt.Errorf("%s: unable to store request: %w", op, err)
	}
	return nil
}

// Take returns the request for state and removes it, so a callback can only be
// consumed once.
func (s *requestStore) Take(ctx context.Context, state string) (*AuthRequest, error) {
	const op = "requestStore.Take"
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep(ctx)
	if state == "" {
		return nil, fmt.Errorf("%s: state is empty: %w", op, ErrNotFound)
	}
	key := callbackKeyPrefix + state
	b, err := s.storage.Get(ctx, key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("%s: unable to read request: %w", op, err)
	}
	if err := s.storage.Delete(ctx, key); err != nil {
		return nil, fmt.Errorf("%s: unable to remove request: %w", op, err)
	}
	var r AuthRequest
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("%s: unable to decode request: %w", op, err)
	}
	if r.State != state {
		return nil, fmt.Errorf("%s: stored request does not match state: %w", op, ErrNotFound)
	}
	if r.IsExpired(s.now()) {
		return nil, fmt.Errorf("%s: %w", op, ErrExpiredRequest)
	}
	return &r, nil
}

// sweep must be called with mu held.
func (s *requestStore) sweep(ctx context.Context) {
	keys, err := s.storage.Keys(ctx, callbackKeyPrefix)
	if err != nil {
		s.logger.Warn("unable to list pending requests", "error", err)
		return
	}
	now := s.now()
	for _, k := range keys {
		b, err := s.storage.Get(ctx, k)
		if err != nil {
			continue
		}
		var r AuthRequest
		if err := json.Unmarshal(b, &r); err != nil || r.IsExpired(now) {
			s.logger.Debug("removing stale request", "state", strings.TrimPrefix(k, callbackKeyPrefix))
			_ = s.storage.Delete(ctx, k)
		}
	}
}
