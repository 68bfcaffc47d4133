// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/capsession/storage"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAuthRequest(t *testing.T) {
	t.Parallel()
	now := time.Now()
	nowFn := func() time.Time { return now }
	tests := []struct {
		name        string
		expireIn    time.Duration
		redirectURI string
		opts        []Option
		wantPKCE    bool
		wantPrompt  Prompt
		wantErr     error
	}{
		{name: "valid", expireIn: time.Minute, redirectURI: "https://app.example.com/"},
		{name: "pkce", expireIn: time.Minute, redirectURI: "https://app.example.com/", opts: []Option{WithPKCE()}, wantPKCE: true},
		{name: "prompt", expireIn: time.Minute, redirectURI: "https://app.example.com/", opts: []Option{WithPrompt(PromptNone)}, wantPrompt: PromptNone},
		{name: "bad-prompt", expireIn: time.Minute, redirectURI: "https://app.example.com/", opts: []Option{WithPrompt("consent")}, wantErr: ErrInvalidPrompt},
		{name: "zero-expiry", expireIn: 0, redirectURI: "https://app.example.com/", wantErr: ErrInvalidParameter},
		{name: "no-redirect", expireIn: time.Minute, wantErr: ErrConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := NewAuthRequest(tt.expireIn, tt.redirectURI, append(tt.opts, WithNow(nowFn))...)
			if tt.wantErr != nil {
				require.Error(err)
				assert.ErrorIs(err, tt.wantErr)
				return
			}
			require.NoError(err)
			assert.True(strings.HasPrefix(got.State, "st_"))
			assert.True(strings.HasPrefix(got.Nonce, "n_"))
			assert.NotEqual(got.State, got.Nonce)
			assert.Equal(tt.redirectURI, got.RedirectURI)
			assert.Equal(tt.wantPrompt, got.Prompt)
			assert.Equal(tt.wantPKCE, got.PKCEVerifier != "")
			assert.Equal(now.Add(tt.expireIn), got.Expires)
			assert.False(got.IsExpired(now))
			assert.True(got.IsExpired(now.Add(tt.expireIn)))
		})
	}
}

func Test_requestStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Now()
	clock := func() time.Time { return now }

	t.Run("take-once", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := newRequestStore(storage.NewMemory(), clock, hclog.NewNullLogger())
		r := testRequest(t, WithNow(clock))
		require.NoError(s.Add(ctx, r))

		got, err := s.Take(ctx, r.State)
		require.NoError(err)
		assert.Equal(r.State, got.State)
		assert.Equal(r.Nonce, got.Nonce)
		assert.Equal(r.RedirectURI, got.RedirectURI)

		_, err = s.Take(ctx, r.State)
		assert.ErrorIs(err, ErrNotFound)
	})
	t.Run("concurrent-take", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := newRequestStore(slowGetStorage{Memory: storage.NewMemory(), delay: 2 * time.Millisecond}, clock, hclog.NewNullLogger())
		r := testRequest(t, WithNow(clock))
		require.NoError(s.Add(ctx, r))

		var taken atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.Take(ctx, r.State); err == nil {
					taken.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(int32(1), taken.Load())
	})
	t.Run("unknown", func(t *testing.T) {
		assert := assert.New(t)
		s := newRequestStore(storage.NewMemory(), clock, hclog.NewNullLogger())
		_, err := s.Take(ctx, "st_unknown")
		assert.ErrorIs(err, ErrNotFound)
		_, err = s.Take(ctx, "")
		assert.ErrorIs(err, ErrNotFound)
	})
	t.Run("sweeps-expired", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		mem := storage.NewMemory()
		current := now
		s := newRequestStore(mem, func() time.Time { return current }, hclog.NewNullLogger())

		old, err := NewAuthRequest(time.Minute, "https://app.example.com/", WithNow(func() time.Time { return now }))
		require.NoError(err)
		require.NoError(s.Add(ctx, old))
		require.NoError(mem.Set(ctx, callbackKeyPrefix+"garbage", []byte("{")))

		current = now.Add(2 * time.Minute)
		fresh, err := NewAuthRequest(time.Minute, "https://app.example.com/", WithNow(func() time.Time { return current }))
		require.NoError(err)
		require.NoError(s.Add(ctx, fresh))

		keys, err := mem.Keys(ctx, callbackKeyPrefix)
		require.NoError(err)
		assert.Equal([]string{callbackKeyPrefix + fresh.State}, keys)
	})
	t.Run("expired-on-take", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		mem := storage.NewMemory()
		r := testRequest(t, WithNow(clock))
		require.NoError(newRequestStore(mem, clock, hclog.NewNullLogger()).Add(ctx, r))

		later := newRequestStore(mem, func() time.Time { return now.Add(DefaultRequestExpiry) }, hclog.NewNullLogger())
		_, err := later.Take(ctx, r.State)
		assert.ErrorIs(err, ErrNotFound)
	})
}

// slowGetStorage widens the window between reading and deleting a key.
type slowGetStorage struct {
	*storage.Memory
	delay time.Duration
}

func (s slowGetStorage) Get(ctx context.Context, key string) ([]byte, error) {
	time.Sleep(s.delay)
	return s.Memory.Get(ctx, key)
}
