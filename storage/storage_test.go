// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("get-missing", func(t *testing.T) {
		assert := assert.New(t)
		m := NewMemory()
		got, err := m.Get(ctx, "nope")
		assert.ErrorIs(err, ErrNotFound)
		assert.Nil(got)
	})
	t.Run("set-get-delete", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		m := NewMemory()
		require.NoError(m.Set(ctx, "k", []byte("v")))
		got, err := m.Get(ctx, "k")
		require.NoError(err)
		assert.Equal([]byte("v"), got)

		// values are copied in both directions
		got[0] = 'x'
		again, err := m.Get(ctx, "k")
		require.NoError(err)
		assert.Equal([]byte("v"), again)

		require.NoError(m.Delete(ctx, "k"))
		require.NoError(m.Delete(ctx, "k"))
		_, err = m.Get(ctx, "k")
		assert.ErrorIs(err, ErrNotFound)
	})
	t.Run("empty-key", func(t *testing.T) {
		assert := assert.New(t)
		m := NewMemory()
		assert.ErrorIs(m.Set(ctx, "", []byte("v")), ErrInvalidParameter)
	})
	t.Run("keys", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		m := NewMemory()
		for _, k := range []string{"b-2", "a-1", "b-1", "c"} {
			require.NoError(m.Set(ctx, k, nil))
		}
		got, err := m.Keys(ctx, "b-")
		require.NoError(err)
		assert.Equal([]string{"b-1", "b-2"}, got)
		all, err := m.Keys(ctx, "")
		require.NoError(err)
		assert.Len(all, 4)
	})
}
