// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package bbolt provides a storage.Storage backed by a BBolt database, so
// pending authentication requests and cached tokens survive process restarts.
package bbolt

import (
	"bytes"
	"context"
	"fmt"

	"github.com/hashicorp/capsession/storage"
	"go.etcd.io/bbolt"
)

// DefaultBucket is the bucket used when none is provided.
const DefaultBucket = "capsession"

// Store implements storage.Storage using a single BBolt bucket.
type Store struct {
	db     *bbolt.DB
	bucket []byte
	owned  bool
}

var _ storage.Storage = (*Store)(nil)

// New returns a Store using the given database and bucket. The caller keeps
// ownership of db; Close will not close it.
func New(db *bbolt.DB, bucket string) (*Store, error) {
	const op = "bbolt.New"
	if db == nil {
		return nil, fmt.Errorf("%s: db is nil: %w", op, storage.ErrInvalidParameter)
	}
	if bucket == "" {
		bucket = DefaultBucket
	}
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create bucket %q: %w", op, bucket, err)
	}
	return &Store{db: db, bucket: []byte(bucket)}, nil
}

// Open opens (or creates) the BBolt database at path and returns a Store
// which owns it.
func Open(path, bucket string, options *bbolt.Options) (*Store, error) {
	const op = "bbolt.Open"
	db, err := bbolt.Open(path, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("%s: opening bbolt db: %w", op, err)
	}
	s, err := New(db, bucket)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// Close releases the database when the Store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// Get implements storage.Storage.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(s.bucket).Get([]byte(key))
		if data == nil {
			return storage.ErrNotFound
		}
		// bbolt values are only valid for the life of the transaction
		out = append([]byte{}, data...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Set implements storage.Storage.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	if key == "" {
		return storage.ErrInvalidParameter
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), value)
	})
}

// Delete implements storage.Storage.
func (s *Store) Delete(_ context.Context, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(key))
	})
}

// Keys implements storage.Storage.
func (s *Store) Keys(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	p := []byte(prefix)
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(s.bucket).Cursor()
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	return keys, err
}
