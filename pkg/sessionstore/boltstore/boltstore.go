// Package boltstore persists sessions in a BBolt database.
package boltstore

import (
	"bytes"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/aussiebroadwan/authkit/pkg/sessionstore"
)

var bucketName = []byte("sessions")

// Store keeps every key in a single bucket.
type Store struct {
	db *bbolt.DB
}

// New wraps an open database, creating the bucket if needed.
func New(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Open opens (or creates) the database at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	s, err := New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveItem(key string, data []byte) error {
	if key == "" {
		return sessionstore.ErrEmptyKey
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), data)
	})
}

func (s *Store) LoadItem(key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketName).Get([]byte(key)); v != nil {
			// v is only valid inside the transaction.
			out = bytes.Clone(v)
		}
		return nil
	})
	return out, err
}

func (s *Store) RemoveItem(key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	})
}
