package storage

import (
	"errors"
	"fmt"

	"github.com/nutsdb/nutsdb"
)

const defaultBucket = "todo"

type nutsdbStore struct {
	db     *nutsdb.DB
	bucket string
}

// NewNutsDBStore creates a new NutsDB-backed store.
func NewNutsDBStore(path, bucket string) (KV, error) {
	if bucket == "" {
		bucket = defaultBucket
	}

	opts := nutsdb.DefaultOptions
	opts.Dir = path
	db, err := nutsdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open nutsdb: %w", err)
	}

	// Ensure bucket exists
	if err := db.Update(func(tx *nutsdb.Tx) error {
		return tx.NewBucket(nutsdb.DataStructureBTree, bucket)
	}); err != nil {
		if !errors.Is(err, nutsdb.ErrBucketAlreadyExist) {
			_ = db.Close()
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &nutsdbStore{db: db, bucket: bucket}, nil
}

// Get implements KV.
func (s *nutsdbStore) Get(key string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *nutsdb.Tx) error {
		v, err := tx.Get(s.bucket, []byte(key))
		if err != nil {
			return err
		}
		data = append([]byte(nil), v...)
		return nil
	})

	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return data, nil
}

// Set implements KV.
func (s *nutsdbStore) Set(key string, value []byte) error {
	err := s.db.Update(func(tx *nutsdb.Tx) error {
		return tx.Put(s.bucket, []byte(key), value, 0) // no TTL
	})
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, nutsdb.ErrKeyNotFound) ||
		errors.Is(err, nutsdb.ErrNotFoundKey) ||
		errors.Is(err, nutsdb.ErrNotFoundBucket)
}

// Close closes the store.
func (s *nutsdbStore) Close() error {
	return s.db.Close()
}
