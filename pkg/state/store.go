package state

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// Bucket names, one per entity category.
var categoryBuckets = [][]byte{
	[]byte("disks"),
	[]byte("shares"),
	[]byte("ups_devices"),
	[]byte("docker_containers"),
	[]byte("vms"),
}

// Store is a bbolt-backed set of known entity identities per category.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the database at path and ensures all category
// buckets exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range categoryBuckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// KnownIDs returns the set of identities recorded for a category. An
// unknown category yields an empty set.
func (s *Store) KnownIDs(category string) (map[string]struct{}, error) {
	ids := make(map[string]struct{})
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(category))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			ids[string(k)] = struct{}{}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Add records one identity for a category. Adding an existing identity is
// a no-op.
func (s *Store) Add(category, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(category))
		if err != nil {
			return err
		}
		return b.Put([]byte(id), nil)
	})
}

// Remove forgets one identity for a category.
func (s *Store) Remove(category, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(category))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(id))
	})
}
