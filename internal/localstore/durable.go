package localstore

import (
	"context"

	bolt "go.etcd.io/bbolt"

	"pkt.systems/quilix/internal/webstorage"
)

type durable struct {
	s *Store
}

// Durable exposes the store's durable key/value bucket, shared by every window
// opening the same store file.
func (s *Store) Durable() webstorage.Storage {
	return durable{s: s}
}

func (d durable) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		value string
		ok    bool
	)
	err := d.s.view(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketDurable).Get([]byte(key))
		if raw != nil {
			value, ok = string(raw), true
		}
		return nil
	})
	return value, ok, ignoreDegraded(err)
}

func (d durable) Set(ctx context.Context, key, value string) error {
	return d.s.update([]Table{TableDurable}, func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDurable).Put([]byte(key), []byte(value))
	})
}

func (d durable) Remove(ctx context.Context, key string) error {
	return d.s.update([]Table{TableDurable}, func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDurable).Delete([]byte(key))
	})
}
