package index

import (
	"bytes"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var bucketObjects = []byte("objects")

// BoltIndex implements Index using go.etcd.io/bbolt. bbolt's B+-tree keeps
// keys in bytewise sorted order natively, which is exactly the ordering
// PrefixIter promises.
type BoltIndex struct {
	db *bolt.DB
}

// Open opens (creating if necessary) a bbolt database at path and ensures the
// objects bucket exists.
func Open(path string) (*BoltIndex, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketObjects)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("index: create bucket: %w", err)
	}

	return &BoltIndex{db: db}, nil
}

func (b *BoltIndex) Get(key []byte) ([]byte, error) {
	var value []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketObjects).Get(key)
		if v == nil {
			return ErrNotFound
		}
		value = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (b *BoltIndex) Put(key, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketObjects).Put(key, value)
	})
}

func (b *BoltIndex) Delete(key []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketObjects).Delete(key)
	})
}

func (b *BoltIndex) PrefixIter(prefix []byte, fn func(Entry) bool) error {
	return b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketObjects).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			entry := Entry{
				Key:   append([]byte(nil), k...),
				Value: append([]byte(nil), v...),
			}
			if !fn(entry) {
				break
			}
		}
		return nil
	})
}

func (b *BoltIndex) Close() error {
	return b.db.Close()
}
