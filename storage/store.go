package storage

import (
	"errors"
)

// Store represents a key-value store. Values are always read and written
// whole.
type Store interface {
	Put(key string, value []byte) (err error)

	// Get should return ErrNotFound if the key is not in the store.
	Get(key string) (value []byte, err error)
}

var (
	// ErrNotFound indicates a key is not in the store.
	ErrNotFound = errors.New("not found")
)

func dup(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
