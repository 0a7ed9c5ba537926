package blobstore

import (
	"gocloud.dev/blob/memblob"
)

// NewMemory creates an in-memory store for testing.
func NewMemory(prefix, publicBase string) *Store {
	store := New(memblob.OpenBucket(nil), prefix, publicBase)
	store.owns = true
	return store
}
