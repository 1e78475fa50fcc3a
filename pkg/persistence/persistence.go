// Package persistence provides the storage abstraction for the persisted flow record.
package persistence

import (
	"context"
)

// Persistence is a key-value slot store. Backends hold raw bytes; the Store
// adapter owns encoding and the never-fail contract.
type Persistence interface {
	// Get returns ErrRecordNotFound when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	// Delete of a missing key is not an error.
	Delete(ctx context.Context, key string) error
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
