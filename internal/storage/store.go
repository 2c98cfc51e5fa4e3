// Package storage persists serialised cart records behind a small blob store
// interface and debounces writes to it.
package storage

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by Load when no record exists for the key.
var ErrNotFound = errors.New("storage: record not found")

// ErrVersionMismatch is reported when a stored record carries an unsupported version.
var ErrVersionMismatch = errors.New("storage: record version mismatch")

// Store persists opaque cart records by key.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// Pinger is implemented by stores that can report backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Key joins a prefix and session id into a storage key.
func Key(prefix, session string) string {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		return "cart:" + session
	}
	return prefix + ":cart:" + session
}
