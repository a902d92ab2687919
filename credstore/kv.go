package credstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by KV.Get when the key has no value.
	ErrNotFound = errors.New("key not found")
	// ErrStorage signals a storage backend read/write failure. Backends wrap
	// their own errors; callers test with errors.Is.
	ErrStorage = errors.New("credential storage failure")
)

// KV is the durable key-value backend the credential store runs on.
// Values are opaque strings. Batch operations are all-or-nothing: a reader
// racing SetMulti or DelMulti observes either every entry updated or none,
// which is what keeps the token pair and the cached profile from tearing.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	SetMulti(ctx context.Context, entries map[string]string) error
	Del(ctx context.Context, key string) error
	DelMulti(ctx context.Context, keys ...string) error
}
