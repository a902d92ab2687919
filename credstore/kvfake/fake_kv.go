package kvfake

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/fitsession/fitsession-go/credstore"
)

var _ credstore.KV = (*FakeKV)(nil)

// FakeKV is an in-memory credstore.KV for tests. Writes to keys registered
// via FailWrites fail before any mutation, which lets tests assert that batch
// writes are all-or-nothing.
type FakeKV struct {
	values    map[string]string
	failWrite map[string]bool
	lock      sync.RWMutex
}

func New() *FakeKV {
	return &FakeKV{
		values:    make(map[string]string),
		failWrite: make(map[string]bool),
	}
}

// FailWrites makes every subsequent write touching key fail.
func (f *FakeKV) FailWrites(key string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.failWrite[key] = true
}

// Len returns the number of stored entries.
func (f *FakeKV) Len() int {
	f.lock.RLock()
	defer f.lock.RUnlock()
	return len(f.values)
}

func (f *FakeKV) Get(_ context.Context, key string) (string, error) {
	f.lock.RLock()
	defer f.lock.RUnlock()
	value, ok := f.values[key]
	if !ok {
		return "", credstore.ErrNotFound
	}
	return value, nil
}

func (f *FakeKV) Set(_ context.Context, key, value string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.failWrite[key] {
		return errors.Wrapf(credstore.ErrStorage, "write rejected for %q", key)
	}
	f.values[key] = value
	return nil
}

func (f *FakeKV) SetMulti(_ context.Context, entries map[string]string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	for key := range entries {
		if f.failWrite[key] {
			return errors.Wrapf(credstore.ErrStorage, "write rejected for %q", key)
		}
	}
	for key, value := range entries {
		f.values[key] = value
	}
	return nil
}

func (f *FakeKV) Del(_ context.Context, key string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.failWrite[key] {
		return errors.Wrapf(credstore.ErrStorage, "delete rejected for %q", key)
	}
	delete(f.values, key)
	return nil
}

func (f *FakeKV) DelMulti(_ context.Context, keys ...string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	for _, key := range keys {
		if f.failWrite[key] {
			return errors.Wrapf(credstore.ErrStorage, "delete rejected for %q", key)
		}
	}
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}
