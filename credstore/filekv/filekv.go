// Package filekv stores credential entries in a single encrypted file.
// The whole key space is sealed as one secretbox payload and rewritten through
// a temp-file rename, so batch updates are atomic by construction and tokens
// never touch disk in the clear.
package filekv

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"

	"github.com/fitsession/fitsession-go/credstore"
)

var _ credstore.KV = (*FileKV)(nil)

const (
	saltLength  = 16
	nonceLength = 24
	keyLength   = 32

	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// ErrBadPassphrase is returned by Open when the file exists but cannot be
// decrypted with the supplied passphrase.
var ErrBadPassphrase = errors.New("credential file passphrase incorrect")

// FileKV is an encrypted file-backed credstore.KV.
type FileKV struct {
	path   string
	salt   []byte
	key    [keyLength]byte
	values map[string]string
	lock   sync.RWMutex
}

// Open loads (or creates) the credential file at path, deriving the
// encryption key from passphrase with scrypt.
func Open(path, passphrase string) (*FileKV, error) {
	f := &FileKV{path: path, values: make(map[string]string)}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		f.salt = make([]byte, saltLength)
		if _, err := rand.Read(f.salt); err != nil {
			return nil, errors.Wrap(err, "[filekv.Open] rand.Read")
		}
		if err := f.deriveKey(passphrase); err != nil {
			return nil, err
		}
		return f, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[filekv.Open] read credential file")
	}
	if len(raw) < saltLength+nonceLength+secretbox.Overhead {
		return nil, errors.New("[filekv.Open] credential file truncated")
	}

	f.salt = raw[:saltLength]
	if err := f.deriveKey(passphrase); err != nil {
		return nil, err
	}

	var nonce [nonceLength]byte
	copy(nonce[:], raw[saltLength:saltLength+nonceLength])
	plaintext, ok := secretbox.Open(nil, raw[saltLength+nonceLength:], &nonce, &f.key)
	if !ok {
		return nil, ErrBadPassphrase
	}
	if err := json.Unmarshal(plaintext, &f.values); err != nil {
		return nil, errors.Wrap(err, "[filekv.Open] decode credential file")
	}
	return f, nil
}

func (f *FileKV) deriveKey(passphrase string) error {
	derived, err := scrypt.Key([]byte(passphrase), f.salt, scryptN, scryptR, scryptP, keyLength)
	if err != nil {
		return errors.Wrap(err, "[filekv] scrypt.Key")
	}
	copy(f.key[:], derived)
	return nil
}

func (f *FileKV) Get(_ context.Context, key string) (string, error) {
	f.lock.RLock()
	defer f.lock.RUnlock()
	value, ok := f.values[key]
	if !ok {
		return "", credstore.ErrNotFound
	}
	return value, nil
}

func (f *FileKV) Set(ctx context.Context, key, value string) error {
	return f.SetMulti(ctx, map[string]string{key: value})
}

func (f *FileKV) SetMulti(_ context.Context, entries map[string]string) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	updated := f.snapshot()
	for key, value := range entries {
		updated[key] = value
	}
	if err := f.persist(updated); err != nil {
		return err
	}
	f.values = updated
	return nil
}

func (f *FileKV) Del(ctx context.Context, key string) error {
	return f.DelMulti(ctx, key)
}

func (f *FileKV) DelMulti(_ context.Context, keys ...string) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	updated := f.snapshot()
	for _, key := range keys {
		delete(updated, key)
	}
	if err := f.persist(updated); err != nil {
		return err
	}
	f.values = updated
	return nil
}

func (f *FileKV) snapshot() map[string]string {
	copied := make(map[string]string, len(f.values))
	for k, v := range f.values {
		copied[k] = v
	}
	return copied
}

// persist seals the full map and replaces the file via rename. The in-memory
// map is only swapped by the caller after persist succeeds, keeping memory
// and disk in agreement on failure.
func (f *FileKV) persist(values map[string]string) error {
	plaintext, err := json.Marshal(values)
	if err != nil {
		return errors.Wrap(err, "[filekv.persist] json.Marshal")
	}

	var nonce [nonceLength]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return errors.Wrap(err, "[filekv.persist] rand.Read")
	}

	raw := make([]byte, 0, saltLength+nonceLength+len(plaintext)+secretbox.Overhead)
	raw = append(raw, f.salt...)
	raw = append(raw, nonce[:]...)
	raw = secretbox.Seal(raw, plaintext, &nonce, &f.key)

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrapf(credstore.ErrStorage, "create %s: %v", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return errors.Wrapf(credstore.ErrStorage, "temp file: %v", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return errors.Wrapf(credstore.ErrStorage, "write: %v", err)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(credstore.ErrStorage, "close: %v", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return errors.Wrapf(credstore.ErrStorage, "chmod: %v", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return errors.Wrapf(credstore.ErrStorage, "rename: %v", err)
	}
	return nil
}
