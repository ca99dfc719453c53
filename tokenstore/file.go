package tokenstore

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	apperrors "github.com/jrsteele09/stockpilot/internal/errors"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const (
	fileVersion = 1
	saltLen     = 16
	nonceLen    = 24
	keyLen      = 32
)

// scrypt cost parameters; tests lower ScryptN to keep runs fast.
var (
	ScryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

var _ Store = (*File)(nil)

// File persists tokens as JSON in a single 0600 file. With a passphrase the
// payload is sealed with NaCl secretbox under an scrypt-derived key.
type File struct {
	path       string
	passphrase string

	mu      sync.Mutex
	salt    []byte
	derived *[keyLen]byte
}

type fileEnvelope struct {
	Version int               `json:"version"`
	Tokens  map[string]string `json:"tokens,omitempty"`
	Salt    []byte            `json:"salt,omitempty"`
	Sealed  []byte            `json:"sealed,omitempty"` // nonce || secretbox
}

func NewFile(path, passphrase string) *File {
	return &File{path: path, passphrase: passphrase}
}

func (f *File) Path() string {
	return f.path
}

func (f *File) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return "", err
	}
	v, ok := values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (f *File) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return err
	}
	values[key] = value
	return f.write(values)
}

// Delete removes keys. A file that cannot be read, whether corrupted or
// sealed with another passphrase, is dropped as a whole.
func (f *File) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil && !apperrors.Is(err, apperrors.ErrStoreCorrupted) && !apperrors.Is(err, apperrors.ErrWrongPassphrase) {
		return err
	}
	if values == nil {
		values = map[string]string{}
	}
	for _, k := range keys {
		delete(values, k)
	}
	if len(values) == 0 {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("[tokenstore File] remove %s: %w", f.path, err)
		}
		return nil
	}
	return f.write(values)
}

func (f *File) read() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("[tokenstore File] read %s: %w", f.path, err)
	}

	var env fileEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrStoreCorrupted, "%s", f.path)
	}
	if env.Sealed == nil {
		if f.passphrase != "" && len(env.Tokens) > 0 {
			return nil, apperrors.Wrapf(apperrors.ErrStoreCorrupted, "%s is not encrypted", f.path)
		}
		if env.Tokens == nil {
			env.Tokens = map[string]string{}
		}
		return env.Tokens, nil
	}
	if f.passphrase == "" {
		return nil, apperrors.Wrapf(apperrors.ErrWrongPassphrase, "%s is encrypted", f.path)
	}
	return f.open(env)
}

func (f *File) write(values map[string]string) error {
	env := fileEnvelope{Version: fileVersion}
	if f.passphrase == "" {
		env.Tokens = values
	} else {
		if err := f.seal(&env, values); err != nil {
			return err
		}
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("[tokenstore File] marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("[tokenstore File] mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".tokens-*")
	if err != nil {
		return fmt.Errorf("[tokenstore File] create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("[tokenstore File] chmod: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("[tokenstore File] write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("[tokenstore File] close: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("[tokenstore File] rename: %w", err)
	}
	return nil
}

func (f *File) seal(env *fileEnvelope, values map[string]string) error {
	if f.salt == nil {
		f.salt = make([]byte, saltLen)
		if _, err := rand.Read(f.salt); err != nil {
			return fmt.Errorf("[tokenstore File] salt: %w", err)
		}
		f.derived = nil
	}
	key, err := f.key(f.salt)
	if err != nil {
		return err
	}

	plain, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("[tokenstore File] marshal tokens: %w", err)
	}
	var nonce [nonceLen]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return fmt.Errorf("[tokenstore File] nonce: %w", err)
	}
	env.Salt = f.salt
	env.Sealed = secretbox.Seal(nonce[:], plain, &nonce, key)
	return nil
}

func (f *File) open(env fileEnvelope) (map[string]string, error) {
	if len(env.Salt) != saltLen || len(env.Sealed) < nonceLen+secretbox.Overhead {
		return nil, apperrors.Wrapf(apperrors.ErrStoreCorrupted, "%s", f.path)
	}
	key, err := f.key(env.Salt)
	if err != nil {
		return nil, err
	}

	var nonce [nonceLen]byte
	copy(nonce[:], env.Sealed[:nonceLen])
	plain, ok := secretbox.Open(nil, env.Sealed[nonceLen:], &nonce, key)
	if !ok {
		return nil, apperrors.ErrWrongPassphrase
	}

	values := map[string]string{}
	if err := json.Unmarshal(plain, &values); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrStoreCorrupted, "%s", f.path)
	}
	return values, nil
}

// key derives (and caches) the secretbox key for salt.
func (f *File) key(salt []byte) (*[keyLen]byte, error) {
	if f.derived != nil && string(f.salt) == string(salt) {
		return f.derived, nil
	}
	raw, err := scrypt.Key([]byte(f.passphrase), salt, ScryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, fmt.Errorf("[tokenstore File] derive key: %w", err)
	}
	var k [keyLen]byte
	copy(k[:], raw)
	f.salt = append([]byte(nil), salt...)
	f.derived = &k
	return f.derived, nil
}
