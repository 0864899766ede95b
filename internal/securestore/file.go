package securestore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/pbkdf2"
)

const (
	fileFormatVersion = 1

	kdfPBKDF2 = "pbkdf2-sha256"
	kdfDevice = "blake3-device"

	defaultIterations = 210000
	saltSize          = 16
	keySize           = 32

	deviceKeyContext = "coffeeclub 2026-01-01 secure store device key"

	lockRetryDelay = 10 * time.Millisecond
)

// FileStoreOptions configures a FileStore.
type FileStoreOptions struct {
	// Path is the store file. Its directory is created with 0700.
	Path string

	// Passphrase, when set, derives the sealing key with PBKDF2. Otherwise
	// the key is bound to this machine, user and path.
	Passphrase string

	// Iterations overrides the PBKDF2 work factor.
	Iterations int
}

// fileContents is the on-disk layout. Values are base64(nonce || ciphertext).
type fileContents struct {
	Version int               `json:"version"`
	KDF     string            `json:"kdf"`
	Salt    string            `json:"salt"`
	Entries map[string]string `json:"entries"`
}

// FileStore seals every value with AES-256-GCM and keeps them in one JSON
// file. Updates are written to a temp file and renamed into place.
//
// Every operation holds an advisory lock on a sibling ".lock" file and
// re-reads the store file under it, so several handles (or processes)
// sharing a path see each other's writes.
type FileStore struct {
	mu   sync.Mutex
	lock *flock.Flock

	path    string
	kdf     string
	salt    []byte
	aead    cipher.AEAD
	entries map[string]string
}

// NewFileStore opens the store at opts.Path, creating key material on first use.
func NewFileStore(opts FileStoreOptions) (*FileStore, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("securestore: file path is required")
	}
	if opts.Iterations <= 0 {
		opts.Iterations = defaultIterations
	}

	kdf := kdfDevice
	if opts.Passphrase != "" {
		kdf = kdfPBKDF2
	}

	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o700); err != nil {
		return nil, storageErr("open", opts.Path, err)
	}

	s := &FileStore{
		lock:    flock.New(opts.Path+".lock", flock.SetPermissions(0o600)),
		path:    opts.Path,
		kdf:     kdf,
		entries: make(map[string]string),
	}

	// The salt is fixed by whichever handle creates the file first.
	if err := s.lock.Lock(); err != nil {
		return nil, storageErr("open", opts.Path, fmt.Errorf("lock: %w", err))
	}
	defer s.lock.Unlock()

	existing, err := readFileContents(opts.Path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, s.salt); err != nil {
			return nil, storageErr("open", opts.Path, fmt.Errorf("generate salt: %w", err))
		}
		if err := s.persist(s.entries); err != nil {
			return nil, storageErr("open", opts.Path, err)
		}
	case err != nil:
		return nil, storageErr("open", opts.Path, err)
	default:
		if existing.Version != fileFormatVersion {
			return nil, storageErr("open", opts.Path, fmt.Errorf("unsupported store version %d", existing.Version))
		}
		if existing.KDF != kdf {
			return nil, storageErr("open", opts.Path,
				fmt.Errorf("store was sealed with %s but %s is configured", existing.KDF, kdf))
		}
		salt, err := base64.StdEncoding.DecodeString(existing.Salt)
		if err != nil {
			return nil, storageErr("open", opts.Path, fmt.Errorf("decode salt: %w", err))
		}
		s.salt = salt
		if existing.Entries != nil {
			s.entries = existing.Entries
		}
	}

	var key []byte
	if kdf == kdfPBKDF2 {
		key = pbkdf2.Key([]byte(opts.Passphrase), s.salt, opts.Iterations, keySize, sha256.New)
	} else {
		key = make([]byte, keySize)
		blake3.DeriveKey(deviceKeyContext, deviceMaterial(opts.Path, s.salt), key)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, storageErr("open", opts.Path, err)
	}
	s.aead, err = cipher.NewGCM(block)
	if err != nil {
		return nil, storageErr("open", opts.Path, err)
	}

	return s, nil
}

// deviceMaterial binds the derived key to the host, the OS user and the
// absolute store path. It is obfuscation against casual copying, not a
// substitute for a passphrase.
func deviceMaterial(path string, salt []byte) []byte {
	host, _ := os.Hostname()
	username := ""
	if u, err := user.Current(); err == nil {
		username = u.Username + ":" + u.Uid
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	material := make([]byte, 0, len(host)+len(username)+len(abs)+len(salt)+3)
	material = append(material, host...)
	material = append(material, 0)
	material = append(material, username...)
	material = append(material, 0)
	material = append(material, abs...)
	material = append(material, 0)
	return append(material, salt...)
}

// Path returns the store file location.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return storageErr("set", key, err)
	}

	sealed, err := s.seal(key, value)
	if err != nil {
		return storageErr("set", key, err)
	}

	err = s.locked(ctx, false, func() error {
		next := make(map[string]string, len(s.entries)+1)
		for k, v := range s.entries {
			next[k] = v
		}
		next[key] = sealed

		if err := s.persist(next); err != nil {
			return err
		}
		s.entries = next
		return nil
	})
	if err != nil {
		return storageErr("set", key, err)
	}
	return nil
}

func (s *FileStore) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", storageErr("get", key, err)
	}

	var (
		sealed string
		ok     bool
	)
	err := s.locked(ctx, true, func() error {
		sealed, ok = s.entries[key]
		return nil
	})
	if err != nil {
		return "", storageErr("get", key, err)
	}
	if !ok {
		return "", ErrNotFound
	}

	value, err := s.open(key, sealed)
	if err != nil {
		return "", storageErr("get", key, err)
	}
	return value, nil
}

func (s *FileStore) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return storageErr("remove", key, err)
	}

	err := s.locked(ctx, false, func() error {
		if _, ok := s.entries[key]; !ok {
			return nil
		}

		next := make(map[string]string, len(s.entries))
		for k, v := range s.entries {
			if k != key {
				next[k] = v
			}
		}

		if err := s.persist(next); err != nil {
			return err
		}
		s.entries = next
		return nil
	})
	if err != nil {
		return storageErr("remove", key, err)
	}
	return nil
}

// locked runs fn holding the file lock, shared when read is set, after
// reloading the entries another handle may have written.
func (s *FileStore) locked(ctx context.Context, read bool, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	try := s.lock.TryLockContext
	if read {
		try = s.lock.TryRLockContext
	}
	ok, err := try(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("lock: %s is held", s.lock.Path())
	}
	defer s.lock.Unlock()

	if err := s.reload(); err != nil {
		return err
	}
	return fn()
}

// reload replaces the in-memory entries with the file's. A missing file
// means an empty store.
func (s *FileStore) reload() error {
	fc, err := readFileContents(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.entries = make(map[string]string)
		return nil
	}
	if err != nil {
		return err
	}
	if fc.Version != fileFormatVersion {
		return fmt.Errorf("unsupported store version %d", fc.Version)
	}
	if fc.KDF != s.kdf || fc.Salt != base64.StdEncoding.EncodeToString(s.salt) {
		return fmt.Errorf("store file was re-keyed by another handle")
	}
	s.entries = fc.Entries
	if s.entries == nil {
		s.entries = make(map[string]string)
	}
	return nil
}

// seal encrypts value with the key name as associated data, so a sealed
// value cannot be moved to another key.
func (s *FileStore) seal(key, value string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	ciphertext := s.aead.Seal(nonce, nonce, []byte(value), []byte(key))
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (s *FileStore) open(key, sealed string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}

	nonceSize := s.aead.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	plaintext, err := s.aead.Open(nil, data[:nonceSize], data[nonceSize:], []byte(key))
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

// persist must be called with s.mu and the file lock held.
func (s *FileStore) persist(entries map[string]string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(fileContents{
		Version: fileFormatVersion,
		KDF:     s.kdf,
		Salt:    base64.StdEncoding.EncodeToString(s.salt),
		Entries: entries,
	}, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".secure-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}

func readFileContents(path string) (*fileContents, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fc fileContents
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse store file: %w", err)
	}
	return &fc, nil
}
