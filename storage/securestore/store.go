// Package securestore keeps the preferences of the native shell in a single
// encrypted file. The file is sealed with XChaCha20-Poly1305 under a key derived
// from the device secret with Argon2id, and is replaced atomically on every write.
package securestore

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	apperrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	fileName      = "preferences.enc"
	saltSize      = 16
	formatVersion = 1
)

var additionalData = []byte("slater-preferences-v1")

// envelope is the on-disk representation of the preferences file.
type envelope struct {
	Version int    `json:"v"`
	Salt    []byte `json:"salt"`
	Nonce   []byte `json:"nonce"`
	Data    []byte `json:"data"`
}

// KDFParams are the Argon2id parameters used to derive the file key.
type KDFParams struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

var DefaultKDFParams = KDFParams{Time: 1, Memory: 64 * 1024, Threads: 4}

type Store struct {
	dir    string
	secret []byte
	kdf    KDFParams

	mu     sync.Mutex
	loaded bool
	salt   []byte
	aead   cipher.AEAD
	values map[string]string
}

type Option func(*Store)

func WithKDFParams(p KDFParams) Option {
	return func(s *Store) {
		s.kdf = p
	}
}

// New returns a store rooted at dir. The directory does not need to exist yet:
// until it does every operation fails with ErrUnavailable.
func New(dir, secret string, options ...Option) (*Store, error) {
	if dir == "" {
		return nil, errors.New("[securestore.New] dir is required")
	}
	if secret == "" {
		return nil, errors.New("[securestore.New] device secret is required")
	}

	s := &Store{
		dir:    dir,
		secret: []byte(secret),
		kdf:    DefaultKDFParams,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

func (s *Store) path() string {
	return filepath.Join(s.dir, fileName)
}

// Ready reports whether the preferences directory is reachable.
func (s *Store) Ready(_ context.Context) bool {
	info, err := os.Stat(s.dir)
	return err == nil && info.IsDir()
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadForWrite(ctx); err != nil {
		return err
	}

	next := s.copyValues()
	next[key] = value
	if err := s.persist(next); err != nil {
		return err
	}
	s.values = next
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(ctx); err != nil {
		return "", false, err
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadForWrite(ctx); err != nil {
		return err
	}
	if _, ok := s.values[key]; !ok {
		return nil
	}

	next := s.copyValues()
	delete(next, key)
	if err := s.persist(next); err != nil {
		return err
	}
	s.values = next
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadForWrite(ctx); err != nil {
		return err
	}

	next := map[string]string{}
	if err := s.persist(next); err != nil {
		return err
	}
	s.values = next
	return nil
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// ensureLoaded reads and decrypts the preferences file on first use. Caller holds mu.
func (s *Store) ensureLoaded(ctx context.Context) error {
	if !s.Ready(ctx) {
		return fmt.Errorf("%w: %s is not reachable", apperrors.ErrUnavailable, s.dir)
	}
	if s.loaded {
		return nil
	}

	raw, err := os.ReadFile(s.path())
	if errors.Is(err, fs.ErrNotExist) {
		if err := s.freshCipher(); err != nil {
			return err
		}
		s.values = map[string]string{}
		s.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrUnavailable, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Version != formatVersion {
		return fmt.Errorf("%w: unreadable preferences envelope", apperrors.ErrCorrupt)
	}
	if err := s.initCipher(env.Salt); err != nil {
		return err
	}

	plain, err := s.aead.Open(nil, env.Nonce, env.Data, additionalData)
	if err != nil {
		s.aead = nil
		return fmt.Errorf("%w: preferences could not be decrypted", apperrors.ErrCorrupt)
	}

	values := map[string]string{}
	if err := json.Unmarshal(plain, &values); err != nil {
		s.aead = nil
		return fmt.Errorf("%w: preferences payload: %v", apperrors.ErrCorrupt, err)
	}

	s.values = values
	s.loaded = true
	return nil
}

// loadForWrite is ensureLoaded for operations that modify the store. A file that
// cannot be read back is discarded and replaced by an empty one under a new salt,
// so a logout or the next login recovers the device. Caller holds mu.
func (s *Store) loadForWrite(ctx context.Context) error {
	err := s.ensureLoaded(ctx)
	if !errors.Is(err, apperrors.ErrCorrupt) {
		return err
	}
	log.Warn().Err(err).Str("path", s.path()).Msg("Discarding unreadable preferences file")

	if err := s.freshCipher(); err != nil {
		return err
	}
	empty := map[string]string{}
	if err := s.persist(empty); err != nil {
		return err
	}
	s.values = empty
	s.loaded = true
	return nil
}

func (s *Store) freshCipher() error {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return errors.Wrap(err, "[Store.freshCipher] rand.Read")
	}
	return s.initCipher(salt)
}

func (s *Store) initCipher(salt []byte) error {
	key := argon2.IDKey(s.secret, salt, s.kdf.Time, s.kdf.Memory, s.kdf.Threads, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return errors.Wrap(err, "[Store.initCipher] chacha20poly1305.NewX")
	}
	s.salt = salt
	s.aead = aead
	return nil
}

// persist seals values and swaps the file in with a rename so readers never see a
// partially written file.
func (s *Store) persist(values map[string]string) error {
	plain, err := json.Marshal(values)
	if err != nil {
		return errors.Wrap(err, "[Store.persist] marshal values")
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return errors.Wrap(err, "[Store.persist] rand.Read")
	}

	raw, err := json.Marshal(envelope{
		Version: formatVersion,
		Salt:    s.salt,
		Nonce:   nonce,
		Data:    s.aead.Seal(nil, nonce, plain, additionalData),
	})
	if err != nil {
		return errors.Wrap(err, "[Store.persist] marshal envelope")
	}

	tmp, err := os.CreateTemp(s.dir, ".preferences-*")
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrUnavailable, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return errors.Wrap(err, "[Store.persist] write")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "[Store.persist] sync")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "[Store.persist] close")
	}
	if err := os.Rename(tmpName, s.path()); err != nil {
		return errors.Wrap(err, "[Store.persist] rename")
	}
	return nil
}

func (s *Store) copyValues() map[string]string {
	next := make(map[string]string, len(s.values)+1)
	for k, v := range s.values {
		next[k] = v
	}
	return next
}
