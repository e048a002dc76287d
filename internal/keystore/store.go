// Package keystore is the persistence seam for wallet state. Everything the
// daemon keeps between runs (the wallet list, the PIN value, label overrides)
// goes through the Store interface so the backend is swappable.
package keystore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/burnerhq/burnerd/internal/constants"
	"github.com/burnerhq/burnerd/internal/securefile"
)

// Well-known keys. Layout: a single ordered wallet list, a separate PIN
// value, and a separate label-override map.
const (
	KeyWallets = "wallets"
	KeyPIN     = "pin"
	KeyLabels  = "labels"
)

// Store is a flat key-value store.
type Store interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
	Delete(key string) error
	List() ([]string, error)
}

// GetJSON reads key and unmarshals it into out. Returns false if absent.
func GetJSON(s Store, key string, out any) (bool, error) {
	b, ok, err := s.Get(key)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return true, fmt.Errorf("keystore %s: %w", key, err)
	}
	return true, nil
}

// PutJSON marshals v and stores it under key.
func PutJSON(s Store, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("keystore %s: %w", key, err)
	}
	return s.Put(key, b)
}

// FileStore keeps all keys in one encrypted file. The whole map is rewritten
// on every mutation; the data set is a handful of small records.
type FileStore struct {
	mu       sync.Mutex
	path     string
	password []byte
	opt      securefile.Options
	data     map[string][]byte
}

// OpenFile loads the store at path, creating an empty one if the file does
// not exist yet. A wrong password surfaces as
// securefile.ErrInvalidPasswordOrCorrupt.
func OpenFile(path string, password []byte) (*FileStore, error) {
	s := &FileStore{
		path:     path,
		password: append([]byte(nil), password...),
		opt:      securefile.Options{AAD: []byte(constants.KeystoreAAD)},
		data:     map[string][]byte{},
	}

	data, err := securefile.ReadEncryptedJSON[map[string][]byte](path, s.password, s.opt)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("open keystore %s: %w", path, err)
	}
	if data != nil {
		s.data = data
	}
	return s, nil
}

func (s *FileStore) Get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *FileStore) Put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return s.persistLocked()
}

func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return nil
	}
	delete(s.data, key)
	return s.persistLocked()
}

func (s *FileStore) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *FileStore) persistLocked() error {
	return securefile.WriteEncryptedJSON(s.path, s.data, s.password, s.opt)
}

// Memory is an in-memory Store for tests.
type Memory struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: map[string][]byte{}}
}

func (m *Memory) Get(key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *Memory) Put(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *Memory) List() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
