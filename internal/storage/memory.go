package storage

import (
	"sync"

	"github.com/edvin/sshtrust/internal/sshkey"
)

// MemoryStorage is an in-memory KeyStorage for tests and ephemeral use.
// It is safe for concurrent use and counts user-key writes so tests can
// assert on persistence behavior.
type MemoryStorage struct {
	mu             sync.Mutex
	namespace      string
	userKeyPEM     []byte
	hostKeys       []string
	authorizedKeys []string
	keyWrites      int
}

func NewMemoryStorage(namespace string) *MemoryStorage {
	return &MemoryStorage{namespace: namespace}
}

func (s *MemoryStorage) ReadUserKey() (*sshkey.KeyPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.userKeyPEM == nil {
		return nil, ErrKeyNotFound
	}
	return sshkey.Parse(s.userKeyPEM)
}

func (s *MemoryStorage) WriteUserKey(key *sshkey.KeyPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.userKeyPEM = key.MarshalPEM()
	s.keyWrites++
	return nil
}

func (s *MemoryStorage) DeleteUserKey() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.userKeyPEM = nil
	return nil
}

func (s *MemoryStorage) ReadHostKeyLines() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.hostKeys...), nil
}

func (s *MemoryStorage) AddHostKeyLine(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hostKeys = append(s.hostKeys, line)
	return nil
}

func (s *MemoryStorage) WriteHostKeyLines(lines []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hostKeys = append([]string(nil), lines...)
	return nil
}

func (s *MemoryStorage) ReadAuthorizedKeyLines() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.authorizedKeys...), nil
}

// SetAuthorizedKeyLines seeds the authorized-keys list for tests.
func (s *MemoryStorage) SetAuthorizedKeyLines(lines []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.authorizedKeys = append([]string(nil), lines...)
}

// KeyWrites returns how many times the user key has been persisted.
func (s *MemoryStorage) KeyWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.keyWrites
}
