// Package identity owns the user's SSH key pair lifecycle: generate,
// import, retrieve, delete, plus fingerprints and authorized-key checks.
package identity

import (
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/edvin/sshtrust/internal/metrics"
	"github.com/edvin/sshtrust/internal/sshkey"
	"github.com/edvin/sshtrust/internal/storage"
)

// namespaceLocks serializes key mutations per namespace, so two callers
// cannot race to generate or overwrite the same stored key.
var namespaceLocks sync.Map // namespace -> *sync.Mutex

func lockNamespace(namespace string) func() {
	mu, _ := namespaceLocks.LoadOrStore(namespace, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	return mu.(*sync.Mutex).Unlock
}

// Manager owns the user key for one namespace. The key is loaded lazily
// on first access and cached for the manager's lifetime; read failures
// degrade to "no key" rather than failing the caller.
type Manager struct {
	storage   storage.KeyStorage
	namespace string
	logger    zerolog.Logger

	mu     sync.RWMutex
	cached *sshkey.KeyPair
	loaded bool
	group  singleflight.Group
}

func NewManager(st storage.KeyStorage, namespace string, logger zerolog.Logger) *Manager {
	return &Manager{
		storage:   st,
		namespace: namespace,
		logger:    logger.With().Str("component", "identity").Logger(),
	}
}

// UserKey returns the user's key pair, or nil if none is stored. Storage
// and parse failures are logged and reported as "no key"; they never
// propagate. A successful load (including a confirmed absence) is cached.
func (m *Manager) UserKey() *sshkey.KeyPair {
	m.mu.RLock()
	if m.loaded {
		key := m.cached
		m.mu.RUnlock()
		return key
	}
	m.mu.RUnlock()

	key, err, _ := m.group.Do("user-key", func() (any, error) {
		key, err := m.storage.ReadUserKey()
		if err != nil && !errors.Is(err, storage.ErrKeyNotFound) {
			return nil, err
		}

		m.mu.Lock()
		m.cached = key
		m.loaded = true
		m.mu.Unlock()
		return key, nil
	})
	if err != nil {
		// Degrade rather than fail; the next call retries the load.
		m.logger.Error().Err(err).Msg("error reading user key")
		return nil
	}
	if key == nil {
		return nil
	}
	return key.(*sshkey.KeyPair)
}

// GenerateUserKey generates and persists an RSA key pair of the given
// size. If a key already exists it is returned unchanged; an existing key
// is never silently overwritten.
func (m *Manager) GenerateUserKey(bits int) (*sshkey.KeyPair, error) {
	unlock := lockNamespace(m.namespace)
	defer unlock()

	if key := m.UserKey(); key != nil {
		return key, nil
	}

	key, err := sshkey.Generate(bits)
	if err != nil {
		return nil, err
	}

	if err := m.writeUserKey(key); err != nil {
		return nil, err
	}
	metrics.KeyOperations.WithLabelValues("generate").Inc()
	return key, nil
}

// ImportUserKey parses raw key material against each supported algorithm
// in priority order and persists the first match, overwriting any
// existing key. A failed parse leaves the stored key untouched.
func (m *Manager) ImportUserKey(raw []byte) (*sshkey.KeyPair, error) {
	unlock := lockNamespace(m.namespace)
	defer unlock()

	key, err := sshkey.Parse(raw)
	if err != nil {
		return nil, err
	}

	if err := m.writeUserKey(key); err != nil {
		return nil, err
	}
	metrics.KeyOperations.WithLabelValues("import").Inc()
	return key, nil
}

// DeleteUserKey removes the stored user key. Removing an absent key is a
// no-op; storage errors are logged and propagated.
func (m *Manager) DeleteUserKey() error {
	unlock := lockNamespace(m.namespace)
	defer unlock()

	if err := m.storage.DeleteUserKey(); err != nil {
		m.logger.Error().Err(err).Msg("unable to delete user key")
		return err
	}

	m.mu.Lock()
	m.cached = nil
	m.loaded = true
	m.mu.Unlock()

	metrics.KeyOperations.WithLabelValues("delete").Inc()
	return nil
}

// IsAuthorized reports whether the key's public blob appears as the
// second token of any authorized-keys line. Lines with fewer than two
// tokens are skipped; a storage read failure reads as "not authorized".
func (m *Manager) IsAuthorized(key *sshkey.KeyPair) bool {
	lines, err := m.storage.ReadAuthorizedKeyLines()
	if err != nil {
		m.logger.Error().Err(err).Msg("error reading authorized keys")
		return false
	}

	blob := key.Base64()
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if fields[1] == blob {
			return true
		}
	}
	return false
}

func (m *Manager) writeUserKey(key *sshkey.KeyPair) error {
	if err := m.storage.WriteUserKey(key); err != nil {
		m.logger.Error().Err(err).Msg("failed to write user key")
		return err
	}

	m.mu.Lock()
	m.cached = key
	m.loaded = true
	m.mu.Unlock()
	return nil
}
