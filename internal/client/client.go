// Package client ties the SSH identity and trust subsystem together: it
// loads a storage backend, rebuilds the known-hosts index, owns the
// user's identity, and establishes outbound connections under a fixed
// host-key verification policy.
package client

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"

	"github.com/edvin/sshtrust/internal/config"
	"github.com/edvin/sshtrust/internal/hostkeys"
	"github.com/edvin/sshtrust/internal/identity"
	"github.com/edvin/sshtrust/internal/policy"
	"github.com/edvin/sshtrust/internal/storage"
)

// Client manages a namespace's SSH identity and host trust store and
// establishes connections with them. The verification policy is fixed at
// construction and never mutated mid-session.
type Client struct {
	cfg      *config.Config
	storage  storage.KeyStorage
	hostKeys *hostkeys.Store
	identity *identity.Manager
	policy   policy.Policy
	logger   zerolog.Logger
}

// New creates a client with the strict host-key policy: unknown hosts
// and changed keys abort the connection. The storage backend is
// resolved from the configuration chain.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Client, error) {
	st, err := storage.New(ctx, cfg.StorageConfig(""), logger)
	if err != nil {
		return nil, fmt.Errorf("load storage backend: %w", err)
	}
	return NewWithStorage(cfg, logger, st, policy.Strict{})
}

// NewWarn creates a client with the warn policy: unknown and changed
// host keys are accepted, logged, and recorded as trusted. Only for
// controlled environments.
func NewWarn(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Client, error) {
	st, err := storage.New(ctx, cfg.StorageConfig(""), logger)
	if err != nil {
		return nil, fmt.Errorf("load storage backend: %w", err)
	}
	c, err := NewWithStorage(cfg, logger, st, nil)
	if err != nil {
		return nil, err
	}
	c.policy = policy.Warn{Logger: c.logger, Recorder: c}
	return c, nil
}

// NewWithStorage builds a client over an already-constructed storage
// backend and policy. The trust store is loaded here; a backend that
// cannot be read is a construction failure, the client never operates
// with a partially initialized identity. A nil policy defaults to
// strict.
func NewWithStorage(cfg *config.Config, logger zerolog.Logger, st storage.KeyStorage, pol policy.Policy) (*Client, error) {
	lines, err := st.ReadHostKeyLines()
	if err != nil {
		return nil, fmt.Errorf("load known hosts: %w", err)
	}

	store := hostkeys.NewStore()
	store.Load(lines)

	if pol == nil {
		pol = policy.Strict{}
	}

	return &Client{
		cfg:      cfg,
		storage:  st,
		hostKeys: store,
		identity: identity.NewManager(st, cfg.Namespace, logger),
		policy:   pol,
		logger:   logger.With().Str("component", "ssh-client").Logger(),
	}, nil
}

// Identity returns the client's identity manager.
func (c *Client) Identity() *identity.Manager {
	return c.identity
}

// HostKeys returns the client's known-hosts index.
func (c *Client) HostKeys() *hostkeys.Store {
	return c.hostKeys
}

// AddHostKey records a trusted host key in the index and persists it.
func (c *Client) AddHostKey(hostname string, key ssh.PublicKey) error {
	c.hostKeys.Add(hostname, key)
	if err := c.storage.AddHostKeyLine(hostkeys.Line([]string{hostname}, key)); err != nil {
		return err
	}
	c.logger.Info().
		Str("hostname", hostname).
		Str("fingerprint", ssh.FingerprintLegacyMD5(key)).
		Msg("recorded host key")
	return nil
}

// ReplaceHostKey swaps a rotated host key in the index and persists the
// rewritten known-hosts list. Replacing an unrecorded key still records
// the new one.
func (c *Client) ReplaceHostKey(hostname string, oldKey, newKey ssh.PublicKey) error {
	c.hostKeys.Replace(hostname, oldKey, newKey)
	if err := c.storage.WriteHostKeyLines(c.hostKeys.Lines()); err != nil {
		return err
	}
	c.logger.Info().
		Str("hostname", hostname).
		Str("fingerprint", ssh.FingerprintLegacyMD5(newKey)).
		Msg("replaced host key")
	return nil
}
