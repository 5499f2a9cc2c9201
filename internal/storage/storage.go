package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/edvin/sshtrust/internal/sshkey"
)

// ErrKeyNotFound is returned by ReadUserKey when no user key is stored.
var ErrKeyNotFound = errors.New("user key not found")

// Error wraps a backend I/O failure. Storage errors are propagated
// immediately and never retried.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KeyStorage is the backend holding a namespace's user key, known-hosts
// list and authorized-keys list. All operations are scoped to the
// namespace the backend was constructed with.
type KeyStorage interface {
	// ReadUserKey loads the stored user key. Returns ErrKeyNotFound
	// when no key is stored.
	ReadUserKey() (*sshkey.KeyPair, error)

	// WriteUserKey persists the user key, overwriting any existing one.
	WriteUserKey(key *sshkey.KeyPair) error

	// DeleteUserKey removes the stored user key. Removing an absent key
	// is not an error.
	DeleteUserKey() error

	// ReadHostKeyLines returns the known-hosts entries, one per line.
	// An absent list reads as empty.
	ReadHostKeyLines() ([]string, error)

	// AddHostKeyLine appends one entry to the known-hosts list.
	AddHostKeyLine(line string) error

	// WriteHostKeyLines replaces the known-hosts list wholesale.
	WriteHostKeyLines(lines []string) error

	// ReadAuthorizedKeyLines returns the authorized-keys entries.
	// An absent list reads as empty.
	ReadAuthorizedKeyLines() ([]string, error)
}

// Backend names accepted by New.
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendS3       = "s3"
)

// Config selects and parameterizes a storage backend.
type Config struct {
	Backend   string
	Namespace string

	// File backend.
	DataDir string

	// Postgres backend.
	DatabaseURL string

	// S3 backend.
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3Prefix    string
	S3AccessKey string
	S3SecretKey string
}

// New constructs the storage backend named by cfg.Backend. An unknown
// backend name, or a backend that cannot be initialized, is a
// construction error; callers must not operate without storage.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (KeyStorage, error) {
	switch cfg.Backend {
	case BackendFile, "":
		return NewFileStorage(cfg.DataDir, cfg.Namespace), nil
	case BackendMemory:
		return NewMemoryStorage(cfg.Namespace), nil
	case BackendPostgres:
		return NewPostgresPool(ctx, cfg.DatabaseURL, cfg.Namespace)
	case BackendS3:
		return NewS3Storage(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
