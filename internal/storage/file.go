package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/edvin/sshtrust/internal/sshkey"
)

const (
	rsaKeyFile         = "id_rsa"
	dsaKeyFile         = "id_dsa"
	knownHostsFile     = "known_hosts"
	authorizedKeysFile = "authorized_keys"
)

// FileStorage keeps key material in a .ssh directory under the data
// directory, with an optional per-namespace subdirectory. The private key
// is written with mode 0600.
type FileStorage struct {
	dir string
}

// NewFileStorage creates a file-backed KeyStorage rooted at
// <dataDir>/.ssh or <dataDir>/.ssh/<namespace>.
func NewFileStorage(dataDir, namespace string) *FileStorage {
	dir := filepath.Join(dataDir, ".ssh")
	if namespace != "" {
		dir = filepath.Join(dir, namespace)
	}
	return &FileStorage{dir: dir}
}

// Dir returns the directory this storage reads and writes.
func (s *FileStorage) Dir() string {
	return s.dir
}

func (s *FileStorage) ReadUserKey() (*sshkey.KeyPair, error) {
	for _, name := range []string{rsaKeyFile, dsaKeyFile} {
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, &Error{Op: "read user key", Err: err}
		}
		return sshkey.Parse(data)
	}
	return nil, ErrKeyNotFound
}

func (s *FileStorage) WriteUserKey(key *sshkey.KeyPair) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return &Error{Op: "create key directory", Err: err}
	}

	name := rsaKeyFile
	if key.Algorithm() == sshkey.AlgorithmDSA {
		name = dsaKeyFile
	}

	// Only one key may be active; drop any previously stored key of the
	// other algorithm first.
	if err := s.DeleteUserKey(); err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(s.dir, name), key.MarshalPEM(), 0600); err != nil {
		return &Error{Op: "write user key", Err: err}
	}
	return nil
}

func (s *FileStorage) DeleteUserKey() error {
	for _, name := range []string{rsaKeyFile, dsaKeyFile} {
		err := os.Remove(filepath.Join(s.dir, name))
		if err != nil && !os.IsNotExist(err) {
			return &Error{Op: "delete user key", Err: err}
		}
	}
	return nil
}

func (s *FileStorage) ReadHostKeyLines() ([]string, error) {
	return s.readLines(knownHostsFile)
}

func (s *FileStorage) AddHostKeyLine(line string) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return &Error{Op: "create key directory", Err: err}
	}

	f, err := os.OpenFile(filepath.Join(s.dir, knownHostsFile),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return &Error{Op: "open known_hosts", Err: err}
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, line); err != nil {
		return &Error{Op: "append known_hosts", Err: err}
	}
	return nil
}

func (s *FileStorage) WriteHostKeyLines(lines []string) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return &Error{Op: "create key directory", Err: err}
	}

	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(filepath.Join(s.dir, knownHostsFile), []byte(b.String()), 0644); err != nil {
		return &Error{Op: "write known_hosts", Err: err}
	}
	return nil
}

func (s *FileStorage) ReadAuthorizedKeyLines() ([]string, error) {
	return s.readLines(authorizedKeysFile)
}

func (s *FileStorage) readLines(name string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &Error{Op: "read " + name, Err: err}
	}
	return splitLines(string(data)), nil
}

// splitLines splits file content into non-empty lines.
func splitLines(data string) []string {
	var lines []string
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
