package storage

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/sshtrust/internal/sshkey"
)

func generateTestKey(t *testing.T) *sshkey.KeyPair {
	t.Helper()
	key, err := sshkey.Generate(1024)
	require.NoError(t, err)
	return key
}

func TestFileStorage_UserKeyRoundtrip(t *testing.T) {
	s := NewFileStorage(t.TempDir(), "")
	key := generateTestKey(t)

	require.NoError(t, s.WriteUserKey(key))

	loaded, err := s.ReadUserKey()
	require.NoError(t, err)
	assert.True(t, key.Equal(loaded))
}

func TestFileStorage_ReadUserKey_Missing(t *testing.T) {
	s := NewFileStorage(t.TempDir(), "")

	_, err := s.ReadUserKey()
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestFileStorage_PrivateKeyMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not meaningful on windows")
	}

	dir := t.TempDir()
	s := NewFileStorage(dir, "")
	require.NoError(t, s.WriteUserKey(generateTestKey(t)))

	info, err := os.Stat(filepath.Join(dir, ".ssh", "id_rsa"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFileStorage_DeleteUserKey(t *testing.T) {
	s := NewFileStorage(t.TempDir(), "")
	require.NoError(t, s.WriteUserKey(generateTestKey(t)))

	require.NoError(t, s.DeleteUserKey())
	_, err := s.ReadUserKey()
	assert.ErrorIs(t, err, ErrKeyNotFound)

	// Deleting again is a no-op.
	require.NoError(t, s.DeleteUserKey())
}

func TestFileStorage_NamespaceIsolation(t *testing.T) {
	dir := t.TempDir()
	siteA := NewFileStorage(dir, "site-a")
	siteB := NewFileStorage(dir, "site-b")

	keyA := generateTestKey(t)
	require.NoError(t, siteA.WriteUserKey(keyA))

	_, err := siteB.ReadUserKey()
	assert.ErrorIs(t, err, ErrKeyNotFound)

	loaded, err := siteA.ReadUserKey()
	require.NoError(t, err)
	assert.True(t, keyA.Equal(loaded))
}

func TestFileStorage_HostKeyLines(t *testing.T) {
	s := NewFileStorage(t.TempDir(), "")

	lines, err := s.ReadHostKeyLines()
	require.NoError(t, err)
	assert.Empty(t, lines)

	require.NoError(t, s.AddHostKeyLine("host1 ssh-rsa AAAA"))
	require.NoError(t, s.AddHostKeyLine("host2 ssh-rsa BBBB"))

	lines, err = s.ReadHostKeyLines()
	require.NoError(t, err)
	assert.Equal(t, []string{"host1 ssh-rsa AAAA", "host2 ssh-rsa BBBB"}, lines)

	require.NoError(t, s.WriteHostKeyLines([]string{"host3 ssh-rsa CCCC"}))
	lines, err = s.ReadHostKeyLines()
	require.NoError(t, err)
	assert.Equal(t, []string{"host3 ssh-rsa CCCC"}, lines)
}

func TestFileStorage_ReadAuthorizedKeyLines(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStorage(dir, "")

	lines, err := s.ReadAuthorizedKeyLines()
	require.NoError(t, err)
	assert.Empty(t, lines)

	sshDir := filepath.Join(dir, ".ssh")
	require.NoError(t, os.MkdirAll(sshDir, 0700))
	content := "ssh-rsa AAAA comment\n\nssh-rsa BBBB\n"
	require.NoError(t, os.WriteFile(filepath.Join(sshDir, "authorized_keys"), []byte(content), 0644))

	lines, err = s.ReadAuthorizedKeyLines()
	require.NoError(t, err)
	assert.Equal(t, []string{"ssh-rsa AAAA comment", "ssh-rsa BBBB"}, lines)
}
