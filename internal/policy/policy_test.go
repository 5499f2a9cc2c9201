package policy

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func generateHostKey(t *testing.T) ssh.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	return sshPub
}

func TestEvaluate(t *testing.T) {
	keyA := generateHostKey(t)
	keyB := generateHostKey(t)

	assert.Equal(t, OutcomeUnknown, Evaluate(keyA, nil))
	assert.Equal(t, OutcomeTrusted, Evaluate(keyA, []ssh.PublicKey{keyA}))
	assert.Equal(t, OutcomeTrusted, Evaluate(keyA, []ssh.PublicKey{keyB, keyA}))
	assert.Equal(t, OutcomeChanged, Evaluate(keyA, []ssh.PublicKey{keyB}))
}

func TestStrict_TrustedMatch(t *testing.T) {
	key := generateHostKey(t)

	err := Strict{}.Verify("alpha.example.com", key, []ssh.PublicKey{key})
	assert.NoError(t, err)
}

func TestStrict_UnknownHost(t *testing.T) {
	key := generateHostKey(t)

	err := Strict{}.Verify("alpha.example.com", key, nil)
	require.Error(t, err)

	var unknown *UnknownHostKeyError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "alpha.example.com", unknown.Hostname)
}

func TestStrict_ChangedKey(t *testing.T) {
	oldKey := generateHostKey(t)
	newKey := generateHostKey(t)

	err := Strict{}.Verify("alpha.example.com", newKey, []ssh.PublicKey{oldKey})
	require.Error(t, err)

	var changed *HostKeyChangedError
	require.ErrorAs(t, err, &changed)
	assert.Equal(t, "alpha.example.com", changed.Hostname)
	assert.Equal(t, newKey.Marshal(), changed.Key.Marshal())
	assert.Equal(t, oldKey.Marshal(), changed.ExpectedKey.Marshal())
}

// recordingRecorder captures Add/Replace calls.
type recordingRecorder struct {
	added    []string
	replaced []string
}

func (r *recordingRecorder) AddHostKey(hostname string, key ssh.PublicKey) error {
	r.added = append(r.added, hostname)
	return nil
}

func (r *recordingRecorder) ReplaceHostKey(hostname string, oldKey, newKey ssh.PublicKey) error {
	r.replaced = append(r.replaced, hostname)
	return nil
}

func TestWarn_UnknownHost_RecordsKey(t *testing.T) {
	key := generateHostKey(t)
	rec := &recordingRecorder{}
	p := Warn{Logger: zerolog.Nop(), Recorder: rec}

	err := p.Verify("alpha.example.com", key, nil)
	assert.NoError(t, err)
	assert.Equal(t, []string{"alpha.example.com"}, rec.added)
}

func TestWarn_ChangedKey_ReplacesKey(t *testing.T) {
	oldKey := generateHostKey(t)
	newKey := generateHostKey(t)
	rec := &recordingRecorder{}
	p := Warn{Logger: zerolog.Nop(), Recorder: rec}

	err := p.Verify("alpha.example.com", newKey, []ssh.PublicKey{oldKey})
	assert.NoError(t, err)
	assert.Equal(t, []string{"alpha.example.com"}, rec.replaced)
	assert.Empty(t, rec.added)
}

func TestWarn_TrustedMatch_NoRecording(t *testing.T) {
	key := generateHostKey(t)
	rec := &recordingRecorder{}
	p := Warn{Logger: zerolog.Nop(), Recorder: rec}

	err := p.Verify("alpha.example.com", key, []ssh.PublicKey{key})
	assert.NoError(t, err)
	assert.Empty(t, rec.added)
	assert.Empty(t, rec.replaced)
}
