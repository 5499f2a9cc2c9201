// Package policy decides what to do when a remote host presents its key
// during connection setup. A policy is a pure decision function per
// attempt; a client holds exactly one, fixed at construction.
package policy

import (
	"bytes"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

// Outcome classifies a presented host key against the trust store.
// It is produced fresh per connection attempt and consumed immediately.
type Outcome int

const (
	// OutcomeUnknown means no key is recorded for the host.
	OutcomeUnknown Outcome = iota
	// OutcomeTrusted means the presented key matches a recorded one.
	OutcomeTrusted
	// OutcomeChanged means keys are recorded for the host but none match.
	OutcomeChanged
)

func (o Outcome) String() string {
	switch o {
	case OutcomeTrusted:
		return "trusted"
	case OutcomeChanged:
		return "changed"
	default:
		return "unknown"
	}
}

// Evaluate classifies a presented key against the keys recorded for the
// host.
func Evaluate(presented ssh.PublicKey, known []ssh.PublicKey) Outcome {
	if len(known) == 0 {
		return OutcomeUnknown
	}
	for _, k := range known {
		if k.Type() == presented.Type() && bytes.Equal(k.Marshal(), presented.Marshal()) {
			return OutcomeTrusted
		}
	}
	return OutcomeChanged
}

// UnknownHostKeyError is returned by the strict policy when a host has no
// recorded key.
type UnknownHostKeyError struct {
	Hostname string
	Key      ssh.PublicKey
}

func (e *UnknownHostKeyError) Error() string {
	return fmt.Sprintf("host key for %q is not trusted (fingerprint %s)",
		e.Hostname, ssh.FingerprintLegacyMD5(e.Key))
}

// HostKeyChangedError is returned by the strict policy when a host's
// presented key differs from every recorded one. Both keys are attached
// for diagnostic display. This is never downgraded to a warning.
type HostKeyChangedError struct {
	Hostname    string
	Key         ssh.PublicKey
	ExpectedKey ssh.PublicKey
}

func (e *HostKeyChangedError) Error() string {
	return fmt.Sprintf("host key for %q has changed (got %s, expected %s)",
		e.Hostname,
		ssh.FingerprintLegacyMD5(e.Key),
		ssh.FingerprintLegacyMD5(e.ExpectedKey))
}

// Policy decides whether to proceed with a host's presented key.
type Policy interface {
	// Verify returns nil to accept the key, or a typed error to abort
	// the connection before authentication.
	Verify(hostname string, presented ssh.PublicKey, known []ssh.PublicKey) error

	// Name identifies the policy in logs and metrics.
	Name() string
}

// Strict accepts only keys already recorded for the host. Unknown hosts
// and changed keys abort the connection.
type Strict struct{}

func (Strict) Name() string { return "strict" }

func (Strict) Verify(hostname string, presented ssh.PublicKey, known []ssh.PublicKey) error {
	switch Evaluate(presented, known) {
	case OutcomeTrusted:
		return nil
	case OutcomeChanged:
		return &HostKeyChangedError{
			Hostname:    hostname,
			Key:         presented,
			ExpectedKey: known[0],
		}
	default:
		return &UnknownHostKeyError{Hostname: hostname, Key: presented}
	}
}

// Recorder persists trust decisions made by the warn policy.
type Recorder interface {
	AddHostKey(hostname string, key ssh.PublicKey) error
	ReplaceHostKey(hostname string, oldKey, newKey ssh.PublicKey) error
}

// Warn accepts unknown and changed keys, logging a warning and recording
// the key so future connections trust it. For controlled environments
// only; production clients use Strict.
type Warn struct {
	Logger   zerolog.Logger
	Recorder Recorder
}

func (Warn) Name() string { return "warn" }

func (p Warn) Verify(hostname string, presented ssh.PublicKey, known []ssh.PublicKey) error {
	switch Evaluate(presented, known) {
	case OutcomeTrusted:
		return nil
	case OutcomeChanged:
		p.Logger.Warn().
			Str("hostname", hostname).
			Str("fingerprint", ssh.FingerprintLegacyMD5(presented)).
			Msg("accepting changed host key")
		if p.Recorder != nil {
			return p.Recorder.ReplaceHostKey(hostname, known[0], presented)
		}
		return nil
	default:
		p.Logger.Warn().
			Str("hostname", hostname).
			Str("fingerprint", ssh.FingerprintLegacyMD5(presented)).
			Msg("accepting unknown host key")
		if p.Recorder != nil {
			return p.Recorder.AddHostKey(hostname, presented)
		}
		return nil
	}
}
