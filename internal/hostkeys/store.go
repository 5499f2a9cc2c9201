// Package hostkeys maintains the in-memory known-hosts index: the set of
// (hostname, host key) pairs the client trusts. The store is rebuilt from
// storage each time a client is constructed; policies record new trust
// decisions through it.
package hostkeys

import (
	"bytes"
	"encoding/base64"
	"strings"

	"golang.org/x/crypto/ssh"
)

// Entry is one trusted known-hosts record. A hostname may appear in
// several entries when keys rotate or a host serves multiple algorithms.
type Entry struct {
	Hostnames []string
	Key       ssh.PublicKey
}

// Store is an ordered index of trusted host keys. It is not safe for
// concurrent mutation; each client owns its own snapshot.
type Store struct {
	entries []Entry
}

func NewStore() *Store {
	return &Store{}
}

// Load parses known-hosts lines into the store, replacing its contents.
// Malformed lines are skipped; one bad line never aborts the load.
func (s *Store) Load(lines []string) {
	s.entries = s.entries[:0]

	for _, line := range lines {
		_, hosts, key, _, _, err := ssh.ParseKnownHosts([]byte(line + "\n"))
		if err != nil {
			continue
		}
		s.entries = append(s.entries, Entry{Hostnames: hosts, Key: key})
	}
}

// Lookup returns all trusted keys recorded for a hostname, in first-match
// order.
func (s *Store) Lookup(hostname string) []ssh.PublicKey {
	var keys []ssh.PublicKey
	for _, e := range s.entries {
		for _, h := range e.Hostnames {
			if h == hostname {
				keys = append(keys, e.Key)
				break
			}
		}
	}
	return keys
}

// Add appends a trust entry. Duplicates are tolerated.
func (s *Store) Add(hostname string, key ssh.PublicKey) {
	s.entries = append(s.entries, Entry{Hostnames: []string{hostname}, Key: key})
}

// Replace removes the entry exactly matching (hostname, oldKey) and
// appends (hostname, newKey). When oldKey is not present the removal is
// a no-op; the new key is still appended so the host becomes trusted.
func (s *Store) Replace(hostname string, oldKey, newKey ssh.PublicKey) {
	for i, e := range s.entries {
		if !keysEqual(e.Key, oldKey) {
			continue
		}
		if idx := indexOf(e.Hostnames, hostname); idx >= 0 {
			if len(e.Hostnames) > 1 {
				// The entry covers other hostnames too; keep it for those.
				s.entries[i].Hostnames = append(e.Hostnames[:idx:idx], e.Hostnames[idx+1:]...)
			} else {
				s.entries = append(s.entries[:i], s.entries[i+1:]...)
			}
			break
		}
	}

	s.Add(hostname, newKey)
}

// Entries returns the store's records in order.
func (s *Store) Entries() []Entry {
	return s.entries
}

// Lines serializes the store back to known-hosts format:
// "hostname keytype base64-key".
func (s *Store) Lines() []string {
	lines := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		lines = append(lines, Line(e.Hostnames, e.Key))
	}
	return lines
}

// Line renders one known-hosts line for the given hostnames and key.
func Line(hostnames []string, key ssh.PublicKey) string {
	return strings.Join(hostnames, ",") + " " + key.Type() + " " +
		base64.StdEncoding.EncodeToString(key.Marshal())
}

func keysEqual(a, b ssh.PublicKey) bool {
	return a.Type() == b.Type() && bytes.Equal(a.Marshal(), b.Marshal())
}

func indexOf(hosts []string, hostname string) int {
	for i, h := range hosts {
		if h == hostname {
			return i
		}
	}
	return -1
}
