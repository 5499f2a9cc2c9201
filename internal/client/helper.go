package client

import (
	"context"
	"net/url"
	"os"

	"github.com/rs/zerolog"

	"github.com/edvin/sshtrust/internal/config"
)

// HelperName is the fixed name of the companion SSH helper binary. SCM
// tool integrations look it up through environment variables, so the
// literal must never change.
const HelperName = "rbssh"

// RegisterHelper points an environment variable at the SSH helper, for
// tools (Git, Mercurial) that take their SSH command from the
// environment. The value is always the literal "rbssh".
func RegisterHelper(envvar string) error {
	return os.Setenv(envvar, HelperName)
}

// sshURISchemes are the URL schemes served over SSH.
var sshURISchemes = map[string]bool{
	"ssh":  true,
	"sftp": true,
}

// IsSSHURI reports whether a URL represents an SSH connection.
func IsSSHURI(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return sshURISchemes[u.Scheme]
}

// CheckHost verifies that a host can be reached with a trusted key and
// the stored identity: it builds a strict-policy client, performs one
// connection attempt, and closes the session. Any taxonomy error
// (unknown or changed host key, authentication failure, transport
// failure) propagates to the caller.
func CheckHost(ctx context.Context, cfg *config.Config, logger zerolog.Logger, netloc, username, password string) error {
	c, err := New(ctx, cfg, logger)
	if err != nil {
		return err
	}

	session, err := c.Connect(ctx, netloc, ConnectOptions{
		User:     username,
		Password: password,
	})
	if err != nil {
		return err
	}
	return session.Close()
}
