package client

import (
	"fmt"
	"strings"

	"github.com/edvin/sshtrust/internal/sshkey"
)

// InvalidPortError is returned when the port segment of a host:port
// target is not a positive integer. It is raised before any network I/O.
type InvalidPortError struct {
	Port string
}

func (e *InvalidPortError) Error() string {
	return fmt.Sprintf("invalid port %q", e.Port)
}

// AuthenticationError is returned when the remote rejects every
// credential. Methods carries the authentication methods the transport
// reported, and Key the user key that was attempted, if any, so callers
// can prompt usefully.
type AuthenticationError struct {
	Methods []string
	Key     *sshkey.KeyPair
}

func (e *AuthenticationError) Error() string {
	if len(e.Methods) == 0 {
		return "unable to authenticate with the remote host"
	}
	return fmt.Sprintf("unable to authenticate with the remote host (methods: %s)",
		strings.Join(e.Methods, ", "))
}

// TransportError wraps any other handshake-layer failure. The underlying
// message is preserved verbatim.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
