package client

import (
	"context"
	"errors"
	"net"
	"os/user"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"

	"github.com/edvin/sshtrust/internal/metrics"
	"github.com/edvin/sshtrust/internal/policy"
	"github.com/edvin/sshtrust/internal/sshkey"
)

// DefaultPort is used when the target carries no port segment.
const DefaultPort = 22

const defaultDialTimeout = 10 * time.Second

// ConnectOptions carries per-attempt parameters.
type ConnectOptions struct {
	// User to authenticate as. Defaults to the current OS user.
	User string

	// Password enables password authentication when non-empty. The
	// user key, when one is stored, is always attempted first.
	Password string

	// Timeout bounds the TCP dial and the handshake. Defaults to 10s;
	// a context deadline additionally aborts both.
	Timeout time.Duration
}

// SplitHost resolves a "host[:port]" target. A present port segment must
// parse as a positive integer or the call fails with *InvalidPortError,
// before any network I/O.
func SplitHost(target string) (string, int, error) {
	if !strings.Contains(target, ":") {
		return target, DefaultPort, nil
	}

	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return "", 0, &InvalidPortError{Port: target}
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, &InvalidPortError{Port: portStr}
	}
	return host, port, nil
}

// Connect performs a single connection attempt: resolve the target,
// acquire the user identity, verify the remote host key under the
// client's policy, and authenticate. There is no internal retry; callers
// retry if desired. Failures map onto the typed error taxonomy.
func (c *Client) Connect(ctx context.Context, target string, opts ConnectOptions) (*Session, error) {
	host, port, err := SplitHost(target)
	if err != nil {
		metrics.ConnectionsTotal.WithLabelValues("invalid_port").Inc()
		return nil, err
	}

	logger := c.logger.With().
		Str("attempt_id", uuid.New().String()).
		Str("host", host).
		Int("port", port).
		Logger()

	// Absence of a user key is not fatal; the remote may accept a
	// password or no auth at all.
	userKey := c.identity.UserKey()

	var auths []ssh.AuthMethod
	if userKey != nil {
		auths = append(auths, ssh.PublicKeys(userKey.Signer()))
	}
	if opts.Password != "" {
		auths = append(auths, ssh.Password(opts.Password))
	}

	username := opts.User
	if username == "" {
		username = currentUsername()
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultDialTimeout
	}

	// The callback's typed error is recorded so it surfaces unwrapped
	// instead of buried in the handshake error string.
	var policyErr error
	hostKeyCallback := func(addr string, remote net.Addr, key ssh.PublicKey) error {
		hostname := addr
		if h, _, err := net.SplitHostPort(addr); err == nil {
			hostname = h
		}

		verr := c.policy.Verify(hostname, key, c.hostKeys.Lookup(hostname))
		result := "accepted"
		if verr != nil {
			result = "rejected"
			policyErr = verr
		}
		metrics.HostKeyVerifications.WithLabelValues(c.policy.Name(), result).Inc()
		return verr
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		metrics.ConnectionsTotal.WithLabelValues("transport_error").Inc()
		return nil, &TransportError{Err: err}
	}

	// Abort the handshake if the caller's context ends, releasing the
	// half-open connection.
	handshakeDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-handshakeDone:
		}
	}()

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, &ssh.ClientConfig{
		User:            username,
		Auth:            auths,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	})
	close(handshakeDone)
	if err != nil {
		conn.Close()
		return nil, c.mapHandshakeError(logger, err, policyErr, userKey)
	}

	logger.Debug().Str("user", username).Msg("connection established")
	metrics.ConnectionsTotal.WithLabelValues("success").Inc()

	return &Session{
		ssh:    ssh.NewClient(sshConn, chans, reqs),
		logger: logger,
	}, nil
}

func (c *Client) mapHandshakeError(logger zerolog.Logger, err, policyErr error, userKey *sshkey.KeyPair) error {
	if policyErr != nil {
		var changed *policy.HostKeyChangedError
		outcome := "unknown_host_key"
		if errors.As(policyErr, &changed) {
			outcome = "host_key_changed"
		}
		logger.Warn().Err(policyErr).Msg("host key rejected by policy")
		metrics.ConnectionsTotal.WithLabelValues(outcome).Inc()
		return policyErr
	}

	if methods, ok := parseAuthMethods(err); ok {
		authErr := &AuthenticationError{Methods: methods}
		if userKey != nil && containsMethod(methods, "publickey") {
			authErr.Key = userKey
		}
		logger.Warn().Strs("methods", methods).Msg("authentication failed")
		metrics.ConnectionsTotal.WithLabelValues("auth_failed").Inc()
		return authErr
	}

	logger.Warn().Err(err).Msg("handshake failed")
	metrics.ConnectionsTotal.WithLabelValues("transport_error").Inc()
	return &TransportError{Err: err}
}

// parseAuthMethods extracts the method list from the transport's
// "attempted methods [none publickey]" authentication failure report.
func parseAuthMethods(err error) ([]string, bool) {
	msg := err.Error()
	if !strings.Contains(msg, "unable to authenticate") {
		return nil, false
	}

	start := strings.Index(msg, "[")
	end := strings.Index(msg, "]")
	if start < 0 || end <= start {
		return nil, true
	}
	return strings.Fields(msg[start+1 : end]), true
}

func containsMethod(methods []string, method string) bool {
	for _, m := range methods {
		if m == method {
			return true
		}
	}
	return false
}

func currentUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "root"
}
