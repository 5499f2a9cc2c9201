package client

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

// Session is an open, authenticated SSH connection.
type Session struct {
	ssh    *ssh.Client
	logger zerolog.Logger
}

// Run executes a command on the remote host with the given streams. The
// remote exit status is returned as an *ssh.ExitError.
func (s *Session) Run(cmd string, stdin io.Reader, stdout, stderr io.Writer) error {
	sess, err := s.ssh.NewSession()
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer sess.Close()

	sess.Stdin = stdin
	sess.Stdout = stdout
	sess.Stderr = stderr

	s.logger.Debug().Str("cmd", cmd).Msg("executing remote command")
	return sess.Run(cmd)
}

// Shell starts an interactive shell with a pty on the remote host,
// returning when the shell exits.
func (s *Session) Shell(stdin io.Reader, stdout, stderr io.Writer) error {
	sess, err := s.ssh.NewSession()
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer sess.Close()

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := sess.RequestPty("xterm", 40, 80, modes); err != nil {
		return fmt.Errorf("request pty: %w", err)
	}

	sess.Stdin = stdin
	sess.Stdout = stdout
	sess.Stderr = stderr

	if err := sess.Shell(); err != nil {
		return fmt.Errorf("start shell: %w", err)
	}
	return sess.Wait()
}

// Close tears down the underlying connection.
func (s *Session) Close() error {
	return s.ssh.Close()
}
