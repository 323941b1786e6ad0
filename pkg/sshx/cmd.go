package sshx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/alessio/shellescape"
	"golang.org/x/crypto/ssh"
)

// Cmd describes a command to be executed on the remote host.
type Cmd struct {
	Path   string
	Args   []string
	Env    map[string]string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// String compiles the command line that is sent to the remote
// host. Every word is quoted for a POSIX shell and environment
// variables are injected via env(1) in a stable order.
func (c *Cmd) String() string {
	words := append([]string{c.Path}, c.Args...)
	cmd := shellescape.QuoteCommand(words)

	if len(c.Env) == 0 {
		return cmd
	}

	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	vars := make([]string, 0, len(keys))
	for _, k := range keys {
		vars = append(vars, shellescape.Quote(k+"="+c.Env[k]))
	}

	return fmt.Sprintf("env %s %s", strings.Join(vars, " "), cmd)
}

// ExitError is returned if a remote command finished with a
// non-zero exit status.
type ExitError struct {
	Cmd    string
	Status int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command %s exited with status %d", e.Cmd, e.Status)
}

// Do runs the command in a new session on the connection and
// blocks until it exits. If the context is cancelled first, the
// session is closed and the context error is returned.
func (client *Client) Do(ctx context.Context, cmd Cmd) error {
	if client.Client == nil || client.closed {
		return errors.New("connection closed")
	}

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close()

	session.Stdin = cmd.Stdin
	session.Stdout = cmd.Stdout
	session.Stderr = cmd.Stderr

	line := cmd.String()
	client.Logger.Debug().Str("cmd", line).Msg("Running command")

	done := make(chan error, 1)
	go func() {
		done <- session.Run(line)
	}()

	select {
	case err := <-done:
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{Cmd: cmd.Path, Status: exitErr.ExitStatus()}
		}
		return err
	case <-ctx.Done():
		session.Signal(ssh.SIGTERM)
		session.Close()
		return ctx.Err()
	}
}
