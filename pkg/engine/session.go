package engine

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/nicklasfrahm/remtar/pkg/sshx"
)

// ErrNotConnected is returned by the remote stages if no
// session could be established.
var ErrNotConnected = errors.New("not connected")

// Session is a connection to the target host that carries
// file transfers and command executions.
type Session interface {
	// Upload writes a remote file with the given mode.
	Upload(remotePath string, r io.Reader, mode os.FileMode) error
	// Chmod changes the mode of a remote file.
	Chmod(remotePath string, mode os.FileMode) error
	// Do runs a command and waits for it to exit.
	Do(ctx context.Context, cmd sshx.Cmd) error
	// Close releases the session and all of its channels.
	Close() error
}

// Dialer establishes a session with the host of the configuration.
type Dialer func(config *Config, logger *zerolog.Logger) (Session, error)

// sshSession is a session to the target that may have been
// established through a proxy.
type sshSession struct {
	*sshx.Client

	proxy *sshx.Client
}

// Close closes the connection to the target before the one to the proxy.
func (s *sshSession) Close() error {
	err := s.Client.Close()
	if s.proxy != nil {
		err = errors.Join(err, s.proxy.Close())
	}
	return err
}

// DialSSH is the default Dialer. It connects to the proxy first,
// if one is configured, and tunnels the target connection through it.
func DialSSH(config *Config, logger *zerolog.Logger) (Session, error) {
	var proxy *sshx.Client
	if config.SSHProxy.Host != "" {
		var err error
		proxyLogger := logger.With().Str("proxy", config.SSHProxy.Host).Logger()
		proxy, err = sshx.NewClient(&config.SSHProxy,
			sshx.WithLogger(&proxyLogger),
			sshx.WithTimeout(config.ConnectTimeout),
		)
		if err != nil {
			return nil, err
		}
	}

	client, err := sshx.NewClient(&config.SSH,
		sshx.WithProxy(proxy),
		sshx.WithLogger(logger),
		sshx.WithTimeout(config.ConnectTimeout),
	)
	if err != nil {
		if proxy != nil {
			proxy.Close()
		}
		return nil, err
	}

	return &sshSession{Client: client, proxy: proxy}, nil
}
