package sshx

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Options contains the configuration for a connection.
type Options struct {
	Logger      *zerolog.Logger
	Proxy       *Client
	Timeout     time.Duration
	AgentSocket string
}

// Option applies a configuration option
// for the establishment of a connection.
type Option func(options *Options) error

// Apply applies the option functions to the current set of options.
func (o *Options) Apply(options ...Option) (*Options, error) {
	for _, option := range options {
		if err := option(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// GetDefaultOptions returns the default options
// for all connections of this library.
func GetDefaultOptions() *Options {
	logger := zerolog.Nop()

	return &Options{
		Proxy:       nil,
		Timeout:     time.Second * 5,
		Logger:      &logger,
		AgentSocket: os.Getenv("SSH_AUTH_SOCK"),
	}
}

// WithLogger allows to use a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(options *Options) error {
		if logger != nil {
			options.Logger = logger
		}
		return nil
	}
}

// WithProxy allows to use an existing SSH
// connection as an SSH bastion host.
func WithProxy(proxy *Client) Option {
	return func(options *Options) error {
		options.Proxy = proxy
		return nil
	}
}

// WithTimeout sets the timeout for establishing
// the connection.
func WithTimeout(timeout time.Duration) Option {
	return func(options *Options) error {
		if timeout > 0 {
			options.Timeout = timeout
		}
		return nil
	}
}

// WithAgentSocket overrides the socket of the SSH agent,
// which defaults to $SSH_AUTH_SOCK.
func WithAgentSocket(socket string) Option {
	return func(options *Options) error {
		options.AgentSocket = socket
		return nil
	}
}
