package engine

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// Options contains the configuration for an engine.
type Options struct {
	Logger *zerolog.Logger
	Dialer Dialer
	Fs     afero.Fs
	Stdout io.Writer
	Stderr io.Writer
}

// Option applies a configuration option
// for the execution of an operation.
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
// for all operations of this library.
func GetDefaultOptions() *Options {
	logger := log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	})

	return &Options{
		Logger: &logger,
		Dialer: DialSSH,
		Fs:     afero.NewOsFs(),
		Stdout: os.Stdout,
		Stderr: os.Stderr,
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

// WithDialer replaces the way sessions are established.
func WithDialer(dialer Dialer) Option {
	return func(options *Options) error {
		options.Dialer = dialer
		return nil
	}
}

// WithFs sets the local filesystem that the archive is read
// from and unpacked to.
func WithFs(fs afero.Fs) Option {
	return func(options *Options) error {
		options.Fs = fs
		return nil
	}
}

// WithOutput redirects the output of the install script.
func WithOutput(stdout io.Writer, stderr io.Writer) Option {
	return func(options *Options) error {
		options.Stdout = stdout
		options.Stderr = stderr
		return nil
	}
}
