package ops

import (
	"github.com/rs/zerolog"

	"github.com/nicklasfrahm/remtar/pkg/engine"
	"github.com/nicklasfrahm/remtar/pkg/sshx"
)

const (
	// Program is used to configure the name of the configuration file.
	Program = "remtar"
	// DefaultConfigPath is read if present and no other path is given.
	DefaultConfigPath = Program + ".yml"
	// DefaultEnvFile is read if present and no other path is given.
	DefaultEnvFile = ".env"

	// EnvPassword is the environment variable holding the SSH password.
	EnvPassword = "REMTAR_PASSWORD"
	// EnvPassphrase is the environment variable holding the passphrase
	// of the private key.
	EnvPassphrase = "REMTAR_PASSPHRASE"
)

// Options contains the configuration for an operation.
type Options struct {
	ConfigPath    string
	EnvFile       string
	SSHConfigPath string
	// SSHConfigExplicit is set if the OpenSSH client configuration was
	// chosen by the caller. Only then is a broken file fatal.
	SSHConfigExplicit bool
	Overrides     *engine.Config
	Logger        *zerolog.Logger
	EngineOptions []engine.Option
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
	logger := zerolog.Nop()

	return &Options{
		Logger:        &logger,
		SSHConfigPath: sshx.DefaultSSHConfig,
		Overrides:     &engine.Config{},
	}
}

// WithConfigPath overrides the default configuration path.
// Unlike the default file, the file must exist.
func WithConfigPath(configPath string) Option {
	return func(options *Options) error {
		options.ConfigPath = configPath
		return nil
	}
}

// WithEnvFile loads secrets from a dotenv file. Unlike the
// default file, the file must exist.
func WithEnvFile(envFile string) Option {
	return func(options *Options) error {
		options.EnvFile = envFile
		return nil
	}
}

// WithSSHConfigPath sets the OpenSSH client configuration used to
// resolve host aliases. An empty path disables the lookup. Unlike
// the default file, the file must be parseable.
func WithSSHConfigPath(path string) Option {
	return func(options *Options) error {
		options.SSHConfigPath = path
		options.SSHConfigExplicit = true
		return nil
	}
}

// WithOverrides sets configuration values that take precedence over
// the environment and the configuration file.
func WithOverrides(config *engine.Config) Option {
	return func(options *Options) error {
		if config != nil {
			options.Overrides = config
		}
		return nil
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(options *Options) error {
		if logger != nil {
			options.Logger = logger
		}
		return nil
	}
}

// WithEngineOptions passes options through to the engine.
func WithEngineOptions(engineOptions ...engine.Option) Option {
	return func(options *Options) error {
		options.EngineOptions = append(options.EngineOptions, engineOptions...)
		return nil
	}
}
