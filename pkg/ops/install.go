package ops

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"github.com/nicklasfrahm/remtar/pkg/engine"
	"github.com/nicklasfrahm/remtar/pkg/sshx"
)

// Install copies the archive and the install script it contains
// to the host and runs the script there.
func Install(ctx context.Context, host string, archivePath string, script string, options ...Option) error {
	// Fetch the options for this operation.
	opts, err := GetDefaultOptions().Apply(options...)
	if err != nil {
		return err
	}

	config, err := ResolveConfig(host, opts)
	if err != nil {
		return err
	}

	engineOptions := append([]engine.Option{engine.WithLogger(opts.Logger)}, opts.EngineOptions...)
	eng, err := engine.New(engineOptions...)
	if err != nil {
		return err
	}

	if err := eng.SetSpec(config); err != nil {
		return err
	}

	report, err := eng.Run(ctx, archivePath, script)
	if report != nil {
		report.Log(eng.Logger)
	}
	if err != nil {
		return fmt.Errorf("installation failed: %w", err)
	}

	eng.Logger.Info().Str("host", config.SSH.Host).Msg("Installation complete")

	return nil
}

// ResolveConfig builds the configuration for a run. Values are taken
// from the overrides first, then from the environment, then from the
// configuration file and finally from the OpenSSH client config.
func ResolveConfig(host string, opts *Options) (*engine.Config, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	config := *opts.Overrides
	config.SSH.Host = host

	if config.SSH.Password == "" {
		config.SSH.Password = os.Getenv(EnvPassword)
	}
	if config.SSH.Passphrase == "" {
		config.SSH.Passphrase = os.Getenv(EnvPassphrase)
	}

	fileConfig, err := loadConfigFile(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := config.Merge(fileConfig); err != nil {
		return nil, err
	}

	if opts.SSHConfigPath != "" {
		if err := loadAliases(&config, opts); err != nil {
			if opts.SSHConfigExplicit {
				return nil, err
			}
			opts.Logger.Warn().Err(err).Str("path", opts.SSHConfigPath).Msg("Ignoring ssh config")
		}
	}

	config.ApplyDefaults()

	return &config, nil
}

// loadAliases resolves the target and the proxy host against the
// OpenSSH client configuration. Both are left untouched on failure.
func loadAliases(config *engine.Config, opts *Options) error {
	target, proxy := config.SSH, config.SSHProxy

	if err := sshx.LoadAlias(&target, opts.SSHConfigPath); err != nil {
		return err
	}
	if proxy.Host != "" {
		if err := sshx.LoadAlias(&proxy, opts.SSHConfigPath); err != nil {
			return err
		}
	}

	config.SSH, config.SSHProxy = target, proxy

	return nil
}

// loadConfigFile loads the configuration file at path or, if
// path is empty, the default file if it exists.
func loadConfigFile(path string) (*engine.Config, error) {
	if path != "" {
		return engine.LoadConfig(path)
	}

	config, err := engine.LoadConfig(DefaultConfigPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	return config, err
}

// loadEnvFile loads the dotenv file at path or, if path is empty,
// the default file if it exists. Variables that are already set
// in the environment are not overwritten.
func loadEnvFile(path string) error {
	if path != "" {
		return godotenv.Load(path)
	}

	if err := godotenv.Load(DefaultEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	return nil
}
