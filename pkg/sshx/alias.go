package sshx

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/kevinburke/ssh_config"
)

// DefaultSSHConfig is the OpenSSH client configuration
// consulted for host aliases.
const DefaultSSHConfig = "~/.ssh/config"

// LoadAlias resolves the host of the configuration against the
// OpenSSH client configuration at path. A missing file is not an
// error.
func LoadAlias(config *Config, path string) error {
	path, err := expandHome(path)
	if err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	return ResolveAlias(config, file)
}

// ResolveAlias treats the configured host as an alias and fills in
// the hostname, user, port and identity file from an OpenSSH client
// configuration. Values that are already set are left alone.
func ResolveAlias(config *Config, r io.Reader) error {
	sshConfig, err := ssh_config.Decode(r)
	if err != nil {
		return fmt.Errorf("failed to parse ssh config: %w", err)
	}

	alias := config.Host

	if hostName, _ := sshConfig.Get(alias, "HostName"); hostName != "" {
		config.Host = hostName
	}

	if config.User == "" {
		config.User, _ = sshConfig.Get(alias, "User")
	}

	if config.Port == 0 {
		if port, _ := sshConfig.Get(alias, "Port"); port != "" {
			if config.Port, err = strconv.Atoi(port); err != nil {
				return fmt.Errorf("invalid port for %s: %s", alias, port)
			}
		}
	}

	if config.KeyFile == "" && config.Key == "" {
		config.KeyFile, _ = sshConfig.Get(alias, "IdentityFile")
	}

	return nil
}
