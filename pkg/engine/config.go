package engine

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/nicklasfrahm/remtar/pkg/sshx"
)

const (
	// DefaultRemoteDir is the directory on the host that receives
	// the archive and the install script.
	DefaultRemoteDir = "/home"
	// DefaultUploadMode is requested for every uploaded file.
	DefaultUploadMode Mode = 0644
	// DefaultScriptMode is applied to the script before it runs.
	DefaultScriptMode Mode = 0777
	// DefaultConnectTimeout limits how long establishing the
	// SSH connection may take.
	DefaultConnectTimeout = 5 * time.Second
)

// Mode is a file mode that is written as an octal string in
// configuration files, for example "0755".
type Mode os.FileMode

// ParseMode parses an octal permission string.
func ParseMode(s string) (Mode, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0o"), "0O")

	value, err := strconv.ParseUint(s, 8, 32)
	// Zero is reserved for unset modes, which are filled with defaults.
	if err != nil || value == 0 || value > 0777 {
		return 0, fmt.Errorf("invalid file mode: %q", s)
	}

	return Mode(value), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (m *Mode) UnmarshalYAML(value *yaml.Node) error {
	mode, err := ParseMode(value.Value)
	if err != nil {
		return err
	}

	*m = mode
	return nil
}

func (m Mode) String() string {
	return fmt.Sprintf("%04o", uint32(m))
}

// Config describes a single installation run. It is usually
// loaded from a YAML file and completed by command line flags.
type Config struct {
	// SSH describes the connection to the target host.
	SSH sshx.Config `yaml:"ssh"`

	// SSHProxy describes the SSH connection configuration
	// for an SSH proxy, often also referred to as bastion
	// host or jumpbox.
	SSHProxy sshx.Config `yaml:"ssh-proxy"`

	// RemoteDir is the directory that the files are uploaded to.
	RemoteDir string `yaml:"remote-dir"`

	// WorkDir is the local directory the archive is unpacked in.
	WorkDir string `yaml:"work-dir"`

	UploadMode Mode `yaml:"upload-mode"`
	ScriptMode Mode `yaml:"script-mode"`

	ConnectTimeout time.Duration `yaml:"connect-timeout"`
	// ExecTimeout limits the runtime of the install script.
	// Zero means no limit.
	ExecTimeout time.Duration `yaml:"exec-timeout"`

	// KeepGoing runs all stages even if an earlier one failed.
	KeepGoing bool `yaml:"keep-going"`

	// KeepExtracted skips the removal of the unpacked archive.
	KeepExtracted bool `yaml:"keep-extracted"`
}

// LoadConfig reads and parses a configuration file.
func LoadConfig(configFile string) (*Config, error) {
	configBytes, err := os.ReadFile(configFile)
	if err != nil {
		return nil, err
	}

	// Parse YAML config into struct.
	config := new(Config)
	if err := yaml.Unmarshal(configBytes, config); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", configFile, err)
	}

	return config, nil
}

// Merge fills all fields that are unset in the configuration with
// the values of the other configuration. Zero values count as unset,
// so a boolean that is enabled by either side stays enabled.
func (c *Config) Merge(other *Config) error {
	if other == nil {
		return nil
	}

	return mergo.Merge(c, other)
}

// ApplyDefaults fills all fields that are still unset with
// the defaults.
func (c *Config) ApplyDefaults() {
	// The error can be ignored as both sides share the same type.
	_ = c.Merge(&Config{
		RemoteDir:      DefaultRemoteDir,
		WorkDir:        ".",
		UploadMode:     DefaultUploadMode,
		ScriptMode:     DefaultScriptMode,
		ConnectTimeout: DefaultConnectTimeout,
	})
}

// Verify verifies the configuration.
func (c *Config) Verify() error {
	if c == nil {
		return errors.New("configuration empty")
	}

	if c.SSH.Host == "" {
		return errors.New("no host specified")
	}

	if !path.IsAbs(c.RemoteDir) {
		return fmt.Errorf("remote directory must be absolute: %q", c.RemoteDir)
	}

	if c.ScriptMode&0100 == 0 {
		return fmt.Errorf("script mode %s does not allow the owner to execute the script", c.ScriptMode)
	}

	if c.ConnectTimeout < 0 || c.ExecTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}

	return nil
}
