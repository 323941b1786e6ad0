package sshx

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

const (
	// DefaultPort is the standard SSH port.
	DefaultPort = 22
	// DefaultUser is the account used if none is configured.
	DefaultUser = "root"
	// DefaultKnownHosts is the file used for host key verification
	// if neither a fingerprint nor a custom file is configured.
	DefaultKnownHosts = "~/.ssh/known_hosts"
)

// Config is a flat configuration for an SSH connection.
type Config struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	KeyFile     string `yaml:"key-file"`
	Key         string `yaml:"key"`
	Passphrase  string `yaml:"passphrase"`
	Fingerprint string `yaml:"fingerprint"`
	KnownHosts  string `yaml:"known-hosts"`
	Insecure    bool   `yaml:"insecure"`
	Agent       bool   `yaml:"agent"`
}

// Address returns the host and port in a form that can be dialed.
func (config *Config) Address() string {
	return net.JoinHostPort(config.Host, fmt.Sprint(config.Port))
}

// Client is an SSH connection together with the SFTP
// channel that was opened on top of it.
type Client struct {
	*Options
	*ssh.Client

	sftp      *sftp.Client
	agentConn net.Conn
	closed    bool
}

// NewClient connects to the host described by the SSH
// configuration and opens an SFTP channel on the connection.
func NewClient(config *Config, options ...Option) (*Client, error) {
	opts, err := GetDefaultOptions().Apply(options...)
	if err != nil {
		return nil, err
	}

	client := &Client{
		Options: opts,
	}

	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.User == "" {
		config.User = DefaultUser
	}

	normalizedConfig, err := client.normalizeConfig(config)
	if err != nil {
		client.Close()
		return nil, err
	}
	address := config.Address()

	if client.Proxy != nil {
		// Create a TCP connection from the proxy host to the target.
		netConn, err := client.Proxy.Client.Dial("tcp", address)
		if err != nil {
			client.Close()
			return nil, err
		}

		targetConn, channel, req, err := ssh.NewClientConn(netConn, address, normalizedConfig)
		if err != nil {
			netConn.Close()
			client.Close()
			return nil, err
		}

		client.Client = ssh.NewClient(targetConn, channel, req)
	} else {
		if client.Client, err = ssh.Dial("tcp", address, normalizedConfig); err != nil {
			client.Close()
			return nil, err
		}
	}

	client.Logger.Info().Str("address", address).Msg("Connection established")

	if client.sftp, err = sftp.NewClient(client.Client); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to open sftp channel: %w", err)
	}

	return client, nil
}

// Close releases the SFTP channel and the SSH connection. It is
// safe to call Close more than once.
func (client *Client) Close() error {
	if client.closed {
		return nil
	}
	client.closed = true

	var errs []error
	if client.sftp != nil {
		if err := client.sftp.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close sftp channel: %w", err))
		}
	}
	if client.Client != nil {
		if err := client.Client.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
		}
	}
	if client.agentConn != nil {
		client.agentConn.Close()
	}

	return errors.Join(errs...)
}

// normalizeConfig creates a new client config that is compatible with the standard library.
func (client *Client) normalizeConfig(config *Config) (*ssh.ClientConfig, error) {
	authMethods, err := client.authMethods(config)
	if err != nil {
		return nil, err
	}

	hostKeyCallback, err := client.hostKeyCallback(config)
	if err != nil {
		return nil, err
	}

	return &ssh.ClientConfig{
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		User:            config.User,
		Timeout:         client.Timeout,
	}, nil
}

// authMethods collects all configured authentication methods.
// Keys are offered first, followed by the agent and finally
// the password.
func (client *Client) authMethods(config *Config) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	// A key that is specified directly takes precedence over a key file.
	key := config.Key
	if key == "" && config.KeyFile != "" {
		keyFile, err := expandHome(config.KeyFile)
		if err != nil {
			return nil, err
		}

		keyBytes, err := os.ReadFile(keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file: %w", err)
		}
		key = string(keyBytes)
	}

	if key != "" {
		signer, err := parseKey([]byte(key), config.Passphrase)
		if err != nil {
			return nil, err
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if config.Agent {
		if client.AgentSocket == "" {
			client.Logger.Warn().Msg("SSH agent requested but no agent socket is available")
		} else {
			conn, err := net.Dial("unix", client.AgentSocket)
			if err != nil {
				return nil, fmt.Errorf("failed to connect to ssh agent: %w", err)
			}
			client.agentConn = conn
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	if config.Password != "" {
		methods = append(methods, ssh.Password(config.Password))
		if len(methods) == 1 {
			client.Logger.Warn().Msg("Using password authentication is insecure!")
			client.Logger.Warn().Msg("Please consider using public key authentication!")
		}
	}

	if len(methods) == 0 {
		return nil, errors.New("no authentication method specified")
	}

	return methods, nil
}

// hostKeyCallback selects how the identity of the host is verified.
// A pinned fingerprint wins over the known hosts file. Verification
// is only skipped if this was explicitly requested.
func (client *Client) hostKeyCallback(config *Config) (ssh.HostKeyCallback, error) {
	if config.Fingerprint != "" {
		return FingerprintCallback(config.Fingerprint), nil
	}

	if config.Insecure {
		client.Logger.Warn().Msg("Skipping host key verification is insecure!")
		client.Logger.Warn().Msg("This allows for person-in-the-middle attacks!")
		client.Logger.Warn().Msg("Please consider using fingerprint verification!")
		return ssh.InsecureIgnoreHostKey(), nil
	}

	knownHostsFile := config.KnownHosts
	if knownHostsFile == "" {
		knownHostsFile = DefaultKnownHosts
	}
	knownHostsFile, err := expandHome(knownHostsFile)
	if err != nil {
		return nil, err
	}

	callback, err := knownhosts.New(knownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load known hosts: %w", err)
	}

	return callback, nil
}

// FingerprintCallback accepts only host keys whose SHA256
// fingerprint matches the expected one.
func FingerprintCallback(expected string) ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, pubKey ssh.PublicKey) error {
		fingerprint := ssh.FingerprintSHA256(pubKey)
		if expected != fingerprint {
			return fmt.Errorf("fingerprint mismatch: server fingerprint: %s", fingerprint)
		}
		return nil
	}
}

func parseKey(key []byte, passphrase string) (ssh.Signer, error) {
	if passphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase(key, []byte(passphrase))
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, errors.New("private key is encrypted but no passphrase was given")
		}
		return nil, err
	}

	return signer, nil
}

// expandHome resolves a leading tilde to the home directory of
// the current user.
func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}

	userInfo, err := user.Current()
	if err != nil {
		return "", err
	}

	return filepath.Join(userInfo.HomeDir, path[1:]), nil
}
