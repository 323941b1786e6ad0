package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicklasfrahm/remtar/pkg/sshx"
)

const configFixture = `ssh:
  host: web
  port: 2222
  user: deploy
  key-file: ~/.ssh/deploy
  fingerprint: SHA256:abc
ssh-proxy:
  host: bastion
remote-dir: /opt/payload
upload-mode: "0600"
script-mode: "0750"
connect-timeout: 10s
exec-timeout: 5m
keep-going: true
`

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remtar.yml")
	require.NoError(t, os.WriteFile(path, []byte(configFixture), 0600))

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, sshx.Config{
		Host:        "web",
		Port:        2222,
		User:        "deploy",
		KeyFile:     "~/.ssh/deploy",
		Fingerprint: "SHA256:abc",
	}, config.SSH)
	assert.Equal(t, "bastion", config.SSHProxy.Host)
	assert.Equal(t, "/opt/payload", config.RemoteDir)
	assert.Equal(t, Mode(0600), config.UploadMode)
	assert.Equal(t, Mode(0750), config.ScriptMode)
	assert.Equal(t, 10*time.Second, config.ConnectTimeout)
	assert.Equal(t, 5*time.Minute, config.ExecTimeout)
	assert.True(t, config.KeepGoing)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "remtar.yml")
	require.NoError(t, os.WriteFile(path, []byte("script-mode: rwx\n"), 0600))
	_, err = LoadConfig(path)
	require.ErrorContains(t, err, "invalid file mode")
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "0777", want: 0777},
		{in: "755", want: 0755},
		{in: "0o644", want: 0644},
		{in: "0", wantErr: true},
		{in: "0000", wantErr: true},
		{in: "1777", wantErr: true},
		{in: "0999", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfigMergePrecedence(t *testing.T) {
	flags := &Config{
		SSH:       sshx.Config{Host: "10.0.0.5", User: "admin"},
		RemoteDir: "/srv",
	}
	file := &Config{
		SSH:        sshx.Config{Host: "ignored", User: "deploy", Port: 2222},
		RemoteDir:  "/opt",
		ScriptMode: 0750,
		KeepGoing:  true,
	}

	require.NoError(t, flags.Merge(file))
	flags.ApplyDefaults()

	assert.Equal(t, "10.0.0.5", flags.SSH.Host)
	assert.Equal(t, "admin", flags.SSH.User)
	assert.Equal(t, 2222, flags.SSH.Port)
	assert.Equal(t, "/srv", flags.RemoteDir)
	assert.Equal(t, Mode(0750), flags.ScriptMode)
	assert.Equal(t, DefaultUploadMode, flags.UploadMode)
	assert.Equal(t, DefaultConnectTimeout, flags.ConnectTimeout)
	assert.Equal(t, ".", flags.WorkDir)
	assert.True(t, flags.KeepGoing)

	require.NoError(t, flags.Merge(nil))
}

func TestConfigVerify(t *testing.T) {
	valid := func() *Config {
		config := &Config{SSH: sshx.Config{Host: "10.0.0.5"}}
		config.ApplyDefaults()
		return config
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "no host", mutate: func(c *Config) { c.SSH.Host = "" }, errMsg: "no host specified"},
		{name: "relative remote dir", mutate: func(c *Config) { c.RemoteDir = "home" }, errMsg: "remote directory must be absolute"},
		{name: "script not executable", mutate: func(c *Config) { c.ScriptMode = 0644 }, errMsg: "does not allow the owner to execute"},
		{name: "negative timeout", mutate: func(c *Config) { c.ExecTimeout = -time.Second }, errMsg: "must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid()
			tt.mutate(config)

			err := config.Verify()
			if tt.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.errMsg)
		})
	}

	var nilConfig *Config
	require.EqualError(t, nilConfig.Verify(), "configuration empty")
}
