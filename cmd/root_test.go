package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicklasfrahm/remtar/pkg/engine"
	"github.com/nicklasfrahm/remtar/pkg/ops"
)

type installCall struct {
	host    string
	archive string
	script  string
	options *ops.Options
}

func newTestCmd(t *testing.T, err error) (*installCall, *bytes.Buffer, func(args ...string) error) {
	t.Helper()

	call := &installCall{}
	install := func(ctx context.Context, host string, archivePath string, script string, options ...ops.Option) error {
		opts, applyErr := ops.GetDefaultOptions().Apply(options...)
		require.NoError(t, applyErr)

		*call = installCall{host: host, archive: archivePath, script: script, options: opts}
		return err
	}

	stdout := new(bytes.Buffer)
	execute := func(args ...string) error {
		cmd := newRootCmd(install)
		cmd.SetOut(stdout)
		cmd.SetErr(io.Discard)
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	return call, stdout, execute
}

func TestRootCmdArgumentCount(t *testing.T) {
	tests := [][]string{
		{},
		{"10.0.0.5"},
		{"10.0.0.5", "payload.tar.gz"},
		{"10.0.0.5", "payload.tar.gz", "install.sh", "extra"},
	}

	for _, args := range tests {
		call, stdout, execute := newTestCmd(t, nil)

		err := execute(args...)
		require.ErrorIs(t, err, errUsage, "args: %v", args)
		assert.Contains(t, stdout.String(), "Usage:")
		assert.Contains(t, stdout.String(), "<host> <archive.tar.gz> <install-script>")
		assert.Empty(t, call.host, "install must not run for args: %v", args)
	}
}

func TestRootCmdInstall(t *testing.T) {
	call, _, execute := newTestCmd(t, nil)

	err := execute(
		"10.0.0.5", "payload.tar.gz", "install.sh",
		"--user", "deploy",
		"--port", "2222",
		"--fingerprint", "SHA256:abc",
		"--remote-dir", "/opt",
		"--script-mode", "0755",
		"--timeout", "1m",
		"--keep-going",
		"--config", "custom.yml",
		"--ssh-config", "",
	)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5", call.host)
	assert.Equal(t, "payload.tar.gz", call.archive)
	assert.Equal(t, "install.sh", call.script)

	opts := call.options
	assert.Equal(t, "custom.yml", opts.ConfigPath)
	assert.Empty(t, opts.SSHConfigPath)
	assert.True(t, opts.SSHConfigExplicit)
	assert.Equal(t, "deploy", opts.Overrides.SSH.User)
	assert.Equal(t, 2222, opts.Overrides.SSH.Port)
	assert.Equal(t, "SHA256:abc", opts.Overrides.SSH.Fingerprint)
	assert.Equal(t, "/opt", opts.Overrides.RemoteDir)
	assert.Equal(t, engine.Mode(0755), opts.Overrides.ScriptMode)
	assert.Equal(t, time.Minute, opts.Overrides.ExecTimeout)
	assert.True(t, opts.Overrides.KeepGoing)
	assert.False(t, opts.Overrides.SSH.Insecure)
	assert.NotNil(t, opts.Logger)
}

func TestRootCmdDefaults(t *testing.T) {
	call, _, execute := newTestCmd(t, nil)

	require.NoError(t, execute("10.0.0.5", "payload.tar.gz", "install.sh"))

	assert.Empty(t, call.options.ConfigPath)
	assert.Empty(t, call.options.EnvFile)
	assert.Equal(t, "~/.ssh/config", call.options.SSHConfigPath)
	assert.False(t, call.options.SSHConfigExplicit)
	assert.Zero(t, call.options.Overrides.ScriptMode)
}

func TestRootCmdInvalidScriptMode(t *testing.T) {
	call, _, execute := newTestCmd(t, nil)

	for _, mode := range []string{"rwx", "0"} {
		err := execute("10.0.0.5", "payload.tar.gz", "install.sh", "--script-mode", mode)
		require.ErrorContains(t, err, "invalid file mode")
		assert.Empty(t, call.host)
	}
}

func TestRootCmdInstallError(t *testing.T) {
	_, _, execute := newTestCmd(t, errors.New("installation failed"))

	err := execute("10.0.0.5", "payload.tar.gz", "install.sh")
	require.EqualError(t, err, "installation failed")
}
