package sshx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sshConfigFixture = `
Host web
  HostName 10.0.0.5
  User deploy
  Port 2222
  IdentityFile /keys/web

Host db
  HostName db.internal
`

func TestResolveAlias(t *testing.T) {
	t.Run("fills unset fields", func(t *testing.T) {
		config := &Config{Host: "web"}
		require.NoError(t, ResolveAlias(config, strings.NewReader(sshConfigFixture)))

		assert.Equal(t, "10.0.0.5", config.Host)
		assert.Equal(t, "deploy", config.User)
		assert.Equal(t, 2222, config.Port)
		assert.Equal(t, "/keys/web", config.KeyFile)
	})

	t.Run("explicit values win", func(t *testing.T) {
		config := &Config{Host: "web", User: "admin", Port: 22, Key: "inline"}
		require.NoError(t, ResolveAlias(config, strings.NewReader(sshConfigFixture)))

		assert.Equal(t, "10.0.0.5", config.Host)
		assert.Equal(t, "admin", config.User)
		assert.Equal(t, 22, config.Port)
		assert.Empty(t, config.KeyFile)
	})

	t.Run("unknown alias is untouched", func(t *testing.T) {
		config := &Config{Host: "10.0.0.7"}
		require.NoError(t, ResolveAlias(config, strings.NewReader(sshConfigFixture)))

		assert.Equal(t, &Config{Host: "10.0.0.7"}, config)
	})

	t.Run("partial entry", func(t *testing.T) {
		config := &Config{Host: "db"}
		require.NoError(t, ResolveAlias(config, strings.NewReader(sshConfigFixture)))

		assert.Equal(t, "db.internal", config.Host)
		assert.Empty(t, config.User)
		assert.Zero(t, config.Port)
	})
}

func TestLoadAlias(t *testing.T) {
	config := &Config{Host: "web"}
	require.NoError(t, LoadAlias(config, filepath.Join(t.TempDir(), "missing")))
	assert.Equal(t, "web", config.Host)

	path := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(path, []byte(sshConfigFixture), 0600))
	require.NoError(t, LoadAlias(config, path))
	assert.Equal(t, "10.0.0.5", config.Host)
}
