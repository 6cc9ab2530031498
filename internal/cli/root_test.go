package cli

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charliek/sidecar/internal/constants"
	"github.com/charliek/sidecar/internal/host"
)

func writeConfig(t *testing.T, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile("sidecar.yaml", []byte(content), 0600))
}

func TestDiscoverAPIAddress(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		app, _, _ := newTestApp(t)
		addr, token := app.discoverAPIAddress()
		assert.Equal(t, constants.DefaultAPIAddress, addr)
		assert.Empty(t, token)
	})

	t.Run("config file", func(t *testing.T) {
		app, _, _ := newTestApp(t)
		writeConfig(t, "api:\n  host: 0.0.0.0\n  port: 6001\n  token: abc\n")

		addr, token := app.discoverAPIAddress()
		assert.Equal(t, "http://127.0.0.1:6001", addr)
		assert.Equal(t, "abc", token)
	})

	t.Run("state file wins over config", func(t *testing.T) {
		app, _, _ := newTestApp(t)
		writeConfig(t, "api:\n  port: 6001\n")
		dir, err := os.Getwd()
		require.NoError(t, err)
		require.NoError(t, host.EnsureStateDir(dir))
		state := &host.State{PID: os.Getpid(), Port: 6123, Host: "127.0.0.1"}
		require.NoError(t, state.Write(dir))

		addr, _ := app.discoverAPIAddress()
		assert.Equal(t, "http://127.0.0.1:6123", addr)
	})

	t.Run("explicit addr wins", func(t *testing.T) {
		app, _, _ := newTestApp(t)
		writeConfig(t, "api:\n  port: 6001\n  token: abc\n")
		app.apiAddr = "http://10.0.0.5:7000"
		app.apiAddrExplicitlySet = true

		addr, token := app.discoverAPIAddress()
		assert.Equal(t, "http://10.0.0.5:7000", addr)
		assert.Equal(t, "abc", token)
	})

	t.Run("invalid config falls back to default", func(t *testing.T) {
		app, _, _ := newTestApp(t)
		writeConfig(t, "daemon:\n  port: 0\n  signature: \"  \"\n")

		addr, _ := app.discoverAPIAddress()
		assert.Equal(t, constants.DefaultAPIAddress, addr)
	})
}

func TestLoadConfig_ExplicitPath(t *testing.T) {
	app, _, _ := newTestApp(t)
	require.NoError(t, os.WriteFile("other.yaml", []byte("daemon:\n  port: 9100\n"), 0600))
	app.configPath = "other.yaml"

	cfg, path, err := app.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Daemon.Port)
	assert.True(t, len(path) > len("other.yaml"))
}

func TestLoadConfig_MissingExplicitPath(t *testing.T) {
	app, _, _ := newTestApp(t)
	app.configPath = "missing.yaml"

	_, _, err := app.loadConfig()
	assert.Error(t, err)
}

func TestRun_Version(t *testing.T) {
	app, stdout, _ := newTestApp(t)

	code := app.Run([]string{"sidecar", "version"})
	assert.Equal(t, 0, code)
	assert.Equal(t, "sidecar version dev\n", stdout.String())
}

func TestRun_UnknownCommand(t *testing.T) {
	app, _, stderr := newTestApp(t)

	code := app.Run([]string{"sidecar", "bogus"})
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "Error:")
}
