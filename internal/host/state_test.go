package host

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validState() *State {
	return &State{
		PID:        os.Getpid(),
		Port:       5757,
		Host:       "127.0.0.1",
		StartedAt:  time.Now().Truncate(time.Second),
		ConfigFile: "/etc/sidecar/sidecar.yaml",
		Version:    "1.2.3",
	}
}

func TestState_WriteAndLoad(t *testing.T) {
	dir := t.TempDir()
	state := validState()

	require.NoError(t, state.Write(dir))

	info, err := os.Stat(StatePath(dir))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadState(dir)
	require.NoError(t, err)
	assert.Equal(t, state.PID, loaded.PID)
	assert.Equal(t, state.Port, loaded.Port)
	assert.Equal(t, state.Host, loaded.Host)
	assert.True(t, state.StartedAt.Equal(loaded.StartedAt))
	assert.Equal(t, state.ConfigFile, loaded.ConfigFile)
	assert.Equal(t, state.Version, loaded.Version)

	// No temp files left behind
	entries, err := os.ReadDir(StateDir(dir))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestState_WriteValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*State)
	}{
		{"zero pid", func(s *State) { s.PID = 0 }},
		{"zero port", func(s *State) { s.Port = 0 }},
		{"port too high", func(s *State) { s.Port = 70000 }},
		{"empty host", func(s *State) { s.Host = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := validState()
			tt.mutate(state)
			assert.Error(t, state.Write(t.TempDir()))
		})
	}
}

func TestState_URL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:6000", (&State{Host: "0.0.0.0", Port: 6000}).URL())
	assert.Equal(t, "http://10.0.0.5:6000", (&State{Host: "10.0.0.5", Port: 6000}).URL())
}

func TestLoadState_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadState(dir)
	assert.ErrorIs(t, err, ErrStateNotFound)

	require.NoError(t, EnsureStateDir(dir))
	require.NoError(t, os.WriteFile(StatePath(dir), []byte("{"), 0600))
	_, err = LoadState(dir)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrStateNotFound)
}

func TestPaths(t *testing.T) {
	dir := "/srv/robot"
	assert.Equal(t, filepath.Join(dir, ".sidecar"), StateDir(dir))
	assert.Equal(t, filepath.Join(dir, ".sidecar", "sidecar.state"), StatePath(dir))
	assert.Equal(t, filepath.Join(dir, ".sidecar", "sidecar.pid"), PIDPath(dir))
	assert.Equal(t, filepath.Join(dir, ".sidecar", "sidecar.log"), LogPath(dir))

	t.Chdir(t.TempDir())
	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, ".sidecar"), StateDir(""))
}

func TestCleanupStateDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, validState().Write(dir))
	require.NoError(t, os.WriteFile(PIDPath(dir), []byte("1\n"), 0600))
	require.NoError(t, os.WriteFile(LogPath(dir), []byte("log\n"), 0600))

	require.NoError(t, CleanupStateDir(dir))

	_, err := os.Stat(StatePath(dir))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(PIDPath(dir))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(LogPath(dir))
	assert.NoError(t, err, "log file is kept")
}

func TestIsRunningAndGetRunningState(t *testing.T) {
	t.Run("nothing there", func(t *testing.T) {
		dir := t.TempDir()
		assert.False(t, IsRunning(dir))
		_, err := GetRunningState(dir)
		assert.ErrorIs(t, err, ErrNotRunning)
	})

	t.Run("locked pid file", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, EnsureStateDir(dir))
		pf, err := AcquirePIDFile(PIDPath(dir))
		require.NoError(t, err)
		defer pf.Release()
		require.NoError(t, validState().Write(dir))

		assert.True(t, IsRunning(dir))
		state, err := GetRunningState(dir)
		require.NoError(t, err)
		assert.Equal(t, 5757, state.Port)
	})

	t.Run("stale state", func(t *testing.T) {
		dir := t.TempDir()
		state := validState()
		state.PID = 99999999
		require.NoError(t, state.Write(dir))

		assert.False(t, IsRunning(dir))
	})
}

func TestCleanupStaleFiles(t *testing.T) {
	t.Run("no state", func(t *testing.T) {
		assert.NoError(t, CleanupStaleFiles(t.TempDir()))
	})

	t.Run("dead process", func(t *testing.T) {
		dir := t.TempDir()
		state := validState()
		state.PID = 99999999
		require.NoError(t, state.Write(dir))
		require.NoError(t, os.WriteFile(PIDPath(dir), []byte("99999999\n"), 0600))

		require.NoError(t, CleanupStaleFiles(dir))
		_, err := LoadState(dir)
		assert.ErrorIs(t, err, ErrStateNotFound)
	})

	t.Run("corrupt state", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, EnsureStateDir(dir))
		require.NoError(t, os.WriteFile(StatePath(dir), []byte("garbage"), 0600))

		require.NoError(t, CleanupStaleFiles(dir))
		_, err := LoadState(dir)
		assert.ErrorIs(t, err, ErrStateNotFound)
	})

	t.Run("live host", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, EnsureStateDir(dir))
		pf, err := AcquirePIDFile(PIDPath(dir))
		require.NoError(t, err)
		defer pf.Release()

		assert.ErrorIs(t, CleanupStaleFiles(dir), ErrAlreadyRunning)
	})
}
