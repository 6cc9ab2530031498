package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Handler: func() error { return nil }})
	assert.Error(t, err)

	_, err = New(Config{ConfigPath: "sidecar.yaml"})
	assert.Error(t, err)
}

func TestNew_Defaults(t *testing.T) {
	w, err := New(Config{ConfigPath: "sidecar.yaml", Handler: func() error { return nil }})
	require.NoError(t, err)
	defer w.Stop()

	assert.True(t, filepath.IsAbs(w.configPath))
	assert.Equal(t, time.Second, w.debounce)
	assert.NotNil(t, w.logger)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sidecar.yaml")
	writeConfig(t, path, "api:\n  port: 5757\n")

	var reloads atomic.Int32
	w, err := New(Config{
		ConfigPath: path,
		Handler: func() error {
			reloads.Add(1)
			return nil
		},
		Debounce: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	// a sibling file is ignored
	writeConfig(t, filepath.Join(dir, "other.yaml"), "x: 1\n")
	writeConfig(t, path, "api:\n  port: 5758\n")

	require.Eventually(t, func() bool {
		return reloads.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_StopsWithContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sidecar.yaml")
	writeConfig(t, path, "{}\n")

	w, err := New(Config{ConfigPath: path, Handler: func() error { return nil }})
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	cancel()

	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("watch loop did not exit")
	}
}

func TestHandleFileChange_Debounce(t *testing.T) {
	var calls int
	w, err := New(Config{
		ConfigPath: "sidecar.yaml",
		Handler: func() error {
			calls++
			return nil
		},
		Debounce: time.Hour,
	})
	require.NoError(t, err)
	defer w.Stop()

	ev := fsnotify.Event{Name: w.configPath, Op: fsnotify.Write}
	w.handleFileChange(ev)
	w.handleFileChange(ev)
	assert.Equal(t, 1, calls)
}

func TestHandleFileChange_FailureAllowsRetry(t *testing.T) {
	var calls int
	w, err := New(Config{
		ConfigPath: "sidecar.yaml",
		Handler: func() error {
			calls++
			return errors.New("invalid config")
		},
		Debounce: time.Hour,
	})
	require.NoError(t, err)
	defer w.Stop()

	ev := fsnotify.Event{Name: w.configPath, Op: fsnotify.Write}
	w.handleFileChange(ev)
	w.handleFileChange(ev)
	assert.Equal(t, 2, calls)
}
