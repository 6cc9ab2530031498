package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    DaemonMode
		wantErr bool
	}{
		{"", ModeNormal, false},
		{"normal", ModeNormal, false},
		{"simulation", ModeSimulation, false},
		{"SIM", ModeSimulation, false},
		{"turbo", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestModeFromSim(t *testing.T) {
	assert.Equal(t, ModeSimulation, ModeFromSim(true))
	assert.Equal(t, ModeNormal, ModeFromSim(false))
	assert.True(t, ModeSimulation.IsSimulation())
	assert.False(t, ModeNormal.IsSimulation())
}

func TestExitStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  ExitStatus
		success bool
		str     string
	}{
		{"clean", ExitStatus{Code: 0}, true, "ExitStatus { code: 0, signal: None }"},
		{"code", ExitStatus{Code: 7}, false, "ExitStatus { code: 7, signal: None }"},
		{"signal", ExitStatus{Code: -1, Signal: 9}, false, "ExitStatus { code: None, signal: 9 }"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.success, tt.status.Success())
			assert.Equal(t, tt.str, tt.status.String())
		})
	}
}

func TestLaunchSpec_String(t *testing.T) {
	spec := LaunchSpec{Executable: "/bin/uv-trampoline", Args: []string{".venv/bin/python3", "-m", "mod"}}
	assert.Equal(t, "/bin/uv-trampoline .venv/bin/python3 -m mod", spec.String())
}

func TestDaemonStatus_UptimeSeconds(t *testing.T) {
	t.Run("not running", func(t *testing.T) {
		s := DaemonStatus{StartedAt: time.Now().Add(-time.Hour)}
		assert.Equal(t, int64(0), s.UptimeSeconds())
	})

	t.Run("running", func(t *testing.T) {
		s := DaemonStatus{Running: true, StartedAt: time.Now().Add(-10 * time.Second)}
		assert.GreaterOrEqual(t, s.UptimeSeconds(), int64(9))
	})
}
