package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// portTable is a process table with a fixed set of listeners
type portTable struct {
	mu        sync.Mutex
	listeners map[int][]int
	cmdlines  map[int]string
}

func (p *portTable) ListeningPIDs(_ context.Context, port int) ([]int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int{}, p.listeners[port]...), nil
}

func (p *portTable) MatchingPIDs(_ context.Context, signature string) ([]int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var pids []int
	for pid, cmdline := range p.cmdlines {
		if strings.Contains(cmdline, signature) {
			pids = append(pids, pid)
		}
	}
	sort.Ints(pids)
	return pids, nil
}

func (p *portTable) ParentPID(context.Context, int) (int, error) {
	return 1, nil
}

func (p *portTable) remove(pid int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cmdlines, pid)
	for port, pids := range p.listeners {
		var kept []int
		for _, other := range pids {
			if other != pid {
				kept = append(kept, other)
			}
		}
		p.listeners[port] = kept
	}
}

func (p *portTable) Terminate(_ context.Context, pid int) error {
	p.remove(pid)
	return nil
}

func (p *portTable) Kill(_ context.Context, pid int) error {
	p.remove(pid)
	return nil
}

func TestSweepCmd(t *testing.T) {
	app, stdout, _ := newTestApp(t)
	writeConfig(t, "reaper:\n  grace: 1ms\n  settle: 1ms\n")
	app.table = &portTable{
		listeners: map[int][]int{9100: {4001}},
		cmdlines:  map[int]string{4002: "python3 -m custom.sig"},
	}

	code := app.Run([]string{"sidecar", "sweep", "--port", "9100", "--signature", "custom.sig"})
	require.Equal(t, 0, code)
	out := stdout.String()
	assert.True(t, strings.HasPrefix(out, "Swept port 9100 ("), out)
	assert.Contains(t, out, "4001")
	assert.Contains(t, out, "4002")
}

func TestSweepCmd_NothingToDo(t *testing.T) {
	app, stdout, _ := newTestApp(t)
	app.table = &portTable{listeners: map[int][]int{}, cmdlines: map[int]string{}}

	require.Equal(t, 0, app.Run([]string{"sidecar", "sweep"}))
	assert.Equal(t, "Swept port 8000 (no stray processes)\n", stdout.String())
}

type fakeCommander struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeCommander) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()

	last := args[len(args)-1]
	switch name {
	case "file":
		return []byte(last + ": Mach-O 64-bit dynamically linked shared library arm64\n"), nil, nil
	case "codesign":
		return nil, nil, nil
	}
	return nil, nil, errors.New("unexpected command " + name)
}

func TestSignCmd_OffDarwin(t *testing.T) {
	app, stdout, _ := newTestApp(t)
	fake := &fakeCommander{}
	app.commander = fake

	require.Equal(t, 0, app.Run([]string{"sidecar", "sign"}))
	assert.Equal(t, "Runtime signing only applies on macOS, nothing to do\n", stdout.String())
	assert.Empty(t, fake.calls)
}

func TestSignCmd_Darwin(t *testing.T) {
	app, stdout, _ := newTestApp(t)
	app.goos = "darwin"
	fake := &fakeCommander{}
	app.commander = fake

	venv := t.TempDir()
	lib := filepath.Join(venv, "lib", "libpython3.12.dylib")
	require.NoError(t, os.MkdirAll(filepath.Dir(lib), 0755))
	require.NoError(t, os.WriteFile(lib, []byte("x"), 0755))

	require.Equal(t, 0, app.Run([]string{"sidecar", "sign", "--venv", venv, "--identity", "-"}))
	assert.Equal(t, "Signed 1, skipped 0, failed 0 (identity -)\n", stdout.String())
	assert.Equal(t, []string{"file", "codesign"}, fake.calls)
}
