package reaper

import (
	"context"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
)

// ProcessTable is the reaper's view of the operating system
type ProcessTable interface {
	// ListeningPIDs returns the PIDs with a TCP socket listening on port
	ListeningPIDs(ctx context.Context, port int) ([]int, error)
	// MatchingPIDs returns the PIDs whose command line contains signature
	MatchingPIDs(ctx context.Context, signature string) ([]int, error)
	// ParentPID returns the parent of pid
	ParentPID(ctx context.Context, pid int) (int, error)
	// Terminate asks pid to exit (SIGTERM on Unix)
	Terminate(ctx context.Context, pid int) error
	// Kill force-kills pid (SIGKILL on Unix)
	Kill(ctx context.Context, pid int) error
}

// SystemTable implements ProcessTable using gopsutil
type SystemTable struct{}

// NewSystemTable creates a new system process table
func NewSystemTable() *SystemTable {
	return &SystemTable{}
}

// ListeningPIDs returns listeners only. A client connected to the worker
// port (such as this host polling the worker) is not a target.
func (t *SystemTable) ListeningPIDs(ctx context.Context, port int) ([]int, error) {
	conns, err := net.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return nil, err
	}

	var pids []int
	for _, c := range conns {
		if c.Status != "LISTEN" || c.Laddr.Port != uint32(port) || c.Pid <= 0 {
			continue
		}
		pids = append(pids, int(c.Pid))
	}
	return dedupe(pids), nil
}

// MatchingPIDs scans the full process table. The calling process is never
// reported even if its own arguments contain the signature.
func (t *SystemTable) MatchingPIDs(ctx context.Context, signature string) ([]int, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	self := os.Getpid()
	var pids []int
	for _, p := range procs {
		if int(p.Pid) == self {
			continue
		}
		cmdline, err := p.CmdlineWithContext(ctx)
		if err != nil {
			continue // Process may have exited
		}
		if strings.Contains(cmdline, signature) {
			pids = append(pids, int(p.Pid))
		}
	}
	return pids, nil
}

// ParentPID implements ProcessTable
func (t *SystemTable) ParentPID(ctx context.Context, pid int) (int, error) {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return 0, err
	}
	ppid, err := p.PpidWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return int(ppid), nil
}

// Terminate implements ProcessTable
func (t *SystemTable) Terminate(ctx context.Context, pid int) error {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return err
	}
	return p.TerminateWithContext(ctx)
}

// Kill implements ProcessTable
func (t *SystemTable) Kill(ctx context.Context, pid int) error {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return err
	}
	return p.KillWithContext(ctx)
}

func dedupe(pids []int) []int {
	seen := make(map[int]bool, len(pids))
	out := pids[:0]
	for _, pid := range pids {
		if seen[pid] {
			continue
		}
		seen[pid] = true
		out = append(out, pid)
	}
	return out
}

var _ ProcessTable = (*SystemTable)(nil)
