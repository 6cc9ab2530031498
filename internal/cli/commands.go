package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/charliek/sidecar/internal/api"
	"github.com/charliek/sidecar/internal/domain"
	"github.com/charliek/sidecar/internal/tui"
)

const hostHint = "Is the sidecar host running? Try 'sidecar serve -d' first."

func (a *App) newStartCmd() *cobra.Command {
	var sim bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.cmdStart(sim)
		},
	}
	cmd.Flags().BoolVar(&sim, "sim", false, "Start in simulation mode")
	return cmd
}

func (a *App) cmdStart(sim bool) error {
	if sim {
		fmt.Fprintln(a.stdout, "Starting daemon in simulation mode (installing dependencies first)...")
	}
	resp, err := a.client().StartDaemon(sim)
	if err != nil {
		return a.hostError(err)
	}
	if resp.Skipped {
		fmt.Fprintf(a.stdout, "Daemon already running (pid %d)\n", resp.PID)
		return nil
	}
	fmt.Fprintf(a.stdout, "Daemon started (pid %d, mode %s)\n", resp.PID, resp.Mode)
	return nil
}

func (a *App) newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon and sweep its port",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.client().StopDaemon()
			if err != nil {
				return a.hostError(err)
			}
			a.printSweep("Daemon stopped", resp)
			return nil
		},
	}
}

func (a *App) newStatusCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.cmdStatus(jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	return cmd
}

func (a *App) cmdStatus(jsonOutput bool) error {
	client := a.client()
	status, err := client.GetStatus()
	if err != nil {
		return a.hostError(err)
	}

	if jsonOutput {
		return json.NewEncoder(a.stdout).Encode(status)
	}

	fmt.Fprintf(a.stdout, "Host:    %s (api %s)\n", client.BaseURL(), status.APIVersion)
	if status.Running {
		uptime := formatDuration(time.Duration(status.UptimeSeconds) * time.Second)
		fmt.Fprintf(a.stdout, "Daemon:  running (pid %d, mode %s, uptime %s)\n", status.PID, status.Mode, uptime)
	} else {
		fmt.Fprintln(a.stdout, "Daemon:  stopped")
	}
	if status.ConfigFile != "" {
		fmt.Fprintf(a.stdout, "Config:  %s\n", status.ConfigFile)
	}
	return nil
}

func (a *App) newLogsCmd() *cobra.Command {
	var (
		follow     bool
		jsonOutput bool
		channels   []string
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the supervisor's diagnostic log",
		Long: `Show the supervisor's diagnostic log. With --follow, stream the daemon's
output and diagnostics as they happen.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if follow {
				return a.cmdFollow(cmd.Context(), channels, jsonOutput)
			}
			return a.cmdLogs(jsonOutput)
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow the event stream")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	cmd.Flags().StringSliceVar(&channels, "channel", nil, "Event channels to follow (default: all)")
	return cmd
}

func (a *App) cmdLogs(jsonOutput bool) error {
	resp, err := a.client().GetLogs()
	if err != nil {
		return a.hostError(err)
	}
	if jsonOutput {
		return json.NewEncoder(a.stdout).Encode(resp)
	}
	for _, entry := range resp.Logs {
		printLogEntry(a.stdout, entry)
	}
	return nil
}

func (a *App) cmdFollow(ctx context.Context, channels []string, jsonOutput bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	printer := NewEventPrinter(a.stdout, true)
	enc := json.NewEncoder(a.stdout)
	err := a.client().StreamEvents(ctx, channels, func(ev domain.Event) {
		if jsonOutput {
			_ = enc.Encode(ev)
			return
		}
		printer.Print(ev)
	})
	if err != nil {
		return a.hostError(err)
	}
	return nil
}

func (a *App) newInstallSimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install-sim",
		Short: "Install the simulation dependencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.client().InstallSimulation()
			if err != nil {
				return a.hostError(err)
			}
			fmt.Fprintln(a.stdout, resp.Message)
			return nil
		},
	}
}

func (a *App) newShutdownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shutdown",
		Short: "Stop the daemon and the host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client().Shutdown(); err != nil {
				return a.hostError(err)
			}
			fmt.Fprintln(a.stdout, "Shutdown initiated")
			return nil
		},
	}
}

func (a *App) newTUICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the terminal monitor for a running host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := a.client()
			if _, err := client.GetStatus(); err != nil {
				return a.hostError(err)
			}
			return tui.Run(client)
		},
	}
}

func (a *App) printSweep(prefix string, resp *api.SweepResponse) {
	total := len(resp.Terminated) + len(resp.KilledOnPort) + len(resp.KilledSignature)
	if total == 0 {
		fmt.Fprintf(a.stdout, "%s (no stray processes)\n", prefix)
		return
	}
	var parts []string
	if len(resp.Terminated) > 0 {
		parts = append(parts, fmt.Sprintf("terminated %v", resp.Terminated))
	}
	if len(resp.KilledOnPort) > 0 {
		parts = append(parts, fmt.Sprintf("killed on port %v", resp.KilledOnPort))
	}
	if len(resp.KilledSignature) > 0 {
		parts = append(parts, fmt.Sprintf("killed by signature %v", resp.KilledSignature))
	}
	fmt.Fprintf(a.stdout, "%s (%s)\n", prefix, strings.Join(parts, ", "))
}

// hostError adds a hint when the host could not be reached
func (a *App) hostError(err error) error {
	if strings.Contains(err.Error(), "request failed:") {
		fmt.Fprintln(a.stderr, hostHint)
	}
	return err
}
