package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/charliek/sidecar/internal/api"
	"github.com/charliek/sidecar/internal/host"
	"github.com/charliek/sidecar/internal/logging"
	"github.com/charliek/sidecar/internal/reaper"
	"github.com/charliek/sidecar/internal/signing"
	"github.com/charliek/sidecar/internal/trampoline"
)

func (a *App) newSweepCmd() *cobra.Command {
	var (
		port      int
		signature string
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Kill stray daemon processes",
		Long: `Kill every process listening on the daemon port and every process whose
command line carries the daemon signature. Runs locally and needs no host.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.cmdSweep(cmd, port, signature)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "Daemon port (default from config)")
	cmd.Flags().StringVar(&signature, "signature", "", "Command line signature (default from config)")
	return cmd
}

func (a *App) cmdSweep(cmd *cobra.Command, port int, signature string) error {
	cfg, _, err := a.loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	rc := host.ReaperConfig(cfg)
	if cmd.Flags().Changed("port") {
		rc.Port = port
	}
	if signature != "" {
		rc.Signature = signature
	}

	logger, err := logging.New(logging.Options{Verbose: a.verbose})
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	table := a.table
	if table == nil {
		table = reaper.NewSystemTable()
	}

	report := reaper.New(table, rc, logger).Sweep(context.Background())
	resp := api.ToSweepResponse(report, "")
	a.printSweep(fmt.Sprintf("Swept port %d", rc.Port), &resp)
	return nil
}

func (a *App) newSignCmd() *cobra.Command {
	var venv, identity, bundle string
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Re-sign the bundled runtime binaries (macOS)",
		Long: `Re-sign the native binaries of the bundled python environment with the
application's signing identity. Does nothing on other platforms.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.cmdSign(cmd.Context(), venv, identity, bundle)
		},
	}
	cmd.Flags().StringVar(&venv, "venv", "", "Virtualenv to sign (default: the trampoline's .venv)")
	cmd.Flags().StringVar(&identity, "identity", "", "Signing identity (default: detected)")
	cmd.Flags().StringVar(&bundle, "bundle", "", "Application bundle to read the identity from")
	return cmd
}

func (a *App) cmdSign(ctx context.Context, venv, identity, bundle string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger, err := logging.New(logging.Options{Verbose: a.verbose})
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	signer := signing.New(a.commander, a.goos, logger)
	if !signer.Enabled() {
		fmt.Fprintln(a.stdout, "Runtime signing only applies on macOS, nothing to do")
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("getting executable path: %w", err)
	}

	if venv == "" {
		cfg, _, err := a.loadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		base := filepath.Dir(cfg.TrampolinePath(exe))
		folder, err := trampoline.Locate(base, trampoline.Candidates(a.goos), trampoline.PayloadName(a.goos))
		if err != nil {
			return err
		}
		venv = filepath.Join(folder, ".venv")
	}

	if identity == "" {
		if bundle == "" {
			bundle = signing.BundlePath(exe)
		}
		identity = signer.DetectIdentity(ctx, bundle)
	}

	result, err := signer.SignVenv(ctx, venv, identity)
	if err != nil {
		return fmt.Errorf("signing %s: %w", venv, err)
	}
	fmt.Fprintf(a.stdout, "Signed %d, skipped %d, failed %d (identity %s)\n",
		len(result.Signed), len(result.Skipped), len(result.Failed), result.Identity)
	return nil
}
