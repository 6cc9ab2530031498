package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/charliek/sidecar/internal/constants"
	"github.com/charliek/sidecar/internal/domain"
	"github.com/charliek/sidecar/internal/host"
	"github.com/charliek/sidecar/internal/logging"
)

type serveOptions struct {
	detach    bool
	watch     bool
	autostart bool
	sim       bool
	port      int
}

func (a *App) newServeCmd() *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sidecar host",
		Long: `Run the host: the daemon supervisor and its HTTP API. Only one host can
supervise a directory at a time. SIGINT and SIGTERM kill the daemon, sweep
its port and exit cleanly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.cmdServe(cmd, opts)
		},
	}
	cmd.Flags().BoolVarP(&opts.detach, "detach", "d", false, "Run in background")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Reload the config file when it changes")
	cmd.Flags().BoolVar(&opts.autostart, "autostart", false, "Start the daemon once the API is up")
	cmd.Flags().BoolVar(&opts.sim, "sim", false, "Autostart in simulation mode")
	cmd.Flags().IntVarP(&opts.port, "port", "p", constants.DefaultAPIPort, "API port (0 picks a free port)")
	return cmd
}

func (a *App) cmdServe(cmd *cobra.Command, opts serveOptions) error {
	cfg, cfgFile, err := a.loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cmd.Flags().Changed("port") {
		if opts.port < 0 || opts.port > 65535 {
			return fmt.Errorf("invalid port %d (must be 0-65535)", opts.port)
		}
		cfg.API.Port = opts.port
	}

	detached := host.IsDetachedChild()
	if opts.detach && !detached {
		if host.IsRunning(cfg.Dir) {
			return host.ErrAlreadyRunning
		}
		_, err := host.Detach(os.Args[1:], a.stdout)
		return err
	}

	logOpts := logging.Options{Verbose: a.verbose}
	if detached {
		f, err := host.RedirectOutput(cfg.Dir)
		if err != nil {
			return err
		}
		defer f.Close()
		logOpts.File = host.LogPath(cfg.Dir)
	}
	logger, err := logging.New(logOpts)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	h, err := host.New(host.Options{
		Config:     cfg,
		ConfigFile: cfgFile,
		Version:    Version,
		Watch:      opts.watch,
		Autostart:  opts.autostart || opts.sim,
		Mode:       domain.ModeFromSim(opts.sim),
		Signals:    sigCh,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	if !detached {
		source := cfgFile
		if source == "" {
			source = "built-in defaults"
		}
		fmt.Fprintf(a.stdout, "Starting sidecar host (config: %s)\n", source)
		fmt.Fprintf(a.stdout, "API server: %s\n", cfg.API.URL())

		_, ch := h.Bus().Subscribe(constants.ChannelStdout, constants.ChannelStderr, constants.ChannelTerminated)
		go NewEventPrinter(a.stdout, true).Drain(ch)
	}

	if err := h.Run(context.Background()); err != nil {
		if errors.Is(err, host.ErrAlreadyRunning) {
			return fmt.Errorf("%w (see 'sidecar status')", err)
		}
		logger.Error("host stopped with error", zap.Error(err))
		return err
	}

	if !detached {
		fmt.Fprintln(a.stdout, "Shutdown complete")
	}
	return nil
}
