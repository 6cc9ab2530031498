// Package trampoline implements the launcher that sits between the host and
// the bundled python runtime. It finds the runtime next to its own
// executable, repairs the virtualenv for the current install location and
// supervises the child until it exits or a termination signal arrives.
package trampoline

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/charliek/sidecar/internal/logging"
	"github.com/charliek/sidecar/internal/signing"
)

var executable = os.Executable

// EnvSign enables runtime re-signing before the child starts (macOS only)
const EnvSign = "SIDECAR_TRAMPOLINE_SIGN"

// Options configures a trampoline run. Zero values select the running
// process's executable folder, platform, stdio and environment.
type Options struct {
	Args    []string
	BaseDir string
	GOOS    string
	Env     []string
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
	Signals <-chan os.Signal
	Poll    time.Duration
	Logger  *zap.Logger
	Signer  *signing.Signer
}

func (o *Options) applyDefaults() {
	if o.BaseDir == "" {
		o.BaseDir = ExecutableDir()
	}
	if o.GOOS == "" {
		o.GOOS = runtime.GOOS
	}
	if o.Env == nil {
		o.Env = os.Environ()
	}
	if o.Stdin == nil {
		o.Stdin = os.Stdin
	}
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	if o.Logger == nil {
		o.Logger = logging.NewPlain(o.Stderr)
	}
	if o.Signer == nil {
		o.Signer = signing.New(nil, o.GOOS, o.Logger)
	}
}

// Run executes the trampoline and returns the process exit code
func Run(opts Options) int {
	opts.applyDefaults()
	logger := opts.Logger
	defer func() { _ = logger.Sync() }()

	flag := &ShutdownFlag{}
	flag.Watch(opts.Signals)

	cmd, err := Prepare(opts)
	if err != nil {
		logger.Error(err.Error())
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return exitErr.Code
		}
		return ExitFailure
	}

	logger.Info("launching", zap.String("command", cmd.String()))
	code, err := Supervise(cmd, flag, opts.Poll)
	if err != nil {
		logger.Error(err.Error())
		return ExitFailure
	}
	if flag.IsSet() {
		logger.Info("terminated by signal", zap.Int("code", code))
	}
	return code
}

// Prepare locates the runtime, repairs the virtualenv and builds the child
// command. It changes the working directory to the located folder.
func Prepare(opts Options) (*exec.Cmd, error) {
	opts.applyDefaults()
	logger := opts.Logger

	payload := PayloadName(opts.GOOS)
	folder, err := Locate(opts.BaseDir, Candidates(opts.GOOS), payload)
	if err != nil {
		return nil, fatal(err)
	}
	logger.Info("found runtime", zap.String("folder", folder))

	if err := os.Chdir(folder); err != nil {
		return nil, fatal(err)
	}

	home, err := FindRuntimeHome(folder)
	if err != nil {
		return nil, fatal(err)
	}

	if err := PatchPyvenvCfg(folder, HomePath(folder, home, opts.GOOS), opts.GOOS); err != nil {
		var transErr *TranslocationError
		if errors.As(err, &transErr) {
			return nil, fatal(err)
		}
		logger.Warn("could not update virtualenv config", zap.Error(err))
	}

	resolved := ResolveCommand(folder, payload, opts.Args)
	if resolved.Direct && filepath.Base(resolved.Path) == "mjpython" {
		if fixed, err := FixMjpythonShebang(folder); err != nil {
			logger.Warn("could not repair mjpython", zap.Error(err))
		} else if fixed {
			logger.Info("repaired mjpython launcher")
		}
	}

	if opts.GOOS == "darwin" && lookupEnv(opts.Env, EnvSign) == "1" {
		signRuntime(opts, folder)
	}

	cmd := exec.Command(resolved.Path, resolved.Args...)
	cmd.Dir = folder
	cmd.Env = ChildEnv(opts.Env, folder)
	cmd.Stdin = opts.Stdin
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr
	return cmd, nil
}

func signRuntime(opts Options, folder string) {
	ctx := context.Background()
	identity := signing.AdHocIdentity
	if exe, err := executable(); err != nil {
		opts.Logger.Warn("could not resolve executable, using ad-hoc signature", zap.Error(err))
	} else {
		identity = opts.Signer.DetectIdentity(ctx, signing.BundlePath(exe))
	}
	if _, err := opts.Signer.SignVenv(ctx, filepath.Join(folder, ".venv"), identity); err != nil {
		opts.Logger.Warn("signing failed", zap.Error(err))
	}
}

func lookupEnv(env []string, key string) string {
	prefix := key + "="
	for i := len(env) - 1; i >= 0; i-- {
		if len(env[i]) >= len(prefix) && env[i][:len(prefix)] == prefix {
			return env[i][len(prefix):]
		}
	}
	return ""
}
