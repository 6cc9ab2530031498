// Package signing re-signs the bundled interpreter's native binaries on
// macOS so they carry the same team identity as the application bundle.
// Everything here is a no-op on other platforms.
package signing

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// AdHocIdentity is used when no real signing identity can be found
const AdHocIdentity = "-"

// Commander runs an external tool and returns its output
type Commander interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecCommander implements Commander with os/exec
type ExecCommander struct{}

// Run implements Commander
func (ExecCommander) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Result summarises a signing run
type Result struct {
	Identity string   `json:"identity"`
	Signed   []string `json:"signed"`
	Skipped  []string `json:"skipped"`
	Failed   []string `json:"failed"`
}

// Signer detects identities and signs binaries
type Signer struct {
	cmd    Commander
	goos   string
	logger *zap.Logger
}

// New creates a signer for goos
func New(cmd Commander, goos string, logger *zap.Logger) *Signer {
	if cmd == nil {
		cmd = ExecCommander{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Signer{cmd: cmd, goos: goos, logger: logger}
}

// Enabled reports whether signing applies on this platform
func (s *Signer) Enabled() bool {
	return s.goos == "darwin"
}

// BundlePath returns the .app bundle containing exe, or "" when exe does
// not run from a bundle (development builds).
func BundlePath(exe string) string {
	const marker = ".app/Contents/MacOS"
	if !strings.Contains(filepath.ToSlash(exe), marker) {
		return ""
	}
	return filepath.Dir(filepath.Dir(filepath.Dir(exe)))
}

// DetectIdentity finds the identity the bundle was signed with. It asks
// codesign first, then the keychain for a Developer ID Application
// certificate, and finally falls back to an ad-hoc signature.
func (s *Signer) DetectIdentity(ctx context.Context, bundle string) string {
	if bundle == "" {
		s.logger.Info("no application bundle, using ad-hoc signature")
		return AdHocIdentity
	}

	if _, stderr, err := s.cmd.Run(ctx, "codesign", "-d", "-v", bundle); err == nil || len(stderr) > 0 {
		if id := parseAuthority(stderr); id != "" {
			s.logger.Info("detected signing identity", zap.String("identity", id))
			return id
		}
	}

	stdout, _, err := s.cmd.Run(ctx, "security", "find-identity", "-v", "-p", "codesigning")
	if err != nil {
		s.logger.Warn("failed to query signing identities, using ad-hoc signature", zap.Error(err))
		return AdHocIdentity
	}
	if id := parseDeveloperID(stdout); id != "" {
		s.logger.Info("found Developer ID", zap.String("identity", id))
		return id
	}

	s.logger.Warn("no Developer ID found, using ad-hoc signature")
	return AdHocIdentity
}

// parseAuthority returns the first "Authority=" value in codesign output
func parseAuthority(out []byte) string {
	for _, line := range strings.Split(string(out), "\n") {
		if _, value, ok := strings.Cut(line, "Authority="); ok {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// parseDeveloperID returns the quoted name of the first Developer ID
// Application identity listed by security find-identity
func parseDeveloperID(out []byte) string {
	for _, line := range strings.Split(string(out), "\n") {
		if !strings.Contains(line, "Developer ID Application") {
			continue
		}
		parts := strings.Split(line, `"`)
		if len(parts) >= 2 {
			return parts[1]
		}
	}
	return ""
}

// SigningOrder lists the files to sign under venv: libpython first, then the
// python3 executable, then every other .dylib, then every .so.
func SigningOrder(venv string) ([]string, error) {
	var first, dylibs, sos []string

	libpython := filepath.Join(venv, "lib", "libpython3.12.dylib")
	python := filepath.Join(venv, "bin", "python3")

	err := filepath.WalkDir(venv, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch {
		case path == libpython:
		case strings.HasSuffix(path, ".dylib"):
			dylibs = append(dylibs, path)
		case strings.HasSuffix(path, ".so"):
			sos = append(sos, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, p := range []string{libpython, python} {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			first = append(first, p)
		}
	}

	sort.Strings(dylibs)
	sort.Strings(sos)
	order := append(first, dylibs...)
	return append(order, sos...), nil
}

// SignVenv signs every native binary under venv with identity. Per-file
// failures are recorded in the result and never abort the run.
func (s *Signer) SignVenv(ctx context.Context, venv, identity string) (Result, error) {
	result := Result{Identity: identity}
	if !s.Enabled() {
		return result, nil
	}

	files, err := SigningOrder(venv)
	if err != nil {
		return result, err
	}

	for _, file := range files {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if !s.isMachO(ctx, file) {
			result.Skipped = append(result.Skipped, file)
			continue
		}
		_, stderr, err := s.cmd.Run(ctx, "codesign", "--force", "--sign", identity, "--options", "runtime", "--timestamp", file)
		if err != nil {
			s.logger.Warn("failed to sign", zap.String("file", file), zap.String("stderr", strings.TrimSpace(string(stderr))), zap.Error(err))
			result.Failed = append(result.Failed, file)
			continue
		}
		s.logger.Debug("signed", zap.String("file", file))
		result.Signed = append(result.Signed, file)
	}

	s.logger.Info("signing complete",
		zap.Int("signed", len(result.Signed)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("failed", len(result.Failed)))
	return result, nil
}

func (s *Signer) isMachO(ctx context.Context, path string) bool {
	stdout, _, err := s.cmd.Run(ctx, "file", path)
	if err != nil {
		return false
	}
	out := string(stdout)
	return strings.Contains(out, "Mach-O") || strings.Contains(out, "dynamically linked") || strings.Contains(out, "shared library")
}
